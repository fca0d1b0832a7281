// Package gateway defines what applications see of client connections,
// independent of the transport carrying them.
package gateway

import (
	"errors"
)

// ErrConnClosed returned when sending to closed connection.
var ErrConnClosed = errors.New("connection closed")

// Conn is a logical bidirectional client connection.
type Conn interface {
	// ID is unique connection identifier.
	ID() string
	// Transport name, e.g. "websocket" or "wseb".
	Transport() string
	// Send enqueues message to client. Data must not be modified after Send.
	Send(data []byte) error
	// Disconnect closes connection gracefully.
	Disconnect() error
}

// Handler receives connection events. Calls for one Conn are never concurrent.
type Handler interface {
	OnOpen(c Conn)
	OnMessage(c Conn, data []byte)
	OnClose(c Conn)
}
