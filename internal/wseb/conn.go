package wseb

import "github.com/centrifugal/wsgate/internal/ioloop"

// ClientBufferKey is a Conn attribute holding the number of bytes a client is
// ready to receive over one downstream connection. Zero means long-polling.
const ClientBufferKey = "wseb.client_buffer"

// Conn is a transport connection which can be attached to Session as writer
// (downstream) or reader (upstream).
type Conn interface {
	ioloop.Aligned

	ID() string

	Attribute(key string) (any, bool)
	SetAttribute(key string, value any)

	// Write appends bytes to connection output. Output is not transmitted
	// while write is suspended.
	Write(p []byte) error
	// WrittenBytes is the total number of bytes accepted by Write.
	WrittenBytes() int64

	SuspendWrite()
	ResumeWrite()
	// ShutdownWrite marks output as complete. Nothing can be written after it.
	ShutdownWrite()

	SuspendRead()
	ResumeRead()

	// Close closes connection. With linger set buffered output is delivered
	// before the underlying transport is released.
	Close(linger bool)
	Closed() bool
}

// ClientBuffer returns client buffer budget of connection.
func ClientBuffer(c Conn) (int, bool) {
	v, ok := c.Attribute(ClientBufferKey)
	if !ok {
		return 0, false
	}
	n, ok := v.(int)
	return n, ok
}

// IsLongPolling reports whether connection must be completed with a
// length-terminated response.
func IsLongPolling(c Conn) bool {
	n, ok := ClientBuffer(c)
	return ok && n == 0
}
