package websocket

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/centrifugal/wsgate/internal/gateway"

	"github.com/gorilla/websocket"
)

// TransportName of native WebSocket connections.
const TransportName = "websocket"

type connOptions struct {
	pingInterval time.Duration
	writeTimeout time.Duration
}

// conn is a gateway.Conn over gorilla WebSocket connection.
type conn struct {
	id   string
	ws   *websocket.Conn
	opts connOptions

	mu        sync.Mutex
	writeMu   sync.Mutex // sync data writes with pings.
	closed    bool
	closeCh   chan struct{}
	pingTimer *time.Timer
}

var _ gateway.Conn = (*conn)(nil)

func newConn(id string, ws *websocket.Conn, opts connOptions) *conn {
	c := &conn{
		id:      id,
		ws:      ws,
		opts:    opts,
		closeCh: make(chan struct{}),
	}
	if opts.pingInterval > 0 {
		c.addPing()
	}
	return c
}

func (c *conn) ID() string {
	return c.id
}

func (c *conn) Transport() string {
	return TransportName
}

func (c *conn) addPing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.pingTimer = time.AfterFunc(c.opts.pingInterval, c.ping)
}

func (c *conn) ping() {
	select {
	case <-c.closeCh:
		return
	default:
	}
	deadline := time.Now().Add(c.opts.pingInterval / 2)
	c.writeMu.Lock()
	err := c.ws.WriteControl(websocket.PingMessage, nil, deadline)
	c.writeMu.Unlock()
	if err != nil {
		c.close()
		return
	}
	c.addPing()
}

func (c *conn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return gateway.ErrConnClosed
	default:
	}
	messageType := websocket.TextMessage
	if !utf8.Valid(data) {
		messageType = websocket.BinaryMessage
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.opts.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))
	}
	if err := c.ws.WriteMessage(messageType, data); err != nil {
		return err
	}
	if c.opts.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Time{})
	}
	return nil
}

// Disconnect sends close frame and closes connection.
func (c *conn) Disconnect() error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
	c.writeMu.Unlock()
	return c.close()
}

func (c *conn) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.pingTimer != nil {
		c.pingTimer.Stop()
	}
	close(c.closeCh)
	c.mu.Unlock()
	return c.ws.Close()
}
