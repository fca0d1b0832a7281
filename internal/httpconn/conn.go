// Package httpconn adapts a single HTTP request/response pair to the
// connection contract of emulated sessions. Bytes written by the session loop
// are buffered and pumped to the http.ResponseWriter by Serve, which runs on
// the request goroutine.
package httpconn

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/centrifugal/wsgate/internal/ioloop"
	"github.com/centrifugal/wsgate/internal/logging"
	"github.com/centrifugal/wsgate/internal/wseb"

	"github.com/rs/zerolog/log"
)

// ErrClosed returned when writing to or reading from closed Conn.
var ErrClosed = errors.New("http connection closed")

var _ wseb.Conn = (*Conn)(nil)

// Conn is one HTTP request used as session writer or reader.
type Conn struct {
	ioloop.Alignment

	id string

	mu             sync.Mutex
	attrs          map[string]any
	buf            []byte
	written        int64
	writeSuspended bool
	writeShutdown  bool
	readSuspended  bool
	readCh         chan struct{}
	closed         bool
	linger         bool

	notifyCh  chan struct{}
	closeOnce sync.Once
	closeCh   chan struct{}
}

// New creates Conn aligned to loop.
func New(id string, loop *ioloop.Loop) *Conn {
	c := &Conn{
		id:       id,
		attrs:    make(map[string]any),
		readCh:   make(chan struct{}),
		notifyCh: make(chan struct{}, 1),
		closeCh:  make(chan struct{}),
	}
	c.SetIoAlignment(loop)
	return c
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) Attribute(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.attrs[key]
	return v, ok
}

func (c *Conn) SetAttribute(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attrs[key] = value
}

func (c *Conn) notify() {
	select {
	case c.notifyCh <- struct{}{}:
	default:
	}
}

// Write buffers p for Serve.
func (c *Conn) Write(p []byte) error {
	c.mu.Lock()
	if c.closed || c.writeShutdown {
		c.mu.Unlock()
		return ErrClosed
	}
	c.buf = append(c.buf, p...)
	c.written += int64(len(p))
	c.mu.Unlock()
	c.notify()
	return nil
}

// WrittenBytes is a number of bytes accepted by Write so far.
func (c *Conn) WrittenBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written
}

// SuspendWrite makes Serve hold buffered bytes.
func (c *Conn) SuspendWrite() {
	c.mu.Lock()
	c.writeSuspended = true
	c.mu.Unlock()
}

func (c *Conn) ResumeWrite() {
	c.mu.Lock()
	c.writeSuspended = false
	c.mu.Unlock()
	c.notify()
}

// ShutdownWrite rejects further writes. Serve completes the response once
// the buffer is sent.
func (c *Conn) ShutdownWrite() {
	c.mu.Lock()
	c.writeShutdown = true
	c.mu.Unlock()
	c.notify()
}

func (c *Conn) SuspendRead() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.readSuspended {
		c.readSuspended = true
		c.readCh = make(chan struct{})
	}
}

func (c *Conn) ResumeRead() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readSuspended {
		c.readSuspended = false
		close(c.readCh)
	}
}

// WaitReadable blocks while reading is suspended. Returns ErrClosed once
// Conn closed.
func (c *Conn) WaitReadable(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		if !c.readSuspended {
			c.mu.Unlock()
			return nil
		}
		ch := c.readCh
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		case <-c.closeCh:
		}
	}
}

// Close closes Conn. With linger buffered bytes are still sent by Serve,
// otherwise they are dropped.
func (c *Conn) Close(linger bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.linger = linger
	if !linger {
		c.buf = nil
	}
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closeCh) })
	c.notify()
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Done is closed once Conn closed.
func (c *Conn) Done() <-chan struct{} {
	return c.closeCh
}

type pumpState struct {
	data      []byte
	closed    bool
	shutdown  bool
	suspended bool
}

func (c *Conn) take() pumpState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := pumpState{closed: c.closed, shutdown: c.writeShutdown, suspended: c.writeSuspended}
	if len(c.buf) > 0 && (!c.writeSuspended || c.closed) {
		st.data = c.buf
		c.buf = nil
	}
	return st
}

// Serve pumps written bytes to w until Conn closed, write shut down or ctx
// done. Streaming responses are flushed after every batch. Long-polling
// responses (suspended writes) are sent at once with Content-Length when the
// session completes them.
func (c *Conn) Serve(ctx context.Context, w http.ResponseWriter) error {
	flusher, _ := w.(http.Flusher)
	headerWritten := false
	writeHeader := func(contentLength int) {
		if headerWritten {
			return
		}
		if contentLength >= 0 {
			w.Header().Set("Content-Length", strconv.Itoa(contentLength))
		}
		w.WriteHeader(http.StatusOK)
		headerWritten = true
	}

	if !wseb.IsLongPolling(c) {
		writeHeader(-1)
		if flusher != nil {
			flusher.Flush()
		}
	}

	for {
		st := c.take()
		if st.data != nil {
			if st.shutdown || st.closed {
				writeHeader(len(st.data))
			} else {
				writeHeader(-1)
			}
			if _, err := w.Write(st.data); err != nil {
				if logging.Enabled(logging.DebugLevel) {
					log.Debug().Err(err).Str("conn", c.id).Msg("error writing response")
				}
				c.Close(false)
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
			continue
		}
		if st.closed || (st.shutdown && !st.suspended) {
			writeHeader(0)
			c.Close(false)
			return nil
		}
		select {
		case <-ctx.Done():
			c.Close(false)
			return ctx.Err()
		case <-c.notifyCh:
		}
	}
}
