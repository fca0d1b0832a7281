// Package wseb implements emulated WebSocket sessions: a logical bidirectional
// channel carried over a rotating sequence of short-lived HTTP requests.
//
// A Session owns the current downstream connection (writer), at most one
// connection waiting to replace it (pending writer) and the current upstream
// connection (reader). All session state except writer and pending writer is
// owned by the session loop; writer and pending writer are atomic cells so
// that concurrently accepted connections may race for them safely.
package wseb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/centrifugal/wsgate/internal/gateway"
	"github.com/centrifugal/wsgate/internal/ioloop"
	"github.com/centrifugal/wsgate/internal/logging"
	"github.com/centrifugal/wsgate/internal/metrics"
	"github.com/centrifugal/wsgate/internal/wsframe"

	"github.com/rs/zerolog/log"
)

// ErrSessionClosed returned when sending to closing session.
var ErrSessionClosed = fmt.Errorf("session: %w", gateway.ErrConnClosed)

// TransportName of emulated sessions as seen by gateway.Handler.
const TransportName = "wseb"

// Config of Session.
type Config struct {
	// ClientIdleTimeout is how long session lives without writer. Zero disables.
	ClientIdleTimeout time.Duration
	// InactivityTimeout is passed to keepalive feature. Zero disables.
	InactivityTimeout time.Duration
	// EscapeType of downstream bytes.
	EscapeType wsframe.EscapeType
	// Processor drains write queue, FrameProcessor is used when nil.
	Processor Processor
	// Handler receives application events, optional.
	Handler gateway.Handler
	// Features started after every writer attach.
	Features []Feature
	// OnClose is called on the session loop once session closed.
	OnClose func(s *Session)
}

// Session is an emulated WebSocket session.
type Session struct {
	id   string
	loop *ioloop.Loop
	cfg  Config

	processor Processor

	writer        connCell
	pendingWriter connCell
	reader        connCell

	// Owned by loop.
	queue *WriteQueue

	reconnecting   atomic.Bool
	attachingWrite atomic.Bool
	closing        atomic.Bool
	writeSuspended atomic.Bool
	readSuspended  atomic.Bool

	timeoutCommand atomic.Pointer[TimeoutCommand]

	doneCh chan struct{}
}

// NewSession creates Session owned by loop. If ClientIdleTimeout is set the
// session is closed unless a writer attaches in time.
func NewSession(id string, loop *ioloop.Loop, cfg Config) *Session {
	s := &Session{
		id:     id,
		loop:   loop,
		cfg:    cfg,
		queue:  newWriteQueue(),
		doneCh: make(chan struct{}),
	}
	s.processor = cfg.Processor
	if s.processor == nil {
		s.processor = NewFrameProcessor()
	}
	metrics.SessionOpened()
	s.scheduleTimeoutCommand()
	return s
}

// ID of session, also used in its URLs.
func (s *Session) ID() string {
	return s.id
}

// IoLoop returns loop owning session state.
func (s *Session) IoLoop() *ioloop.Loop {
	return s.loop
}

// InactivityTimeout after which silent client is closed, zero disables keepalive.
func (s *Session) InactivityTimeout() time.Duration {
	return s.cfg.InactivityTimeout
}

// EncodeEscapeType applied to downstream bytes.
func (s *Session) EncodeEscapeType() wsframe.EscapeType {
	return s.cfg.EscapeType
}

// Writer is the current downstream connection, nil if none.
func (s *Session) Writer() Conn {
	return s.writer.Load()
}

// PendingWriter waits for the current writer to complete reconnect.
func (s *Session) PendingWriter() Conn {
	return s.pendingWriter.Load()
}

// Reader is the current upstream connection, nil if none.
func (s *Session) Reader() Conn {
	return s.reader.Load()
}

// Queue returns write queue. Must only be used on the session loop.
func (s *Session) Queue() *WriteQueue {
	return s.queue
}

// IsClosing reports whether Close was called.
func (s *Session) IsClosing() bool {
	return s.closing.Load()
}

// Done is closed once session closed.
func (s *Session) Done() <-chan struct{} {
	return s.doneCh
}

// WriteSuspended reports whether queue draining is paused.
func (s *Session) WriteSuspended() bool {
	return s.writeSuspended.Load()
}

// ReadSuspended reports whether upstream reads are paused.
func (s *Session) ReadSuspended() bool {
	return s.readSuspended.Load()
}

// Reconnecting is true from reconnect request until the next writer attaches.
func (s *Session) Reconnecting() bool {
	return s.reconnecting.Load()
}

// TryBeginAttach marks that a writer attach is in progress. Returns false if
// one already is.
func (s *Session) TryBeginAttach() bool {
	return s.attachingWrite.CompareAndSwap(false, true)
}

// EndAttach ends attach started with TryBeginAttach.
func (s *Session) EndAttach() {
	s.attachingWrite.Store(false)
}

func (s *Session) execute(ctx context.Context, task ioloop.Task) error {
	return s.loop.Execute(ctx, task)
}

// AttachWriter attaches c as session writer, or as pending writer when a
// writer is already attached. When called outside of the session loop c is
// realigned to the session loop and the call completes asynchronously: in
// that case a failure to start session features closes the session.
func (s *Session) AttachWriter(ctx context.Context, c Conn) error {
	if ioloop.InLoop(ctx, s.loop) {
		c.SetIoAlignment(s.loop)
		return s.attachWriter(ctx, c)
	}
	err := ioloop.Realign(ctx, c, s.loop, func(ctx context.Context) {
		if err := s.attachWriter(ctx, c); err != nil {
			s.Close(ctx, true)
		}
	})
	if err != nil {
		c.Close(false)
		return fmt.Errorf("error attaching writer: %w", err)
	}
	return nil
}

func (s *Session) attachWriter(ctx context.Context, c Conn) error {
	if s.IsClosing() {
		c.Close(false)
		metrics.IncWriterAttach(metrics.AttachResultRejected)
		return nil
	}

	if s.writer.CompareAndSwap(nil, c) {
		if IsLongPolling(c) {
			c.SuspendWrite()
		}
		s.reconnecting.Store(false)
		s.ClearTimeoutCommand()
		metrics.IncWriterAttach(metrics.AttachResultAttached)
		if logging.Enabled(logging.DebugLevel) {
			log.Debug().Str("session", s.id).Str("conn", c.ID()).Bool("long_polling", IsLongPolling(c)).Msg("writer attached")
		}
		if !s.writeSuspended.Load() {
			s.processor.Flush(ctx, s)
		}
	} else {
		if old := s.pendingWriter.Swap(c); old != nil && old != c {
			old.Close(false)
			metrics.WritersSupersededTotal.Inc()
		}
		s.queue.Push(reconnectRequest(true))
		s.reconnecting.Store(true)
		metrics.IncWriterAttach(metrics.AttachResultPending)
		if logging.Enabled(logging.DebugLevel) {
			log.Debug().Str("session", s.id).Str("conn", c.ID()).Msg("writer pending")
		}
	}

	if !s.IsClosing() {
		if err := s.startFeatures(ctx); err != nil {
			log.Error().Err(err).Str("session", s.id).Msg("error starting session features")
			return fmt.Errorf("error starting session features: %w", err)
		}
	}
	return nil
}

// DetachWriter detaches c if it is the current writer and closes it. Returns
// false if c is not the current writer.
func (s *Session) DetachWriter(ctx context.Context, c Conn) bool {
	if c == nil || !s.writer.CompareAndSwap(c, nil) {
		return false
	}
	err := s.execute(ctx, func(ctx context.Context) {
		if IsLongPolling(c) {
			c.ShutdownWrite()
			c.ResumeWrite()
		}
		c.Close(true)
		if logging.Enabled(logging.DebugLevel) {
			log.Debug().Str("session", s.id).Str("conn", c.ID()).Msg("writer detached")
		}
		if !s.IsClosing() && s.pendingWriter.Load() == nil {
			s.scheduleTimeoutCommand()
		}
	})
	if err != nil {
		c.Close(false)
	}
	return true
}

// AttachPendingWriter promotes pending writer, if any.
func (s *Session) AttachPendingWriter(ctx context.Context) error {
	c := s.pendingWriter.Swap(nil)
	if c == nil {
		return nil
	}
	return s.AttachWriter(ctx, c)
}

// AttachReader makes c the current upstream connection.
func (s *Session) AttachReader(ctx context.Context, c Conn) error {
	task := func(ctx context.Context) {
		if s.IsClosing() {
			c.Close(false)
			return
		}
		s.reader.Store(c)
		if s.readSuspended.Load() {
			c.SuspendRead()
		}
	}
	if ioloop.InLoop(ctx, s.loop) {
		c.SetIoAlignment(s.loop)
		task(ctx)
		return nil
	}
	if err := ioloop.Realign(ctx, c, s.loop, task); err != nil {
		return fmt.Errorf("error attaching reader: %w", err)
	}
	return nil
}

// DetachReader clears reader if it is c. Outside of the session loop the
// result is a probe: detach itself happens on the loop.
func (s *Session) DetachReader(ctx context.Context, c Conn) bool {
	if c == nil {
		return false
	}
	if ioloop.InLoop(ctx, s.loop) {
		return s.reader.CompareAndSwap(c, nil)
	}
	if s.reader.Load() != c {
		return false
	}
	_ = s.loop.Submit(func(context.Context) {
		s.reader.CompareAndSwap(c, nil)
	})
	return true
}

func (s *Session) SuspendRead(ctx context.Context) {
	s.readSuspended.Store(true)
	_ = s.execute(ctx, func(context.Context) {
		if r := s.reader.Load(); r != nil {
			r.SuspendRead()
		}
	})
}

func (s *Session) ResumeRead(ctx context.Context) {
	s.readSuspended.Store(false)
	_ = s.execute(ctx, func(context.Context) {
		if r := s.reader.Load(); r != nil {
			r.ResumeRead()
		}
	})
}

// SuspendWrite stops draining write queue until ResumeWrite.
func (s *Session) SuspendWrite(context.Context) {
	s.writeSuspended.Store(true)
}

// ResumeWrite resumes draining and flushes queue.
func (s *Session) ResumeWrite(ctx context.Context) {
	s.writeSuspended.Store(false)
	s.Flush(ctx)
}

// Flush asks processor to drain write queue.
func (s *Session) Flush(ctx context.Context) {
	_ = s.execute(ctx, func(ctx context.Context) {
		s.processor.Flush(ctx, s)
	})
}

func (s *Session) enqueue(ctx context.Context, r Request) error {
	return s.execute(ctx, func(ctx context.Context) {
		if r.Kind == KindReconnect {
			s.reconnecting.Store(true)
		}
		s.queue.Push(r)
		if !s.writeSuspended.Load() {
			s.processor.Flush(ctx, s)
		}
	})
}

// EnqueueReconnectAndFlush asks client to switch to a new writer.
func (s *Session) EnqueueReconnectAndFlush(ctx context.Context) {
	_ = s.enqueue(ctx, reconnectRequest(false))
}

func (s *Session) IssuePingRequest(ctx context.Context) {
	_ = s.enqueue(ctx, PingRequest)
}

func (s *Session) IssuePongRequest(ctx context.Context) {
	_ = s.enqueue(ctx, PongRequest)
}

// TimeoutCommand returns current timeout command, nil if none scheduled.
func (s *Session) TimeoutCommand() *TimeoutCommand {
	return s.timeoutCommand.Load()
}

func (s *Session) ClearTimeoutCommand() {
	if cmd := s.timeoutCommand.Swap(nil); cmd != nil {
		cmd.Clear()
	}
}

func (s *Session) scheduleTimeoutCommand() {
	if s.cfg.ClientIdleTimeout <= 0 {
		return
	}
	cmd := newTimeoutCommand(s)
	if old := s.timeoutCommand.Swap(cmd); old != nil {
		old.Clear()
	}
	cmd.timer.Store(s.loop.Schedule(s.cfg.ClientIdleTimeout, cmd.Run))
}

// Send enqueues application message.
func (s *Session) Send(data []byte) error {
	if s.IsClosing() {
		return ErrSessionClosed
	}
	if err := s.enqueue(context.Background(), DataRequest(data)); err != nil {
		return fmt.Errorf("%w: %w", ErrSessionClosed, err)
	}
	return nil
}

// Transport implements gateway.Conn.
func (s *Session) Transport() string {
	return TransportName
}

// Disconnect closes session gracefully.
func (s *Session) Disconnect() error {
	s.Close(context.Background(), false)
	return nil
}

// Received handles frame decoded from upstream connection.
func (s *Session) Received(ctx context.Context, f wsframe.Frame) {
	_ = s.execute(ctx, func(ctx context.Context) {
		if s.IsClosing() {
			return
		}
		metrics.IncFrameReceived(f.Type.String())
		for _, feature := range s.cfg.Features {
			feature.MessageReceived(ctx, s, f)
		}
		switch f.Type {
		case wsframe.TypeData:
			if s.cfg.Handler != nil {
				s.cfg.Handler.OnMessage(s, f.Payload)
			}
		case wsframe.TypePing:
			s.IssuePongRequest(ctx)
		case wsframe.TypeCommand:
			if f.Command == wsframe.CommandClose {
				s.Close(ctx, false)
			}
		}
	})
}

// Close closes session. Graceful close drains write queue to the current
// writer and sends close command, immediate close just releases connections.
func (s *Session) Close(ctx context.Context, immediately bool) {
	if !s.closing.CompareAndSwap(false, true) {
		return
	}
	err := s.execute(ctx, func(ctx context.Context) {
		s.doClose(ctx, immediately)
	})
	if err != nil {
		// Loop already stopped, nothing else can touch session state.
		s.doClose(ctx, true)
	}
}

func (s *Session) doClose(ctx context.Context, immediately bool) {
	s.ClearTimeoutCommand()
	if w := s.writer.Load(); w != nil {
		if !immediately {
			s.processor.Terminate(ctx, s)
			s.DetachWriter(ctx, w)
		} else if s.writer.CompareAndSwap(w, nil) {
			w.Close(false)
		}
	}
	if p := s.pendingWriter.Swap(nil); p != nil {
		p.Close(false)
	}
	if r := s.reader.Swap(nil); r != nil {
		r.Close(false)
	}
	s.queue.Clear()
	s.stopFeatures(ctx)
	if s.cfg.Handler != nil {
		s.cfg.Handler.OnClose(s)
	}
	if s.cfg.OnClose != nil {
		s.cfg.OnClose(s)
	}
	metrics.SessionClosed(immediately)
	log.Debug().Str("session", s.id).Bool("immediately", immediately).Msg("session closed")
	close(s.doneCh)
}
