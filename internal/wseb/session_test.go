package wseb

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/centrifugal/wsgate/internal/gateway"
	"github.com/centrifugal/wsgate/internal/ioloop"
	"github.com/centrifugal/wsgate/internal/wsframe"

	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	flushes    atomic.Int32
	terminates atomic.Int32
}

func (p *recordingProcessor) Flush(context.Context, *Session)     { p.flushes.Add(1) }
func (p *recordingProcessor) Terminate(context.Context, *Session) { p.terminates.Add(1) }

type testHandler struct {
	mu       sync.Mutex
	messages []string
	closes   int
}

func (h *testHandler) OnOpen(gateway.Conn) {}

func (h *testHandler) OnMessage(_ gateway.Conn, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, string(data))
}

func (h *testHandler) OnClose(gateway.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
}

func (h *testHandler) snapshot() ([]string, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.messages...), h.closes
}

type failingFeature struct{}

func (failingFeature) Start(context.Context, *Session) error {
	return errors.New("boom")
}
func (failingFeature) MessageReceived(context.Context, *Session, wsframe.Frame) {}
func (failingFeature) Stop(context.Context, *Session)                          {}

func newTestSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	l := ioloop.NewLoop("session")
	t.Cleanup(l.Close)
	return NewSession("s1", l, cfg)
}

// onLoop runs f on the session loop and waits for it.
func onLoop(t *testing.T, s *Session, f func(ctx context.Context)) {
	t.Helper()
	done := make(chan struct{})
	require.NoError(t, s.IoLoop().Submit(func(ctx context.Context) {
		defer close(done)
		f(ctx)
	}))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for loop")
	}
}

func syncLoop(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.IoLoop().Sync(context.Background()))
}

func queueKinds(t *testing.T, s *Session) []RequestKind {
	t.Helper()
	var out []RequestKind
	onLoop(t, s, func(context.Context) {
		out = kinds(s.Queue().Items())
	})
	return out
}

func attach(t *testing.T, s *Session, c Conn) error {
	t.Helper()
	var err error
	onLoop(t, s, func(ctx context.Context) {
		err = s.AttachWriter(ctx, c)
	})
	return err
}

func TestAttachWriterNoWriter(t *testing.T) {
	t.Parallel()
	p := &recordingProcessor{}
	s := newTestSession(t, Config{Processor: p})
	w1 := newTestConn("w1")

	require.NoError(t, attach(t, s, w1))
	require.Equal(t, Conn(w1), s.Writer())
	require.Nil(t, s.PendingWriter())
	require.Empty(t, queueKinds(t, s))
	require.False(t, s.Reconnecting())
	require.Equal(t, int32(1), p.flushes.Load())
	require.Same(t, s.IoLoop(), w1.IoLoop())
}

func TestAttachWriterWhileAttached(t *testing.T) {
	t.Parallel()
	p := &recordingProcessor{}
	s := newTestSession(t, Config{Processor: p})
	w1, w2 := newTestConn("w1"), newTestConn("w2")

	require.NoError(t, attach(t, s, w1))
	require.NoError(t, attach(t, s, w2))

	require.Equal(t, Conn(w1), s.Writer())
	require.Equal(t, Conn(w2), s.PendingWriter())
	require.Equal(t, []RequestKind{KindReconnect}, queueKinds(t, s))
	require.True(t, s.Reconnecting())
	require.False(t, w1.Closed())
	require.False(t, w2.Closed())
	require.Equal(t, int32(1), p.flushes.Load())
}

func TestAttachWriterSupersedesPending(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{Processor: &recordingProcessor{}})
	w1, w2, w3 := newTestConn("w1"), newTestConn("w2"), newTestConn("w3")

	require.NoError(t, attach(t, s, w1))
	require.NoError(t, attach(t, s, w2))
	require.NoError(t, attach(t, s, w3))

	require.True(t, w2.Closed())
	require.False(t, w3.Closed())
	require.Equal(t, Conn(w1), s.Writer())
	require.Equal(t, Conn(w3), s.PendingWriter())
}

func TestReconnectDeliversQueuedDataToOldWriter(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{})
	w1, w2 := newTestConn("w1"), newTestConn("w2")

	onLoop(t, s, func(ctx context.Context) {
		s.SuspendWrite(ctx)
	})
	require.NoError(t, attach(t, s, w1))
	require.NoError(t, s.Send([]byte("data1")))
	require.NoError(t, s.Send([]byte("data2")))
	require.NoError(t, attach(t, s, w2))
	require.Equal(t, []RequestKind{KindData, KindData, KindReconnect}, queueKinds(t, s))

	onLoop(t, s, func(ctx context.Context) {
		s.ResumeWrite(ctx)
	})

	frames := w1.frames(t)
	require.Len(t, frames, 3)
	require.Equal(t, "data1", string(frames[0].Payload))
	require.Equal(t, "data2", string(frames[1].Payload))
	require.Equal(t, wsframe.Reconnect, frames[2])
	require.True(t, w1.Closed())

	require.Equal(t, Conn(w2), s.Writer())
	require.Nil(t, s.PendingWriter())
	require.Empty(t, queueKinds(t, s))
	require.False(t, s.Reconnecting())

	require.NoError(t, s.Send([]byte("data3")))
	syncLoop(t, s)
	frames = w2.frames(t)
	require.Len(t, frames, 1)
	require.Equal(t, "data3", string(frames[0].Payload))
}

func TestAttachWriterWhenClosing(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{Processor: &recordingProcessor{}})
	s.Close(context.Background(), true)
	<-s.Done()

	wx := newTestConn("wx")
	require.NoError(t, attach(t, s, wx))
	require.True(t, wx.Closed())
	require.Nil(t, s.Writer())
}

func TestAttachWriterLongPollingSuspendsWrite(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{Processor: &recordingProcessor{}})
	lp := newLongPollConn("lp")
	require.NoError(t, attach(t, s, lp))
	require.Equal(t, Conn(lp), s.Writer())
	require.True(t, lp.isWriteSuspended())

	streaming := newTestConn("streaming")
	s2 := newTestSession(t, Config{Processor: &recordingProcessor{}})
	require.NoError(t, attach(t, s2, streaming))
	require.False(t, streaming.isWriteSuspended())
}

func TestIssuePingRequestFlush(t *testing.T) {
	t.Parallel()
	p := &recordingProcessor{}
	s := newTestSession(t, Config{Processor: p})

	s.IssuePingRequest(context.Background())
	syncLoop(t, s)
	require.Equal(t, int32(1), p.flushes.Load())

	s.SuspendWrite(context.Background())
	s.IssuePingRequest(context.Background())
	s.IssuePongRequest(context.Background())
	syncLoop(t, s)
	require.Equal(t, int32(1), p.flushes.Load())
	require.Equal(t, []RequestKind{KindPing, KindPing, KindPong}, queueKinds(t, s))
}

func TestAttachWriterFromForeignGoroutine(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{Processor: &recordingProcessor{}})
	other := ioloop.NewLoop("other")
	t.Cleanup(other.Close)

	w1 := newTestConn("w1")
	w1.SetIoAlignment(other)
	require.NoError(t, s.AttachWriter(context.Background(), w1))
	syncLoop(t, s)
	require.Equal(t, Conn(w1), s.Writer())
	require.Same(t, s.IoLoop(), w1.IoLoop())
}

func TestAttachWriterFeatureFailure(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{Processor: &recordingProcessor{}, Features: []Feature{failingFeature{}}})
	w1 := newTestConn("w1")
	err := attach(t, s, w1)
	require.ErrorContains(t, err, "error starting session features")
	require.Equal(t, Conn(w1), s.Writer())
	require.False(t, s.IsClosing())

	// Marshalled attach has nobody to report to, session is closed.
	s2 := newTestSession(t, Config{Processor: &recordingProcessor{}, Features: []Feature{failingFeature{}}})
	require.NoError(t, s2.AttachWriter(context.Background(), newTestConn("w2")))
	select {
	case <-s2.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session not closed")
	}
}

func TestDetachWriter(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{Processor: &recordingProcessor{}})
	w1, stranger := newTestConn("w1"), newTestConn("stranger")
	require.NoError(t, attach(t, s, w1))

	require.False(t, s.DetachWriter(context.Background(), stranger))
	require.False(t, stranger.Closed())

	require.True(t, s.DetachWriter(context.Background(), w1))
	require.Nil(t, s.Writer())
	syncLoop(t, s)
	require.True(t, w1.Closed())
	require.False(t, s.DetachWriter(context.Background(), w1))
}

func TestDetachLongPollingWriter(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{Processor: &recordingProcessor{}})
	lp := newLongPollConn("lp")
	require.NoError(t, attach(t, s, lp))
	require.True(t, s.DetachWriter(context.Background(), lp))
	syncLoop(t, s)
	lp.mu.Lock()
	defer lp.mu.Unlock()
	require.True(t, lp.writeShutdown)
	require.False(t, lp.writeSuspended)
	require.True(t, lp.closed)
	require.True(t, lp.lingered)
}

func TestAttachPendingWriterWithoutPending(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{Processor: &recordingProcessor{}})
	onLoop(t, s, func(ctx context.Context) {
		_ = s.AttachPendingWriter(ctx)
	})
	require.Nil(t, s.Writer())
}

func TestTimeoutCommandClosesSessionWithoutWriter(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{Processor: &recordingProcessor{}, ClientIdleTimeout: 20 * time.Millisecond})
	require.NotNil(t, s.TimeoutCommand())
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session not closed by timeout")
	}
}

func TestTimeoutCommandClearedOnAttach(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{Processor: &recordingProcessor{}, ClientIdleTimeout: 30 * time.Millisecond})
	cmd := s.TimeoutCommand()
	require.NotNil(t, cmd)
	w1 := newTestConn("w1")
	require.NoError(t, attach(t, s, w1))
	require.Nil(t, s.TimeoutCommand())
	require.True(t, cmd.Cleared())

	time.Sleep(90 * time.Millisecond)
	require.False(t, s.IsClosing())

	// Losing writer schedules a new one.
	require.True(t, s.DetachWriter(context.Background(), w1))
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session not closed by timeout")
	}
}

func TestTimeoutCommandNotScheduledWithPendingWriter(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{Processor: &recordingProcessor{}, ClientIdleTimeout: time.Hour})
	w1, w2 := newTestConn("w1"), newTestConn("w2")
	require.NoError(t, attach(t, s, w1))
	require.NoError(t, attach(t, s, w2))
	onLoop(t, s, func(ctx context.Context) {
		s.DetachWriter(ctx, w1)
	})
	require.Nil(t, s.TimeoutCommand())
}

func TestClearedTimeoutCommandIsInert(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{Processor: &recordingProcessor{}, ClientIdleTimeout: time.Hour})
	cmd := s.TimeoutCommand()
	s.ClearTimeoutCommand()
	require.Nil(t, s.TimeoutCommand())
	onLoop(t, s, cmd.Run)
	require.False(t, s.IsClosing())
}

func TestReaderSuspensionPropagates(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{Processor: &recordingProcessor{}})
	ctx := context.Background()

	s.SuspendRead(ctx)
	r1 := newTestConn("r1")
	require.NoError(t, s.AttachReader(ctx, r1))
	syncLoop(t, s)
	require.Equal(t, Conn(r1), s.Reader())
	require.True(t, r1.isReadSuspended())

	s.ResumeRead(ctx)
	syncLoop(t, s)
	require.False(t, s.ReadSuspended())
	require.False(t, r1.isReadSuspended())

	var detached bool
	onLoop(t, s, func(ctx context.Context) {
		detached = s.DetachReader(ctx, r1)
	})
	require.True(t, detached)
	require.Nil(t, s.Reader())
	require.False(t, s.DetachReader(ctx, r1))
}

func TestReceived(t *testing.T) {
	t.Parallel()
	h := &testHandler{}
	s := newTestSession(t, Config{Handler: h})
	w1 := newTestConn("w1")
	require.NoError(t, attach(t, s, w1))
	ctx := context.Background()

	s.Received(ctx, wsframe.Data([]byte("hello")))
	s.Received(ctx, wsframe.Ping)
	syncLoop(t, s)

	messages, _ := h.snapshot()
	require.Equal(t, []string{"hello"}, messages)
	require.Equal(t, []wsframe.Frame{wsframe.Pong}, w1.frames(t))

	s.Received(ctx, wsframe.Close)
	<-s.Done()
	_, closes := h.snapshot()
	require.Equal(t, 1, closes)
}

func TestGracefulClose(t *testing.T) {
	t.Parallel()
	h := &testHandler{}
	var onCloseCalled atomic.Bool
	s := newTestSession(t, Config{Handler: h, OnClose: func(*Session) { onCloseCalled.Store(true) }})
	w1, w2, r1 := newTestConn("w1"), newTestConn("w2"), newTestConn("r1")

	s.SuspendWrite(context.Background())
	require.NoError(t, attach(t, s, w1))
	require.NoError(t, attach(t, s, w2))
	require.NoError(t, s.AttachReader(context.Background(), r1))
	require.NoError(t, s.Send([]byte("last")))

	s.Close(context.Background(), false)
	<-s.Done()

	frames := w1.frames(t)
	require.Len(t, frames, 2)
	require.Equal(t, "last", string(frames[0].Payload))
	require.Equal(t, wsframe.Close, frames[1])
	require.True(t, w1.Closed())
	require.True(t, w2.Closed())
	require.True(t, r1.Closed())
	require.Nil(t, s.Writer())
	require.True(t, onCloseCalled.Load())
	_, closes := h.snapshot()
	require.Equal(t, 1, closes)

	require.ErrorIs(t, s.Send([]byte("late")), gateway.ErrConnClosed)
	s.Close(context.Background(), false)
}

func TestImmediateCloseDoesNotDrain(t *testing.T) {
	t.Parallel()
	p := &recordingProcessor{}
	s := newTestSession(t, Config{Processor: p})
	w1 := newTestConn("w1")
	require.NoError(t, attach(t, s, w1))
	s.Close(context.Background(), true)
	<-s.Done()
	require.Equal(t, int32(0), p.terminates.Load())
	require.True(t, w1.Closed())
	require.False(t, w1.lingered)
}
