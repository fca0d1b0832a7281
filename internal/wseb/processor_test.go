package wseb

import (
	"context"
	"testing"
	"time"

	"github.com/centrifugal/wsgate/internal/wsframe"

	"github.com/stretchr/testify/require"
)

func TestFlushStreamingBufferExhausted(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{})
	w1 := newTestConn("w1")
	w1.SetAttribute(ClientBufferKey, 8)
	require.NoError(t, attach(t, s, w1))

	require.NoError(t, s.Send([]byte("0123456789abcdef")))
	syncLoop(t, s)

	frames := w1.frames(t)
	require.Len(t, frames, 2)
	require.Equal(t, "0123456789abcdef", string(frames[0].Payload))
	require.Equal(t, wsframe.Reconnect, frames[1])
	require.True(t, w1.Closed())
	require.Nil(t, s.Writer())
}

func TestFlushStreamingWithinBuffer(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{})
	w1 := newTestConn("w1")
	w1.SetAttribute(ClientBufferKey, 1024)
	require.NoError(t, attach(t, s, w1))

	require.NoError(t, s.Send([]byte("hello")))
	syncLoop(t, s)
	require.Len(t, w1.frames(t), 1)
	require.False(t, w1.Closed())
	require.Equal(t, Conn(w1), s.Writer())
}

func TestFlushLongPollingCompletesAfterBatch(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{})
	lp := newLongPollConn("lp")
	require.NoError(t, attach(t, s, lp))
	require.Equal(t, Conn(lp), s.Writer())
	require.False(t, lp.Closed())

	require.NoError(t, s.Send([]byte("x")))
	syncLoop(t, s)

	require.Equal(t, []wsframe.Frame{wsframe.Data([]byte("x"))}, lp.frames(t))
	require.Nil(t, s.Writer())
	lp.mu.Lock()
	defer lp.mu.Unlock()
	require.True(t, lp.closed)
	require.True(t, lp.lingered)
	require.True(t, lp.writeShutdown)
}

func TestFlushDropsStaleReconnect(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{})
	w1, w2 := newTestConn("w1"), newTestConn("w2")

	s.SuspendWrite(context.Background())
	require.NoError(t, attach(t, s, w1))
	require.NoError(t, attach(t, s, w2))

	// Downstream request of w1 ends before reconnect is written.
	onLoop(t, s, func(ctx context.Context) {
		if s.DetachWriter(ctx, w1) {
			_ = s.AttachPendingWriter(ctx)
		}
	})
	require.Equal(t, Conn(w2), s.Writer())
	require.Equal(t, []RequestKind{KindReconnect}, queueKinds(t, s))

	onLoop(t, s, s.ResumeWrite)

	require.Empty(t, w2.frames(t))
	require.False(t, w2.Closed())
	require.Equal(t, Conn(w2), s.Writer())
	require.Empty(t, queueKinds(t, s))
}

func TestFlushWriteFailureKeepsQueue(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{})
	w1 := newTestConn("w1")
	w1.failWrites = true
	require.NoError(t, attach(t, s, w1))

	require.NoError(t, s.Send([]byte("keep")))
	syncLoop(t, s)
	require.True(t, w1.Closed())
	require.Nil(t, s.Writer())
	require.Equal(t, []RequestKind{KindData}, queueKinds(t, s))

	w2 := newTestConn("w2")
	require.NoError(t, attach(t, s, w2))
	require.Equal(t, []wsframe.Frame{wsframe.Data([]byte("keep"))}, w2.frames(t))
}

func TestFlushWriteFailurePromotesPendingWriter(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{ClientIdleTimeout: 100 * time.Millisecond})
	w1, w2 := newTestConn("w1"), newTestConn("w2")

	s.SuspendWrite(context.Background())
	require.NoError(t, attach(t, s, w1))
	require.NoError(t, s.Send([]byte("a")))
	require.NoError(t, attach(t, s, w2))
	require.Equal(t, []RequestKind{KindData, KindReconnect}, queueKinds(t, s))

	// Client of w1 went away: its request will not detach it anymore.
	w1.mu.Lock()
	w1.failWrites = true
	w1.mu.Unlock()
	onLoop(t, s, s.ResumeWrite)

	require.True(t, w1.Closed())
	require.Equal(t, Conn(w2), s.Writer())
	require.Nil(t, s.PendingWriter())
	require.Equal(t, []wsframe.Frame{wsframe.Data([]byte("a"))}, w2.frames(t))
	require.Empty(t, queueKinds(t, s))

	time.Sleep(300 * time.Millisecond)
	require.False(t, s.IsClosing())
	require.False(t, w2.Closed())
}

func TestFlushEscapesDownstream(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{EscapeType: wsframe.EscapeZero})
	w1 := newTestConn("w1")
	require.NoError(t, attach(t, s, w1))

	require.NoError(t, s.Send([]byte{0x00}))
	syncLoop(t, s)

	w1.mu.Lock()
	defer w1.mu.Unlock()
	require.Equal(t, []byte{0x80, 0x01, 0x7F, 0x30}, w1.written)
}

func TestTerminateWithoutWriter(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, Config{})
	require.NoError(t, s.Send([]byte("lost")))
	s.Close(context.Background(), false)
	<-s.Done()
	require.Nil(t, s.Writer())
}
