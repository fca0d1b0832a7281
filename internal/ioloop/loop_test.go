package ioloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	l := NewLoop("test")
	t.Cleanup(l.Close)
	return l
}

func TestLoopSubmitOrder(t *testing.T) {
	t.Parallel()
	l := newTestLoop(t)

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.NoError(t, l.Submit(func(ctx context.Context) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	require.NoError(t, l.Sync(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i := range got {
		require.Equal(t, i, got[i])
	}
}

func TestLoopExecuteInline(t *testing.T) {
	t.Parallel()
	l := newTestLoop(t)

	done := make(chan bool, 1)
	require.NoError(t, l.Submit(func(ctx context.Context) {
		inline := false
		_ = l.Execute(ctx, func(ctx context.Context) {
			inline = InLoop(ctx, l)
		})
		done <- inline
	}))
	select {
	case inline := <-done:
		require.True(t, inline)
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestLoopExecuteForeignContext(t *testing.T) {
	t.Parallel()
	l := newTestLoop(t)
	other := newTestLoop(t)

	require.False(t, InLoop(context.Background(), l))
	require.Nil(t, FromContext(context.Background()))

	ran := make(chan *Loop, 1)
	require.NoError(t, other.Submit(func(ctx context.Context) {
		_ = l.Execute(ctx, func(ctx context.Context) {
			ran <- FromContext(ctx)
		})
	}))
	select {
	case owner := <-ran:
		require.Equal(t, l, owner)
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestLoopClose(t *testing.T) {
	t.Parallel()
	l := NewLoop("closing")

	executed := make(chan struct{})
	require.NoError(t, l.Submit(func(ctx context.Context) {
		close(executed)
	}))
	l.Close()
	l.Close()
	require.ErrorIs(t, l.Submit(func(ctx context.Context) {}), ErrLoopClosed)

	select {
	case <-executed:
	case <-time.After(time.Second):
		t.Fatal("queued task not executed after close")
	}
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("loop not stopped")
	}
}

func TestLoopPanicRecovered(t *testing.T) {
	t.Parallel()
	l := newTestLoop(t)
	require.NoError(t, l.Submit(func(ctx context.Context) {
		panic("boom")
	}))
	require.NoError(t, l.Sync(context.Background()))
	require.Eventually(t, func() bool {
		return l.Executed() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestLoopSchedule(t *testing.T) {
	t.Parallel()
	l := newTestLoop(t)

	fired := make(chan *Loop, 1)
	l.Schedule(10*time.Millisecond, func(ctx context.Context) {
		fired <- FromContext(ctx)
	})
	select {
	case owner := <-fired:
		require.Equal(t, l, owner)
	case <-time.After(time.Second):
		t.Fatal("timer not fired")
	}

	stopped := make(chan struct{}, 1)
	tm := l.Schedule(20*time.Millisecond, func(ctx context.Context) {
		stopped <- struct{}{}
	})
	require.True(t, tm.Stop())
	select {
	case <-stopped:
		t.Fatal("stopped timer fired")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestLoopSyncContextCanceled(t *testing.T) {
	t.Parallel()
	l := newTestLoop(t)

	block := make(chan struct{})
	require.NoError(t, l.Submit(func(ctx context.Context) {
		<-block
	}))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, l.Sync(ctx), context.DeadlineExceeded)
	close(block)
}

func TestGroupRoundRobin(t *testing.T) {
	t.Parallel()
	g := NewGroup("group", 3)
	t.Cleanup(func() { _ = g.Close(context.Background()) })

	require.Equal(t, 3, g.Len())
	first := g.Next()
	second := g.Next()
	third := g.Next()
	require.NotEqual(t, first, second)
	require.NotEqual(t, second, third)
	require.Equal(t, first, g.Next())
}

func TestGroupDefaultSize(t *testing.T) {
	t.Parallel()
	g := NewGroup("default", 0)
	require.Positive(t, g.Len())
	require.NoError(t, g.Close(context.Background()))
}
