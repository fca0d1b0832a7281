package wseb

import (
	"context"
	"sync/atomic"

	"github.com/centrifugal/wsgate/internal/ioloop"
	"github.com/centrifugal/wsgate/internal/metrics"

	"github.com/rs/zerolog/log"
)

// TimeoutCommand closes session if no writer attached by the time it runs.
// Cleared command does nothing, so superseded commands do not need their
// timers to be cancelled.
type TimeoutCommand struct {
	session atomic.Pointer[Session]
	timer   atomic.Pointer[ioloop.Timer]
}

func newTimeoutCommand(s *Session) *TimeoutCommand {
	cmd := &TimeoutCommand{}
	cmd.session.Store(s)
	return cmd
}

// Run executes command. Must be called on the session loop.
func (t *TimeoutCommand) Run(ctx context.Context) {
	s := t.session.Load()
	if s == nil || s.IsClosing() || s.Writer() != nil {
		return
	}
	metrics.TimeoutClosesTotal.Inc()
	log.Debug().Str("session", s.ID()).Msg("no downstream connection attached in time, closing session")
	s.Close(ctx, true)
}

// Clear makes command inert.
func (t *TimeoutCommand) Clear() {
	t.session.Store(nil)
	if tm := t.timer.Load(); tm != nil {
		tm.Stop()
	}
}

// Cleared reports whether Clear was called.
func (t *TimeoutCommand) Cleared() bool {
	return t.session.Load() == nil
}
