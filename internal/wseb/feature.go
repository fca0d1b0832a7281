package wseb

import (
	"context"
	"errors"

	"github.com/centrifugal/wsgate/internal/inactivity"
	"github.com/centrifugal/wsgate/internal/wsframe"
)

// Feature is a session scoped extension. Start is called on the session loop
// after every writer attach while session is not closing, so it must be
// idempotent. Stop is called once on close.
type Feature interface {
	Start(ctx context.Context, s *Session) error
	MessageReceived(ctx context.Context, s *Session, f wsframe.Frame)
	Stop(ctx context.Context, s *Session)
}

func (s *Session) startFeatures(ctx context.Context) error {
	var errs []error
	for _, f := range s.cfg.Features {
		if err := f.Start(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) stopFeatures(ctx context.Context) {
	for _, f := range s.cfg.Features {
		f.Stop(ctx, s)
	}
}

// Keepalive feature registers session in inactivity tracker.
type Keepalive struct {
	tracker *inactivity.Tracker
}

func NewKeepalive(tracker *inactivity.Tracker) *Keepalive {
	return &Keepalive{tracker: tracker}
}

func (k *Keepalive) Start(ctx context.Context, s *Session) error {
	return k.tracker.AddSession(ctx, s)
}

func (k *Keepalive) MessageReceived(ctx context.Context, s *Session, f wsframe.Frame) {
	k.tracker.MessageReceived(ctx, s, f)
}

func (k *Keepalive) Stop(ctx context.Context, s *Session) {
	k.tracker.RemoveSession(ctx, s)
}
