package wseb

import (
	"context"
	"fmt"

	"github.com/centrifugal/wsgate/internal/logging"
	"github.com/centrifugal/wsgate/internal/metrics"
	"github.com/centrifugal/wsgate/internal/wsframe"

	"github.com/rs/zerolog/log"
)

// Processor turns session write queue into bytes on the attached writer.
// Both methods are called on the session loop.
type Processor interface {
	Flush(ctx context.Context, s *Session)
	Terminate(ctx context.Context, s *Session)
}

// FrameProcessor drains write queue as wsframe frames.
type FrameProcessor struct{}

func NewFrameProcessor() *FrameProcessor {
	return &FrameProcessor{}
}

func frameFor(r Request) wsframe.Frame {
	switch r.Kind {
	case KindPing:
		return wsframe.Ping
	case KindPong:
		return wsframe.Pong
	case KindReconnect:
		return wsframe.Reconnect
	default:
		return wsframe.Data(r.Data)
	}
}

func (p *FrameProcessor) write(s *Session, w Conn, f wsframe.Frame) error {
	buf := s.EncodeEscapeType().AppendEscaped(nil, wsframe.Encode(f))
	if err := w.Write(buf); err != nil {
		return fmt.Errorf("error writing %s frame: %w", f.Type, err)
	}
	metrics.IncFrameWritten(f.Type.String())
	return nil
}

// Flush writes queued requests to the current writer in order. Items stay
// queued while there is no writer. Reconnect request or a failed write
// completes the current writer and promotes pending one.
func (p *FrameProcessor) Flush(ctx context.Context, s *Session) {
	w := s.Writer()
	if w == nil {
		return
	}
	q := s.Queue()
	for {
		r, ok := q.Peek()
		if !ok {
			break
		}
		if r.Kind == KindReconnect {
			q.Pop()
			if r.Pending && s.PendingWriter() == nil {
				// Writer that raised this request was already promoted or superseded.
				continue
			}
			if err := p.write(s, w, wsframe.Reconnect); err != nil {
				log.Debug().Err(err).Str("session", s.ID()).Msg("error writing reconnect")
			}
			metrics.ReconnectsTotal.Inc()
			s.DetachWriter(ctx, w)
			if err := s.AttachPendingWriter(ctx); err != nil {
				log.Error().Err(err).Str("session", s.ID()).Msg("error attaching pending writer")
			}
			return
		}
		if err := p.write(s, w, frameFor(r)); err != nil {
			if logging.Enabled(logging.DebugLevel) {
				log.Debug().Err(err).Str("session", s.ID()).Str("conn", w.ID()).Msg("writer failed, detaching")
			}
			// Request that owns w may already be gone and will not promote pending writer.
			s.DetachWriter(ctx, w)
			if err := s.AttachPendingWriter(ctx); err != nil {
				log.Error().Err(err).Str("session", s.ID()).Msg("error attaching pending writer")
			}
			return
		}
		q.Pop()
	}

	if IsLongPolling(w) {
		if w.WrittenBytes() > 0 {
			s.DetachWriter(ctx, w)
		}
		return
	}
	if budget, ok := ClientBuffer(w); ok && budget > 0 && w.WrittenBytes() >= int64(budget) && !s.Reconnecting() {
		s.EnqueueReconnectAndFlush(ctx)
	}
}

// Terminate writes what is queued and then close command. Pending reconnects
// are dropped.
func (p *FrameProcessor) Terminate(_ context.Context, s *Session) {
	w := s.Writer()
	if w == nil {
		return
	}
	q := s.Queue()
	for {
		r, ok := q.Pop()
		if !ok {
			break
		}
		if r.Kind == KindReconnect {
			continue
		}
		if err := p.write(s, w, frameFor(r)); err != nil {
			return
		}
	}
	_ = p.write(s, w, wsframe.Close)
}
