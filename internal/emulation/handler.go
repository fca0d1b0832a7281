// Package emulation serves emulated WebSocket sessions over plain HTTP:
// session creation, downstream (writer) requests and upstream (reader)
// requests.
package emulation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/centrifugal/wsgate/internal/configtypes"
	"github.com/centrifugal/wsgate/internal/gateway"
	"github.com/centrifugal/wsgate/internal/httpconn"
	"github.com/centrifugal/wsgate/internal/inactivity"
	"github.com/centrifugal/wsgate/internal/ioloop"
	"github.com/centrifugal/wsgate/internal/logging"
	"github.com/centrifugal/wsgate/internal/metrics"
	"github.com/centrifugal/wsgate/internal/wseb"
	"github.com/centrifugal/wsgate/internal/wsframe"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type Config = configtypes.Emulation

// SessionIDHeader carries ID of created session.
const SessionIDHeader = "X-Session-Id"

// Handler serves emulation endpoints under Config.HandlerPrefix.
type Handler struct {
	config   Config
	escape   wsframe.EscapeType
	group    *ioloop.Group
	tracker  *inactivity.Tracker
	app      gateway.Handler
	limiter  *rate.Limiter
	registry *Registry
	mux      *http.ServeMux

	closeOnce sync.Once
	closed    chan struct{}
}

// NewHandler creates Handler. Sessions are aligned to loops of group, tracker
// may be nil to disable keepalive.
func NewHandler(c Config, group *ioloop.Group, tracker *inactivity.Tracker, app gateway.Handler) (*Handler, error) {
	escape, err := wsframe.ParseEscapeType(c.Escape)
	if err != nil {
		return nil, err
	}
	h := &Handler{
		config:   c,
		escape:   escape,
		group:    group,
		tracker:  tracker,
		app:      app,
		registry: NewRegistry(),
		closed:   make(chan struct{}),
	}
	if c.CreateRateLimit > 0 {
		burst := c.CreateRateBurst
		if burst <= 0 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(c.CreateRateLimit), burst)
	}
	prefix := strings.TrimSuffix(c.HandlerPrefix, "/")
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+prefix+"/create", h.handleCreate)
	mux.HandleFunc("GET "+prefix+"/{id}/down", h.handleDown)
	mux.HandleFunc("POST "+prefix+"/{id}/up", h.handleUp)
	h.mux = mux
	return h, nil
}

// Registry of live sessions.
func (h *Handler) Registry() *Registry {
	return h.registry
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.closed:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}
	h.mux.ServeHTTP(w, r)
}

func setNoCacheHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "private, no-cache, no-store, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expire", "0")
}

func requestScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow() {
		metrics.CreateRateLimited.Inc()
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	escape := h.escape
	if v := r.URL.Query().Get("escape"); v != "" {
		var err error
		escape, err = wsframe.ParseEscapeType(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	var features []wseb.Feature
	if h.tracker != nil && h.config.InactivityTimeout > 0 {
		features = append(features, wseb.NewKeepalive(h.tracker))
	}
	s := wseb.NewSession(uuid.NewString(), h.group.Next(), wseb.Config{
		ClientIdleTimeout: h.config.ClientIdleTimeout.ToDuration(),
		InactivityTimeout: h.config.InactivityTimeout.ToDuration(),
		EscapeType:        escape,
		Handler:           h.app,
		Features:          features,
		OnClose:           h.registry.Remove,
	})
	h.registry.Add(s)
	if h.app != nil {
		err := s.IoLoop().Submit(func(context.Context) {
			h.app.OnOpen(s)
		})
		if err != nil {
			s.Close(r.Context(), true)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
	}

	base := requestScheme(r) + "://" + r.Host + strings.TrimSuffix(h.config.HandlerPrefix, "/") + "/" + s.ID()
	setNoCacheHeaders(w)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set(SessionIDHeader, s.ID())
	w.WriteHeader(http.StatusCreated)
	_, _ = fmt.Fprintf(w, "%s/up\n%s/down\n", base, base)

	if logging.Enabled(logging.DebugLevel) {
		log.Debug().Str("session", s.ID()).Str("escape", escape.String()).Msg("session created")
	}
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*wseb.Session, bool) {
	s, ok := h.registry.Get(r.PathValue("id"))
	if !ok || s.IsClosing() {
		http.Error(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	return s, true
}

func (h *Handler) handleDown(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	c := httpconn.New(uuid.NewString(), h.group.Next())
	longPolling := q.Get("lp") == "1" || q.Get("lp") == "true"
	if longPolling {
		c.SetAttribute(wseb.ClientBufferKey, 0)
	} else if v := q.Get("buffer"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "malformed buffer", http.StatusBadRequest)
			return
		}
		c.SetAttribute(wseb.ClientBufferKey, n)
	}

	if !s.TryBeginAttach() {
		http.Error(w, "attach in progress", http.StatusConflict)
		return
	}
	ctx := r.Context()
	err := s.AttachWriter(ctx, c)
	if err == nil {
		s.Flush(ctx)
	}
	s.EndAttach()
	if err != nil {
		log.Error().Err(err).Str("session", s.ID()).Msg("error attaching downstream connection")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if longPolling && h.config.LongPollTimeout > 0 {
		timer := s.IoLoop().Schedule(h.config.LongPollTimeout.ToDuration(), func(ctx context.Context) {
			s.DetachWriter(ctx, c)
		})
		defer timer.Stop()
	}

	setNoCacheHeaders(w)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Accel-Buffering", "no")

	started := time.Now()
	err = c.Serve(ctx, w)
	if logging.Enabled(logging.DebugLevel) {
		log.Debug().Err(err).Str("session", s.ID()).Str("conn", c.ID()).Bool("long_polling", longPolling).Str("duration", time.Since(started).String()).Msg("downstream request completed")
	}

	// Client went away while still being the writer: promote whoever waits.
	bg := context.Background()
	if s.DetachWriter(bg, c) {
		if err := s.AttachPendingWriter(bg); err != nil {
			log.Error().Err(err).Str("session", s.ID()).Msg("error attaching pending writer")
		}
	}
}

func (h *Handler) handleUp(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	c := httpconn.New(uuid.NewString(), h.group.Next())
	if err := s.AttachReader(ctx, c); err != nil {
		log.Error().Err(err).Str("session", s.ID()).Msg("error attaching upstream connection")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer func() {
		s.DetachReader(context.Background(), c)
		c.Close(false)
	}()

	body := http.MaxBytesReader(w, r.Body, int64(h.config.MaxRequestBodySize))
	dec := wsframe.NewDecoder(body, h.config.MaxFrameSize)
	for {
		if err := c.WaitReadable(ctx); err != nil {
			if errors.Is(err, httpconn.ErrClosed) {
				// Session closed meanwhile, frames already read were accepted.
				break
			}
			return
		}
		f, err := dec.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			status := http.StatusBadRequest
			var maxBytesErr *http.MaxBytesError
			if errors.Is(err, wsframe.ErrFrameTooLarge) || errors.As(err, &maxBytesErr) {
				status = http.StatusRequestEntityTooLarge
			}
			if logging.Enabled(logging.DebugLevel) {
				log.Debug().Err(err).Str("session", s.ID()).Msg("error decoding upstream frame")
			}
			http.Error(w, http.StatusText(status), status)
			return
		}
		s.Received(ctx, f)
	}
	setNoCacheHeaders(w)
	w.WriteHeader(http.StatusOK)
}

// Close stops accepting requests and closes all sessions gracefully.
func (h *Handler) Close(ctx context.Context) {
	h.closeOnce.Do(func() { close(h.closed) })
	for _, s := range h.registry.Sessions() {
		s.Close(ctx, false)
	}
}
