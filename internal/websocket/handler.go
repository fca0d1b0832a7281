// Package websocket serves native WebSocket connections to the same
// application handler emulated sessions use.
package websocket

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/centrifugal/wsgate/internal/configtypes"
	"github.com/centrifugal/wsgate/internal/gateway"
	"github.com/centrifugal/wsgate/internal/logging"
	"github.com/centrifugal/wsgate/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Config = configtypes.WebSocket

// Defaults.
const (
	DefaultWriteTimeout     = time.Second
	DefaultMessageSizeLimit = 65536
)

// Handler upgrades requests to WebSocket.
type Handler struct {
	config  Config
	app     gateway.Handler
	upgrade *websocket.Upgrader
	active  atomic.Int64
}

// NewHandler creates Handler. When checkOrigin is nil only same-origin
// requests are upgraded.
func NewHandler(c Config, app gateway.Handler, checkOrigin func(r *http.Request) bool) *Handler {
	return &Handler{
		config: c,
		app:    app,
		upgrade: &websocket.Upgrader{
			ReadBufferSize:  c.ReadBufferSize,
			WriteBufferSize: c.WriteBufferSize,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Len returns number of connections currently served.
func (h *Handler) Len() int {
	return int(h.active.Load())
}

func (h *Handler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrade.Upgrade(rw, r, nil)
	if err != nil {
		if logging.Enabled(logging.DebugLevel) {
			log.Debug().Err(err).Msg("websocket upgrade error")
		}
		return
	}

	pingInterval := h.config.PingInterval.ToDuration()
	writeTimeout := h.config.WriteTimeout.ToDuration()
	if writeTimeout == 0 {
		writeTimeout = DefaultWriteTimeout
	}
	messageSizeLimit := h.config.MessageSizeLimit
	if messageSizeLimit == 0 {
		messageSizeLimit = DefaultMessageSizeLimit
	}
	if messageSizeLimit > 0 {
		ws.SetReadLimit(int64(messageSizeLimit))
	}
	if pingInterval > 0 {
		pongWait := pingInterval * 10 / 9
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			_ = ws.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
	}

	c := newConn(uuid.NewString(), ws, connOptions{
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
	})
	h.active.Add(1)
	metrics.WebsocketConnections.Inc()
	defer func() {
		metrics.WebsocketConnections.Dec()
		h.active.Add(-1)
	}()

	if logging.Enabled(logging.DebugLevel) {
		log.Debug().Str("client", c.ID()).Str("transport", TransportName).Msg("client connection established")
		defer func(started time.Time) {
			log.Debug().Str("client", c.ID()).Str("transport", TransportName).Str("duration", time.Since(started).String()).Msg("client connection completed")
		}(time.Now())
	}

	h.app.OnOpen(c)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) && logging.Enabled(logging.DebugLevel) {
				log.Debug().Err(err).Str("client", c.ID()).Msg("websocket read error")
			}
			break
		}
		h.app.OnMessage(c, data)
	}
	_ = c.close()
	h.app.OnClose(c)
}
