package app

import (
	"crypto/tls"
	"errors"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"

	"github.com/centrifugal/wsgate/internal/config"
	"github.com/centrifugal/wsgate/internal/emulation"
	"github.com/centrifugal/wsgate/internal/gateway"
	"github.com/centrifugal/wsgate/internal/health"
	"github.com/centrifugal/wsgate/internal/inactivity"
	"github.com/centrifugal/wsgate/internal/ioloop"
	"github.com/centrifugal/wsgate/internal/logging"
	"github.com/centrifugal/wsgate/internal/middleware"
	"github.com/centrifugal/wsgate/internal/websocket"

	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// HandlerFlag is a bit mask of handlers that must be enabled in mux.
type HandlerFlag int

const (
	// HandlerWebsocket enables native WebSocket handler.
	HandlerWebsocket HandlerFlag = 1 << iota
	// HandlerEmulation enables emulated WebSocket session endpoints.
	HandlerEmulation
	// HandlerDebug enables debug handlers.
	HandlerDebug
	// HandlerPrometheus enables Prometheus handler.
	HandlerPrometheus
	// HandlerHealth enables Health check endpoint.
	HandlerHealth
)

var handlerText = map[HandlerFlag]string{
	HandlerWebsocket:  "websocket",
	HandlerEmulation:  "emulation",
	HandlerDebug:      "debug",
	HandlerPrometheus: "prometheus",
	HandlerHealth:     "health",
}

func (flags HandlerFlag) String() string {
	flagsOrdered := []HandlerFlag{HandlerWebsocket, HandlerEmulation, HandlerPrometheus, HandlerDebug, HandlerHealth}
	var endpoints []string
	for _, flag := range flagsOrdered {
		if flags&flag != 0 {
			endpoints = append(endpoints, handlerText[flag])
		}
	}
	return strings.Join(endpoints, ", ")
}

// handlers are shared by all HTTP servers.
type handlers struct {
	checkOrigin func(r *http.Request) bool
	emulation   *emulation.Handler
	websocket   *websocket.Handler
	health      *health.Handler
}

func newHandlers(cfg config.Config, group *ioloop.Group, tracker *inactivity.Tracker, app gateway.Handler) (*handlers, error) {
	checkOrigin, err := getCheckOrigin(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating origin checker: %w", err)
	}
	h := &handlers{
		checkOrigin: checkOrigin,
		health:      health.NewHandler(),
	}
	if cfg.Emulation.Enabled {
		h.emulation, err = emulation.NewHandler(cfg.Emulation, group, tracker, app)
		if err != nil {
			return nil, fmt.Errorf("error creating emulation handler: %w", err)
		}
	}
	if !cfg.WebSocket.Disabled {
		h.websocket = websocket.NewHandler(cfg.WebSocket, app, checkOrigin)
	}
	return h, nil
}

// numConnections is a number of live sessions and WebSocket connections.
func (h *handlers) numConnections() int {
	var n int
	if h.emulation != nil {
		n += h.emulation.Registry().Len()
	}
	if h.websocket != nil {
		n += h.websocket.Len()
	}
	return n
}

func trimPrefix(prefix string) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return "/"
	}
	return prefix
}

// Mux returns a mux with handlers enabled by flags.
func Mux(cfg config.Config, h *handlers, flags HandlerFlag) *http.ServeMux {
	mux := http.NewServeMux()

	var commonMiddlewares []alice.Constructor
	if logging.Enabled(logging.DebugLevel) {
		commonMiddlewares = append(commonMiddlewares, middleware.LogRequest)
	}
	chain := func(route string, extra ...alice.Constructor) alice.Chain {
		mws := append([]alice.Constructor{}, commonMiddlewares...)
		if cfg.Prometheus.Enabled {
			mws = append(mws, middleware.HTTPServerInstrumentation(route))
		}
		return alice.New(append(mws, extra...)...)
	}
	connLimit := middleware.NewConnLimit(cfg.Client.ConnectionLimit, h.numConnections)

	if flags&HandlerDebug != 0 {
		debugChain := chain("debug")
		mux.Handle(cfg.Debug.HandlerPrefix+"/", debugChain.Then(http.HandlerFunc(pprof.Index)))
		mux.Handle(cfg.Debug.HandlerPrefix+"/cmdline", debugChain.Then(http.HandlerFunc(pprof.Cmdline)))
		mux.Handle(cfg.Debug.HandlerPrefix+"/profile", debugChain.Then(http.HandlerFunc(pprof.Profile)))
		mux.Handle(cfg.Debug.HandlerPrefix+"/symbol", debugChain.Then(http.HandlerFunc(pprof.Symbol)))
		mux.Handle(cfg.Debug.HandlerPrefix+"/trace", debugChain.Then(http.HandlerFunc(pprof.Trace)))
	}

	if flags&HandlerEmulation != 0 && h.emulation != nil {
		var emulationMiddlewares []alice.Constructor
		if cfg.OpenTelemetry.Enabled {
			emulationMiddlewares = append(emulationMiddlewares, middleware.NewOpenTelemetryHandler("emulation").Middleware)
		}
		emulationMiddlewares = append(emulationMiddlewares, middleware.NewCORS(h.checkOrigin, emulation.SessionIDHeader).Middleware)
		emulationChain := chain("emulation", emulationMiddlewares...)

		prefix := strings.TrimRight(cfg.Emulation.HandlerPrefix, "/")
		mux.Handle(prefix+"/", emulationChain.Then(h.emulation))
		// Only session creation counts against connection limit, requests of
		// existing sessions must pass.
		mux.Handle("POST "+prefix+"/create", emulationChain.Append(connLimit.Middleware).Then(h.emulation))
	}

	if flags&HandlerWebsocket != 0 && h.websocket != nil {
		mux.Handle(trimPrefix(cfg.WebSocket.HandlerPrefix), chain("websocket", connLimit.Middleware).Then(h.websocket))
	}

	if flags&HandlerPrometheus != 0 {
		mux.Handle(trimPrefix(cfg.Prometheus.HandlerPrefix), chain("prometheus", middleware.Get).Then(promhttp.Handler()))
	}

	if flags&HandlerHealth != 0 {
		mux.Handle(trimPrefix(cfg.Health.HandlerPrefix), chain("health", middleware.Get).Then(h.health))
	}

	return mux
}

// serverFlags maps HTTP server address to handlers served on it. Internal
// endpoints share external address unless configured otherwise.
func serverFlags(cfg config.Config) (string, map[string]HandlerFlag) {
	httpAddress := cfg.HTTP.Address
	httpPort := strconv.Itoa(cfg.HTTP.Port)
	httpInternalAddress := cfg.HTTP.InternalAddress
	httpInternalPort := cfg.HTTP.InternalPort
	if httpInternalAddress == "" && httpAddress != "" {
		httpInternalAddress = httpAddress
	}
	if httpInternalPort == "" {
		httpInternalPort = httpPort
	}

	addrToHandlerFlags := map[string]HandlerFlag{}

	externalAddr := net.JoinHostPort(httpAddress, httpPort)
	portFlags := addrToHandlerFlags[externalAddr]
	if !cfg.WebSocket.Disabled {
		portFlags |= HandlerWebsocket
	}
	if cfg.Emulation.Enabled {
		portFlags |= HandlerEmulation
	}
	addrToHandlerFlags[externalAddr] = portFlags

	internalAddr := net.JoinHostPort(httpInternalAddress, httpInternalPort)
	portFlags = addrToHandlerFlags[internalAddr]
	if cfg.Prometheus.Enabled {
		portFlags |= HandlerPrometheus
	}
	if cfg.Debug.Enabled {
		portFlags |= HandlerDebug
	}
	if cfg.Health.Enabled {
		portFlags |= HandlerHealth
	}
	addrToHandlerFlags[internalAddr] = portFlags
	return externalAddr, addrToHandlerFlags
}

func runHTTPServers(cfg config.Config, h *handlers) ([]*http.Server, error) {
	tlsConfig, challengeServer, err := getTLSConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating TLS config: %w", err)
	}

	externalAddr, addrToHandlerFlags := serverFlags(cfg)

	var servers []*http.Server
	if challengeServer != nil {
		runChallengeServer(challengeServer)
		servers = append(servers, challengeServer)
	}
	for addr, handlerFlags := range addrToHandlerFlags {
		if handlerFlags == 0 {
			continue
		}
		var addrTLSConfig *tls.Config
		if addr == externalAddr {
			addrTLSConfig = tlsConfig
		}
		log.Info().Msgf("serving %s endpoints on %s", handlerFlags, addr)

		server := &http.Server{
			Addr:              addr,
			Handler:           Mux(cfg, h, handlerFlags),
			TLSConfig:         addrTLSConfig,
			ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout.ToDuration(),
			ErrorLog:          stdlog.New(&httpErrorLogWriter{Logger: log.Logger}, "", 0),
		}
		servers = append(servers, server)

		go func() {
			var err error
			if addrTLSConfig != nil {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Str("addr", addr).Msg("error ListenAndServe")
			}
		}()
	}
	return servers, nil
}
