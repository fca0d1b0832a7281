package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/centrifugal/wsgate/internal/build"
	"github.com/centrifugal/wsgate/internal/config"
	"github.com/centrifugal/wsgate/internal/gateway"
	"github.com/centrifugal/wsgate/internal/inactivity"
	"github.com/centrifugal/wsgate/internal/ioloop"
	"github.com/centrifugal/wsgate/internal/logging"
	"github.com/centrifugal/wsgate/internal/metrics"
	"github.com/centrifugal/wsgate/internal/service"
	"github.com/centrifugal/wsgate/internal/telemetry"
	"github.com/centrifugal/wsgate/internal/tools"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/automaxprocs/maxprocs"
)

// runtimeState is what shutdown needs to stop.
type runtimeState struct {
	servers        []*http.Server
	handlers       *handlers
	tracker        *inactivity.Tracker
	group          *ioloop.Group
	tracerProvider *trace.TracerProvider
	serviceManager *service.Manager
	serviceCancel  context.CancelFunc
}

func Run(cmd *cobra.Command, configFile string) {
	dotEnvUsed := false
	if exists, _ := tools.PathExists(".env"); exists {
		if err := godotenv.Load(); err != nil {
			log.Fatal().Err(err).Msg("error loading .env file")
		}
		dotEnvUsed = true
	}
	cfg, cfgMeta, err := config.GetConfig(cmd, configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error getting config")
	}

	ctx, serviceCancel := context.WithCancel(context.Background())
	defer serviceCancel()

	logCloseFn, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Fatal().Err(err).Msg("error setting up logging")
	}
	if logCloseFn != nil {
		defer logCloseFn()
	}
	if cfgMeta.FileNotFound {
		log.Warn().Msg("config file not found, continue using environment and flag options")
	} else {
		absConfPath, _ := filepath.Abs(configFile)
		log.Info().Str("path", absConfPath).Msg("using config file")
	}
	if dotEnvUsed {
		log.Info().Msg("environment variables have been loaded from .env file")
	}

	if err = cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("error validating config")
	}
	if err = tools.WritePidFile(cfg.PidFile); err != nil {
		log.Fatal().Err(err).Msg("error writing PID")
	}
	_, _ = maxprocs.Set(maxprocs.Logger(func(s string, i ...interface{}) {
		log.Info().Msgf(strings.ToLower(s), i...)
	}))

	if err = metrics.Init(metrics.Config{}); err != nil {
		log.Fatal().Err(err).Msg("error initializing metrics")
	}

	log.Info().
		Str("version", build.Version).
		Str("runtime", runtime.Version()).
		Int("pid", os.Getpid()).
		Int("gomaxprocs", runtime.GOMAXPROCS(0)).
		Msg("starting wsgate")

	if build.Version == "0.0.0" {
		log.Warn().Msg("running a development build of wsgate (version 0.0.0), ensure to use release build in production")
	}

	state := &runtimeState{
		serviceManager: service.NewManager(),
		serviceCancel:  serviceCancel,
	}

	if cfg.OpenTelemetry.Enabled {
		state.tracerProvider, err = telemetry.SetupTracing(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("error setting up opentelemetry tracing")
		}
	}

	state.group = ioloop.NewGroup("io", cfg.Emulation.IOWorkers)
	if cfg.Emulation.Enabled && cfg.Emulation.InactivityTimeout > 0 {
		state.tracker = inactivity.NewTracker(inactivity.Config{
			Timeout: cfg.Emulation.InactivityTimeout.ToDuration(),
		})
		state.serviceManager.Register(state.tracker)
	}
	if cfg.Graphite.Enabled {
		state.serviceManager.Register(graphiteExporter(cfg))
	}

	state.handlers, err = newHandlers(cfg, state.group, state.tracker, gateway.EchoHandler{})
	if err != nil {
		log.Fatal().Err(err).Msg("error creating handlers")
	}

	state.serviceManager.Run(ctx)

	state.servers, err = runHTTPServers(cfg, state.handlers)
	if err != nil {
		log.Fatal().Err(err).Msg("error running HTTP server")
	}

	logStartWarnings(cfg, cfgMeta)

	handleSignals(cmd, configFile, cfg, state)
}

func handleSignals(cmd *cobra.Command, configFile string, cfg config.Config, state *runtimeState) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, os.Interrupt, syscall.SIGTERM)
	for {
		sig := <-sigCh
		log.Info().Msgf("signal received: %v", sig)
		switch sig {
		case syscall.SIGHUP:
			// Only log level can be changed without restart.
			newCfg, _, err := config.GetConfig(cmd, configFile)
			if err != nil {
				log.Error().Err(err).Msg("error reading config")
				continue
			}
			level, ok := logging.ParseLevel(newCfg.Log.Level)
			if !ok {
				log.Error().Str("level", newCfg.Log.Level).Msg("unknown log level")
				continue
			}
			zerolog.SetGlobalLevel(level)
			log.Info().Str("level", newCfg.Log.Level).Msg("log level reloaded")
		case syscall.SIGINT, os.Interrupt, syscall.SIGTERM:
			log.Info().Msg("shutting down ...")
			pidFile := cfg.PidFile
			if timeout := cfg.Shutdown.Timeout.ToDuration(); timeout > 0 {
				time.AfterFunc(timeout, func() {
					tools.RemovePidFile(pidFile)
					log.Fatal().Msg("shutdown timeout reached")
				})
			}
			shutdown(context.Background(), state)
			tools.RemovePidFile(pidFile)
			os.Exit(0)
		}
	}
}

// shutdown stops accepting sessions, closes live sessions gracefully so that
// attached writers receive queued data and CLOSE command, then stops
// servers, services and I/O loops.
func shutdown(ctx context.Context, state *runtimeState) {
	state.handlers.health.Drain()
	if state.handlers.emulation != nil {
		state.handlers.emulation.Close(ctx)
	}

	var wg sync.WaitGroup
	for _, srv := range state.servers {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			_ = srv.Shutdown(ctx)
		}(srv)
	}
	wg.Wait()

	state.serviceCancel()
	_ = state.serviceManager.Wait()
	if state.tracker != nil {
		state.tracker.Dispose()
	}
	if err := state.group.Close(ctx); err != nil {
		log.Error().Err(err).Msg("error closing I/O loops")
	}
	if state.tracerProvider != nil {
		_ = state.tracerProvider.Shutdown(ctx)
	}
}
