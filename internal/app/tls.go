package app

import (
	"crypto/tls"
	"errors"
	stdlog "log"
	"net/http"

	"github.com/centrifugal/wsgate/internal/config"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
)

// getTLSConfig returns TLS config of the external server, nil when TLS is off.
// With autocert http_01 challenge enabled the challenge server is returned
// too, caller must start and stop it.
func getTLSConfig(cfg config.Config) (*tls.Config, *http.Server, error) {
	autocertCfg := cfg.HTTP.TLSAutocert
	if !autocertCfg.Enabled {
		if !cfg.HTTP.TLS.Enabled {
			return nil, nil, nil
		}
		tlsConfig, err := cfg.HTTP.TLS.ToGoTLSConfig()
		return tlsConfig, nil, err
	}

	certManager := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		Email:  autocertCfg.Email,
	}
	if len(autocertCfg.HostWhitelist) > 0 {
		certManager.HostPolicy = autocert.HostWhitelist(autocertCfg.HostWhitelist...)
	}
	if autocertCfg.CacheDir != "" {
		certManager.Cache = autocert.DirCache(autocertCfg.CacheDir)
	}

	var challengeServer *http.Server
	if autocertCfg.HTTP {
		challengeServer = &http.Server{
			Handler:           certManager.HTTPHandler(nil),
			Addr:              autocertCfg.HTTPAddr,
			ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout.ToDuration(),
			ErrorLog:          stdlog.New(&httpErrorLogWriter{Logger: log.Logger}, "", 0),
		}
	}

	serverName := autocertCfg.ServerName
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			if serverName != "" && hello.ServerName == "" {
				hello.ServerName = serverName
			}
			return certManager.GetCertificate(hello)
		},
		NextProtos: []string{
			"h2", "http/1.1", acme.ALPNProto,
		},
	}, challengeServer, nil
}

func runChallengeServer(server *http.Server) {
	go func() {
		log.Info().Msgf("serving ACME http_01 challenge on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msgf("can't create server on %s to serve ACME http challenge", server.Addr)
		}
	}()
}
