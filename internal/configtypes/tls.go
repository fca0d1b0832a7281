package configtypes

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// TLSConfig of HTTP server.
type TLSConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled" envconfig:"enabled" toml:"enabled" yaml:"enabled"`
	// CertPem is server certificate in PEM format.
	CertPem PEMData `mapstructure:"cert_pem" json:"cert_pem" envconfig:"cert_pem" toml:"cert_pem" yaml:"cert_pem"`
	// KeyPem is server key in PEM format.
	KeyPem PEMData `mapstructure:"key_pem" json:"key_pem" envconfig:"key_pem" toml:"key_pem" yaml:"key_pem"`
	// ClientCAPem enables mutual TLS: client certificates must be signed by it.
	ClientCAPem PEMData `mapstructure:"client_ca_pem" json:"client_ca_pem" envconfig:"client_ca_pem" toml:"client_ca_pem" yaml:"client_ca_pem"`
}

// ToGoTLSConfig builds server tls.Config, nil when TLS disabled.
func (c TLSConfig) ToGoTLSConfig() (*tls.Config, error) {
	return c.toGoTLSConfig(nil)
}

func (c TLSConfig) toGoTLSConfig(readFile ReadFileFunc) (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	certPEM, source, err := c.CertPem.Load(readFile)
	if err != nil {
		return nil, fmt.Errorf("error loading TLS certificate: %w", err)
	}
	log.Debug().Str("pem_source", source).Msg("TLS certificate loaded")
	keyPEM, source, err := c.KeyPem.Load(readFile)
	if err != nil {
		return nil, fmt.Errorf("error loading TLS key: %w", err)
	}
	log.Debug().Str("pem_source", source).Msg("TLS key loaded")
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("error creating x509 key pair: %w", err)
	}
	conf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if c.ClientCAPem != "" {
		caPEM, _, err := c.ClientCAPem.Load(readFile)
		if err != nil {
			return nil, fmt.Errorf("error loading client CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, errors.New("no valid client CA certificates found")
		}
		conf.ClientCAs = pool
		conf.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return conf, nil
}

// TLSAutocert obtains certificates from Let's Encrypt (ACME).
type TLSAutocert struct {
	Enabled       bool     `mapstructure:"enabled" json:"enabled" envconfig:"enabled" yaml:"enabled" toml:"enabled"`
	HostWhitelist []string `mapstructure:"host_whitelist" json:"host_whitelist" envconfig:"host_whitelist" yaml:"host_whitelist" toml:"host_whitelist"`
	CacheDir      string   `mapstructure:"cache_dir" json:"cache_dir" envconfig:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`
	Email         string   `mapstructure:"email" json:"email" envconfig:"email" yaml:"email" toml:"email"`
	// ServerName is used for clients not sending SNI.
	ServerName string `mapstructure:"server_name" json:"server_name" envconfig:"server_name" yaml:"server_name" toml:"server_name"`
	// HTTP enables http_01 challenge server on HTTPAddr.
	HTTP     bool   `mapstructure:"http" json:"http" envconfig:"http" yaml:"http" toml:"http"`
	HTTPAddr string `mapstructure:"http_addr" json:"http_addr" envconfig:"http_addr" default:":80" yaml:"http_addr" toml:"http_addr"`
}
