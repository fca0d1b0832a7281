package configtypes

type HTTPServer struct {
	// Address to bind HTTP server to.
	Address string `mapstructure:"address" json:"address" envconfig:"address" toml:"address" yaml:"address"`
	// Port to bind HTTP server to.
	Port int `mapstructure:"port" json:"port" envconfig:"port" default:"8000" toml:"port" yaml:"port"`
	// InternalAddress to bind internal HTTP server to (metrics, health, debug endpoints).
	// Internal endpoints are served on the main server when not set.
	InternalAddress string `mapstructure:"internal_address" json:"internal_address" envconfig:"internal_address" toml:"internal_address" yaml:"internal_address"`
	// InternalPort to bind internal HTTP server to.
	InternalPort string `mapstructure:"internal_port" json:"internal_port" envconfig:"internal_port" toml:"internal_port" yaml:"internal_port"`
	// TLS configuration for HTTP server.
	TLS TLSConfig `mapstructure:"tls" json:"tls" envconfig:"tls" toml:"tls" yaml:"tls"`
	// TLSAutocert for automatic certificates, takes precedence over TLS.
	TLSAutocert TLSAutocert `mapstructure:"tls_autocert" json:"tls_autocert" envconfig:"tls_autocert" toml:"tls_autocert" yaml:"tls_autocert"`
	// ReadHeaderTimeout for incoming requests.
	ReadHeaderTimeout Duration `mapstructure:"read_header_timeout" json:"read_header_timeout" envconfig:"read_header_timeout" default:"10s" toml:"read_header_timeout" yaml:"read_header_timeout"`
}

type Log struct {
	// Level is a log level: none, trace, debug, info, warn, error, fatal.
	Level string `mapstructure:"level" json:"level" envconfig:"level" default:"info" toml:"level" yaml:"level"`
	// File to write logs to instead of stdout.
	File string `mapstructure:"file" json:"file" envconfig:"file" toml:"file" yaml:"file"`
}

type Client struct {
	// AllowedOrigins is a list of allowed origins for client connections. Glob patterns
	// are supported. Empty list means only same-origin requests are allowed.
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins" envconfig:"allowed_origins" toml:"allowed_origins" yaml:"allowed_origins"`
	// ConnectionLimit is a maximum number of emulated sessions and WebSocket
	// connections served at once, 0 means no limit.
	ConnectionLimit int `mapstructure:"connection_limit" json:"connection_limit" envconfig:"connection_limit" toml:"connection_limit" yaml:"connection_limit"`
}

// Emulation configures emulated WebSocket sessions carried over plain HTTP
// requests.
type Emulation struct {
	Enabled       bool   `mapstructure:"enabled" json:"enabled" envconfig:"enabled" default:"true" toml:"enabled" yaml:"enabled"`
	HandlerPrefix string `mapstructure:"handler_prefix" json:"handler_prefix" envconfig:"handler_prefix" default:"/emulation" toml:"handler_prefix" yaml:"handler_prefix"`
	// MaxRequestBodySize limits upstream request body size.
	MaxRequestBodySize int `mapstructure:"max_request_body_size" json:"max_request_body_size" envconfig:"max_request_body_size" default:"65536" toml:"max_request_body_size" yaml:"max_request_body_size"`
	// MaxFrameSize limits size of a single upstream data frame.
	MaxFrameSize int `mapstructure:"max_frame_size" json:"max_frame_size" envconfig:"max_frame_size" default:"65536" toml:"max_frame_size" yaml:"max_frame_size"`
	// ClientIdleTimeout is how long session waits for a new downstream request
	// after losing the previous one. Zero disables.
	ClientIdleTimeout Duration `mapstructure:"client_idle_timeout" json:"client_idle_timeout" envconfig:"client_idle_timeout" default:"25s" toml:"client_idle_timeout" yaml:"client_idle_timeout"`
	// InactivityTimeout is how long session may stay silent before it is closed,
	// a ping is sent after a half of it. Zero disables.
	InactivityTimeout Duration `mapstructure:"inactivity_timeout" json:"inactivity_timeout" envconfig:"inactivity_timeout" default:"30s" toml:"inactivity_timeout" yaml:"inactivity_timeout"`
	// LongPollTimeout is how long long-polling downstream request is held when
	// there is nothing to deliver.
	LongPollTimeout Duration `mapstructure:"long_poll_timeout" json:"long_poll_timeout" envconfig:"long_poll_timeout" default:"25s" toml:"long_poll_timeout" yaml:"long_poll_timeout"`
	// Escape is a default escape type for downstream bytes: none, zero, zero_and_newline.
	Escape string `mapstructure:"escape" json:"escape" envconfig:"escape" default:"none" toml:"escape" yaml:"escape"`
	// IOWorkers is a number of I/O loops, 0 means number of CPUs.
	IOWorkers int `mapstructure:"io_workers" json:"io_workers" envconfig:"io_workers" toml:"io_workers" yaml:"io_workers"`
	// CreateRateLimit is a number of sessions per second allowed to be created, 0 means no limit.
	CreateRateLimit float64 `mapstructure:"create_rate_limit" json:"create_rate_limit" envconfig:"create_rate_limit" toml:"create_rate_limit" yaml:"create_rate_limit"`
	// CreateRateBurst is a burst for CreateRateLimit.
	CreateRateBurst int `mapstructure:"create_rate_burst" json:"create_rate_burst" envconfig:"create_rate_burst" default:"100" toml:"create_rate_burst" yaml:"create_rate_burst"`
}

type WebSocket struct {
	Disabled         bool     `mapstructure:"disabled" json:"disabled" envconfig:"disabled" toml:"disabled" yaml:"disabled"`
	HandlerPrefix    string   `mapstructure:"handler_prefix" json:"handler_prefix" envconfig:"handler_prefix" default:"/connection/websocket" toml:"handler_prefix" yaml:"handler_prefix"`
	ReadBufferSize   int      `mapstructure:"read_buffer_size" json:"read_buffer_size" envconfig:"read_buffer_size" toml:"read_buffer_size" yaml:"read_buffer_size"`
	WriteBufferSize  int      `mapstructure:"write_buffer_size" json:"write_buffer_size" envconfig:"write_buffer_size" toml:"write_buffer_size" yaml:"write_buffer_size"`
	WriteTimeout     Duration `mapstructure:"write_timeout" json:"write_timeout" envconfig:"write_timeout" default:"1000ms" toml:"write_timeout" yaml:"write_timeout"`
	MessageSizeLimit int      `mapstructure:"message_size_limit" json:"message_size_limit" envconfig:"message_size_limit" default:"65536" toml:"message_size_limit" yaml:"message_size_limit"`
	// PingInterval for server-side WebSocket pings, zero disables.
	PingInterval Duration `mapstructure:"ping_interval" json:"ping_interval" envconfig:"ping_interval" default:"25s" toml:"ping_interval" yaml:"ping_interval"`
}

type Prometheus struct {
	Enabled       bool   `mapstructure:"enabled" json:"enabled" envconfig:"enabled" toml:"enabled" yaml:"enabled"`
	HandlerPrefix string `mapstructure:"handler_prefix" json:"handler_prefix" envconfig:"handler_prefix" default:"/metrics" toml:"handler_prefix" yaml:"handler_prefix"`
}

// Graphite configures pushing metrics to Graphite.
type Graphite struct {
	Enabled  bool     `mapstructure:"enabled" json:"enabled" envconfig:"enabled" toml:"enabled" yaml:"enabled"`
	Host     string   `mapstructure:"host" json:"host" envconfig:"host" default:"localhost" toml:"host" yaml:"host"`
	Port     int      `mapstructure:"port" json:"port" envconfig:"port" default:"2003" toml:"port" yaml:"port"`
	Prefix   string   `mapstructure:"prefix" json:"prefix" envconfig:"prefix" default:"wsgate" toml:"prefix" yaml:"prefix"`
	Interval Duration `mapstructure:"interval" json:"interval" envconfig:"interval" default:"10s" toml:"interval" yaml:"interval"`
	Tags     bool     `mapstructure:"tags" json:"tags" envconfig:"tags" toml:"tags" yaml:"tags"`
}

type Health struct {
	Enabled       bool   `mapstructure:"enabled" json:"enabled" envconfig:"enabled" toml:"enabled" yaml:"enabled"`
	HandlerPrefix string `mapstructure:"handler_prefix" json:"handler_prefix" envconfig:"handler_prefix" default:"/health" toml:"handler_prefix" yaml:"handler_prefix"`
}

type OpenTelemetry struct {
	Enabled bool `mapstructure:"enabled" json:"enabled" envconfig:"enabled" toml:"enabled" yaml:"enabled"`
}

type Debug struct {
	Enabled       bool   `mapstructure:"enabled" json:"enabled" envconfig:"enabled" toml:"enabled" yaml:"enabled"`
	HandlerPrefix string `mapstructure:"handler_prefix" json:"handler_prefix" envconfig:"handler_prefix" default:"/debug/pprof" toml:"handler_prefix" yaml:"handler_prefix"`
}

type Shutdown struct {
	Timeout Duration `mapstructure:"timeout" json:"timeout" envconfig:"timeout" default:"30s" toml:"timeout" yaml:"timeout"`
}
