// SPDX-License-Identifier: MIT

package config

import "time"

// Defaults applied before file and environment merging.
const (
	DefaultEmbyTimeout     = 15 * time.Second
	DefaultSessionInterval = 10 * time.Second
	DefaultLibraryInterval = 15 * time.Minute
	DefaultLatestLimit     = 5
	DefaultEPGThrottle     = 20 * time.Second
	DefaultListen          = ":8090"
	DefaultAPIRateLimit    = 120
	DefaultExportInterval  = 30 * time.Second
	DefaultOTELExporter    = "grpc"
	DefaultEnvironment     = "production"
	DefaultLogLevel        = "info"
)

// AppConfig is the resolved runtime configuration.
type AppConfig struct {
	// Emby connection
	EmbyURL     string
	EmbyToken   string
	EmbyTimeout time.Duration

	// Polling cadence
	SessionInterval time.Duration
	LibraryInterval time.Duration
	LatestLimit     int

	// Guide augmentation
	EPGEnabled  bool
	EPGThrottle time.Duration

	// HTTP API
	Listen       string
	APIToken     string
	APIRateLimit int // requests per minute per client

	// Prometheus exposition; empty disables the separate listener
	MetricsListen string

	// Optional Redis lookup cache; empty Addr keeps the in-memory backend
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Optional state export
	StateFile      string
	ExportInterval time.Duration

	// Tracing
	OTELEnabled     bool
	OTELExporter    string // grpc or http
	OTELEndpoint    string
	OTELSampleRatio float64
	Environment     string

	LogLevel string
	Version  string
}

// FileConfig is the YAML configuration structure. Pointers mark fields whose
// absence must stay distinguishable from an explicit zero.
type FileConfig struct {
	LogLevel string `yaml:"logLevel,omitempty"`

	Emby      EmbyFileConfig      `yaml:"emby"`
	Poll      PollFileConfig      `yaml:"poll,omitempty"`
	EPG       EPGFileConfig       `yaml:"epg,omitempty"`
	API       APIFileConfig       `yaml:"api,omitempty"`
	Metrics   MetricsFileConfig   `yaml:"metrics,omitempty"`
	Redis     RedisFileConfig     `yaml:"redis,omitempty"`
	Export    ExportFileConfig    `yaml:"export,omitempty"`
	Telemetry TelemetryFileConfig `yaml:"telemetry,omitempty"`
}

// EmbyFileConfig holds the server connection settings.
type EmbyFileConfig struct {
	URL     string        `yaml:"url,omitempty"`
	Token   string        `yaml:"token,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// PollFileConfig holds the polling cadence settings.
type PollFileConfig struct {
	SessionInterval time.Duration `yaml:"sessionInterval,omitempty"`
	LibraryInterval time.Duration `yaml:"libraryInterval,omitempty"`
	LatestLimit     *int          `yaml:"latestLimit,omitempty"`
}

// EPGFileConfig holds the guide augmentation settings.
type EPGFileConfig struct {
	Enabled  *bool         `yaml:"enabled,omitempty"`
	Throttle time.Duration `yaml:"throttle,omitempty"`
}

// APIFileConfig holds the HTTP API settings.
type APIFileConfig struct {
	Listen             string `yaml:"listen,omitempty"`
	Token              string `yaml:"token,omitempty"`
	RateLimitPerMinute *int   `yaml:"rateLimitPerMinute,omitempty"`
}

// MetricsFileConfig holds the Prometheus exposition settings.
type MetricsFileConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// RedisFileConfig holds the optional Redis cache settings.
type RedisFileConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       *int   `yaml:"db,omitempty"`
}

// ExportFileConfig holds the optional state export settings.
type ExportFileConfig struct {
	StateFile string        `yaml:"stateFile,omitempty"`
	Interval  time.Duration `yaml:"interval,omitempty"`
}

// TelemetryFileConfig holds the tracing settings.
type TelemetryFileConfig struct {
	Enabled     *bool    `yaml:"enabled,omitempty"`
	Exporter    string   `yaml:"exporter,omitempty"`
	Endpoint    string   `yaml:"endpoint,omitempty"`
	SampleRatio *float64 `yaml:"sampleRatio,omitempty"`
	Environment string   `yaml:"environment,omitempty"`
}

// Masked returns a copy safe for logging: secrets are redacted, everything
// else passes through.
func (c AppConfig) Masked() AppConfig {
	out := c
	out.EmbyToken = maskSecret(c.EmbyToken)
	out.APIToken = maskSecret(c.APIToken)
	out.RedisPassword = maskSecret(c.RedisPassword)
	return out
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
