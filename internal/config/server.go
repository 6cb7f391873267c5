// SPDX-License-Identifier: MIT

package config

import "time"

// ServerConfig holds HTTP server runtime settings. These are operational
// tunables rather than domain configuration, so they resolve from defaults
// and environment variables only and are not part of the reloadable file.
type ServerConfig struct {
	// ListenAddr is the address to listen on (e.g. ":8090")
	ListenAddr string

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out response writes
	WriteTimeout time.Duration

	// IdleTimeout is the maximum time to wait for the next request
	IdleTimeout time.Duration

	// MaxHeaderBytes caps the size of parsed request headers
	MaxHeaderBytes int

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration
}

const (
	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultMaxHeaderBytes  = 1 << 20 // 1 MB
	defaultShutdownTimeout = 15 * time.Second
)

// Environment variables overriding the server runtime defaults.
const (
	EnvServerReadTimeout     = "EMBYWATCH_SERVER_READ_TIMEOUT"
	EnvServerWriteTimeout    = "EMBYWATCH_SERVER_WRITE_TIMEOUT"
	EnvServerIdleTimeout     = "EMBYWATCH_SERVER_IDLE_TIMEOUT"
	EnvServerMaxHeaderBytes  = "EMBYWATCH_SERVER_MAX_HEADER_BYTES"
	EnvServerShutdownTimeout = "EMBYWATCH_SERVER_SHUTDOWN_TIMEOUT"
)

// ServerConfigFor resolves the HTTP server settings for cfg. The listen
// address comes from the app config; timeouts start from defaults and can be
// overridden per deployment via environment variables.
func ServerConfigFor(cfg AppConfig) ServerConfig {
	maxHeaderBytes := ParseInt(EnvServerMaxHeaderBytes, defaultMaxHeaderBytes)
	if maxHeaderBytes <= 0 {
		maxHeaderBytes = defaultMaxHeaderBytes
	}

	// A too-small shutdown window truncates in-flight responses.
	shutdownTimeout := ParseDuration(EnvServerShutdownTimeout, defaultShutdownTimeout)
	if shutdownTimeout < 3*time.Second {
		shutdownTimeout = 3 * time.Second
	}

	return ServerConfig{
		ListenAddr:      cfg.Listen,
		ReadTimeout:     ParseDuration(EnvServerReadTimeout, defaultReadTimeout),
		WriteTimeout:    ParseDuration(EnvServerWriteTimeout, defaultWriteTimeout),
		IdleTimeout:     ParseDuration(EnvServerIdleTimeout, defaultIdleTimeout),
		MaxHeaderBytes:  maxHeaderBytes,
		ShutdownTimeout: shutdownTimeout,
	}
}
