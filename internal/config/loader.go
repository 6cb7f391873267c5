// SPDX-License-Identifier: MIT

// Package config loads and validates the daemon configuration with the
// precedence ENV > file > defaults.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variable names. Each overrides the corresponding file field.
const (
	EnvEmbyURL         = "EMBYWATCH_EMBY_URL"
	EnvEmbyToken       = "EMBYWATCH_EMBY_TOKEN"
	EnvEmbyTimeout     = "EMBYWATCH_EMBY_TIMEOUT"
	EnvSessionInterval = "EMBYWATCH_SESSION_INTERVAL"
	EnvLibraryInterval = "EMBYWATCH_LIBRARY_INTERVAL"
	EnvLatestLimit     = "EMBYWATCH_LATEST_LIMIT"
	EnvEPGEnabled      = "EMBYWATCH_EPG_ENABLED"
	EnvEPGThrottle     = "EMBYWATCH_EPG_THROTTLE"
	EnvListen          = "EMBYWATCH_API_LISTEN"
	EnvAPIToken        = "EMBYWATCH_API_TOKEN"
	EnvAPIRateLimit    = "EMBYWATCH_API_RATE_LIMIT"
	EnvMetricsListen   = "EMBYWATCH_METRICS_LISTEN"
	EnvRedisAddr       = "EMBYWATCH_REDIS_ADDR"
	EnvRedisPassword   = "EMBYWATCH_REDIS_PASSWORD"
	EnvRedisDB         = "EMBYWATCH_REDIS_DB"
	EnvStateFile       = "EMBYWATCH_STATE_FILE"
	EnvExportInterval  = "EMBYWATCH_EXPORT_INTERVAL"
	EnvOTELEnabled     = "EMBYWATCH_OTEL_ENABLED"
	EnvOTELExporter    = "EMBYWATCH_OTEL_EXPORTER"
	EnvOTELEndpoint    = "EMBYWATCH_OTEL_ENDPOINT"
	EnvOTELSampleRatio = "EMBYWATCH_OTEL_SAMPLE_RATIO"
	EnvEnvironment     = "EMBYWATCH_ENVIRONMENT"
	EnvLogLevel        = "EMBYWATCH_LOG_LEVEL"
)

// Loader resolves configuration from defaults, an optional YAML file and the
// environment.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a loader. configPath may be empty for ENV-only setups.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load resolves the configuration: defaults first, then the file, then the
// environment, then validation. Either the result is fully valid or an
// error is returned.
func (l *Loader) Load() (AppConfig, error) {
	cfg := defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFileConfig(&cfg, fileCfg)
	}

	mergeEnvConfig(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func defaults() AppConfig {
	return AppConfig{
		EmbyTimeout:     DefaultEmbyTimeout,
		SessionInterval: DefaultSessionInterval,
		LibraryInterval: DefaultLibraryInterval,
		LatestLimit:     DefaultLatestLimit,
		EPGEnabled:      true,
		EPGThrottle:     DefaultEPGThrottle,
		Listen:          DefaultListen,
		APIRateLimit:    DefaultAPIRateLimit,
		ExportInterval:  DefaultExportInterval,
		OTELExporter:    DefaultOTELExporter,
		OTELSampleRatio: 1.0,
		Environment:     DefaultEnvironment,
		LogLevel:        DefaultLogLevel,
	}
}

// loadFile parses a YAML config file strictly: unknown fields, multiple
// documents and trailing content are errors.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- config path is provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFileConfig(cfg *AppConfig, file *FileConfig) {
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}

	if file.Emby.URL != "" {
		cfg.EmbyURL = file.Emby.URL
	}
	if file.Emby.Token != "" {
		cfg.EmbyToken = file.Emby.Token
	}
	if file.Emby.Timeout > 0 {
		cfg.EmbyTimeout = file.Emby.Timeout
	}

	if file.Poll.SessionInterval > 0 {
		cfg.SessionInterval = file.Poll.SessionInterval
	}
	if file.Poll.LibraryInterval > 0 {
		cfg.LibraryInterval = file.Poll.LibraryInterval
	}
	if file.Poll.LatestLimit != nil {
		cfg.LatestLimit = *file.Poll.LatestLimit
	}

	if file.EPG.Enabled != nil {
		cfg.EPGEnabled = *file.EPG.Enabled
	}
	if file.EPG.Throttle > 0 {
		cfg.EPGThrottle = file.EPG.Throttle
	}

	if file.API.Listen != "" {
		cfg.Listen = file.API.Listen
	}
	if file.API.Token != "" {
		cfg.APIToken = file.API.Token
	}
	if file.API.RateLimitPerMinute != nil {
		cfg.APIRateLimit = *file.API.RateLimitPerMinute
	}

	if file.Metrics.Listen != "" {
		cfg.MetricsListen = file.Metrics.Listen
	}

	if file.Redis.Addr != "" {
		cfg.RedisAddr = file.Redis.Addr
	}
	if file.Redis.Password != "" {
		cfg.RedisPassword = file.Redis.Password
	}
	if file.Redis.DB != nil {
		cfg.RedisDB = *file.Redis.DB
	}

	if file.Export.StateFile != "" {
		cfg.StateFile = file.Export.StateFile
	}
	if file.Export.Interval > 0 {
		cfg.ExportInterval = file.Export.Interval
	}

	if file.Telemetry.Enabled != nil {
		cfg.OTELEnabled = *file.Telemetry.Enabled
	}
	if file.Telemetry.Exporter != "" {
		cfg.OTELExporter = file.Telemetry.Exporter
	}
	if file.Telemetry.Endpoint != "" {
		cfg.OTELEndpoint = file.Telemetry.Endpoint
	}
	if file.Telemetry.SampleRatio != nil {
		cfg.OTELSampleRatio = *file.Telemetry.SampleRatio
	}
	if file.Telemetry.Environment != "" {
		cfg.Environment = file.Telemetry.Environment
	}
}

func mergeEnvConfig(cfg *AppConfig) {
	cfg.EmbyURL = ParseString(EnvEmbyURL, cfg.EmbyURL)
	cfg.EmbyToken = ParseString(EnvEmbyToken, cfg.EmbyToken)
	cfg.EmbyTimeout = ParseDuration(EnvEmbyTimeout, cfg.EmbyTimeout)

	cfg.SessionInterval = ParseDuration(EnvSessionInterval, cfg.SessionInterval)
	cfg.LibraryInterval = ParseDuration(EnvLibraryInterval, cfg.LibraryInterval)
	cfg.LatestLimit = ParseInt(EnvLatestLimit, cfg.LatestLimit)

	cfg.EPGEnabled = ParseBool(EnvEPGEnabled, cfg.EPGEnabled)
	cfg.EPGThrottle = ParseDuration(EnvEPGThrottle, cfg.EPGThrottle)

	cfg.Listen = ParseString(EnvListen, cfg.Listen)
	cfg.APIToken = ParseString(EnvAPIToken, cfg.APIToken)
	cfg.APIRateLimit = ParseInt(EnvAPIRateLimit, cfg.APIRateLimit)
	cfg.MetricsListen = ParseString(EnvMetricsListen, cfg.MetricsListen)

	cfg.RedisAddr = ParseString(EnvRedisAddr, cfg.RedisAddr)
	cfg.RedisPassword = ParseString(EnvRedisPassword, cfg.RedisPassword)
	cfg.RedisDB = ParseInt(EnvRedisDB, cfg.RedisDB)

	cfg.StateFile = ParseString(EnvStateFile, cfg.StateFile)
	cfg.ExportInterval = ParseDuration(EnvExportInterval, cfg.ExportInterval)

	cfg.OTELEnabled = ParseBool(EnvOTELEnabled, cfg.OTELEnabled)
	cfg.OTELExporter = ParseString(EnvOTELExporter, cfg.OTELExporter)
	cfg.OTELEndpoint = ParseString(EnvOTELEndpoint, cfg.OTELEndpoint)
	cfg.OTELSampleRatio = ParseFloat(EnvOTELSampleRatio, cfg.OTELSampleRatio)
	cfg.Environment = ParseString(EnvEnvironment, cfg.Environment)

	cfg.LogLevel = ParseString(EnvLogLevel, cfg.LogLevel)
}
