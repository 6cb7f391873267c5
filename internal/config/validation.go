// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	platformnet "github.com/ManuGH/embywatch/internal/platform/net"
	"github.com/ManuGH/embywatch/internal/validate"
)

// Validate checks a resolved AppConfig. All problems are collected and
// reported together.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.NotEmpty("EmbyURL", cfg.EmbyURL)
	if strings.TrimSpace(cfg.EmbyURL) != "" {
		v.URL("EmbyURL", cfg.EmbyURL, []string{"http", "https"})
		if u, err := url.Parse(cfg.EmbyURL); err == nil && u.Hostname() != "" {
			if _, err := platformnet.NormalizeHost(u.Hostname()); err != nil {
				v.AddError("EmbyURL", fmt.Sprintf("invalid host: %v", err), cfg.EmbyURL)
			}
		}
	}
	v.NotEmpty("EmbyToken", cfg.EmbyToken)
	validateMinDuration(v, "EmbyTimeout", cfg.EmbyTimeout, time.Second)

	validateMinDuration(v, "SessionInterval", cfg.SessionInterval, time.Second)
	validateMinDuration(v, "LibraryInterval", cfg.LibraryInterval, time.Minute)
	v.Range("LatestLimit", cfg.LatestLimit, 1, 50)

	if cfg.EPGEnabled {
		validateMinDuration(v, "EPGThrottle", cfg.EPGThrottle, time.Second)
	}

	validateListen(v, "Listen", cfg.Listen)
	v.Range("APIRateLimit", cfg.APIRateLimit, 1, 10000)

	if cfg.MetricsListen != "" {
		validateListen(v, "MetricsListen", cfg.MetricsListen)
	}

	v.NonNegative("RedisDB", cfg.RedisDB)

	if cfg.StateFile != "" {
		v.Directory("StateFileDir", filepath.Dir(cfg.StateFile), false)
		validateMinDuration(v, "ExportInterval", cfg.ExportInterval, 5*time.Second)
	}

	if cfg.OTELEnabled {
		v.OneOf("OTELExporter", cfg.OTELExporter, []string{"grpc", "http"})
		v.NotEmpty("OTELEndpoint", cfg.OTELEndpoint)
		if cfg.OTELSampleRatio < 0 || cfg.OTELSampleRatio > 1 {
			v.AddError("OTELSampleRatio", "must be between 0.0 and 1.0", cfg.OTELSampleRatio)
		}
	}

	if cfg.LogLevel != "" {
		v.OneOf("LogLevel", strings.ToLower(cfg.LogLevel),
			[]string{"trace", "debug", "info", "warn", "error", "fatal", "panic"})
	}

	if !v.IsValid() {
		return v.Err()
	}
	return nil
}

func validateMinDuration(v *validate.Validator, field string, d, minimum time.Duration) {
	if d < minimum {
		v.AddError(field, fmt.Sprintf("must be at least %s, got %s", minimum, d), d.String())
	}
}

func validateListen(v *validate.Validator, field, listen string) {
	if strings.TrimSpace(listen) == "" {
		v.AddError(field, "listen address cannot be empty", listen)
		return
	}
	_, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid listen address: %v", err), listen)
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		v.AddError(field, "listen port must be numeric", listen)
		return
	}
	v.Port(field, port)
}
