// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/embywatch/internal/config"
	"github.com/ManuGH/embywatch/internal/log"
	"github.com/ManuGH/embywatch/internal/platform/httpx"
	platformnet "github.com/ManuGH/embywatch/internal/platform/net"
)

// PerformStartupChecks probes the environment before the daemon starts.
// Everything here is a runtime property that config validation cannot see.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("Running pre-flight startup checks...")

	if cfg.StateFile != "" {
		if err := checkStateDir(logger, filepath.Dir(cfg.StateFile)); err != nil {
			return fmt.Errorf("state directory check failed: %w", err)
		}
	}

	if cfg.EmbyURL != "" {
		if err := checkEmbyReachable(ctx, logger, cfg.EmbyURL); err != nil {
			// The poll loop recovers on its own once the server is back.
			logger.Warn().
				Err(err).
				Str("url", platformnet.SanitizeURL(cfg.EmbyURL)).
				Msg("Emby server not reachable; session polling will retry")
		}
	}

	if cfg.RedisAddr != "" {
		if err := checkRedisReachable(ctx, logger, cfg.RedisAddr); err != nil {
			// The cache is optional; the daemon falls back to memory.
			logger.Warn().
				Err(err).
				Str("addr", cfg.RedisAddr).
				Msg("Redis not reachable; cache falls back to memory")
		}
	}

	if cfg.APIToken == "" {
		logger.Warn().Msg("API token not configured; command endpoints are unauthenticated")
	}

	logger.Info().Msg("✅ All startup checks passed")
	return nil
}

func checkStateDir(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	// Check write permissions by creating a temp file
	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str("path", path).Msg("✓ State directory is writable")
	return nil
}

func checkRedisReachable(ctx context.Context, logger zerolog.Logger, addr string) error {
	d := net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	_ = conn.Close()
	logger.Info().Str("addr", addr).Msg("✓ Redis is reachable")
	return nil
}

// checkEmbyReachable probes the server's unauthenticated public info
// endpoint, so a bad token does not fail the probe.
func checkEmbyReachable(ctx context.Context, logger zerolog.Logger, base string) error {
	u, ok := platformnet.ParseDirectHTTPURL(base)
	if !ok {
		return fmt.Errorf("not a direct http(s) URL")
	}

	probeURL := strings.TrimRight(u.String(), "/") + "/System/Info/Public"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return err
	}

	client := httpx.NewClient(3 * time.Second)
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	logger.Info().Str("url", platformnet.SanitizeURL(base)).Msg("✓ Emby server is reachable")
	return nil
}
