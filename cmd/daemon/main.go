// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/embywatch/internal/config"
	"github.com/ManuGH/embywatch/internal/daemon"
	"github.com/ManuGH/embywatch/internal/health"
	ewlog "github.com/ManuGH/embywatch/internal/log"
	platformnet "github.com/ManuGH/embywatch/internal/platform/net"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(runHealthcheckCLI(os.Args[2:]))
	}

	// Handle command-line flags
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Configure logger with safe defaults until config is loaded
	ewlog.Configure(ewlog.Config{
		Level:   "info",
		Service: "embywatch",
		Version: version,
	})

	logger := ewlog.WithComponent("daemon")

	// Create a context that listens for the interrupt signal from the OS
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config path: explicit via --config, otherwise EMBYWATCH_CONFIG.
	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		effectiveConfigPath = strings.TrimSpace(config.ParseString("EMBYWATCH_CONFIG", ""))
	}

	// Load configuration with precedence: ENV > File > Defaults
	loader := config.NewLoader(effectiveConfigPath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	// Re-configure logger with loaded configuration
	ewlog.Configure(ewlog.Config{
		Level:   cfg.LogLevel,
		Service: "embywatch",
		Version: cfg.Version,
	})

	// Log config source
	if effectiveConfigPath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", effectiveConfigPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	// -------------------------------------------------------------------------
	// Pre-flight Checks (Fail Fast)
	// -------------------------------------------------------------------------
	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("Startup checks failed. Please verify configuration and permissions.")
	}
	// -------------------------------------------------------------------------

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.Listen).
		Msg("starting embywatch")

	// Log key configuration
	logger.Info().Msgf("→ Emby: %s (auth: %v)", platformnet.SanitizeURL(cfg.EmbyURL), cfg.EmbyToken != "")
	logger.Info().Msgf("→ Poll: sessions every %s, library every %s", cfg.SessionInterval, cfg.LibraryInterval)
	if cfg.EPGEnabled {
		logger.Info().Msgf("→ Guide: enabled (throttle %s)", cfg.EPGThrottle)
	} else {
		logger.Info().Msg("→ Guide: disabled")
	}
	if cfg.RedisAddr != "" {
		logger.Info().Msgf("→ Cache: redis (%s)", cfg.RedisAddr)
	} else {
		logger.Info().Msg("→ Cache: in-memory")
	}
	if cfg.StateFile != "" {
		logger.Info().Msgf("→ State file: %s (min interval %s)", cfg.StateFile, cfg.ExportInterval)
	}
	if cfg.APIToken != "" {
		logger.Info().Msg("→ API token: configured")
	} else {
		logger.Warn().
			Str("security", "weak").
			Msg("→ API token: NOT configured (Auth Disabled). Set EMBYWATCH_API_TOKEN for security.")
	}

	// Hot reload support: watch config file and allow SIGHUP-triggered reload.
	holder := config.NewHolder(cfg, config.NewLoader(effectiveConfigPath, version), effectiveConfigPath)

	rt, err := daemon.Build(ctx, holder, version)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "bootstrap.failed").
			Msg("failed to build daemon runtime")
	}

	// Start daemon app (blocks until shutdown)
	if err := rt.App.Run(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "daemon.failed").
			Msg("daemon app failed")
	}

	logger.Info().Msg("server exiting")
}
