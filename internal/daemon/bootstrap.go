// SPDX-License-Identifier: MIT

// Package daemon provides the daemon bootstrapping and lifecycle management.
package daemon

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/embywatch/internal/api"
	"github.com/ManuGH/embywatch/internal/bridge"
	"github.com/ManuGH/embywatch/internal/cache"
	"github.com/ManuGH/embywatch/internal/config"
	"github.com/ManuGH/embywatch/internal/emby"
	"github.com/ManuGH/embywatch/internal/export"
	"github.com/ManuGH/embywatch/internal/health"
	"github.com/ManuGH/embywatch/internal/log"
	"github.com/ManuGH/embywatch/internal/poll"
	"github.com/ManuGH/embywatch/internal/telemetry"
)

// Runtime is the fully wired daemon.
type Runtime struct {
	App     *App
	Manager Manager
	Health  *health.Manager
}

// Build wires the complete daemon object graph from the current
// configuration: upstream client, cache, entity engine, poll loops, guide
// scheduler, state exporter, API server and the lifecycle manager.
func Build(ctx context.Context, holder *config.Holder, version string) (*Runtime, error) {
	cfg := holder.Get()
	logger := log.WithComponent("daemon")

	// Tracing first, so every later subsystem picks up the global provider.
	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.OTELEnabled,
		ServiceName:    "embywatch",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		ExporterType:   cfg.OTELExporter,
		Endpoint:       cfg.OTELEndpoint,
		SamplingRate:   cfg.OTELSampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	cacheBackend := cache.FromConfig(cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, log.WithComponent("cache"))

	client := emby.New(cfg.EmbyURL, emby.Options{
		Token:     cfg.EmbyToken,
		Timeout:   cfg.EmbyTimeout,
		UserAgent: "embywatch/" + version,
	})

	sessions := poll.New("sessions", cfg.SessionInterval, client.Sessions)

	engine := bridge.NewEngine(bridge.EngineConfig{
		Normalizer: bridge.NewNormalizer(client, nil),
		Commander:  client,
		Refresher:  sessions,
	})
	sessions.Subscribe(func(ctx context.Context, data []emby.Session) {
		engine.Apply(ctx, data)
	})

	var scheduler *bridge.Scheduler
	if cfg.EPGEnabled {
		scheduler = bridge.NewScheduler(bridge.SchedulerConfig{
			Source:      client,
			Store:       engine,
			Cache:       cacheBackend,
			Images:      client,
			MinInterval: cfg.EPGThrottle,
		})
		engine.SetEPGTrigger(scheduler)
	}

	// The latest-items limit is read per run, so a reload applies live.
	library := poll.New("library", cfg.LibraryInterval, newLibraryFetch(client, func() int {
		return holder.Get().LatestLimit
	}))

	var exporter *export.Writer
	if cfg.StateFile != "" {
		exporter = export.NewWriter(export.Config{
			Path:     cfg.StateFile,
			Interval: cfg.ExportInterval,
			Source:   engine,
			Version:  version,
		})
		engine.OnPublish(exporter.Notify)
	}

	hm := health.NewManager(version)
	hm.RegisterChecker(health.NewPollChecker("sessions", pollStatus(sessions)))
	hm.RegisterChecker(health.NewPollChecker("library", pollStatus(library)))
	var pinger health.Pinger
	if p, ok := cacheBackend.(health.Pinger); ok {
		pinger = p
	}
	hm.RegisterChecker(health.NewCacheChecker(pinger))

	srv := api.NewServer(api.Options{
		Holder:   holder,
		Engine:   engine,
		Sessions: sessions,
		Library:  library,
		Stats:    client,
		Cache:    cacheBackend,
		Health:   hm,
		Version:  version,
	})

	mgr, err := NewManager(config.ServerConfigFor(cfg), Deps{
		Logger:         logger,
		APIHandler:     srv.Routes(),
		MetricsAddr:    cfg.MetricsListen,
		MetricsHandler: promhttp.Handler(),
	})
	if err != nil {
		return nil, fmt.Errorf("create manager: %w", err)
	}

	mgr.RegisterShutdownHook("telemetry", provider.Shutdown)
	if closer, ok := cacheBackend.(interface{ Close() error }); ok {
		mgr.RegisterShutdownHook("cache", func(context.Context) error { return closer.Close() })
	}

	app := NewApp(logger, AppOptions{
		Manager:   mgr,
		Holder:    holder,
		Sessions:  sessions,
		Library:   library,
		Scheduler: scheduler,
		Exporter:  exporter,
	})

	return &Runtime{App: app, Manager: mgr, Health: hm}, nil
}

// pollStatus adapts a coordinator to the health package's snapshot view.
func pollStatus[T any](c *poll.Coordinator[T]) func() health.PollStatus {
	return func() health.PollStatus {
		_, last, has := c.Snapshot()
		return health.PollStatus{
			HasData:     has,
			LastSuccess: last,
			LastError:   c.LastError(),
			AuthLatched: c.AuthLatched(),
			Interval:    c.Interval(),
		}
	}
}
