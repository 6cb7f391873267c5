// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/embywatch/internal/api"
	"github.com/ManuGH/embywatch/internal/bridge"
	"github.com/ManuGH/embywatch/internal/config"
	"github.com/ManuGH/embywatch/internal/emby"
	"github.com/ManuGH/embywatch/internal/export"
	"github.com/ManuGH/embywatch/internal/poll"
)

// App owns the long-lived runtime lifecycle (poll loops, guide scheduler,
// state exporter, reload wiring) and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	holder       *config.Holder
	sessions     *poll.Coordinator[[]emby.Session]
	library      *poll.Coordinator[api.LibraryContent]
	scheduler    *bridge.Scheduler
	exporter     *export.Writer
	reloadSignal os.Signal
}

// AppOptions carries the App's collaborators. Manager is required; nil
// optional fields disable the matching subsystem.
type AppOptions struct {
	Manager   Manager
	Holder    *config.Holder
	Sessions  *poll.Coordinator[[]emby.Session]
	Library   *poll.Coordinator[api.LibraryContent]
	Scheduler *bridge.Scheduler
	Exporter  *export.Writer
}

// NewApp creates a new App orchestrator.
func NewApp(logger zerolog.Logger, opts AppOptions) *App {
	return &App{
		logger:       logger,
		manager:      opts.Manager,
		holder:       opts.Holder,
		sessions:     opts.Sessions,
		library:      opts.Library,
		scheduler:    opts.Scheduler,
		exporter:     opts.Exporter,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run starts all owned background subsystems and blocks until ctx is
// cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	// Config watcher is best-effort: startup should not fail if the watcher
	// cannot be started.
	if a.holder != nil {
		if err := a.holder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
		}
	}

	// Reload-during-runtime wiring: apply the new cadence and re-arm
	// latched poll loops on every successful config swap.
	if a.holder != nil {
		reloadCh := make(chan config.AppConfig, 1)
		a.holder.RegisterListener(reloadCh)

		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-reloadCh:
					a.applyConfig(cfg)
				}
			}
		})
	}

	// SIGHUP trigger for manual reload.
	if a.holder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str("event", "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")

					if err := a.holder.Reload(context.Background()); err != nil {
						a.logger.Warn().
							Err(err).
							Str("event", "config.reload_failed").
							Msg("config reload failed")
					}
				}
			}
		})
	}

	// Poll loops (stop via ctx).
	if a.sessions != nil {
		g.Go(func() error { return a.sessions.Run(ctx) })
	}
	if a.library != nil {
		g.Go(func() error { return a.library.Run(ctx) })
	}

	// State exporter (stops via ctx after a final flush).
	if a.exporter != nil {
		g.Go(func() error { return a.exporter.Run(ctx) })
	}

	// In-flight guide fetches finish before the process exits.
	if a.scheduler != nil {
		g.Go(func() error {
			<-ctx.Done()
			a.scheduler.Wait()
			return nil
		})
	}

	// Main server lifecycle.
	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}

// applyConfig pushes a reloaded configuration into the running poll loops.
// Rearm clears a possible auth latch, so new credentials take effect without
// a restart.
func (a *App) applyConfig(cfg config.AppConfig) {
	if a.sessions != nil {
		a.sessions.SetInterval(cfg.SessionInterval)
		a.sessions.Rearm()
	}
	if a.library != nil {
		a.library.SetInterval(cfg.LibraryInterval)
		a.library.Rearm()
	}

	a.logger.Info().
		Str("event", "config.reload_applied").
		Dur("session_interval", cfg.SessionInterval).
		Dur("library_interval", cfg.LibraryInterval).
		Msg("new configuration applied to poll loops")
}
