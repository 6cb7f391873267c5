// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ManuGH/embywatch/internal/log"
	"github.com/ManuGH/embywatch/internal/metrics"
	platformnet "github.com/ManuGH/embywatch/internal/platform/net"
)

// Holder provides thread-safe access to the current configuration and hot
// reloading from file changes, SIGHUP or the API.
type Holder struct {
	mu         sync.RWMutex
	current    AppConfig
	loader     *Loader
	configPath string
	watcher    *fsnotify.Watcher
	logger     zerolog.Logger

	reloadMu        sync.RWMutex
	reloadListeners []chan<- AppConfig
}

// NewHolder creates a holder with the given initial configuration.
func NewHolder(initial AppConfig, loader *Loader, configPath string) *Holder {
	return &Holder{
		current:    initial,
		loader:     loader,
		configPath: configPath,
		logger:     log.WithComponent("config"),
	}
}

// Get returns the current configuration.
func (h *Holder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload loads and validates a fresh configuration. On any failure the old
// configuration stays in place, so the swap is all-or-nothing.
func (h *Holder) Reload(_ context.Context) error {
	h.logger.Info().Str("event", "config.reload_start").Msg("reloading configuration")

	newCfg, err := h.loader.Load()
	if err != nil {
		metrics.IncConfigReload("error")
		h.logger.Error().
			Err(err).
			Str("event", "config.reload_failed").
			Msg("failed to load new configuration")
		return fmt.Errorf("load config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.current
	h.current = newCfg
	h.mu.Unlock()

	metrics.IncConfigReload("success")
	h.notifyListeners(newCfg)
	h.logChanges(oldCfg, newCfg)

	h.logger.Info().
		Str("event", "config.reload_success").
		Msg("configuration reloaded successfully")
	return nil
}

// StartWatcher watches the config file for changes. A no-op when the
// configuration comes from ENV only.
func (h *Holder) StartWatcher(ctx context.Context) error {
	if h.configPath == "" {
		h.logger.Info().
			Str("event", "config.watcher_disabled").
			Msg("config file watcher disabled (using ENV-only configuration)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher

	if err := watcher.Add(h.configPath); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config file: %w", err)
	}

	h.logger.Info().
		Str("event", "config.watcher_started").
		Str("path", h.configPath).
		Msg("watching config file for changes")

	go h.watchLoop(ctx)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context) {
	// Debounce rapid editor write sequences into one reload.
	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str("event", "config.watcher_stopped").Msg("config watcher stopped")
			if h.watcher != nil {
				_ = h.watcher.Close()
			}
			return

		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				h.logger.Debug().
					Str("event", "config.file_changed").
					Str("op", event.Op.String()).
					Msg("config file changed")
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := h.Reload(ctx); err != nil {
						h.logger.Error().
							Err(err).
							Str("event", "config.auto_reload_failed").
							Msg("automatic config reload failed")
					}
				})
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().
				Err(err).
				Str("event", "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

// Stop stops the config watcher if one is running.
func (h *Holder) Stop() {
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
}

// RegisterListener registers a channel that receives the new configuration
// after every successful reload. The caller owns the channel.
func (h *Holder) RegisterListener(ch chan<- AppConfig) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	h.reloadListeners = append(h.reloadListeners, ch)
}

func (h *Holder) notifyListeners(newCfg AppConfig) {
	h.reloadMu.RLock()
	defer h.reloadMu.RUnlock()
	for _, ch := range h.reloadListeners {
		select {
		case ch <- newCfg:
		default:
			h.logger.Warn().
				Str("event", "config.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}

func (h *Holder) logChanges(old, newCfg AppConfig) {
	if old.EmbyURL != newCfg.EmbyURL {
		h.logger.Info().
			Str("old", platformnet.SanitizeURL(old.EmbyURL)).
			Str("new", platformnet.SanitizeURL(newCfg.EmbyURL)).
			Msg("config changed: EmbyURL")
	}
	if old.EmbyToken != newCfg.EmbyToken {
		h.logger.Info().Msg("config changed: EmbyToken")
	}
	if old.SessionInterval != newCfg.SessionInterval {
		h.logger.Info().
			Dur("old", old.SessionInterval).
			Dur("new", newCfg.SessionInterval).
			Msg("config changed: SessionInterval")
	}
	if old.LibraryInterval != newCfg.LibraryInterval {
		h.logger.Info().
			Dur("old", old.LibraryInterval).
			Dur("new", newCfg.LibraryInterval).
			Msg("config changed: LibraryInterval")
	}
	if old.EPGEnabled != newCfg.EPGEnabled {
		h.logger.Info().
			Bool("old", old.EPGEnabled).
			Bool("new", newCfg.EPGEnabled).
			Msg("config changed: EPGEnabled")
	}
	if old.Listen != newCfg.Listen {
		h.logger.Info().
			Str("old", old.Listen).
			Str("new", newCfg.Listen).
			Msg("config changed: Listen")
	}
}
