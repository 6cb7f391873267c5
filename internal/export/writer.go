// SPDX-License-Identifier: MIT

// Package export writes the daemon's entity state to a JSON file so
// file-based consumers (dashboards, scripts) can read it without touching
// the API.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/ManuGH/embywatch/internal/bridge"
	"github.com/ManuGH/embywatch/internal/log"
	"github.com/ManuGH/embywatch/internal/metrics"
)

// Source is the entity registry view the writer snapshots.
type Source interface {
	Entities() []bridge.Entity
	Counts() (total, available, playing int)
}

// Config carries the writer's settings.
type Config struct {
	// Path is the target file. The writer replaces it atomically.
	Path string
	// Interval is the minimum spacing between two writes. Changes inside
	// the window coalesce into one trailing write.
	Interval time.Duration
	Source   Source
	Version  string
}

// Writer subscribes to entity state changes and persists snapshots.
// Write failures are logged and counted, never fatal: the export file is
// an output artifact, losing one write only delays freshness.
type Writer struct {
	path     string
	interval time.Duration
	source   Source
	version  string
	logger   zerolog.Logger
	dirty    chan struct{}
}

// NewWriter creates a writer. Interval zero or negative falls back to 30s.
func NewWriter(cfg Config) *Writer {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Writer{
		path:     cfg.Path,
		interval: interval,
		source:   cfg.Source,
		version:  cfg.Version,
		logger:   log.WithComponent("export"),
		dirty:    make(chan struct{}, 1),
	}
}

// Notify marks the state dirty. Safe from any goroutine, never blocks;
// wired as an engine publish listener.
func (w *Writer) Notify(bridge.Entity) {
	select {
	case w.dirty <- struct{}{}:
	default:
	}
}

// Run services dirty signals until ctx is cancelled. The first change
// writes immediately; further changes inside the interval coalesce into
// one trailing write. A last snapshot is flushed on shutdown when changes
// are still pending.
func (w *Writer) Run(ctx context.Context) error {
	w.logger.Info().
		Str("event", "export.started").
		Str("path", w.path).
		Dur("min_interval", w.interval).
		Msg("state export active")

	timer := time.NewTimer(w.interval)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	var last time.Time
	pending := false

	for {
		select {
		case <-ctx.Done():
			select {
			case <-w.dirty:
				pending = true
			default:
			}
			if pending {
				w.export()
			}
			w.logger.Info().Str("event", "export.stopped").Msg("state export stopped")
			return nil

		case <-w.dirty:
			if pending {
				continue
			}
			if since := time.Since(last); since >= w.interval {
				w.export()
				last = time.Now()
			} else {
				pending = true
				timer.Reset(w.interval - since)
			}

		case <-timer.C:
			pending = false
			w.export()
			last = time.Now()
		}
	}
}

func (w *Writer) export() {
	if err := w.WriteOnce(); err != nil {
		metrics.IncExport("error")
		w.logger.Error().
			Err(err).
			Str("event", "export.failed").
			Str("path", w.path).
			Msg("state export failed")
		return
	}
	metrics.IncExport("success")
	w.logger.Debug().
		Str("event", "export.written").
		Str("path", w.path).
		Msg("state exported")
}

// State is the export file layout.
type State struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Version     string        `json:"version"`
	Stats       Stats         `json:"stats"`
	Entities    []EntityState `json:"entities"`
}

// Stats mirrors the engine's entity counts.
type Stats struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Playing   int `json:"playing"`
}

// EntityState is one exported entity.
type EntityState struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	SessionID  string         `json:"session_id"`
	Available  bool           `json:"available"`
	State      string         `json:"state"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Attributes map[string]any `json:"attributes"`
}

// WriteOnce snapshots the source and atomically replaces the state file.
func (w *Writer) WriteOnce() error {
	entities := w.source.Entities()
	total, available, playing := w.source.Counts()

	state := State{
		GeneratedAt: time.Now().UTC(),
		Version:     w.version,
		Stats:       Stats{Total: total, Available: available, Playing: playing},
		Entities:    make([]EntityState, 0, len(entities)),
	}
	for i := range entities {
		e := &entities[i]
		state.Entities = append(state.Entities, EntityState{
			ID:         e.ID,
			Name:       e.Name,
			SessionID:  e.SessionID,
			Available:  e.Available,
			State:      string(e.Playback.State),
			UpdatedAt:  e.UpdatedAt.UTC(),
			Attributes: e.Attributes(),
		})
	}

	// renameio handles temp file creation, fsync, atomic rename and
	// cleanup on error.
	pendingFile, err := renameio.NewPendingFile(w.path)
	if err != nil {
		return fmt.Errorf("create pending state file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			w.logger.Debug().Err(err).Msg("cleanup pending state file")
		}
	}()

	enc := json.NewEncoder(pendingFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(state); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace state file: %w", err)
	}

	return nil
}
