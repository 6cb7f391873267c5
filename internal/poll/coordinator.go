// SPDX-License-Identifier: MIT

// Package poll runs the periodic upstream fetch loops and hands each fresh
// snapshot to subscribers.
package poll

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/embywatch/internal/emby"
	"github.com/ManuGH/embywatch/internal/log"
	"github.com/ManuGH/embywatch/internal/metrics"
	"github.com/ManuGH/embywatch/internal/telemetry"
)

// FetchFunc retrieves one snapshot from the upstream.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Subscriber consumes a successful snapshot. Subscribers run synchronously
// on the poll goroutine, in registration order; the context carries the run id.
type Subscriber[T any] func(ctx context.Context, data T)

// Coordinator periodically fetches a snapshot and retains the last good one.
// A failed fetch never discards previously delivered data, and an upstream
// authentication failure latches the loop until Rearm is called.
type Coordinator[T any] struct {
	kind   string
	fetch  FetchFunc[T]
	logger zerolog.Logger

	mu          sync.RWMutex
	interval    time.Duration
	data        T
	hasData     bool
	lastSuccess time.Time
	lastErr     error
	latched     bool
	subscribers []Subscriber[T]

	refreshCh  chan struct{}
	intervalCh chan struct{}
}

// New creates a coordinator for the given poll kind ("sessions", "library").
func New[T any](kind string, interval time.Duration, fetch FetchFunc[T]) *Coordinator[T] {
	return &Coordinator[T]{
		kind:       kind,
		fetch:      fetch,
		interval:   interval,
		logger:     log.WithComponent("poll").With().Str("kind", kind).Logger(),
		refreshCh:  make(chan struct{}, 1),
		intervalCh: make(chan struct{}, 1),
	}
}

// Subscribe registers a consumer for successful snapshots. Register all
// subscribers before calling Run.
func (c *Coordinator[T]) Subscribe(fn Subscriber[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// Run blocks until the context is canceled. The first fetch happens
// immediately so consumers have data right after startup.
func (c *Coordinator[T]) Run(ctx context.Context) error {
	c.logger.Info().
		Str("event", "poll.start").
		Dur("interval", c.Interval()).
		Msg("poll loop started")

	ticker := time.NewTicker(c.Interval())
	defer ticker.Stop()

	c.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Str("event", "poll.stop").Msg("poll loop stopped")
			return nil
		case <-ticker.C:
			c.runOnce(ctx)
		case <-c.refreshCh:
			c.runOnce(ctx)
		case <-c.intervalCh:
			ticker.Reset(c.Interval())
			c.logger.Info().
				Str("event", "poll.interval_changed").
				Dur("interval", c.Interval()).
				Msg("poll interval updated")
		}
	}
}

// RequestRefresh schedules an immediate poll run. Never blocks; concurrent
// requests coalesce into one run.
func (c *Coordinator[T]) RequestRefresh() {
	select {
	case c.refreshCh <- struct{}{}:
		c.logger.Debug().Str("event", "poll.refresh_requested").Msg("manual refresh requested")
	default:
	}
}

// SetInterval updates the poll cadence. Safe to call while Run is active.
func (c *Coordinator[T]) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}

	c.mu.Lock()
	changed := d != c.interval
	c.interval = d
	c.mu.Unlock()

	if !changed {
		return
	}
	select {
	case c.intervalCh <- struct{}{}:
	default:
	}
}

// Interval returns the current poll cadence.
func (c *Coordinator[T]) Interval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interval
}

// Snapshot returns the last successful data, the time it was fetched and
// whether any fetch has succeeded yet.
func (c *Coordinator[T]) Snapshot() (T, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data, c.lastSuccess, c.hasData
}

// LastError returns the error of the most recent run, nil after a success.
func (c *Coordinator[T]) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// AuthLatched reports whether polling is suspended after an upstream
// authentication failure.
func (c *Coordinator[T]) AuthLatched() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latched
}

// Rearm clears the auth latch and schedules an immediate run, typically
// after a configuration reload delivered new credentials.
func (c *Coordinator[T]) Rearm() {
	c.mu.Lock()
	wasLatched := c.latched
	c.latched = false
	c.mu.Unlock()

	if wasLatched {
		c.logger.Info().Str("event", "poll.rearmed").Msg("auth latch cleared")
	}
	c.RequestRefresh()
}

func (c *Coordinator[T]) runOnce(ctx context.Context) {
	if c.AuthLatched() {
		metrics.RecordPollRun(c.kind, "skipped", 0)
		c.logger.Debug().
			Str("event", "poll.skipped").
			Msg("poll skipped, auth latched")
		return
	}

	runID := uuid.New().String()
	ctx = log.ContextWithRunID(ctx, runID)

	tracer := telemetry.Tracer("embywatch.poll")
	ctx, span := tracer.Start(ctx, "embywatch.poll."+c.kind,
		trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	start := time.Now()
	data, err := c.fetch(ctx)
	elapsed := time.Since(start)

	span.SetAttributes(telemetry.PollAttributes(c.kind, runID, elapsed.Milliseconds())...)

	if err != nil {
		class := emby.ErrorClass(err)
		span.SetAttributes(telemetry.ErrorAttributes(err, class)...)
		metrics.RecordPollRun(c.kind, "error", elapsed.Seconds())

		c.mu.Lock()
		c.lastErr = err
		if errors.Is(err, emby.ErrAuth) {
			c.latched = true
		}
		latched := c.latched
		c.mu.Unlock()

		if latched {
			metrics.IncAuthFailure()
			c.logger.Error().
				Err(err).
				Str("event", "poll.auth_latched").
				Str(log.FieldRunID, runID).
				Msg("authentication failed, polling suspended until reload")
			return
		}

		c.logger.Warn().
			Err(err).
			Str("event", "poll.fetch_failed").
			Str(log.FieldRunID, runID).
			Str("class", class).
			Dur("elapsed", elapsed).
			Msg("poll fetch failed, keeping last snapshot")
		return
	}

	c.mu.Lock()
	c.data = data
	c.hasData = true
	c.lastSuccess = time.Now()
	c.lastErr = nil
	subs := make([]Subscriber[T], len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	metrics.RecordPollRun(c.kind, "success", elapsed.Seconds())
	c.logger.Debug().
		Str("event", "poll.success").
		Str(log.FieldRunID, runID).
		Dur("elapsed", elapsed).
		Msg("poll completed")

	for _, fn := range subs {
		fn(ctx, data)
	}
}
