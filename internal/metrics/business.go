// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Poll metrics
	pollRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embywatch_poll_runs_total",
		Help: "Poll runs by kind and outcome",
	}, []string{"kind", "result"}) // kind=sessions|library, result=success|error|skipped

	pollDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "embywatch_poll_duration_seconds",
		Help:    "Time spent fetching one poll run",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// Entity metrics
	entitiesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embywatch_entities",
		Help: "Registered session entities (including unavailable ones)",
	})

	entitiesAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embywatch_entities_available",
		Help: "Entities backed by a session in the last poll",
	})

	sessionsPlaying = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embywatch_sessions_playing",
		Help: "Sessions currently playing or paused",
	})

	reconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embywatch_reconcile_total",
		Help: "Entity reconciliation actions",
	}, []string{"action"}) // action=created|updated|marked_unavailable

	// EPG metrics
	epgLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embywatch_epg_lookups_total",
		Help: "EPG refresh tasks by source of the resolved program",
	}, []string{"source"}) // source=program_id|channel_search|none|error

	epgThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "embywatch_epg_throttled_total",
		Help: "EPG refresh tasks dropped by the per-entity throttle",
	})

	// Command metrics
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embywatch_commands_total",
		Help: "Playback commands relayed upstream by outcome",
	}, []string{"command", "result"}) // result=success|error

	// Operational metrics
	authFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "embywatch_auth_failures_total",
		Help: "Upstream authentication failures (each trips the poll latch)",
	})

	configReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embywatch_config_reloads_total",
		Help: "Configuration reloads by outcome",
	}, []string{"result"}) // result=success|error

	exportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embywatch_state_exports_total",
		Help: "State file exports by outcome",
	}, []string{"result"}) // result=success|error
)

func RecordPollRun(kind, result string, seconds float64) {
	pollRunsTotal.WithLabelValues(kind, result).Inc()
	if result != "skipped" {
		pollDurationSeconds.WithLabelValues(kind).Observe(seconds)
	}
}

func RecordEntityCounts(total, available, playing int) {
	entitiesTotal.Set(float64(total))
	entitiesAvailable.Set(float64(available))
	sessionsPlaying.Set(float64(playing))
}

func IncReconcile(action string) { reconcileTotal.WithLabelValues(action).Inc() }

func IncEPGLookup(source string) { epgLookupsTotal.WithLabelValues(source).Inc() }
func IncEPGThrottled()           { epgThrottledTotal.Inc() }

func IncCommand(command, result string) {
	commandsTotal.WithLabelValues(command, result).Inc()
}

func IncAuthFailure() { authFailuresTotal.Inc() }

func IncConfigReload(result string) { configReloadsTotal.WithLabelValues(result).Inc() }

func IncExport(result string) { exportsTotal.WithLabelValues(result).Inc() }
