/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ResolutionsTotal counts playlist resolutions by trigger source.
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framewall_resolutions_total",
		Help: "Playlist resolutions performed, by trigger (tick, mutation, refresh, stale).",
	}, []string{"trigger"})

	// ResolveDuration observes how long one resolution pass takes.
	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "framewall_resolve_duration_seconds",
		Help:    "Duration of one playlist resolution pass.",
		Buckets: prometheus.DefBuckets,
	})

	// TimersArmed counts advance timer arms per display.
	TimersArmed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framewall_advance_timers_armed_total",
		Help: "Advance timers armed.",
	}, []string{"display"})

	// TimersCancelled counts advance timer cancellations per display.
	TimersCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framewall_advance_timers_cancelled_total",
		Help: "Advance timers cancelled before firing.",
	}, []string{"display"})

	// TimersLive tracks currently armed advance timers per display.
	// The sequencer invariant is that this never exceeds 1.
	TimersLive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "framewall_advance_timers_live",
		Help: "Currently armed advance timers.",
	}, []string{"display"})

	// CommandsTotal counts applied commands by action and outcome.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framewall_commands_total",
		Help: "Control commands processed, by action and outcome (applied, noop, ignored).",
	}, []string{"action", "outcome"})

	// TransitionsTotal counts playback transitions by kind.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framewall_transitions_total",
		Help: "Playback transitions, by kind (timer, skip, ended, stale_reset).",
	}, []string{"kind"})

	// TransitionStalls counts video handoffs forced through before the
	// incoming slot reported ready.
	TransitionStalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framewall_transition_stalls_total",
		Help: "Video handoffs completed before the incoming buffer was ready.",
	})

	// RealtimeClients tracks connected realtime clients by kind.
	RealtimeClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "framewall_realtime_clients",
		Help: "Connected realtime clients, by kind (display, console, poll).",
	}, []string{"kind"})

	// APIRequestsTotal counts HTTP requests.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framewall_api_requests_total",
		Help: "HTTP requests served.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes HTTP request latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "framewall_api_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections tracks in-flight HTTP requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "framewall_api_active_connections",
		Help: "In-flight HTTP requests.",
	})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
