// Package metrics exposes the engine's Prometheus instrumentation. All
// metrics are registered with the default registry via promauto and served
// by the admin HTTP endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Channel lifecycle metrics
var (
	// ActiveChannels tracks the number of live channel runners by mode.
	ActiveChannels = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cardtable_active_channels",
			Help: "Live channel runners by game mode",
		},
		[]string{"mode"},
	)

	// ChannelsEvicted counts idle-reaper evictions.
	ChannelsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardtable_channels_evicted_total",
			Help: "Channels torn down by the idle reaper",
		},
	)

	// ChannelsFrozen counts ledger-violation freezes, the alert that pages
	// an operator.
	ChannelsFrozen = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardtable_channels_frozen_total",
			Help: "Channels frozen after a ledger invariant violation",
		},
	)
)

// Event pipeline metrics
var (
	// EventsProcessed counts applied events by action and outcome.
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardtable_events_processed_total",
			Help: "Events applied to channel state machines by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	// EventsRejectedBusy counts events bounced off a full channel queue.
	EventsRejectedBusy = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardtable_events_rejected_busy_total",
			Help: "Events rejected because the channel queue was full",
		},
	)

	// EventsDebounced counts duplicate commands swallowed by the router.
	EventsDebounced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardtable_events_debounced_total",
			Help: "Duplicate commands dropped by the router debounce window",
		},
	)

	// EventApplyDuration tracks how long one event holds its channel runner.
	EventApplyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardtable_event_apply_duration_seconds",
			Help:    "Time spent applying one event inside the channel runner",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"action"},
	)
)

// Round metrics
var (
	// RoundsCompleted counts settled rounds by mode.
	RoundsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardtable_rounds_completed_total",
			Help: "Rounds settled by game mode",
		},
		[]string{"mode"},
	)

	// PotSettled observes the chip size of settled pots.
	PotSettled = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardtable_pot_settled_chips",
			Help:    "Chip size of settled pots",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		},
		[]string{"mode"},
	)
)

// Broadcast metrics
var (
	// Subscribers tracks live broadcast subscribers per channel backlog
	// state.
	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardtable_broadcast_subscribers",
			Help: "Connected broadcast subscribers across all channels",
		},
	)

	// SubscriberOverflows counts subscribers that fell behind and were
	// flagged for resync.
	SubscriberOverflows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardtable_broadcast_overflows_total",
			Help: "Subscriber queues drained after falling behind",
		},
	)
)

// Persistence metrics
var (
	// PersistRetries counts payout save retries.
	PersistRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardtable_persist_retries_total",
			Help: "Retried balance persistence attempts",
		},
	)
)
