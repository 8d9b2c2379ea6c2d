// Package reaper evicts channels that have sat idle in the waiting phase
// past their TTL. Eviction itself is decided on the channel runner, so the
// sweep can never tear down a table mid-round.
package reaper

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/aceystream/cardtable/internal/hub"
	"github.com/aceystream/cardtable/internal/registry"
)

// DefaultInterval is how often the sweep runs.
const DefaultInterval = time.Minute

// Reaper periodically scans the registry for evictable channels.
type Reaper struct {
	registry *registry.Registry
	hub      *hub.Hub
	clock    quartz.Clock
	logger   zerolog.Logger
	ttl      time.Duration
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a reaper. hub may be nil when no broadcast fan-out exists.
// interval <= 0 selects DefaultInterval; ttl <= 0 disables reaping.
func New(reg *registry.Registry, h *hub.Hub, clock quartz.Clock, logger zerolog.Logger, ttl, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reaper{
		registry: reg,
		hub:      h,
		clock:    clock,
		logger:   logger.With().Str("component", "reaper").Logger(),
		ttl:      ttl,
		interval: interval,
	}
}

// Start launches the sweep loop. No-op when the TTL is disabled.
func (r *Reaper) Start(ctx context.Context) {
	if r.ttl <= 0 {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	ticker := r.clock.TickerFunc(ctx, r.interval, func() error {
		r.Sweep(ctx)
		return nil
	}, "reaper")
	go func() {
		defer close(r.done)
		_ = ticker.Wait()
	}()
}

// Stop halts the sweep loop and waits for it to exit.
func (r *Reaper) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

// Sweep evicts every channel idle in WAITING for longer than the TTL. A
// channel that got busy between the scan and the evict request simply
// declines. Returns how many channels were evicted.
func (r *Reaper) Sweep(ctx context.Context) int {
	now := r.clock.Now().UnixMilli()
	cutoff := r.ttl.Milliseconds()

	evicted := 0
	for _, info := range r.registry.List() {
		if !info.Evictable || now-info.LastActivity <= cutoff {
			continue
		}
		ok, err := r.registry.TryEvict(ctx, info.ChannelID)
		if err != nil || !ok {
			continue
		}
		evicted++
		if r.hub != nil {
			r.hub.Drop(info.ChannelID)
		}
		r.logger.Info().
			Str("channel_id", info.ChannelID).
			Int64("idle_ms", now-info.LastActivity).
			Msg("evicted idle channel")
	}
	return evicted
}
