// Package registry owns the channel table: one state machine, one runner
// goroutine and one bounded event queue per channel. All game state is
// reached exclusively through a channel's serialized queue, which is what
// makes every mutation a single-writer operation without per-field locking.
package registry

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/aceystream/cardtable/internal/game"
	"github.com/aceystream/cardtable/internal/metrics"
	"github.com/aceystream/cardtable/internal/randutil"
)

// ErrModeMismatch is returned when a channel already runs a different game
// mode than the one requested.
var ErrModeMismatch = errors.New("channel is bound to a different game mode")

// ResultFunc receives every successful apply outcome, still on the owning
// runner goroutine. Implementations must not block; the broadcast hub hands
// the result off to per-subscriber queues.
type ResultFunc func(channelID string, res *game.Result)

// Options configures a Registry.
type Options struct {
	Store      game.BalanceStore
	Rules      map[game.Mode]game.Rules
	QueueDepth int
	Clock      quartz.Clock
	Logger     zerolog.Logger
	OnResult   ResultFunc
}

// ChannelInfo is the lightweight listing row for admin surfaces and the
// idle reaper.
type ChannelInfo struct {
	ChannelID    string `json:"channelId"`
	Mode         string `json:"mode"`
	Phase        string `json:"phase"`
	Players      int    `json:"players"`
	Frozen       bool   `json:"frozen"`
	LastActivity int64  `json:"lastActivityMs"`
	Evictable    bool   `json:"evictable"`
}

// Registry tracks all live channels.
type Registry struct {
	opts   Options
	logger zerolog.Logger

	mu       sync.RWMutex
	channels map[string]*runner

	creating singleflight.Group

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an empty registry.
func New(opts Options) *Registry {
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 64
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "registry").Logger(),
		channels: make(map[string]*runner),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// GetOrCreate returns the channel runner, creating it on first use. Creation
// is deduplicated so a burst of first events for the same channel builds
// exactly one runner.
func (r *Registry) GetOrCreate(channelID string, mode game.Mode) (*runner, error) {
	r.mu.RLock()
	c, ok := r.channels[channelID]
	r.mu.RUnlock()
	if ok {
		if c.mode != mode {
			return nil, fmt.Errorf("%w: channel %s runs %s", ErrModeMismatch, channelID, c.mode)
		}
		return c, nil
	}

	v, err, _ := r.creating.Do(channelID, func() (any, error) {
		r.mu.RLock()
		c, ok := r.channels[channelID]
		r.mu.RUnlock()
		if ok {
			return c, nil
		}

		c = r.newRunner(channelID, mode)
		r.mu.Lock()
		r.channels[channelID] = c
		r.mu.Unlock()

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			c.run(r.baseCtx)
		}()

		metrics.ActiveChannels.WithLabelValues(mode.String()).Inc()
		r.logger.Info().Str("channel", channelID).Stringer("mode", mode).Msg("Channel created")
		return c, nil
	})
	if err != nil {
		return nil, err
	}

	c = v.(*runner)
	if c.mode != mode {
		return nil, fmt.Errorf("%w: channel %s runs %s", ErrModeMismatch, channelID, c.mode)
	}
	return c, nil
}

// Has reports whether a channel is live.
func (r *Registry) Has(channelID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[channelID]
	return ok
}

// Lookup returns an existing runner without creating one.
func (r *Registry) Lookup(channelID string) (*runner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.channels[channelID]
	return c, ok
}

// Dispatch routes an event to its channel's queue and waits for the apply
// outcome. game.ErrUnknownChannel is returned for channels that were never
// created; game.ErrChannelBusy when the queue is full.
func (r *Registry) Dispatch(ctx context.Context, ev game.Event) (*game.Result, error) {
	c, ok := r.Lookup(ev.ChannelID)
	if !ok {
		return nil, game.ErrUnknownChannel
	}
	return c.dispatch(ctx, ev)
}

// Snapshot returns a consistent view of the channel, produced on its own
// runner so it can never observe a half-applied event.
func (r *Registry) Snapshot(ctx context.Context, channelID string) (game.View, error) {
	c, ok := r.Lookup(channelID)
	if !ok {
		return game.View{}, game.ErrUnknownChannel
	}
	return c.snapshot(ctx)
}

// List returns info rows for every live channel.
func (r *Registry) List() []ChannelInfo {
	r.mu.RLock()
	runners := make([]*runner, 0, len(r.channels))
	for _, c := range r.channels {
		runners = append(runners, c)
	}
	r.mu.RUnlock()

	infos := make([]ChannelInfo, 0, len(runners))
	for _, c := range runners {
		infos = append(infos, c.info())
	}
	return infos
}

// TryEvict asks the runner to shut down if the channel is idle in WAITING.
// The runner itself decides, so the check and the teardown cannot race an
// in-flight round.
func (r *Registry) TryEvict(ctx context.Context, channelID string) (bool, error) {
	c, ok := r.Lookup(channelID)
	if !ok {
		return false, game.ErrUnknownChannel
	}

	evicted, err := c.tryEvict(ctx)
	if err != nil || !evicted {
		return evicted, err
	}

	r.mu.Lock()
	delete(r.channels, channelID)
	r.mu.Unlock()

	metrics.ActiveChannels.WithLabelValues(c.mode.String()).Dec()
	metrics.ChannelsEvicted.Inc()
	r.logger.Info().Str("channel", channelID).Msg("Channel evicted")
	return true, nil
}

// Close tears down every runner and waits for them to drain.
func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()

	r.mu.Lock()
	for id, c := range r.channels {
		metrics.ActiveChannels.WithLabelValues(c.mode.String()).Dec()
		delete(r.channels, id)
	}
	r.mu.Unlock()
}

func (r *Registry) newRunner(channelID string, mode game.Mode) *runner {
	rules, ok := r.opts.Rules[mode]
	if !ok {
		rules = game.DefaultRules()
	}

	// Seed each channel's deck independently so one table's shuffle order
	// says nothing about another's.
	u := uuid.New()
	seed := int64(binary.BigEndian.Uint64(u[:8]))

	c := &runner{
		id:       channelID,
		mode:     mode,
		queue:    make(chan envelope, r.opts.QueueDepth),
		clock:    r.opts.Clock,
		logger:   r.logger.With().Str("channel", channelID).Logger(),
		onResult: r.opts.OnResult,
	}

	state := game.NewChannelState(channelID, mode, randutil.New(seed), r.opts.Clock.Now())
	c.machine = game.NewMachine(state, r.opts.Store, rules, r.opts.Clock, r.logger, c.submitSynthetic)
	c.storeInfo(state.Snapshot(), false)
	return c
}
