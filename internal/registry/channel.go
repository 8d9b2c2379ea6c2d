package registry

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/aceystream/cardtable/internal/game"
	"github.com/aceystream/cardtable/internal/metrics"
)

type envelopeKind int

const (
	kindEvent envelopeKind = iota
	kindSnapshot
	kindEvict
)

type applyReply struct {
	res *game.Result
	err error
}

// envelope is the only thing that crosses into a runner goroutine.
type envelope struct {
	kind    envelopeKind
	event   game.Event
	reply   chan applyReply // kindEvent; nil for fire-and-forget
	viewCh  chan game.View  // kindSnapshot
	evictCh chan bool       // kindEvict
}

// runner owns one channel: its machine, its queue and its goroutine. Nothing
// else may touch the machine.
type runner struct {
	id      string
	mode    game.Mode
	machine *game.Machine
	queue   chan envelope

	clock    quartz.Clock
	logger   zerolog.Logger
	onResult ResultFunc

	closed atomic.Bool

	infoMu sync.RWMutex
	cached ChannelInfo

	wasFrozen bool
}

// dispatch queues one event and waits for its outcome. The queue send never
// blocks: a full queue is immediate backpressure, not a stall.
func (c *runner) dispatch(ctx context.Context, ev game.Event) (*game.Result, error) {
	if c.closed.Load() {
		return nil, game.ErrUnknownChannel
	}

	env := envelope{kind: kindEvent, event: ev, reply: make(chan applyReply, 1)}
	select {
	case c.queue <- env:
	default:
		metrics.EventsRejectedBusy.Inc()
		return nil, game.ErrChannelBusy
	}

	select {
	case rep := <-env.reply:
		return rep.res, rep.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// submitSynthetic is handed to the machine's turn scheduler: fired deadlines
// re-enter the queue like any other event. The send blocks rather than drops
// so a briefly full queue cannot lose a turn timeout.
func (c *runner) submitSynthetic(ev game.Event) {
	if c.closed.Load() {
		return
	}
	c.queue <- envelope{kind: kindEvent, event: ev}
}

func (c *runner) snapshot(ctx context.Context) (game.View, error) {
	env := envelope{kind: kindSnapshot, viewCh: make(chan game.View, 1)}
	select {
	case c.queue <- env:
	case <-ctx.Done():
		return game.View{}, ctx.Err()
	}
	select {
	case v := <-env.viewCh:
		return v, nil
	case <-ctx.Done():
		return game.View{}, ctx.Err()
	}
}

func (c *runner) tryEvict(ctx context.Context) (bool, error) {
	env := envelope{kind: kindEvict, evictCh: make(chan bool, 1)}
	select {
	case c.queue <- env:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case ok := <-env.evictCh:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (c *runner) info() ChannelInfo {
	c.infoMu.RLock()
	defer c.infoMu.RUnlock()
	return c.cached
}

func (c *runner) storeInfo(v game.View, frozen bool) {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	c.cached = ChannelInfo{
		ChannelID:    c.id,
		Mode:         c.mode.String(),
		Phase:        v.Phase,
		Players:      len(v.Players),
		Frozen:       frozen,
		LastActivity: c.clock.Now().UnixMilli(),
		Evictable:    v.Phase == game.Waiting.String() && !frozen,
	}
}

// run is the channel's single writer. It applies queued envelopes strictly
// in order until eviction or shutdown.
func (c *runner) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.closed.Store(true)
			c.drain()
			return

		case env := <-c.queue:
			switch env.kind {
			case kindEvent:
				c.applyEvent(ctx, env)

			case kindSnapshot:
				env.viewCh <- c.machine.State().Snapshot()

			case kindEvict:
				// Only an idle table may go; a round in flight or a frozen
				// channel awaiting an operator stays.
				idle := c.machine.State().Phase == game.Waiting && !c.machine.Frozen()
				if idle {
					c.closed.Store(true)
				}
				env.evictCh <- idle
				if idle {
					c.drain()
					return
				}
			}
		}
	}
}

func (c *runner) applyEvent(ctx context.Context, env envelope) {
	start := c.clock.Now()
	res, err := c.machine.Apply(ctx, env.event)
	metrics.EventApplyDuration.
		WithLabelValues(string(env.event.Action)).
		Observe(c.clock.Since(start).Seconds())

	if err != nil {
		metrics.EventsProcessed.WithLabelValues(string(env.event.Action), "rejected").Inc()
		if c.machine.Frozen() && !c.wasFrozen {
			c.wasFrozen = true
			metrics.ChannelsFrozen.Inc()
			c.storeInfoFrozen()
		}
		if env.reply != nil {
			env.reply <- applyReply{err: err}
		}
		return
	}

	metrics.EventsProcessed.WithLabelValues(string(env.event.Action), "ok").Inc()
	if c.machine.Frozen() != c.wasFrozen {
		c.wasFrozen = c.machine.Frozen()
	}
	c.storeInfo(res.View, c.machine.Frozen())

	if res.RoundComplete {
		metrics.RoundsCompleted.WithLabelValues(c.mode.String()).Inc()
		metrics.PotSettled.WithLabelValues(c.mode.String()).Observe(float64(res.SettledPot))
	}

	if env.reply != nil {
		env.reply <- applyReply{res: res}
	}
	if c.onResult != nil {
		c.onResult(c.id, res)
	}
}

func (c *runner) storeInfoFrozen() {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	c.cached.Frozen = true
	c.cached.Evictable = false
}

// drain answers whatever was queued behind a teardown so no caller hangs on
// a reply that will never come.
func (c *runner) drain() {
	for {
		select {
		case env := <-c.queue:
			switch env.kind {
			case kindEvent:
				if env.reply != nil {
					env.reply <- applyReply{err: game.ErrUnknownChannel}
				}
			case kindSnapshot:
				env.viewCh <- c.machine.State().Snapshot()
			case kindEvict:
				env.evictCh <- false
			}
		default:
			return
		}
	}
}
