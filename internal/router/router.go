// Package router is the single ingress for game commands. It enforces
// mandatory channel tagging, validates the action against the closed wire
// action set, absorbs chat-spam duplicates, and hands the normalized event
// to the owning channel's serialized queue.
package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/aceystream/cardtable/internal/game"
	"github.com/aceystream/cardtable/internal/metrics"
	"github.com/aceystream/cardtable/internal/registry"
)

var (
	// ErrMissingChannel rejects untagged commands. There is deliberately no
	// default channel to fall back to.
	ErrMissingChannel = errors.New("command is missing channelId")
	ErrMissingUser    = errors.New("command is missing userId")

	// ErrDuplicate marks a retransmission swallowed by the debounce window.
	ErrDuplicate = errors.New("duplicate command inside debounce window")
)

// DefaultDebounce absorbs chat-relay double sends without getting in the way
// of deliberate repeated actions.
const DefaultDebounce = 300 * time.Millisecond

// Command is the normalized inbound wire shape shared by the websocket and
// chat ingress paths.
type Command struct {
	ChannelID string  `json:"channelId"`
	UserID    string  `json:"userId"`
	Action    string  `json:"action"`
	Payload   Payload `json:"payload"`
	Timestamp int64   `json:"timestamp,omitempty"` // ms since epoch, informational
}

// Payload carries the action arguments.
type Payload struct {
	Amount int64  `json:"amount,omitempty"`
	Mode   string `json:"mode,omitempty"` // only meaningful on the creating join
}

// Router validates and routes commands.
type Router struct {
	registry *registry.Registry
	clock    quartz.Clock
	logger   zerolog.Logger
	window   time.Duration

	mu   sync.Mutex
	seen map[debounceKey]time.Time
}

type debounceKey struct {
	channelID string
	userID    string
	action    game.Action
}

// New creates a router over the channel registry. window <= 0 selects the
// default debounce.
func New(reg *registry.Registry, clock quartz.Clock, logger zerolog.Logger, window time.Duration) *Router {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Router{
		registry: reg,
		clock:    clock,
		logger:   logger.With().Str("component", "router").Logger(),
		window:   window,
		seen:     make(map[debounceKey]time.Time),
	}
}

// Route validates one command and applies it through the owning channel's
// queue, returning the apply outcome.
func (r *Router) Route(ctx context.Context, cmd Command) (*game.Result, error) {
	if cmd.ChannelID == "" {
		return nil, ErrMissingChannel
	}
	if cmd.UserID == "" {
		return nil, ErrMissingUser
	}

	action := game.Action(cmd.Action)
	if !action.FromWire() {
		return nil, &game.ValidationError{
			Reason: game.ReasonIllegalAction,
			Detail: "unknown action " + cmd.Action,
		}
	}

	if !r.registry.Has(cmd.ChannelID) {
		// Only a join may bring a channel into existence, and the creating
		// join decides the game mode.
		if action != game.ActionJoin {
			return nil, game.ErrUnknownChannel
		}
		mode, err := game.ParseMode(cmd.Payload.Mode)
		if err != nil {
			return nil, &game.ValidationError{
				Reason: game.ReasonIllegalAction,
				Detail: "creating a channel requires a valid mode: " + err.Error(),
			}
		}
		if _, err := r.registry.GetOrCreate(cmd.ChannelID, mode); err != nil {
			return nil, err
		}
	}

	key := debounceKey{channelID: cmd.ChannelID, userID: cmd.UserID, action: action}
	if r.isDuplicate(key) {
		metrics.EventsDebounced.Inc()
		r.logger.Debug().
			Str("channel", cmd.ChannelID).
			Str("user", cmd.UserID).
			Str("action", cmd.Action).
			Msg("Duplicate command dropped")
		return nil, ErrDuplicate
	}

	res, err := r.registry.Dispatch(ctx, game.Event{
		ChannelID: cmd.ChannelID,
		UserID:    cmd.UserID,
		Action:    action,
		Payload:   game.Payload{Amount: cmd.Payload.Amount, Mode: cmd.Payload.Mode},
		Timestamp: r.clock.Now(),
	})
	if err != nil {
		// A rejected command is not recorded: its immediate correction or
		// retry (busy queues invite one) must not bounce off the window.
		return nil, err
	}
	r.record(key)
	return res, nil
}

// Snapshot reads a channel's full view through its serialized queue.
func (r *Router) Snapshot(ctx context.Context, channelID string) (game.View, error) {
	return r.registry.Snapshot(ctx, channelID)
}

// isDuplicate reports whether an identical command was accepted inside the
// window.
func (r *Router) isDuplicate(key debounceKey) bool {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	last, ok := r.seen[key]
	return ok && now.Sub(last) < r.window
}

// record stamps an accepted command so near-identical repeats get dropped.
func (r *Router) record(key debounceKey) {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seen[key] = now

	if len(r.seen) > 4096 {
		for k, v := range r.seen {
			if now.Sub(v) >= r.window {
				delete(r.seen, k)
			}
		}
	}
}
