// Package hub fans out per-channel state deltas to subscribers. Each
// subscriber owns a bounded queue; a consumer that falls behind is never
// allowed to stall the channel runner, it is marked stale and told to
// resync instead.
package hub

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/aceystream/cardtable/internal/game"
	"github.com/aceystream/cardtable/internal/metrics"
)

// Frame is one outbound message to a subscriber.
type Frame struct {
	Type          string         `json:"type"` // "snapshot", "delta" or "resync_required"
	ChannelID     string         `json:"channelId"`
	Delta         map[string]any `json:"delta,omitempty"`
	View          *game.View     `json:"view,omitempty"`
	Announcements []string       `json:"announcements,omitempty"`
}

// Subscription is one consumer's handle on a channel's feed. Frames arrive
// on C; Close releases the slot.
type Subscription struct {
	C <-chan Frame

	hub       *Hub
	channelID string
	id        uint64
	ch        chan Frame
	stale     bool
}

// Close detaches the subscription. Safe to call once; the frame channel is
// closed so range loops terminate.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s.channelID, s.id)
}

// DefaultBuffer is how many frames a subscriber may fall behind before it
// is flagged for resync.
const DefaultBuffer = 32

type feed struct {
	subs map[uint64]*Subscription
	last *game.View
}

// Hub routes game results to channel subscribers.
type Hub struct {
	logger zerolog.Logger
	buffer int

	mu     sync.Mutex
	nextID uint64
	feeds  map[string]*feed
	closed bool
}

// New builds a hub. buffer <= 0 selects DefaultBuffer.
func New(logger zerolog.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		logger: logger.With().Str("component", "hub").Logger(),
		buffer: buffer,
		feeds:  make(map[string]*feed),
	}
}

// Subscribe attaches a new consumer to channelID. The first frame a
// subscriber receives is always a full snapshot once the channel has
// published at least one view.
func (h *Hub) Subscribe(channelID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, ok := h.feeds[channelID]
	if !ok {
		f = &feed{subs: make(map[uint64]*Subscription)}
		h.feeds[channelID] = f
	}
	h.nextID++
	ch := make(chan Frame, h.buffer)
	sub := &Subscription{
		C:         ch,
		hub:       h,
		channelID: channelID,
		id:        h.nextID,
		ch:        ch,
	}
	if h.closed {
		close(ch)
		return sub
	}
	f.subs[sub.id] = sub
	metrics.Subscribers.Inc()

	if f.last != nil {
		v := *f.last
		ch <- Frame{Type: "snapshot", ChannelID: channelID, View: &v}
	}
	return sub
}

func (h *Hub) unsubscribe(channelID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, ok := h.feeds[channelID]
	if !ok {
		return
	}
	sub, ok := f.subs[id]
	if !ok {
		return
	}
	delete(f.subs, id)
	close(sub.ch)
	metrics.Subscribers.Dec()
	if len(f.subs) == 0 && f.last == nil {
		delete(h.feeds, channelID)
	}
}

// Publish delivers one apply result to every subscriber of channelID. It
// never blocks: a subscriber whose queue is full loses the frame and is
// flagged, and receives a resync_required frame as soon as its queue has
// room again. Called from the channel runner goroutine.
func (h *Hub) Publish(channelID string, res *game.Result) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	f, ok := h.feeds[channelID]
	if !ok {
		f = &feed{subs: make(map[uint64]*Subscription)}
		h.feeds[channelID] = f
	}

	view := res.View
	frame := Frame{
		Type:          "delta",
		ChannelID:     channelID,
		Delta:         diffViews(f.last, &view),
		Announcements: res.Announcements,
	}
	if f.last == nil {
		v := view
		frame = Frame{Type: "snapshot", ChannelID: channelID, View: &v, Announcements: res.Announcements}
	}
	f.last = &view

	for _, sub := range f.subs {
		if sub.stale {
			v := view
			select {
			case sub.ch <- Frame{Type: "resync_required", ChannelID: channelID, View: &v}:
				sub.stale = false
			default:
			}
			continue
		}
		select {
		case sub.ch <- frame:
		default:
			sub.stale = true
			metrics.SubscriberOverflows.Inc()
			h.logger.Warn().
				Str("channel_id", channelID).
				Uint64("subscriber", sub.id).
				Msg("subscriber queue full, flagging for resync")
		}
	}
}

// Drop forgets a channel's feed and disconnects its subscribers. Called
// when the registry evicts the channel.
func (h *Hub) Drop(channelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, ok := h.feeds[channelID]
	if !ok {
		return
	}
	for id, sub := range f.subs {
		delete(f.subs, id)
		close(sub.ch)
		metrics.Subscribers.Dec()
	}
	delete(h.feeds, channelID)
}

// Close disconnects everything. New subscriptions after Close receive an
// already-closed frame channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for channelID, f := range h.feeds {
		for id, sub := range f.subs {
			delete(f.subs, id)
			close(sub.ch)
			metrics.Subscribers.Dec()
		}
		delete(h.feeds, channelID)
	}
}
