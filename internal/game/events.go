package game

import (
	"time"

	"github.com/aceystream/cardtable/internal/deck"
)

// Action is the closed set of commands a channel's state machine accepts.
// Anything outside this set is rejected at the router boundary.
type Action string

const (
	// Table management
	ActionJoin  Action = "join"
	ActionLeave Action = "leave"
	ActionBet   Action = "bet"
	ActionStart Action = "start"

	// Blackjack turns
	ActionHit       Action = "hit"
	ActionStand     Action = "stand"
	ActionDouble    Action = "double"
	ActionSplit     Action = "split"
	ActionInsurance Action = "insurance"

	// Poker turns
	ActionFold  Action = "fold"
	ActionCheck Action = "check"
	ActionCall  Action = "call"
	ActionRaise Action = "raise"

	// ActionTimeout is synthetic: generated by the turn scheduler when a
	// deadline expires and submitted through the same serialized queue as
	// human actions. Never accepted from the wire.
	ActionTimeout Action = "timeout"

	// ActionReset is the admin reset, routed through the serialized queue
	// rather than mutating state from a side channel.
	ActionReset Action = "reset"
)

// wireActions are the actions the router accepts from external callers.
var wireActions = map[Action]bool{
	ActionJoin: true, ActionLeave: true, ActionBet: true, ActionStart: true,
	ActionHit: true, ActionStand: true, ActionDouble: true, ActionSplit: true,
	ActionInsurance: true, ActionFold: true, ActionCheck: true,
	ActionCall: true, ActionRaise: true,
}

// FromWire reports whether the action may arrive from an external event.
func (a Action) FromWire() bool {
	return wireActions[a]
}

// Payload is the typed argument set for an action. Unknown payload fields
// are dropped during decoding; there is no dynamic payload path.
type Payload struct {
	Amount int64  `json:"amount,omitempty"`
	Mode   string `json:"mode,omitempty"` // join only: variant for a fresh channel
}

// Event is a normalized, channel-tagged inbound command.
type Event struct {
	ChannelID string    `json:"channelId"`
	UserID    string    `json:"userId"`
	Action    Action    `json:"action"`
	Payload   Payload   `json:"payload"`
	Timestamp time.Time `json:"timestamp"`

	// deadlineSeq carries the arming sequence of the deadline that produced
	// a synthetic timeout event. A stale sequence makes the event a no-op.
	deadlineSeq uint64
	synthetic   bool
}

// Synthetic reports whether the event was generated inside the engine.
func (e Event) Synthetic() bool { return e.synthetic }

// PlayerView is the per-player slice of an outbound state delta.
type PlayerView struct {
	UserID     string      `json:"userId"`
	Balance    int64       `json:"balance"`
	Hand       []deck.Card `json:"hand"`
	CurrentBet int64       `json:"currentBet"`
	Status     string      `json:"status"`
}

// View is the full outbound representation of a channel's table. The hub
// diffs consecutive views to produce minimal deltas; snapshot reads return
// the view whole.
type View struct {
	ChannelID      string       `json:"channelId"`
	Mode           string       `json:"mode"`
	Phase          string       `json:"phase"`
	Pot            int64        `json:"pot"`
	Players        []PlayerView `json:"players"`
	DealerHand     []deck.Card  `json:"dealerHand,omitempty"`
	CommunityCards []deck.Card  `json:"communityCards,omitempty"`
	TurnUserID     *string      `json:"turnUserId"`
	DeadlineAt     *int64       `json:"deadlineAt"` // unix milliseconds
}

// Result is what applying one event to a channel produced.
type Result struct {
	View          View
	Announcements []string // plain-text lines for the chat collaborator
	LedgerChanged bool
	RoundComplete bool
	SettledPot    int64 // chips settled when RoundComplete
	Evictable     bool // phase returned to WAITING
}
