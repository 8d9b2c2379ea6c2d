package game

import (
	"time"

	"github.com/aceystream/cardtable/internal/deck"
)

// Status tracks what a seated player may still do this round.
type Status int

const (
	StatusActive Status = iota
	StatusFolded
	StatusAllIn
	StatusBusted
	StatusSittingOut
)

// String returns the wire representation of a status
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusFolded:
		return "folded"
	case StatusAllIn:
		return "allin"
	case StatusBusted:
		return "busted"
	case StatusSittingOut:
		return "sittingOut"
	default:
		return "unknown"
	}
}

// Hand is one playable hand in front of a player. Blackjack players hold a
// second hand after a split; poker players always hold exactly one.
type Hand struct {
	Cards   []deck.Card
	Bet     int64
	Stood   bool
	Doubled bool
	Split   bool // hand was created by splitting a pair
}

// Player is one seat at a channel's table. The balance is the authoritative
// in-round copy, loaded from the persistence collaborator when the player
// joins and persisted as a delta at every payout.
type Player struct {
	UserID       string
	Balance      int64
	Hands        []*Hand
	ActiveHand   int // blackjack: index of the hand currently acting
	Insurance    int64
	StreetBet    int64 // poker: uncollected wager for the current street
	Contributed  int64 // total wagered this round, across all streets/hands
	Status       Status
	Departed     bool // left mid-round; the seat is released at the boundary
	LastActionAt time.Time
}

// InRound reports whether the player still holds a claim on the pot.
func (p *Player) InRound() bool {
	return p.Status == StatusActive || p.Status == StatusAllIn
}

// CanAct reports whether the turn scheduler may give this player a turn.
func (p *Player) CanAct() bool {
	return p.Status == StatusActive
}

// HoleCards returns the player's poker hand.
func (p *Player) HoleCards() []deck.Card {
	if len(p.Hands) == 0 {
		return nil
	}
	return p.Hands[0].Cards
}

// resetForRound clears round-scoped state while carrying the balance forward.
func (p *Player) resetForRound() {
	p.Hands = nil
	p.ActiveHand = 0
	p.Insurance = 0
	p.StreetBet = 0
	p.Contributed = 0
	if p.Status != StatusSittingOut && !p.Departed {
		p.Status = StatusActive
	}
}
