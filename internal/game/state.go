package game

import (
	rand "math/rand/v2"
	"time"

	"github.com/aceystream/cardtable/internal/deck"
)

// ChannelState owns everything one channel's table knows. It is created by
// the registry, mutated only by its own state machine on the channel's
// serialized queue, and never shared across channels.
type ChannelState struct {
	ChannelID string
	Mode      Mode
	Phase     Phase

	Players []*Player          // insertion order = seating order
	byUser  map[string]*Player // index into Players

	DealerHand     []deck.Card
	CommunityCards []deck.Card

	Pot          int64 // collected wagers
	TotalWagered int64 // running total wagered this round

	TurnOrder []string
	TurnIndex int

	// DeadlineAt is the wall-clock expiry of the single armed turn deadline,
	// zero when none is armed. deadlineSeq increments on every arm/cancel so
	// a timeout that lost the race against a human action becomes a no-op.
	DeadlineAt  time.Time
	deadlineSeq uint64

	// Poker betting state for the current street.
	CurrentBet int64
	MinRaise   int64

	Deck           *deck.Deck
	LastActivityAt time.Time
}

// NewChannelState creates a table with a freshly shuffled deck.
func NewChannelState(channelID string, mode Mode, rng *rand.Rand, now time.Time) *ChannelState {
	return &ChannelState{
		ChannelID:      channelID,
		Mode:           mode,
		Phase:          Waiting,
		byUser:         make(map[string]*Player),
		Deck:           deck.New(rng),
		TurnIndex:      -1,
		LastActivityAt: now,
	}
}

// PlayerByID returns the seated player for a user id.
func (s *ChannelState) PlayerByID(userID string) (*Player, bool) {
	p, ok := s.byUser[userID]
	return p, ok
}

func (s *ChannelState) seat(p *Player) {
	s.Players = append(s.Players, p)
	s.byUser[p.UserID] = p
}

func (s *ChannelState) unseat(userID string) {
	delete(s.byUser, userID)
	for i, p := range s.Players {
		if p.UserID == userID {
			s.Players = append(s.Players[:i], s.Players[i+1:]...)
			return
		}
	}
}

// CurrentTurnUser returns the user id the turn pointer references.
func (s *ChannelState) CurrentTurnUser() (string, bool) {
	if s.TurnIndex < 0 || s.TurnIndex >= len(s.TurnOrder) {
		return "", false
	}
	return s.TurnOrder[s.TurnIndex], true
}

// advancePhase moves the machine one step along the declared phase graph.
// Any attempt to leave the graph is a programming error and panics: the
// transition tables are fixed at compile time and every call site advances
// from a phase it just checked.
func (s *ChannelState) advancePhase() Phase {
	next, ok := NextPhase(s.Mode, s.Phase)
	if !ok {
		panic("illegal phase transition from " + s.Phase.String())
	}
	s.Phase = next
	return next
}

// resetRound clears cards, pot and turn data at the round boundary while
// carrying player balances forward.
func (s *ChannelState) resetRound() {
	s.DealerHand = nil
	s.CommunityCards = nil
	s.Pot = 0
	s.TotalWagered = 0
	s.TurnOrder = nil
	s.TurnIndex = -1
	s.CurrentBet = 0
	s.MinRaise = 0
	s.DeadlineAt = time.Time{}
	for _, p := range s.Players {
		p.resetForRound()
	}
	s.Deck.Reset()
}

// Snapshot builds the full outbound view of the table.
func (s *ChannelState) Snapshot() View {
	players := make([]PlayerView, 0, len(s.Players))
	for _, p := range s.Players {
		pv := PlayerView{
			UserID:     p.UserID,
			Balance:    p.Balance,
			CurrentBet: p.StreetBet,
			Status:     p.Status.String(),
		}
		if s.Mode == ModeBlackjack {
			pv.CurrentBet = p.Contributed
		}
		if len(p.Hands) > 0 {
			for _, h := range p.Hands {
				pv.Hand = append(pv.Hand, h.Cards...)
			}
		}
		players = append(players, pv)
	}

	v := View{
		ChannelID: s.ChannelID,
		Mode:      s.Mode.String(),
		Phase:     s.Phase.String(),
		Pot:       s.Pot + s.uncollectedBets(),
		Players:   players,
	}
	if s.Mode == ModeBlackjack {
		v.DealerHand = append([]deck.Card(nil), s.DealerHand...)
	} else {
		v.CommunityCards = append([]deck.Card(nil), s.CommunityCards...)
	}
	if user, ok := s.CurrentTurnUser(); ok && s.Phase.IsActing() {
		v.TurnUserID = &user
	}
	if !s.DeadlineAt.IsZero() {
		ms := s.DeadlineAt.UnixMilli()
		v.DeadlineAt = &ms
	}
	return v
}

func (s *ChannelState) uncollectedBets() int64 {
	var sum int64
	for _, p := range s.Players {
		sum += p.StreetBet
	}
	return sum
}
