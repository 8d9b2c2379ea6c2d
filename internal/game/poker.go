package game

import (
	"context"
	"fmt"
)

// applyPoker dispatches a wire action against the poker round.
func (m *Machine) applyPoker(ctx context.Context, ev Event, res *Result) error {
	s := m.state

	switch ev.Action {
	case ActionStart:
		if s.Phase != Waiting {
			return newValidationError(ReasonWrongPhase, "a round is already in progress")
		}
		return m.pokerStartRound(ctx, res)
	case ActionFold, ActionCheck, ActionCall, ActionRaise:
		if !s.Phase.IsActing() {
			return newValidationError(ReasonWrongPhase, "%s is not legal in %s", ev.Action, s.Phase)
		}
		if turnUser, ok := s.CurrentTurnUser(); !ok || turnUser != ev.UserID {
			return newValidationError(ReasonWrongTurn, "it is not %s's turn to act", ev.UserID)
		}
		return m.pokerTurnAction(ctx, ev, res)
	case ActionBet:
		return newValidationError(ReasonIllegalAction, "poker wagers use fold/check/call/raise")
	default:
		return newValidationError(ReasonIllegalAction, "%s is not a poker action", ev.Action)
	}
}

// pokerStartRound posts blinds, deals hole cards and opens preflop betting.
func (m *Machine) pokerStartRound(ctx context.Context, res *Result) error {
	s := m.state

	order := m.activeSeats()
	if len(order) < 2 {
		return newValidationError(ReasonIllegalAction, "need at least 2 players to start")
	}

	s.TurnOrder = order
	m.button = (m.button + 1) % len(order)
	m.acted = make(map[string]bool)

	s.advancePhase() // WAITING -> BLINDS

	var sbPos, bbPos int
	if len(order) == 2 {
		// Heads-up: the button posts the small blind.
		sbPos = m.button
		bbPos = (m.button + 1) % 2
	} else {
		sbPos = (m.button + 1) % len(order)
		bbPos = (m.button + 2) % len(order)
	}

	if err := m.postBlind(order[sbPos], m.rules.SmallBlind, "small blind", res); err != nil {
		return err
	}
	if err := m.postBlind(order[bbPos], m.rules.BigBlind, "big blind", res); err != nil {
		return err
	}
	s.CurrentBet = m.rules.BigBlind
	s.MinRaise = m.rules.BigBlind
	res.LedgerChanged = true

	for _, userID := range order {
		p, _ := s.PlayerByID(userID)
		p.Hands = []*Hand{{Cards: s.Deck.DealN(2)}}
	}

	s.advancePhase() // BLINDS -> PREFLOP
	res.Announcements = append(res.Announcements,
		fmt.Sprintf("New hand: %d players, blinds %d/%d", len(order), m.rules.SmallBlind, m.rules.BigBlind))

	// First to act preflop is the seat after the big blind; heads-up that
	// wraps straight to the button.
	if idx, ok := m.nextActableFrom(bbPos + 1); ok {
		s.TurnIndex = idx
		m.turns.ArmDeadline(s, s.TurnOrder[idx], m.turnTimeout())
		return nil
	}

	// Every blind poster went all-in on the post, so nobody holds a turn.
	// The hand runs straight out to showdown; leaving it parked on PREFLOP
	// would strand the channel with no turn and no deadline.
	return m.pokerAdvanceStreet(ctx, res)
}

// postBlind wagers the blind, short all-in when the stack cannot cover it.
func (m *Machine) postBlind(userID string, blind int64, label string, res *Result) error {
	p, _ := m.state.PlayerByID(userID)
	amount := blind
	if amount > p.Balance {
		amount = p.Balance
	}
	if amount > 0 {
		if err := m.ledger.PlaceBet(m.state, userID, amount); err != nil {
			return err
		}
	}
	if p.Balance == 0 {
		p.Status = StatusAllIn
	}
	res.Announcements = append(res.Announcements,
		fmt.Sprintf("%s posts %s %d", userID, label, amount))
	return nil
}

func (m *Machine) pokerTurnAction(ctx context.Context, ev Event, res *Result) error {
	s := m.state
	p, _ := s.PlayerByID(ev.UserID)
	toCall := s.CurrentBet - p.StreetBet

	switch ev.Action {
	case ActionFold:
		return m.pokerForceFold(ctx, ev.UserID, res, fmt.Sprintf("%s folds", ev.UserID))

	case ActionCheck:
		if toCall != 0 {
			return newValidationError(ReasonIllegalAction, "cannot check, %d to call", toCall)
		}
		m.acted[ev.UserID] = true
		res.Announcements = append(res.Announcements, fmt.Sprintf("%s checks", ev.UserID))

	case ActionCall:
		if toCall <= 0 {
			return newValidationError(ReasonIllegalAction, "nothing to call, check instead")
		}
		amount := toCall
		if amount >= p.Balance {
			amount = p.Balance
		}
		if err := m.ledger.PlaceBet(s, ev.UserID, amount); err != nil {
			return err
		}
		res.LedgerChanged = true
		if p.Balance == 0 {
			p.Status = StatusAllIn
			res.Announcements = append(res.Announcements,
				fmt.Sprintf("%s calls %d and is all in", ev.UserID, amount))
		} else {
			res.Announcements = append(res.Announcements,
				fmt.Sprintf("%s calls %d", ev.UserID, amount))
		}
		m.acted[ev.UserID] = true

	case ActionRaise:
		raiseTo := ev.Payload.Amount
		if raiseTo <= s.CurrentBet {
			return newValidationError(ReasonIllegalAction,
				"raise must exceed the current bet of %d", s.CurrentBet)
		}
		needed := raiseTo - p.StreetBet
		if needed > p.Balance {
			return &InsufficientFundsError{UserID: ev.UserID, Need: needed, Have: p.Balance}
		}
		// A raise below the minimum is only legal as an all-in.
		if raiseTo < s.CurrentBet+s.MinRaise && needed < p.Balance {
			return newValidationError(ReasonIllegalAction,
				"raise too small, minimum is %d", s.CurrentBet+s.MinRaise)
		}
		if err := m.ledger.PlaceBet(s, ev.UserID, needed); err != nil {
			return err
		}
		res.LedgerChanged = true
		s.MinRaise = raiseTo - s.CurrentBet
		s.CurrentBet = raiseTo

		// Everyone still active must respond to the raise.
		m.acted = map[string]bool{ev.UserID: true}

		if p.Balance == 0 {
			p.Status = StatusAllIn
			res.Announcements = append(res.Announcements,
				fmt.Sprintf("%s raises to %d and is all in", ev.UserID, raiseTo))
		} else {
			res.Announcements = append(res.Announcements,
				fmt.Sprintf("%s raises to %d", ev.UserID, raiseTo))
		}
	}

	p.LastActionAt = m.clock.Now()
	return m.pokerAfterAction(ctx, res)
}

// pokerForceFold folds a player regardless of how the fold was triggered
// (action, timeout, mid-round leave) and moves the round along.
func (m *Machine) pokerForceFold(ctx context.Context, userID string, res *Result, line string) error {
	s := m.state
	p, ok := s.PlayerByID(userID)
	if !ok || !p.InRound() {
		return nil
	}

	p.Status = StatusFolded
	p.LastActionAt = m.clock.Now()
	m.acted[userID] = true
	res.Announcements = append(res.Announcements, line)

	if turnUser, isTurn := s.CurrentTurnUser(); isTurn && turnUser == userID {
		return m.pokerAfterAction(ctx, res)
	}

	// Folding out of turn (disconnect/leave) can still end the hand.
	if winner, only := m.soleRemaining(); only {
		return m.pokerFoldWin(ctx, winner, res)
	}
	return nil
}

// pokerAfterAction decides what follows the applied action: a fold win, the
// next street, or the next bettor's turn.
func (m *Machine) pokerAfterAction(ctx context.Context, res *Result) error {
	s := m.state
	m.turns.CancelDeadline(s)

	if winner, only := m.soleRemaining(); only {
		return m.pokerFoldWin(ctx, winner, res)
	}

	if m.pokerBettingComplete() {
		return m.pokerAdvanceStreet(ctx, res)
	}

	if userID, ok := m.turns.Advance(s); ok {
		m.turns.ArmDeadline(s, userID, m.turnTimeout())
		return nil
	}

	// No seat can act but bets are not equalized: everyone actable is gone
	// (all-in or folded), so the remaining streets run out.
	return m.pokerAdvanceStreet(ctx, res)
}

// soleRemaining reports the single player left in the round, if any.
func (m *Machine) soleRemaining() (string, bool) {
	var winner string
	count := 0
	for _, p := range m.state.Players {
		if p.InRound() && len(p.Hands) > 0 {
			winner = p.UserID
			count++
		}
	}
	return winner, count == 1
}

// pokerBettingComplete reports whether every active player has both acted
// this street and matched the current bet. Posting a blind does not count as
// acting, which is what gives the big blind its preflop option.
func (m *Machine) pokerBettingComplete() bool {
	active := 0
	for _, p := range m.state.Players {
		if len(p.Hands) == 0 || p.Status != StatusActive {
			continue
		}
		active++
		if !m.acted[p.UserID] || p.StreetBet != m.state.CurrentBet {
			return false
		}
	}
	if active < 2 {
		// Betting needs two live stacks; with fewer the street plays out.
		return active == 0 || m.allBetsMatched()
	}
	return true
}

func (m *Machine) allBetsMatched() bool {
	for _, p := range m.state.Players {
		if len(p.Hands) > 0 && p.Status == StatusActive {
			if p.StreetBet != m.state.CurrentBet || !m.acted[p.UserID] {
				return false
			}
		}
	}
	return true
}

// pokerAdvanceStreet sweeps bets, deals the next street and opens its
// betting round, running streets out back-to-back once nobody can act.
func (m *Machine) pokerAdvanceStreet(ctx context.Context, res *Result) error {
	s := m.state

	for {
		if err := m.ledger.CollectBets(s); err != nil {
			return err
		}
		s.CurrentBet = 0
		s.MinRaise = m.rules.BigBlind
		m.acted = make(map[string]bool)

		if s.Phase == River {
			s.advancePhase() // RIVER -> SHOWDOWN
			return m.pokerShowdown(ctx, res)
		}

		switch s.advancePhase() {
		case Flop:
			s.CommunityCards = append(s.CommunityCards, s.Deck.DealN(3)...)
			res.Announcements = append(res.Announcements,
				fmt.Sprintf("Flop: %s", cardList(s.CommunityCards)))
		case Turn:
			s.CommunityCards = append(s.CommunityCards, s.Deck.DealN(1)...)
			res.Announcements = append(res.Announcements,
				fmt.Sprintf("Turn: %s", cardList(s.CommunityCards)))
		case River:
			s.CommunityCards = append(s.CommunityCards, s.Deck.DealN(1)...)
			res.Announcements = append(res.Announcements,
				fmt.Sprintf("River: %s", cardList(s.CommunityCards)))
		}

		if m.countActive() >= 2 {
			if idx, ok := m.nextActableFrom(m.button + 1); ok {
				s.TurnIndex = idx
				m.turns.ArmDeadline(s, s.TurnOrder[idx], m.turnTimeout())
				return nil
			}
		}
		// All-in runout: deal the next street immediately.
	}
}

func (m *Machine) countActive() int {
	n := 0
	for _, p := range m.state.Players {
		if len(p.Hands) > 0 && p.Status == StatusActive {
			n++
		}
	}
	return n
}

// nextActableFrom finds the first player able to act at or after the given
// turn-order index, wrapping once around the table.
func (m *Machine) nextActableFrom(from int) (int, bool) {
	n := len(m.state.TurnOrder)
	if n == 0 {
		return -1, false
	}
	for i := 0; i < n; i++ {
		idx := (from + i) % n
		p, ok := m.state.PlayerByID(m.state.TurnOrder[idx])
		if ok && p.CanAct() && len(p.Hands) > 0 {
			return idx, true
		}
	}
	return -1, false
}

// pokerFoldWin awards the whole pot to the last player standing.
func (m *Machine) pokerFoldWin(ctx context.Context, winner string, res *Result) error {
	s := m.state
	m.turns.CancelDeadline(s)

	if err := m.ledger.CollectBets(s); err != nil {
		return err
	}

	res.Announcements = append(res.Announcements,
		fmt.Sprintf("%s wins %d, everyone else folded", winner, s.Pot))
	res.RoundComplete = true
	return m.finishRound(ctx, map[string]int64{winner: s.Pot}, res)
}

// pokerTimeout applies the timeout policy to the current bettor: check when
// legal under a stand-style policy, otherwise fold.
func (m *Machine) pokerTimeout(ctx context.Context, userID string, res *Result) error {
	s := m.state
	turnUser, ok := s.CurrentTurnUser()
	if !ok || turnUser != userID {
		return nil
	}
	p, ok := s.PlayerByID(userID)
	if !ok || !p.InRound() {
		return nil
	}

	if m.rules.TimeoutPolicy == TimeoutPolicyStand && s.CurrentBet == p.StreetBet {
		m.acted[userID] = true
		p.LastActionAt = m.clock.Now()
		res.Announcements = append(res.Announcements,
			fmt.Sprintf("%s ran out of time and checks", userID))
		return m.pokerAfterAction(ctx, res)
	}

	return m.pokerForceFold(ctx, userID, res,
		fmt.Sprintf("%s ran out of time and folds", userID))
}
