package game

import (
	"context"
	"fmt"
	"strings"

	"github.com/aceystream/cardtable/internal/deck"
)

const blackjackDealerStand = 17

// handTotal scores a blackjack hand. One ace is promoted to 11 when that
// does not bust the hand; the bool reports a soft total.
func handTotal(cards []deck.Card) (int, bool) {
	total := 0
	aces := 0
	for _, c := range cards {
		total += c.BlackjackValue()
		if c.Rank == deck.Ace {
			aces++
		}
	}
	if aces > 0 && total+10 <= 21 {
		return total + 10, true
	}
	return total, false
}

// isNatural reports a two-card 21 on a hand that was not created by a split.
func isNatural(h *Hand) bool {
	if h.Split || len(h.Cards) != 2 {
		return false
	}
	total, _ := handTotal(h.Cards)
	return total == 21
}

func handBusted(h *Hand) bool {
	total, _ := handTotal(h.Cards)
	return total > 21
}

func handFinished(h *Hand) bool {
	return h.Stood || handBusted(h)
}

// applyBlackjack dispatches a wire action against the blackjack round.
func (m *Machine) applyBlackjack(ctx context.Context, ev Event, res *Result) error {
	s := m.state

	switch ev.Action {
	case ActionBet:
		return m.blackjackBet(ev, res)
	case ActionStart:
		if s.Phase != BettingOpen {
			return newValidationError(ReasonWrongPhase, "cannot start in %s", s.Phase)
		}
		return m.blackjackCloseBetting(ctx, res)
	case ActionHit, ActionStand, ActionDouble, ActionSplit, ActionInsurance:
		if s.Phase != PlayerTurns {
			return newValidationError(ReasonWrongPhase, "%s is not legal in %s", ev.Action, s.Phase)
		}
		if turnUser, ok := s.CurrentTurnUser(); !ok || turnUser != ev.UserID {
			return newValidationError(ReasonWrongTurn, "it is not %s's turn", ev.UserID)
		}
		return m.blackjackTurnAction(ctx, ev, res)
	default:
		return newValidationError(ReasonIllegalAction, "%s is not a blackjack action", ev.Action)
	}
}

// blackjackBet opens the betting window on the first wager and records one
// bet per player.
func (m *Machine) blackjackBet(ev Event, res *Result) error {
	s := m.state
	if s.Phase != Waiting && s.Phase != BettingOpen {
		return newValidationError(ReasonWrongPhase, "betting is closed")
	}

	p, _ := s.PlayerByID(ev.UserID)
	if p.Contributed > 0 {
		return newValidationError(ReasonIllegalAction, "%s already placed a bet", ev.UserID)
	}
	amount := ev.Payload.Amount
	if amount < m.rules.MinBet || amount > m.rules.MaxBet {
		return newValidationError(ReasonIllegalAction,
			"bet %d outside table limits %d-%d", amount, m.rules.MinBet, m.rules.MaxBet)
	}
	if err := m.ledger.PlaceBet(s, ev.UserID, amount); err != nil {
		return err
	}
	res.LedgerChanged = true
	p.LastActionAt = m.clock.Now()

	if s.Phase == Waiting {
		s.advancePhase() // WAITING -> BETTING_OPEN
		m.turns.ArmDeadline(s, "", m.rules.BettingWindow)
		res.Announcements = append(res.Announcements,
			fmt.Sprintf("Betting is open for %s", m.rules.BettingWindow))
	}
	res.Announcements = append(res.Announcements,
		fmt.Sprintf("%s bets %d", ev.UserID, amount))
	return nil
}

// blackjackCloseBetting closes the window, collects wagers and deals.
func (m *Machine) blackjackCloseBetting(ctx context.Context, res *Result) error {
	s := m.state
	m.turns.CancelDeadline(s)

	s.advancePhase() // BETTING_OPEN -> BETTING_CLOSED
	if err := m.ledger.CollectBets(s); err != nil {
		return err
	}
	res.LedgerChanged = true

	s.advancePhase() // BETTING_CLOSED -> DEALING
	var turnOrder []string
	for _, p := range s.Players {
		if p.Contributed == 0 || p.Status != StatusActive {
			continue
		}
		p.Hands = []*Hand{{Cards: s.Deck.DealN(2), Bet: p.Contributed}}
		if isNatural(p.Hands[0]) {
			p.Hands[0].Stood = true
		}
		turnOrder = append(turnOrder, p.UserID)
	}
	s.DealerHand = s.Deck.DealN(2)
	s.TurnOrder = turnOrder
	s.advancePhase() // DEALING -> PLAYER_TURNS

	res.Announcements = append(res.Announcements,
		fmt.Sprintf("Cards are out. Dealer shows %s", s.DealerHand[0]))

	return m.blackjackNextTurn(ctx, res, -1)
}

// blackjackNextTurn points the turn at the next seat with a playable hand,
// walking the order forward exactly once. When none remain the dealer plays.
func (m *Machine) blackjackNextTurn(ctx context.Context, res *Result, fromIndex int) error {
	s := m.state

	for idx := fromIndex + 1; idx < len(s.TurnOrder); idx++ {
		p, ok := s.PlayerByID(s.TurnOrder[idx])
		if !ok || !p.CanAct() {
			continue
		}
		if hand, hi := firstPlayableHand(p); hand != nil {
			p.ActiveHand = hi
			s.TurnIndex = idx
			m.turns.ArmDeadline(s, p.UserID, m.turnTimeout())
			return nil
		}
	}

	return m.blackjackDealerTurn(ctx, res)
}

func firstPlayableHand(p *Player) (*Hand, int) {
	for i, h := range p.Hands {
		if !handFinished(h) {
			return h, i
		}
	}
	return nil, -1
}

func (m *Machine) blackjackTurnAction(ctx context.Context, ev Event, res *Result) error {
	s := m.state
	p, _ := s.PlayerByID(ev.UserID)
	hand := p.Hands[p.ActiveHand]

	switch ev.Action {
	case ActionHit:
		card, _ := s.Deck.Deal()
		hand.Cards = append(hand.Cards, card)
		total, _ := handTotal(hand.Cards)
		switch {
		case total > 21:
			res.Announcements = append(res.Announcements,
				fmt.Sprintf("%s draws %s and busts with %d", ev.UserID, card, total))
		case total == 21:
			hand.Stood = true
			res.Announcements = append(res.Announcements,
				fmt.Sprintf("%s draws %s for 21", ev.UserID, card))
		default:
			res.Announcements = append(res.Announcements,
				fmt.Sprintf("%s draws %s (%d)", ev.UserID, card, total))
		}

	case ActionStand:
		hand.Stood = true
		total, _ := handTotal(hand.Cards)
		res.Announcements = append(res.Announcements,
			fmt.Sprintf("%s stands on %d", ev.UserID, total))

	case ActionDouble:
		if len(hand.Cards) != 2 {
			return newValidationError(ReasonIllegalAction, "double is only legal on two cards")
		}
		if err := m.ledger.PlaceBet(s, ev.UserID, hand.Bet); err != nil {
			return err
		}
		if err := m.ledger.CollectBets(s); err != nil {
			return err
		}
		res.LedgerChanged = true
		hand.Bet *= 2
		hand.Doubled = true
		card, _ := s.Deck.Deal()
		hand.Cards = append(hand.Cards, card)
		hand.Stood = true
		total, _ := handTotal(hand.Cards)
		res.Announcements = append(res.Announcements,
			fmt.Sprintf("%s doubles down, draws %s (%d)", ev.UserID, card, total))

	case ActionSplit:
		if len(p.Hands) != 1 || len(hand.Cards) != 2 || hand.Cards[0].Rank != hand.Cards[1].Rank {
			return newValidationError(ReasonIllegalAction, "split requires an unsplit pair")
		}
		if err := m.ledger.PlaceBet(s, ev.UserID, hand.Bet); err != nil {
			return err
		}
		if err := m.ledger.CollectBets(s); err != nil {
			return err
		}
		res.LedgerChanged = true
		c1, c2 := hand.Cards[0], hand.Cards[1]
		d1, _ := s.Deck.Deal()
		d2, _ := s.Deck.Deal()
		p.Hands = []*Hand{
			{Cards: []deck.Card{c1, d1}, Bet: hand.Bet, Split: true},
			{Cards: []deck.Card{c2, d2}, Bet: hand.Bet, Split: true},
		}
		p.ActiveHand = 0
		res.Announcements = append(res.Announcements,
			fmt.Sprintf("%s splits %ss into two hands", ev.UserID, c1.Rank))

	case ActionInsurance:
		if s.DealerHand[0].Rank != deck.Ace {
			return newValidationError(ReasonIllegalAction, "insurance requires a dealer ace")
		}
		if p.Insurance > 0 {
			return newValidationError(ReasonIllegalAction, "insurance already taken")
		}
		cost := hand.Bet / 2
		if cost == 0 {
			cost = 1
		}
		if err := m.ledger.PlaceBet(s, ev.UserID, cost); err != nil {
			return err
		}
		if err := m.ledger.CollectBets(s); err != nil {
			return err
		}
		res.LedgerChanged = true
		p.Insurance = cost
		res.Announcements = append(res.Announcements,
			fmt.Sprintf("%s takes insurance for %d", ev.UserID, cost))
	}

	p.LastActionAt = m.clock.Now()
	return m.blackjackAfterAction(ctx, p, res)
}

// blackjackAfterAction cancels the acting deadline and either re-arms it for
// the same seat (next split hand or continued turn) or advances.
func (m *Machine) blackjackAfterAction(ctx context.Context, p *Player, res *Result) error {
	s := m.state
	m.turns.CancelDeadline(s)

	if allHandsBusted(p) {
		p.Status = StatusBusted
	}

	if p.CanAct() {
		if hand, hi := firstPlayableHand(p); hand != nil {
			p.ActiveHand = hi
			m.turns.ArmDeadline(s, p.UserID, m.turnTimeout())
			return nil
		}
	}
	return m.blackjackNextTurn(ctx, res, s.TurnIndex)
}

func allHandsBusted(p *Player) bool {
	if len(p.Hands) == 0 {
		return false
	}
	for _, h := range p.Hands {
		if !handBusted(h) {
			return false
		}
	}
	return true
}

// blackjackTimeout applies the configured timeout policy to the idle seat.
func (m *Machine) blackjackTimeout(ctx context.Context, userID string, res *Result) error {
	s := m.state
	turnUser, ok := s.CurrentTurnUser()
	if !ok || turnUser != userID {
		return nil
	}
	p, ok := s.PlayerByID(userID)
	if !ok {
		return nil
	}

	m.blackjackForceStand(p, res, fmt.Sprintf("%s ran out of time and stands", userID))
	return m.blackjackNextTurn(ctx, res, s.TurnIndex)
}

func (m *Machine) blackjackForceStand(p *Player, res *Result, line string) {
	for _, h := range p.Hands {
		if !handFinished(h) {
			h.Stood = true
		}
	}
	res.Announcements = append(res.Announcements, line)
}

// blackjackDealerTurn runs the dealer deterministically (hit to 17, stand on
// all 17s) and settles the round.
func (m *Machine) blackjackDealerTurn(ctx context.Context, res *Result) error {
	s := m.state
	m.turns.CancelDeadline(s)
	s.TurnIndex = -1
	s.advancePhase() // PLAYER_TURNS -> DEALER_TURN

	anyLive := false
	for _, p := range s.Players {
		if p.InRound() && !allHandsBusted(p) && len(p.Hands) > 0 {
			anyLive = true
			break
		}
	}

	dealerTotal, _ := handTotal(s.DealerHand)
	if anyLive {
		for dealerTotal < blackjackDealerStand {
			card, _ := s.Deck.Deal()
			s.DealerHand = append(s.DealerHand, card)
			dealerTotal, _ = handTotal(s.DealerHand)
		}
	}

	dealerBJ := len(s.DealerHand) == 2 && dealerTotal == 21
	dealerBust := dealerTotal > 21

	switch {
	case dealerBust:
		res.Announcements = append(res.Announcements,
			fmt.Sprintf("Dealer busts with %d (%s)", dealerTotal, cardList(s.DealerHand)))
	case dealerBJ:
		res.Announcements = append(res.Announcements,
			fmt.Sprintf("Dealer has blackjack (%s)", cardList(s.DealerHand)))
	default:
		res.Announcements = append(res.Announcements,
			fmt.Sprintf("Dealer stands on %d (%s)", dealerTotal, cardList(s.DealerHand)))
	}

	credits := make(map[string]int64)
	for _, p := range s.Players {
		if len(p.Hands) == 0 {
			continue
		}
		var credit int64
		for _, h := range p.Hands {
			credit += settleHand(h, dealerTotal, dealerBust, dealerBJ)
		}
		if p.Insurance > 0 && dealerBJ {
			credit += p.Insurance * 3 // stake back plus 2:1
		}
		credits[p.UserID] = credit
		if credit > p.Contributed {
			res.Announcements = append(res.Announcements,
				fmt.Sprintf("%s wins %d", p.UserID, credit-p.Contributed))
		} else if credit == p.Contributed {
			res.Announcements = append(res.Announcements, fmt.Sprintf("%s pushes", p.UserID))
		} else {
			res.Announcements = append(res.Announcements,
				fmt.Sprintf("%s loses %d", p.UserID, p.Contributed-credit))
		}
	}

	res.RoundComplete = true
	return m.finishRound(ctx, credits, res)
}

// settleHand returns the amount credited back for one hand: zero on a loss,
// the stake on a push, stake plus winnings otherwise. Naturals pay 3:2.
func settleHand(h *Hand, dealerTotal int, dealerBust, dealerBJ bool) int64 {
	if handBusted(h) {
		return 0
	}
	total, _ := handTotal(h.Cards)

	switch {
	case isNatural(h) && !dealerBJ:
		return h.Bet + h.Bet*3/2
	case dealerBJ && isNatural(h):
		return h.Bet
	case dealerBJ:
		return 0
	case dealerBust:
		return h.Bet * 2
	case total > dealerTotal:
		return h.Bet * 2
	case total == dealerTotal:
		return h.Bet
	default:
		return 0
	}
}

func cardList(cards []deck.Card) string {
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}
