package game

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Ledger applies all wallet and pot bookkeeping for a channel. Every method
// runs inside the owning channel's serialized queue, so each mutation is a
// single atomic step with no partial application visible to readers.
//
// The ledger invariant is re-verified after every mutation:
//
//	sum(uncollected street bets) + pot == total wagered this round
//
// and no balance is ever negative. A violation is not a user error: it
// freezes the channel and surfaces an operator alert.
type Ledger struct {
	logger zerolog.Logger
}

// NewLedger creates a ledger scoped to one channel.
func NewLedger(logger zerolog.Logger) *Ledger {
	return &Ledger{logger: logger.With().Str("component", "ledger").Logger()}
}

// PlaceBet moves amount from the player's balance into their uncollected
// street bet. Fails without mutation when funds are short.
func (l *Ledger) PlaceBet(s *ChannelState, userID string, amount int64) error {
	p, ok := s.PlayerByID(userID)
	if !ok {
		return newValidationError(ReasonIllegalAction, "user %s is not seated", userID)
	}
	if amount <= 0 {
		return newValidationError(ReasonIllegalAction, "bet must be positive, got %d", amount)
	}
	if amount > p.Balance {
		return &InsufficientFundsError{UserID: userID, Need: amount, Have: p.Balance}
	}

	p.Balance -= amount
	p.StreetBet += amount
	p.Contributed += amount
	s.TotalWagered += amount

	return l.Verify(s)
}

// CollectBets sweeps all uncollected street bets into the shared pot, e.g.
// at a street boundary or once blackjack betting closes.
func (l *Ledger) CollectBets(s *ChannelState) error {
	for _, p := range s.Players {
		if p.StreetBet > 0 {
			s.Pot += p.StreetBet
			p.StreetBet = 0
		}
	}
	return l.Verify(s)
}

// Settle credits each player their computed winnings (win/push returns) and
// closes the round's books. Credits are paid against the pot; in blackjack
// the house covers any payout beyond it. The whole settlement is one atomic
// step: the invariant is checked immediately before the books close.
func (l *Ledger) Settle(s *ChannelState, credits map[string]int64) error {
	if err := l.Verify(s); err != nil {
		return err
	}

	for userID, credit := range credits {
		if credit < 0 {
			return &LedgerInvariantViolation{
				ChannelID: s.ChannelID,
				Detail:    fmt.Sprintf("negative settlement credit %d for %s", credit, userID),
			}
		}
		p, ok := s.PlayerByID(userID)
		if !ok {
			return &LedgerInvariantViolation{
				ChannelID: s.ChannelID,
				Detail:    fmt.Sprintf("settlement for unseated user %s", userID),
			}
		}
		p.Balance += credit
	}

	l.logger.Debug().
		Int64("pot", s.Pot).
		Int("players", len(credits)).
		Msg("Round settled")

	// Close the books: pot, street bets and wager totals all zero together
	// so the invariant holds trivially in WAITING.
	s.Pot = 0
	s.TotalWagered = 0
	for _, p := range s.Players {
		p.StreetBet = 0
		p.Contributed = 0
	}
	return l.Verify(s)
}

// Refund returns every player's round contribution to their balance, used
// by the admin reset so an interrupted round never swallows funds.
func (l *Ledger) Refund(s *ChannelState) error {
	for _, p := range s.Players {
		p.Balance += p.Contributed
		p.StreetBet = 0
		p.Contributed = 0
	}
	s.Pot = 0
	s.TotalWagered = 0
	return l.Verify(s)
}

// Verify re-checks the ledger invariant. The returned error, if any, is a
// *LedgerInvariantViolation and must freeze the channel.
func (l *Ledger) Verify(s *ChannelState) error {
	var street, contributed int64
	for _, p := range s.Players {
		if p.Balance < 0 {
			return &LedgerInvariantViolation{
				ChannelID: s.ChannelID,
				Detail:    fmt.Sprintf("negative balance %d for %s", p.Balance, p.UserID),
			}
		}
		street += p.StreetBet
		contributed += p.Contributed
	}

	if street+s.Pot != s.TotalWagered {
		return &LedgerInvariantViolation{
			ChannelID: s.ChannelID,
			Detail: fmt.Sprintf("street bets %d + pot %d != total wagered %d",
				street, s.Pot, s.TotalWagered),
		}
	}
	if contributed != s.TotalWagered {
		return &LedgerInvariantViolation{
			ChannelID: s.ChannelID,
			Detail: fmt.Sprintf("player contributions %d != total wagered %d",
				contributed, s.TotalWagered),
		}
	}
	return nil
}
