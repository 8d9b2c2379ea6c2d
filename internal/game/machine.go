package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/aceystream/cardtable/internal/metrics"
)

// BalanceStore is the persistence collaborator. Implementations must make
// each call atomic per (channel, user); the engine never requires
// cross-channel transactions.
type BalanceStore interface {
	LoadBalance(ctx context.Context, channelID, userID string) (int64, error)
	SaveBalanceDelta(ctx context.Context, channelID, userID string, delta int64) error
}

// TimeoutPolicy selects what a turn deadline expiry does to the idle player.
type TimeoutPolicy string

const (
	// TimeoutPolicyDefault applies the variant default: stand for
	// blackjack, fold for poker.
	TimeoutPolicyDefault TimeoutPolicy = ""
	TimeoutPolicyFold    TimeoutPolicy = "fold"
	TimeoutPolicyStand   TimeoutPolicy = "stand"
)

// Rules carries the per-channel table configuration.
type Rules struct {
	MinBet        int64
	MaxBet        int64
	SmallBlind    int64
	BigBlind      int64
	TurnTimeout   time.Duration
	BettingWindow time.Duration
	TimeoutPolicy TimeoutPolicy

	// PersistAttempts/PersistBackoff shape the payout save retry loop.
	PersistAttempts int
	PersistBackoff  time.Duration
}

// DefaultRules returns the table defaults used when no config file overrides
// them.
func DefaultRules() Rules {
	return Rules{
		MinBet:          1,
		MaxBet:          500,
		SmallBlind:      5,
		BigBlind:        10,
		TurnTimeout:     30 * time.Second,
		BettingWindow:   30 * time.Second,
		TimeoutPolicy:   TimeoutPolicyDefault,
		PersistAttempts: 4,
		PersistBackoff:  100 * time.Millisecond,
	}
}

// Machine is the per-channel state machine. It is never called concurrently:
// the registry runner applies one event at a time from the channel queue.
type Machine struct {
	state  *ChannelState
	ledger *Ledger
	turns  *TurnScheduler
	clock  quartz.Clock
	logger zerolog.Logger
	store  BalanceStore
	rules  Rules

	// acted tracks which users have acted in the current poker street.
	acted map[string]bool

	button int

	frozen      bool
	frozenCause *LedgerInvariantViolation
}

// NewMachine wires a machine around an owned ChannelState. submit is used by
// the turn scheduler to re-enter synthetic timeout events through the
// channel's serialized queue.
func NewMachine(state *ChannelState, store BalanceStore, rules Rules, clock quartz.Clock, logger zerolog.Logger, submit SubmitFunc) *Machine {
	lg := logger.With().Str("channel", state.ChannelID).Logger()
	return &Machine{
		state:  state,
		ledger: NewLedger(lg),
		turns:  NewTurnScheduler(clock, lg, submit),
		clock:  clock,
		logger: lg.With().Str("component", "machine").Logger(),
		store:  store,
		rules:  rules,
		acted:  make(map[string]bool),
		button: -1,
	}
}

// State exposes the owned state for snapshot reads on the serialized queue.
func (m *Machine) State() *ChannelState { return m.state }

// Frozen reports whether a fatal ledger violation froze this channel.
func (m *Machine) Frozen() bool { return m.frozen }

// Apply validates and applies one event. On rejection the returned error
// describes why and no state has mutated. A *LedgerInvariantViolation
// freezes the channel before returning.
func (m *Machine) Apply(ctx context.Context, ev Event) (*Result, error) {
	if m.frozen && ev.Action != ActionReset {
		return nil, ErrChannelFrozen
	}

	s := m.state
	s.LastActivityAt = m.clock.Now()
	res := &Result{}

	var err error
	switch ev.Action {
	case ActionJoin:
		err = m.handleJoin(ctx, ev, res)
	case ActionLeave:
		err = m.handleLeave(ctx, ev, res)
	case ActionReset:
		err = m.handleReset(res)
	case ActionTimeout:
		if !m.turns.DeadlineCurrent(s, ev) {
			// A human action for this turn was applied first; the expired
			// deadline must not act twice.
			m.logger.Debug().Uint64("seq", ev.deadlineSeq).Msg("Stale timeout ignored")
			res.View = s.Snapshot()
			return res, nil
		}
		err = m.handleTimeout(ctx, ev, res)
	default:
		if !ev.Action.FromWire() {
			err = newValidationError(ReasonIllegalAction, "unknown action %q", ev.Action)
			break
		}
		if _, ok := s.PlayerByID(ev.UserID); !ok {
			err = newValidationError(ReasonIllegalAction, "user %s is not seated", ev.UserID)
			break
		}
		switch s.Mode {
		case ModeBlackjack:
			err = m.applyBlackjack(ctx, ev, res)
		case ModePoker:
			err = m.applyPoker(ctx, ev, res)
		}
	}

	if err != nil {
		var viol *LedgerInvariantViolation
		if errors.As(err, &viol) {
			m.freeze(viol)
		}
		return nil, err
	}

	res.View = s.Snapshot()
	res.Evictable = s.Phase == Waiting
	return res, nil
}

func (m *Machine) handleJoin(ctx context.Context, ev Event, res *Result) error {
	s := m.state
	if p, ok := s.PlayerByID(ev.UserID); ok {
		// Rejoining is a no-op so chat spam cannot duplicate seats. A
		// rejoin also revokes a pending mid-round departure.
		p.Departed = false
		if p.Status == StatusSittingOut && s.Phase == Waiting {
			p.Status = StatusActive
		}
		return nil
	}

	balance, err := m.store.LoadBalance(ctx, s.ChannelID, ev.UserID)
	if err != nil {
		return fmt.Errorf("load balance for %s: %w", ev.UserID, err)
	}

	p := &Player{
		UserID:       ev.UserID,
		Balance:      balance,
		Status:       StatusActive,
		LastActionAt: m.clock.Now(),
	}
	s.seat(p)

	res.Announcements = append(res.Announcements,
		fmt.Sprintf("%s takes a seat with %d chips", ev.UserID, balance))

	m.logger.Info().Str("user", ev.UserID).Int64("balance", balance).Msg("Player seated")
	return nil
}

func (m *Machine) handleLeave(ctx context.Context, ev Event, res *Result) error {
	s := m.state
	p, ok := s.PlayerByID(ev.UserID)
	if !ok {
		return newValidationError(ReasonIllegalAction, "user %s is not seated", ev.UserID)
	}

	if s.Phase == Waiting {
		s.unseat(ev.UserID)
		res.Announcements = append(res.Announcements, fmt.Sprintf("%s leaves the table", ev.UserID))
		return nil
	}

	// Mid-round departures forfeit the round: the contribution stays in the
	// pot and the seat is released at the round boundary. The flag is set
	// before any fold/stand cascade because a fold win settles the round
	// (and sweeps departed seats) before this function regains control.
	p.Departed = true
	if p.InRound() {
		switch s.Mode {
		case ModePoker:
			return m.pokerForceFold(ctx, ev.UserID, res, fmt.Sprintf("%s leaves and folds", ev.UserID))
		case ModeBlackjack:
			m.blackjackForceStand(p, res, fmt.Sprintf("%s leaves; hand stands", ev.UserID))
			if turnUser, isTurn := s.CurrentTurnUser(); isTurn && turnUser == ev.UserID {
				m.turns.CancelDeadline(s)
				return m.blackjackNextTurn(ctx, res, s.TurnIndex)
			}
		}
		return nil
	}
	p.Status = StatusSittingOut
	return nil
}

// handleReset is the operator escape hatch: refund contributions, clear the
// round and return to WAITING. It also unfreezes a frozen channel once an
// operator has intervened.
func (m *Machine) handleReset(res *Result) error {
	s := m.state
	m.turns.CancelDeadline(s)

	if err := m.ledger.Refund(s); err != nil {
		return err
	}
	s.resetRound()
	s.Phase = Waiting
	m.acted = make(map[string]bool)
	m.removeDepartedSeats()

	if m.frozen {
		m.logger.Warn().Msg("Channel unfrozen by operator reset")
		m.frozen = false
		m.frozenCause = nil
	}

	res.LedgerChanged = true
	res.Announcements = append(res.Announcements, "Table reset by an operator; wagers refunded")
	return nil
}

func (m *Machine) handleTimeout(ctx context.Context, ev Event, res *Result) error {
	s := m.state
	m.turns.CancelDeadline(s)

	switch {
	case s.Mode == ModeBlackjack && s.Phase == BettingOpen:
		return m.blackjackCloseBetting(ctx, res)
	case s.Mode == ModeBlackjack && s.Phase == PlayerTurns:
		return m.blackjackTimeout(ctx, ev.UserID, res)
	case s.Mode == ModePoker && s.Phase.IsActing():
		return m.pokerTimeout(ctx, ev.UserID, res)
	default:
		// Deadline fired on a phase that no longer accepts turns.
		return nil
	}
}

func (m *Machine) freeze(viol *LedgerInvariantViolation) {
	m.frozen = true
	m.frozenCause = viol
	m.turns.CancelDeadline(m.state)
	m.logger.Error().
		Str("detail", viol.Detail).
		Msg("LEDGER INVARIANT VIOLATION: channel frozen, operator intervention required")
}

// finishRound settles credits through the ledger, persists each player's net
// delta, and returns the table to WAITING. Persistence failures are retried
// with backoff; if they keep failing the round does not complete and the
// channel freezes rather than silently dropping funds.
func (m *Machine) finishRound(ctx context.Context, credits map[string]int64, res *Result) error {
	s := m.state

	// Net deltas must be computed before Settle closes the books.
	deltas := make(map[string]int64, len(s.Players))
	for _, p := range s.Players {
		if p.Contributed == 0 && credits[p.UserID] == 0 {
			continue
		}
		deltas[p.UserID] = credits[p.UserID] - p.Contributed
	}

	res.SettledPot = s.Pot

	if err := m.ledger.Settle(s, credits); err != nil {
		return err
	}
	res.LedgerChanged = true

	for userID, delta := range deltas {
		if delta == 0 {
			continue
		}
		if err := m.persistDelta(ctx, userID, delta); err != nil {
			return &LedgerInvariantViolation{
				ChannelID: s.ChannelID,
				Detail:    fmt.Sprintf("payout persistence failed for %s: %v", userID, err),
			}
		}
	}

	// Walk the remaining phase graph to PAYOUT (a fold-win ends a poker
	// round before the later streets; they pass through without acting),
	// then PAYOUT always returns to WAITING.
	for s.Phase != Payout {
		s.advancePhase()
	}
	s.advancePhase()
	s.resetRound()
	m.acted = make(map[string]bool)
	m.removeDepartedSeats()
	return nil
}

func (m *Machine) persistDelta(ctx context.Context, userID string, delta int64) error {
	var lastErr error
	backoff := m.rules.PersistBackoff

	for attempt := 0; attempt < m.rules.PersistAttempts; attempt++ {
		if attempt > 0 {
			timer := m.clock.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
			backoff *= 2
		}

		lastErr = m.store.SaveBalanceDelta(ctx, m.state.ChannelID, userID, delta)
		if lastErr == nil {
			return nil
		}
		metrics.PersistRetries.Inc()
		m.logger.Warn().
			Err(lastErr).
			Str("user", userID).
			Int("attempt", attempt+1).
			Msg("Balance persistence failed, retrying")
	}
	return lastErr
}

// removeDepartedSeats releases seats of players who left mid-round. Only
// called at round boundaries when phase is WAITING.
func (m *Machine) removeDepartedSeats() {
	var departed []string
	for _, p := range m.state.Players {
		if p.Status == StatusSittingOut || p.Departed {
			departed = append(departed, p.UserID)
		}
	}
	for _, userID := range departed {
		m.state.unseat(userID)
	}
}

// activeSeats returns users able to start a round, in seating order.
func (m *Machine) activeSeats() []string {
	var out []string
	for _, p := range m.state.Players {
		if p.Status == StatusActive {
			out = append(out, p.UserID)
		}
	}
	return out
}

func (m *Machine) turnTimeout() time.Duration {
	if m.rules.TurnTimeout > 0 {
		return m.rules.TurnTimeout
	}
	return 30 * time.Second
}
