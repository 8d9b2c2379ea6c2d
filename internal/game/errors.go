package game

import (
	"errors"
	"fmt"
)

// ValidationReason is the machine-readable code attached to a rejected action.
type ValidationReason string

const (
	ReasonWrongTurn         ValidationReason = "wrong_turn"
	ReasonWrongPhase        ValidationReason = "wrong_phase"
	ReasonInsufficientFunds ValidationReason = "insufficient_funds"
	ReasonIllegalAction     ValidationReason = "illegal_action"
)

// ValidationError rejects an action without mutating state. It is reported
// only to the acting user, never broadcast.
type ValidationError struct {
	Reason ValidationReason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func newValidationError(reason ValidationReason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// InsufficientFundsError rejects a wager that exceeds the player's balance.
type InsufficientFundsError struct {
	UserID string
	Need   int64
	Have   int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for %s: need %d, have %d", e.UserID, e.Need, e.Have)
}

// LedgerInvariantViolation is fatal for the owning channel: the channel is
// frozen and an operator must intervene. Other channels are unaffected.
type LedgerInvariantViolation struct {
	ChannelID string
	Detail    string
}

func (e *LedgerInvariantViolation) Error() string {
	return fmt.Sprintf("ledger invariant violated on channel %s: %s", e.ChannelID, e.Detail)
}

var (
	// ErrUnknownChannel rejects events for channels that cannot be resolved
	// or created (malformed or missing channel id).
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrChannelBusy is the backpressure signal returned when a channel's
	// event queue is saturated. Callers may retry.
	ErrChannelBusy = errors.New("channel event queue full")

	// ErrChannelFrozen is returned for every event submitted to a channel
	// that hit a fatal ledger violation and awaits operator intervention.
	ErrChannelFrozen = errors.New("channel frozen pending operator intervention")
)
