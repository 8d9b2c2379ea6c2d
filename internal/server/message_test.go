package server

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aceystream/cardtable/internal/game"
	"github.com/aceystream/cardtable/internal/router"
)

func TestErrorCodeMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"wrong turn keeps its reason", &game.ValidationError{Reason: game.ReasonWrongTurn}, "wrong_turn"},
		{"wrong phase keeps its reason", &game.ValidationError{Reason: game.ReasonWrongPhase}, "wrong_phase"},
		{"illegal action keeps its reason", &game.ValidationError{Reason: game.ReasonIllegalAction}, "illegal_action"},
		{"insufficient funds", &game.InsufficientFundsError{UserID: "alice", Need: 50, Have: 10}, "insufficient_funds"},
		{"ledger violation freezes", &game.LedgerInvariantViolation{ChannelID: "chan-1"}, "channel_frozen"},
		{"frozen channel", game.ErrChannelFrozen, "channel_frozen"},
		{"busy queue", game.ErrChannelBusy, "channel_busy"},
		{"unknown channel", game.ErrUnknownChannel, "unknown_channel"},
		{"debounced duplicate", router.ErrDuplicate, "duplicate"},
		{"missing channel tag", router.ErrMissingChannel, "invalid_message"},
		{"missing user tag", router.ErrMissingUser, "invalid_message"},
		{"anything else", errors.New("boom"), "internal_error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.code, errorCode(tc.err))
		})
	}
}
