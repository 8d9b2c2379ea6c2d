package server

import (
	"errors"

	"github.com/aceystream/cardtable/internal/game"
	"github.com/aceystream/cardtable/internal/hub"
	"github.com/aceystream/cardtable/internal/router"
)

// ClientMessage is the inbound websocket envelope.
type ClientMessage struct {
	Type string `json:"type"` // "command", "subscribe", "unsubscribe" or "snapshot"

	// Command is set for type "command".
	Command *router.Command `json:"command,omitempty"`

	// ChannelID is set for subscribe, unsubscribe and snapshot requests.
	ChannelID string `json:"channelId,omitempty"`
}

// ServerMessage is the outbound websocket envelope. Exactly one of Frame,
// View or Error is populated, keyed by Type.
type ServerMessage struct {
	Type      string     `json:"type"` // "frame", "snapshot", "ack" or "error"
	ChannelID string     `json:"channelId,omitempty"`
	Frame     *hub.Frame `json:"frame,omitempty"`
	View      *game.View `json:"view,omitempty"`
	Error     *WireError `json:"error,omitempty"`
}

// WireError is a machine-readable rejection.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorCode maps the engine's error taxonomy onto stable wire codes.
func errorCode(err error) string {
	var verr *game.ValidationError
	var ferr *game.InsufficientFundsError
	var lerr *game.LedgerInvariantViolation
	switch {
	case errors.As(err, &ferr):
		return "insufficient_funds"
	case errors.As(err, &verr):
		// The reason carries the engine's rejection taxonomy
		// (wrong_turn, wrong_phase, illegal_action) to the client.
		return string(verr.Reason)
	case errors.As(err, &lerr):
		return "channel_frozen"
	case errors.Is(err, game.ErrChannelFrozen):
		return "channel_frozen"
	case errors.Is(err, game.ErrChannelBusy):
		return "channel_busy"
	case errors.Is(err, game.ErrUnknownChannel):
		return "unknown_channel"
	case errors.Is(err, router.ErrDuplicate):
		return "duplicate"
	case errors.Is(err, router.ErrMissingChannel), errors.Is(err, router.ErrMissingUser):
		return "invalid_message"
	default:
		return "internal_error"
	}
}
