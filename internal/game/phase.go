package game

import "fmt"

// Mode selects which table variant a channel runs.
type Mode int

const (
	ModeBlackjack Mode = iota
	ModePoker
)

// String returns the string representation of a mode
func (m Mode) String() string {
	switch m {
	case ModeBlackjack:
		return "blackjack"
	case ModePoker:
		return "poker"
	default:
		return "unknown"
	}
}

// ParseMode parses a wire-format mode string.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "blackjack":
		return ModeBlackjack, nil
	case "poker":
		return ModePoker, nil
	default:
		return 0, fmt.Errorf("unknown game mode %q", s)
	}
}

// Phase is a state in the per-channel round state machine. Waiting is both
// the initial state and the terminal state of every round.
type Phase int

const (
	Waiting Phase = iota

	// Blackjack round phases
	BettingOpen
	BettingClosed
	Dealing
	PlayerTurns
	DealerTurn

	// Poker round phases
	Blinds
	Preflop
	Flop
	Turn
	River
	Showdown

	// Shared settlement phase
	Payout
)

// String returns the wire representation of a phase
func (p Phase) String() string {
	switch p {
	case Waiting:
		return "WAITING"
	case BettingOpen:
		return "BETTING_OPEN"
	case BettingClosed:
		return "BETTING_CLOSED"
	case Dealing:
		return "DEALING"
	case PlayerTurns:
		return "PLAYER_TURNS"
	case DealerTurn:
		return "DEALER_TURN"
	case Blinds:
		return "BLINDS"
	case Preflop:
		return "PREFLOP"
	case Flop:
		return "FLOP"
	case Turn:
		return "TURN"
	case River:
		return "RIVER"
	case Showdown:
		return "SHOWDOWN"
	case Payout:
		return "PAYOUT"
	default:
		return "UNKNOWN"
	}
}

// IsActing reports whether the phase is one in which a seated player may act.
func (p Phase) IsActing() bool {
	switch p {
	case PlayerTurns, Preflop, Flop, Turn, River:
		return true
	default:
		return false
	}
}

// phaseGraph declares the only legal forward transitions per mode. Every
// transition in the engine goes through ChannelState.advancePhase, which
// enforces this table.
var phaseGraph = map[Mode]map[Phase]Phase{
	ModeBlackjack: {
		Waiting:       BettingOpen,
		BettingOpen:   BettingClosed,
		BettingClosed: Dealing,
		Dealing:       PlayerTurns,
		PlayerTurns:   DealerTurn,
		DealerTurn:    Payout,
		Payout:        Waiting,
	},
	ModePoker: {
		Waiting:  Blinds,
		Blinds:   Preflop,
		Preflop:  Flop,
		Flop:     Turn,
		Turn:     River,
		River:    Showdown,
		Showdown: Payout,
		Payout:   Waiting,
	},
}

// NextPhase returns the successor of p in the given mode's round graph.
func NextPhase(mode Mode, p Phase) (Phase, bool) {
	next, ok := phaseGraph[mode][p]
	return next, ok
}
