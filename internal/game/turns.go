package game

import (
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
)

// SubmitFunc re-enters a synthetic event into the owning channel's
// serialized queue. Timer callbacks never touch channel state directly; the
// only thing a fired deadline may do is submit an event like everyone else.
type SubmitFunc func(Event)

// TurnScheduler owns turn advancement and the single outstanding deadline
// for one channel.
type TurnScheduler struct {
	clock  quartz.Clock
	logger zerolog.Logger
	submit SubmitFunc
	timer  *quartz.Timer
}

// NewTurnScheduler creates a scheduler for one channel.
func NewTurnScheduler(clock quartz.Clock, logger zerolog.Logger, submit SubmitFunc) *TurnScheduler {
	return &TurnScheduler{
		clock:  clock,
		logger: logger.With().Str("component", "turns").Logger(),
		submit: submit,
	}
}

// Advance moves the turn pointer to the next player able to act, walking
// TurnOrder forward and wrapping as needed. Returns false when nobody can
// act anymore, which signals the end of the acting phase rather than a loop.
func (ts *TurnScheduler) Advance(s *ChannelState) (string, bool) {
	n := len(s.TurnOrder)
	if n == 0 {
		return "", false
	}

	for i := 1; i <= n; i++ {
		idx := (s.TurnIndex + i) % n
		p, ok := s.PlayerByID(s.TurnOrder[idx])
		if !ok || !p.CanAct() {
			continue
		}
		s.TurnIndex = idx
		return p.UserID, true
	}
	return "", false
}

// FirstTurn points the turn at the first actable player in TurnOrder.
func (ts *TurnScheduler) FirstTurn(s *ChannelState) (string, bool) {
	s.TurnIndex = -1
	return ts.Advance(s)
}

// ArmDeadline cancels any prior deadline and arms a new one for the given
// user's turn. On expiry exactly one synthetic timeout event is submitted to
// the channel queue, stamped with the arming sequence so it becomes a no-op
// if the turn has already moved on by the time it is processed.
func (ts *TurnScheduler) ArmDeadline(s *ChannelState, userID string, d time.Duration) {
	ts.CancelDeadline(s)

	s.deadlineSeq++
	seq := s.deadlineSeq
	channelID := s.ChannelID
	now := ts.clock.Now()
	s.DeadlineAt = now.Add(d)

	ts.timer = ts.clock.AfterFunc(d, func() {
		ts.submit(Event{
			ChannelID:   channelID,
			UserID:      userID,
			Action:      ActionTimeout,
			Timestamp:   ts.clock.Now(),
			deadlineSeq: seq,
			synthetic:   true,
		})
	})

	ts.logger.Debug().
		Str("user", userID).
		Dur("timeout", d).
		Uint64("seq", seq).
		Msg("Deadline armed")
}

// CancelDeadline stops the outstanding deadline, if any. Bumping the
// sequence here means a timer that already fired but has not been processed
// yet is recognized as stale inside the serialized queue.
func (ts *TurnScheduler) CancelDeadline(s *ChannelState) {
	if ts.timer != nil {
		ts.timer.Stop()
		ts.timer = nil
	}
	if !s.DeadlineAt.IsZero() {
		s.deadlineSeq++
		s.DeadlineAt = time.Time{}
	}
}

// DeadlineCurrent reports whether a synthetic timeout event corresponds to
// the deadline that is still armed.
func (ts *TurnScheduler) DeadlineCurrent(s *ChannelState, ev Event) bool {
	return ev.synthetic && ev.deadlineSeq == s.deadlineSeq && !s.DeadlineAt.IsZero()
}
