package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aceystream/cardtable/internal/randutil"
)

func newTurnState(t *testing.T, users ...string) *ChannelState {
	t.Helper()
	s := NewChannelState("chan-1", ModePoker, randutil.New(1), time.Unix(0, 0))
	for _, u := range users {
		s.seat(&Player{UserID: u, Status: StatusActive})
	}
	s.TurnOrder = users
	return s
}

func TestAdvanceWrapsAndSkipsInactive(t *testing.T) {
	t.Parallel()
	clock := quartz.NewMock(t)
	ts := NewTurnScheduler(clock, zerolog.Nop(), func(Event) {})
	s := newTurnState(t, "a", "b", "c")

	user, ok := ts.FirstTurn(s)
	require.True(t, ok)
	require.Equal(t, "a", user)

	b, _ := s.PlayerByID("b")
	b.Status = StatusFolded

	user, ok = ts.Advance(s)
	require.True(t, ok)
	require.Equal(t, "c", user, "folded seats are skipped")

	user, ok = ts.Advance(s)
	require.True(t, ok)
	require.Equal(t, "a", user, "advance wraps around the order")
}

func TestAdvanceReturnsFalseWhenNobodyCanAct(t *testing.T) {
	t.Parallel()
	clock := quartz.NewMock(t)
	ts := NewTurnScheduler(clock, zerolog.Nop(), func(Event) {})
	s := newTurnState(t, "a", "b")
	for _, p := range s.Players {
		p.Status = StatusAllIn
	}

	_, ok := ts.Advance(s)
	require.False(t, ok)
}

func TestArmDeadlineSubmitsSyntheticTimeout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := quartz.NewMock(t)

	var mu sync.Mutex
	var got []Event
	ts := NewTurnScheduler(clock, zerolog.Nop(), func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	s := newTurnState(t, "a")

	ts.ArmDeadline(s, "a", 30*time.Second)
	require.False(t, s.DeadlineAt.IsZero())

	clock.Advance(30 * time.Second).MustWait(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	ev := got[0]
	require.Equal(t, "chan-1", ev.ChannelID)
	require.Equal(t, "a", ev.UserID)
	require.Equal(t, ActionTimeout, ev.Action)
	require.True(t, ev.Synthetic())
	require.True(t, ts.DeadlineCurrent(s, ev))
}

func TestCancelledDeadlineBecomesStale(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := quartz.NewMock(t)

	var mu sync.Mutex
	var got []Event
	ts := NewTurnScheduler(clock, zerolog.Nop(), func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	s := newTurnState(t, "a")

	ts.ArmDeadline(s, "a", 10*time.Second)
	clock.Advance(10 * time.Second).MustWait(ctx)

	mu.Lock()
	ev := got[0]
	mu.Unlock()

	// The event fired but a human action cancels before it is processed.
	ts.CancelDeadline(s)
	require.False(t, ts.DeadlineCurrent(s, ev), "cancelled deadline must be stale")
	require.True(t, s.DeadlineAt.IsZero())
}

func TestRearmedDeadlineInvalidatesOldEvent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := quartz.NewMock(t)

	var mu sync.Mutex
	var got []Event
	ts := NewTurnScheduler(clock, zerolog.Nop(), func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	s := newTurnState(t, "a", "b")

	ts.ArmDeadline(s, "a", 10*time.Second)
	clock.Advance(10 * time.Second).MustWait(ctx)

	ts.ArmDeadline(s, "b", 10*time.Second)

	mu.Lock()
	first := got[0]
	mu.Unlock()
	require.False(t, ts.DeadlineCurrent(s, first), "old turn's timeout is stale after re-arm")

	clock.Advance(10 * time.Second).MustWait(ctx)
	mu.Lock()
	second := got[len(got)-1]
	mu.Unlock()
	require.Equal(t, "b", second.UserID)
	require.True(t, ts.DeadlineCurrent(s, second))
}
