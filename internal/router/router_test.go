package router

import (
	"context"
	"testing"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aceystream/cardtable/internal/game"
	"github.com/aceystream/cardtable/internal/registry"
	"github.com/aceystream/cardtable/internal/store"
)

func newTestRouter(t *testing.T) (*Router, *quartz.Mock) {
	t.Helper()
	clock := quartz.NewMock(t)
	reg := registry.New(registry.Options{
		Store:  store.NewMemoryStore(1000),
		Clock:  clock,
		Logger: zerolog.Nop(),
	})
	t.Cleanup(reg.Close)
	return New(reg, clock, zerolog.Nop(), 0), clock
}

func TestRouteRequiresChannelTag(t *testing.T) {
	t.Parallel()
	r, _ := newTestRouter(t)

	_, err := r.Route(context.Background(), Command{UserID: "alice", Action: "join"})
	require.ErrorIs(t, err, ErrMissingChannel)

	_, err = r.Route(context.Background(), Command{ChannelID: "chan-1", Action: "join"})
	require.ErrorIs(t, err, ErrMissingUser)
}

func TestRouteRejectsUnknownAction(t *testing.T) {
	t.Parallel()
	r, _ := newTestRouter(t)

	_, err := r.Route(context.Background(), Command{
		ChannelID: "chan-1", UserID: "alice", Action: "teleport",
	})
	var verr *game.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, game.ReasonIllegalAction, verr.Reason)
}

func TestRouteCreatingJoinNeedsMode(t *testing.T) {
	t.Parallel()
	r, _ := newTestRouter(t)

	_, err := r.Route(context.Background(), Command{
		ChannelID: "chan-1", UserID: "alice", Action: "join",
	})
	var verr *game.ValidationError
	require.ErrorAs(t, err, &verr)

	res, err := r.Route(context.Background(), Command{
		ChannelID: "chan-1", UserID: "alice", Action: "join",
		Payload: Payload{Mode: "blackjack"},
	})
	require.NoError(t, err)
	require.Equal(t, "blackjack", res.View.Mode)
}

func TestRouteNonJoinOnUnknownChannel(t *testing.T) {
	t.Parallel()
	r, _ := newTestRouter(t)

	_, err := r.Route(context.Background(), Command{
		ChannelID: "chan-1", UserID: "alice", Action: "bet",
		Payload: Payload{Amount: 10},
	})
	require.ErrorIs(t, err, game.ErrUnknownChannel)
}

func TestRouteDebouncesDuplicates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, clock := newTestRouter(t)

	_, err := r.Route(ctx, Command{
		ChannelID: "chan-1", UserID: "alice", Action: "join",
		Payload: Payload{Mode: "blackjack"},
	})
	require.NoError(t, err)

	// An identical command inside the window is a chat retransmission.
	_, err = r.Route(ctx, Command{
		ChannelID: "chan-1", UserID: "alice", Action: "join",
		Payload: Payload{Mode: "blackjack"},
	})
	require.ErrorIs(t, err, ErrDuplicate)

	// A different action from the same user passes.
	_, err = r.Route(ctx, Command{
		ChannelID: "chan-1", UserID: "alice", Action: "bet",
		Payload: Payload{Amount: 10},
	})
	require.NoError(t, err)

	// So does the same action from another user.
	_, err = r.Route(ctx, Command{
		ChannelID: "chan-1", UserID: "bob", Action: "join",
	})
	require.NoError(t, err)

	// And the same action again once the window has passed.
	clock.Advance(DefaultDebounce)
	_, err = r.Route(ctx, Command{
		ChannelID: "chan-1", UserID: "alice", Action: "join",
	})
	require.NoError(t, err)
}

func TestRouteRejectedCommandDoesNotShadowRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, _ := newTestRouter(t)

	_, err := r.Route(ctx, Command{
		ChannelID: "chan-1", UserID: "alice", Action: "join",
		Payload: Payload{Mode: "blackjack"},
	})
	require.NoError(t, err)

	// A bet of zero is rejected by the machine.
	_, err = r.Route(ctx, Command{
		ChannelID: "chan-1", UserID: "alice", Action: "bet",
	})
	var verr *game.ValidationError
	require.ErrorAs(t, err, &verr)

	// The immediate correction lands; only accepted commands debounce.
	_, err = r.Route(ctx, Command{
		ChannelID: "chan-1", UserID: "alice", Action: "bet",
		Payload: Payload{Amount: 10},
	})
	require.NoError(t, err)
}

func TestRouteDuplicateHitMutatesOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, _ := newTestRouter(t)

	_, err := r.Route(ctx, Command{
		ChannelID: "chan-1", UserID: "alice", Action: "join",
		Payload: Payload{Mode: "blackjack"},
	})
	require.NoError(t, err)
	_, err = r.Route(ctx, Command{
		ChannelID: "chan-1", UserID: "alice", Action: "bet",
		Payload: Payload{Amount: 10},
	})
	require.NoError(t, err)
	res, err := r.Route(ctx, Command{
		ChannelID: "chan-1", UserID: "alice", Action: "start",
	})
	require.NoError(t, err)

	if res.View.Phase != "PLAYER_TURNS" {
		t.Skip("hand resolved on the deal")
	}
	var cards int
	for _, pv := range res.View.Players {
		if pv.UserID == "alice" {
			cards = len(pv.Hand)
		}
	}

	first, err := r.Route(ctx, Command{ChannelID: "chan-1", UserID: "alice", Action: "hit"})
	require.NoError(t, err)

	_, err = r.Route(ctx, Command{ChannelID: "chan-1", UserID: "alice", Action: "hit"})
	require.ErrorIs(t, err, ErrDuplicate, "rapid duplicate hit must not act twice")

	for _, pv := range first.View.Players {
		if pv.UserID == "alice" {
			require.Equal(t, cards+1, len(pv.Hand), "exactly one card drawn")
		}
	}
}
