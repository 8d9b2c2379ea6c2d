package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aceystream/cardtable/internal/game"
	"github.com/aceystream/cardtable/internal/registry"
	"github.com/aceystream/cardtable/internal/store"
)

func newAdminStack(t *testing.T) (*registry.Registry, *httptest.Server, *quartz.Mock) {
	t.Helper()
	clock := quartz.NewMock(t)
	reg := registry.New(registry.Options{
		Store:  store.NewMemoryStore(1000),
		Clock:  clock,
		Logger: zerolog.Nop(),
	})
	admin := NewAdmin("", reg, zerolog.Nop())
	ts := httptest.NewServer(admin.Handler())
	t.Cleanup(func() {
		ts.Close()
		reg.Close()
	})
	return reg, ts, clock
}

func adminGet(t *testing.T, ts *httptest.Server, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func adminPost(t *testing.T, ts *httptest.Server, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestAdminHealth(t *testing.T) {
	_, ts, _ := newAdminStack(t)
	status, body := adminGet(t, ts, "/health")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(body), "ok")
}

func TestAdminListsChannels(t *testing.T) {
	reg, ts, clock := newAdminStack(t)

	_, err := reg.GetOrCreate("chan-1", game.ModeBlackjack)
	require.NoError(t, err)
	_, err = reg.Dispatch(context.Background(), game.Event{
		ChannelID: "chan-1", UserID: "alice", Action: game.ActionJoin,
		Timestamp: clock.Now(),
	})
	require.NoError(t, err)

	status, body := adminGet(t, ts, "/channels")
	require.Equal(t, http.StatusOK, status)

	var payload struct {
		Count    int                    `json:"count"`
		Channels []registry.ChannelInfo `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Equal(t, 1, payload.Count)
	require.Equal(t, "chan-1", payload.Channels[0].ChannelID)
	require.Equal(t, 1, payload.Channels[0].Players)
	require.True(t, payload.Channels[0].Evictable)
}

func TestAdminSnapshot(t *testing.T) {
	reg, ts, _ := newAdminStack(t)
	_, err := reg.GetOrCreate("chan-1", game.ModePoker)
	require.NoError(t, err)

	status, body := adminGet(t, ts, "/channels/chan-1/snapshot")
	require.Equal(t, http.StatusOK, status)

	var view game.View
	require.NoError(t, json.Unmarshal(body, &view))
	require.Equal(t, "poker", view.Mode)
	require.Equal(t, "WAITING", view.Phase)
}

func TestAdminSnapshotUnknownChannel(t *testing.T) {
	_, ts, _ := newAdminStack(t)
	status, body := adminGet(t, ts, "/channels/nope/snapshot")
	require.Equal(t, http.StatusNotFound, status)
	require.Contains(t, string(body), "unknown_channel")
}

func TestAdminResetReturnsChannelToWaiting(t *testing.T) {
	reg, ts, clock := newAdminStack(t)
	_, err := reg.GetOrCreate("chan-1", game.ModeBlackjack)
	require.NoError(t, err)

	ctx := context.Background()
	for _, ev := range []game.Event{
		{ChannelID: "chan-1", UserID: "alice", Action: game.ActionJoin},
		{ChannelID: "chan-1", UserID: "alice", Action: game.ActionBet, Payload: game.Payload{Amount: 25}},
	} {
		ev.Timestamp = clock.Now()
		_, err := reg.Dispatch(ctx, ev)
		require.NoError(t, err)
	}

	status, body := adminPost(t, ts, "/channels/chan-1/reset")
	require.Equal(t, http.StatusOK, status)

	var view game.View
	require.NoError(t, json.Unmarshal(body, &view))
	require.Equal(t, "WAITING", view.Phase)
	require.Equal(t, int64(0), view.Pot)

	// The wager was refunded, not kept.
	for _, pv := range view.Players {
		require.Equal(t, int64(1000), pv.Balance)
	}
}

func TestAdminMetricsEndpoint(t *testing.T) {
	_, ts, _ := newAdminStack(t)
	status, body := adminGet(t, ts, "/metrics")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(body), "cardtable_")
}
