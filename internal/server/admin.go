package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aceystream/cardtable/internal/game"
	"github.com/aceystream/cardtable/internal/registry"
)

// AdminServer is the operator surface: channel listing, snapshots, resets
// and prometheus metrics. Resets go through the same serialized queue as
// player actions, so an operator can never race a live round.
type AdminServer struct {
	addr     string
	registry *registry.Registry
	logger   zerolog.Logger

	httpServer *http.Server
}

// NewAdmin builds the admin server.
func NewAdmin(addr string, reg *registry.Registry, logger zerolog.Logger) *AdminServer {
	return &AdminServer{
		addr:     addr,
		registry: reg,
		logger:   logger.With().Str("component", "admin").Logger(),
	}
}

// Handler returns the admin mux, exposed for tests.
func (a *AdminServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /channels", a.handleChannels)
	mux.HandleFunc("GET /channels/{id}/snapshot", a.handleSnapshot)
	mux.HandleFunc("POST /channels/{id}/reset", a.handleReset)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Start blocks serving admin requests until Stop or listen failure.
func (a *AdminServer) Start() error {
	a.httpServer = &http.Server{Addr: a.addr, Handler: a.Handler()}
	a.logger.Info().Str("addr", a.addr).Msg("admin server listening")

	err := a.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the admin listener down.
func (a *AdminServer) Stop(ctx context.Context) error {
	if a.httpServer == nil {
		return nil
	}
	return a.httpServer.Shutdown(ctx)
}

func (a *AdminServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *AdminServer) handleChannels(w http.ResponseWriter, _ *http.Request) {
	channels := a.registry.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(channels),
		"channels": channels,
	})
}

func (a *AdminServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	view, err := a.registry.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *AdminServer) handleReset(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("id")
	res, err := a.registry.Dispatch(r.Context(), game.Event{
		ChannelID: channelID,
		UserID:    "operator",
		Action:    game.ActionReset,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	a.logger.Info().Str("channel_id", channelID).Msg("channel reset by operator")
	writeJSON(w, http.StatusOK, res.View)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, game.ErrUnknownChannel):
		status = http.StatusNotFound
	case errors.Is(err, game.ErrChannelBusy):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  errorCode(err),
	})
}
