// Package server exposes the card engine over websockets plus a small
// admin HTTP surface. All game mutation still funnels through the router
// and the per-channel queues; connections only translate frames.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aceystream/cardtable/internal/hub"
	"github.com/aceystream/cardtable/internal/router"
)

// Server is the websocket ingress.
type Server struct {
	addr     string
	upgrader websocket.Upgrader
	router   *router.Router
	hub      *hub.Hub
	logger   zerolog.Logger

	mu          sync.Mutex
	connections map[*Connection]bool

	httpServer *http.Server
}

// New builds the websocket server. It does not listen until Start.
func New(addr string, rt *router.Router, h *hub.Hub, logger zerolog.Logger) *Server {
	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			// Chat collaborators connect from arbitrary origins.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		router:      rt,
		hub:         h,
		logger:      logger.With().Str("component", "server").Logger(),
		connections: make(map[*Connection]bool),
	}
}

// Start blocks serving websocket upgrades until Stop or listen failure.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}
	s.logger.Info().Str("addr", s.addr).Msg("listening for websocket clients")

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the listener down and closes every live connection.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.connections))
	for c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newConnection(conn, s.router, s.hub, s.logger, func(c *Connection) {
		s.mu.Lock()
		delete(s.connections, c)
		total := len(s.connections)
		s.mu.Unlock()
		s.logger.Debug().Int("total", total).Msg("client disconnected")
	})

	s.mu.Lock()
	s.connections[client] = true
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Debug().Int("total", total).Msg("client connected")

	client.Start()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ConnectionCount reports the number of live websocket clients.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}
