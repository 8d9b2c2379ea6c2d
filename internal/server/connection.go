package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aceystream/cardtable/internal/hub"
	"github.com/aceystream/cardtable/internal/router"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

// Connection is one websocket client. Commands flow through the router;
// state frames flow back through hub subscriptions held by the connection.
type Connection struct {
	conn   *websocket.Conn
	send   chan *ServerMessage
	router *router.Router
	hub    *hub.Hub
	logger zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	onClose   func(*Connection)

	mu   sync.Mutex
	subs map[string]*hub.Subscription
}

func newConnection(conn *websocket.Conn, rt *router.Router, h *hub.Hub, logger zerolog.Logger, onClose func(*Connection)) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		conn:    conn,
		send:    make(chan *ServerMessage, 256),
		router:  rt,
		hub:     h,
		logger:  logger.With().Str("component", "conn").Str("remote", conn.RemoteAddr().String()).Logger(),
		ctx:     ctx,
		cancel:  cancel,
		onClose: onClose,
		subs:    make(map[string]*hub.Subscription),
	}
}

// Start begins handling the connection.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close tears down the connection and releases its hub subscriptions.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		c.mu.Lock()
		for id, sub := range c.subs {
			delete(c.subs, id)
			sub.Close()
		}
		c.mu.Unlock()
		close(c.send)
		err = c.conn.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
	return err
}

func (c *Connection) enqueue(msg *ServerMessage) {
	defer func() {
		// The send channel closes during teardown; a late frame from a hub
		// pump is dropped, not a crash.
		if r := recover(); r != nil {
			c.logger.Debug().Msg("dropped message for closed connection")
		}
	}()

	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	default:
		c.logger.Warn().Msg("send buffer full, closing connection")
		_ = c.Close()
	}
}

func (c *Connection) sendError(channelID, code, message string) {
	c.enqueue(&ServerMessage{
		Type:      "error",
		ChannelID: channelID,
		Error:     &WireError{Code: code, Message: message},
	})
}

func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) handleMessage(msg *ClientMessage) {
	switch msg.Type {
	case "command":
		c.handleCommand(msg)
	case "subscribe":
		c.handleSubscribe(msg.ChannelID)
	case "unsubscribe":
		c.handleUnsubscribe(msg.ChannelID)
	case "snapshot":
		c.handleSnapshot(msg.ChannelID)
	default:
		c.sendError("", "unknown_message_type", "unknown message type: "+msg.Type)
	}
}

func (c *Connection) handleCommand(msg *ClientMessage) {
	if msg.Command == nil {
		c.sendError("", "invalid_message", "command envelope missing command body")
		return
	}
	cmd := *msg.Command
	if _, err := c.router.Route(c.ctx, cmd); err != nil {
		c.sendError(cmd.ChannelID, errorCode(err), err.Error())
		return
	}
	// State changes arrive as hub frames on the channel subscription.
	c.enqueue(&ServerMessage{Type: "ack", ChannelID: cmd.ChannelID})
}

func (c *Connection) handleSubscribe(channelID string) {
	if channelID == "" {
		c.sendError("", "invalid_message", "subscribe requires channelId")
		return
	}

	c.mu.Lock()
	if _, ok := c.subs[channelID]; ok {
		c.mu.Unlock()
		return
	}
	sub := c.hub.Subscribe(channelID)
	c.subs[channelID] = sub
	c.mu.Unlock()

	go func() {
		for frame := range sub.C {
			f := frame
			c.enqueue(&ServerMessage{Type: "frame", ChannelID: channelID, Frame: &f})
		}
	}()
}

func (c *Connection) handleUnsubscribe(channelID string) {
	c.mu.Lock()
	sub, ok := c.subs[channelID]
	if ok {
		delete(c.subs, channelID)
	}
	c.mu.Unlock()
	if ok {
		sub.Close()
	}
}

func (c *Connection) handleSnapshot(channelID string) {
	if channelID == "" {
		c.sendError("", "invalid_message", "snapshot requires channelId")
		return
	}
	view, err := c.router.Snapshot(c.ctx, channelID)
	if err != nil {
		c.sendError(channelID, errorCode(err), err.Error())
		return
	}
	c.enqueue(&ServerMessage{Type: "snapshot", ChannelID: channelID, View: &view})
}
