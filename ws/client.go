package ws

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"ad-eraser-server/session"
	"ad-eraser-server/wsutil"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub     *Hub
	Conn    *websocket.Conn
	Send    chan []byte
	Limiter *rate.Limiter

	mu     sync.Mutex
	name   string
	runner *session.Runner
}

// PlayerName returns the declared name, or nil for an anonymous player.
func (c *Client) PlayerName() *string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.name == "" {
		return nil
	}
	name := c.name
	return &name
}

// SetName records the player's leaderboard name. Callers validate it first.
func (c *Client) SetName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
}

// SetRunner attaches the client's active session.
func (c *Client) SetRunner(r *session.Runner) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runner = r
}

// Runner returns the client's active session, or nil.
func (c *Client) Runner() *session.Runner {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runner
}

// ClearRunner detaches r if it is still the active session.
func (c *Client) ClearRunner(r *session.Runner) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runner == r {
		c.runner = nil
	}
}

func (c *Client) activeRunner() *session.Runner {
	r := c.Runner()
	if r == nil {
		return nil
	}
	select {
	case <-r.Done:
		c.ClearRunner(r)
		return nil
	default:
		return r
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
// It runs in its own goroutine per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("read error", "tag", "ws", "err", err)
			}
			break
		}

		if c.Limiter != nil && !c.Limiter.Allow() {
			c.sendError("Too many messages.")
			continue
		}
		c.handleMessage(message)
	}
}

// WritePump pumps messages from the send channel to the websocket connection.
// It runs in its own goroutine per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var envelope InboundEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.sendError("Invalid message format.")
		return
	}

	switch envelope.Type {
	case "set_name":
		c.handleSetName(envelope.Raw)
	case "start", "play_again":
		c.handleStart()
	case "dismiss":
		c.handleDismiss(envelope.Raw)
	case "miss":
		c.post(session.Action{Type: session.ActionMiss})
	case "abandon":
		c.handleAbandon()
	default:
		c.sendError("Unknown message type: " + envelope.Type)
	}
}

func (c *Client) handleSetName(raw json.RawMessage) {
	var msg SetNameMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("Invalid set_name message.")
		return
	}

	maxLen := c.Hub.Config.MaxNameLength
	name := strings.TrimSpace(msg.Name)
	if n := utf8.RuneCountInString(name); n < 1 || n > maxLen {
		c.sendError("Name must be between 1 and " + strconv.Itoa(maxLen) + " characters.")
		return
	}
	if c.activeRunner() != nil {
		c.sendError("Cannot change name during a session.")
		return
	}

	c.SetName(name)
	c.sendJSON(NameSetMsg{Type: "name_set", Name: name})
}

func (c *Client) handleStart() {
	if c.activeRunner() != nil {
		c.sendError("A session is already running.")
		return
	}
	c.Hub.Lobby.Start(c)
}

func (c *Client) handleDismiss(raw json.RawMessage) {
	var msg DismissMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("Invalid dismiss message.")
		return
	}
	c.post(session.Action{Type: session.ActionSuccess, Hint: msg.Hint()})
}

func (c *Client) handleAbandon() {
	r := c.activeRunner()
	if r == nil {
		return
	}
	r.Abandon()
	c.ClearRunner(r)
}

func (c *Client) post(a session.Action) {
	r := c.activeRunner()
	if r == nil {
		c.sendError("No session is running.")
		return
	}
	if !r.Post(a) {
		slog.Warn("dropped action", "tag", "ws", "session", r.ID, "action", a.Type)
	}
}

func (c *Client) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal outbound message", "tag", "ws", "err", err)
		return
	}
	wsutil.SafeSend(c.Send, data)
}

func (c *Client) sendError(message string) {
	c.sendJSON(ErrorMsg{Type: "error", Message: message})
}
