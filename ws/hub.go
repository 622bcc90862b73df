package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"ad-eraser-server/config"
	"ad-eraser-server/eventbus"
	"ad-eraser-server/wsutil"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development; restrict in production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// LobbyInterface defines what the Hub needs from the session lobby.
type LobbyInterface interface {
	Start(c *Client)
	Abandon(c *Client)
}

// Hub maintains the set of active clients and fans out leaderboard updates.
type Hub struct {
	Clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	Lobby      LobbyInterface
	Config     *config.Config

	// Updates delivers score events; shared ones become a leaderboard_updated broadcast. May be nil.
	Updates <-chan eventbus.ScoreRecorded
}

// NewHub creates a new Hub.
func NewHub(cfg *config.Config, lobby LobbyInterface, updates <-chan eventbus.ScoreRecorded) *Hub {
	return &Hub{
		Clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Lobby:      lobby,
		Config:     cfg,
		Updates:    updates,
	}
}

// Run starts the hub's main loop. Should be run as a goroutine.
// When ctx is cancelled (e.g. on server shutdown), Run returns and no longer accepts new registrations.
func (h *Hub) Run(ctx context.Context) {
	updates := h.Updates
	for {
		select {
		case <-ctx.Done():
			slog.Info("shutdown signal received, stopping", "tag", "ws")
			return
		case client := <-h.Register:
			h.Clients[client] = true
			slog.Info("client connected", "tag", "ws", "clients", len(h.Clients))

		case client := <-h.Unregister:
			if _, ok := h.Clients[client]; ok {
				delete(h.Clients, client)
				// A running session has nobody left to play it.
				h.Lobby.Abandon(client)
				close(client.Send)
				slog.Info("client disconnected", "tag", "ws", "clients", len(h.Clients))
			}

		case ev, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if !ev.Shared {
				continue
			}
			slog.Debug("leaderboard changed", "tag", "ws", "score", ev.Score, "clients", len(h.Clients))
			data, _ := json.Marshal(LeaderboardUpdatedMsg{Type: "leaderboard_updated"})
			for client := range h.Clients {
				wsutil.SafeSend(client.Send, data)
			}
		}
	}
}

// ServeWS handles WebSocket upgrade requests and creates a new Client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("upgrade error", "tag", "ws", "err", err)
		return
	}

	client := &Client{
		Hub:     h,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		Limiter: rate.NewLimiter(rate.Limit(h.Config.MaxMessagesPerSec), h.Config.MessageBurst),
	}

	h.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
