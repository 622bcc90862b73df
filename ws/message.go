package ws

import (
	"encoding/json"

	"ad-eraser-server/session"
)

// InboundEnvelope is the generic envelope for all client-to-server messages.
// The Type field is used for routing; Raw holds the full JSON payload.
type InboundEnvelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements custom unmarshaling to capture the raw payload.
func (e *InboundEnvelope) UnmarshalJSON(data []byte) error {
	type typeOnly struct {
		Type string `json:"type"`
	}
	var t typeOnly
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	e.Type = t.Type
	e.Raw = json.RawMessage(data)
	return nil
}

// --- Client-to-Server message payloads ---

// SetNameMsg is sent by the client to declare the name used for the shared leaderboard.
type SetNameMsg struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// DismissMsg reports a click on the close control. X and Y are the optional pointer position.
type DismissMsg struct {
	Type string   `json:"type"`
	X    *float64 `json:"x,omitempty"`
	Y    *float64 `json:"y,omitempty"`
}

// Hint returns the pointer position when both coordinates were sent.
func (m DismissMsg) Hint() *session.Position {
	if m.X == nil || m.Y == nil {
		return nil
	}
	return &session.Position{X: *m.X, Y: *m.Y}
}

// --- Server-to-Client messages ---

// ErrorMsg is sent when a client action is invalid.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NameSetMsg confirms the accepted (trimmed) player name.
type NameSetMsg struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// SessionStartedMsg is sent once when a session begins.
type SessionStartedMsg struct {
	Type         string         `json:"type"`
	SessionID    string         `json:"sessionId"`
	DurationSec  int            `json:"durationSec"`
	Target       session.Target `json:"target"`
	SoundEnabled bool           `json:"soundEnabled"`
	PersonalBest int            `json:"personalBest"`
}

// GameOverMsg is sent after the final score has been saved.
// RankKnown is false when the shared leaderboard could not answer; Rank is then 0.
type GameOverMsg struct {
	Type            string `json:"type"`
	Score           int    `json:"score"`
	Reason          string `json:"reason"`
	PersonalBest    int    `json:"personalBest"`
	NewPersonalBest bool   `json:"newPersonalBest"`
	Rank            int    `json:"rank"`
	RankKnown       bool   `json:"rankKnown"`
	Saved           bool   `json:"saved"`
}

// LeaderboardUpdatedMsg tells every client to refresh its leaderboard view.
type LeaderboardUpdatedMsg struct {
	Type string `json:"type"`
}
