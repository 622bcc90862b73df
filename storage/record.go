package storage

import (
	"encoding/json"
	"time"
)

// TimeLayout renders recorded_at as fixed-width UTC ISO-8601 so text order equals time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Well-known keys of the ephemeral store.
const (
	KeyHighScore    = "highScore"
	KeySoundEnabled = "soundEnabled"
)

// ScoreRecord is one persisted score. ID is zero until a backend assigns one.
// PlayerName is empty for anonymous saves.
type ScoreRecord struct {
	ID         int64
	PlayerName string
	Score      int
	RecordedAt time.Time
}

// recordJSON is the wire shape: {id?, player_name?, score, recorded_at}.
type recordJSON struct {
	ID         int64  `json:"id,omitempty"`
	PlayerName string `json:"player_name,omitempty"`
	Score      int    `json:"score"`
	RecordedAt string `json:"recorded_at"`
}

// FormatTime renders t in TimeLayout (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a TimeLayout (or any RFC 3339) timestamp.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// MarshalJSON implements json.Marshaler.
func (r ScoreRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		ID:         r.ID,
		PlayerName: r.PlayerName,
		Score:      r.Score,
		RecordedAt: FormatTime(r.RecordedAt),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ScoreRecord) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	at, err := ParseTime(raw.RecordedAt)
	if err != nil {
		return err
	}
	*r = ScoreRecord{ID: raw.ID, PlayerName: raw.PlayerName, Score: raw.Score, RecordedAt: at}
	return nil
}
