package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ad-eraser-server/config"
	"ad-eraser-server/prefs"
	"ad-eraser-server/score"
	"ad-eraser-server/storage"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	Config *config.Config
	Scores *score.Service
	Prefs  *prefs.Preferences
}

// NewHandler creates a new API handler with the given dependencies.
func NewHandler(cfg *config.Config, scores *score.Service, p *prefs.Preferences) *Handler {
	return &Handler{
		Config: cfg,
		Scores: scores,
		Prefs:  p,
	}
}

// Routes returns the /api router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(CORSMiddleware)
	r.Get("/leaderboard", h.Leaderboard)
	r.Get("/rank", h.Rank)
	r.Get("/best", h.Best)
	r.Get("/recent", h.Recent)
	r.Delete("/scores", h.ClearScores)
	r.Get("/preferences", h.GetPreferences)
	r.Put("/preferences", h.PutPreferences)
	return r
}

// CORS sets CORS headers on the response. Call before writing body.
func CORS(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

// CORSMiddleware applies CORS to every route and answers preflight requests.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CORS(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LeaderboardEntry is a single row for the leaderboard API.
type LeaderboardEntry struct {
	Rank       int    `json:"rank"`
	PlayerName string `json:"player_name"`
	Score      int    `json:"score"`
	RecordedAt string `json:"recorded_at"`
}

// LeaderboardResponse is the JSON structure for /api/leaderboard.
// Available is false when the shared leaderboard is unreachable, unconfigured or empty.
type LeaderboardResponse struct {
	Available bool               `json:"available"`
	Entries   []LeaderboardEntry `json:"entries"`
}

// Leaderboard returns the top shared scores.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	if !h.Scores.RemoteEnabled() {
		writeJSON(w, http.StatusOK, LeaderboardResponse{Entries: []LeaderboardEntry{}})
		return
	}
	records := h.Scores.Leaderboard(r.Context(), h.limitParam(r))

	entries := make([]LeaderboardEntry, 0, len(records))
	for i, rec := range records {
		rank := i + 1
		if i > 0 && rec.Score == records[i-1].Score {
			rank = entries[i-1].Rank
		}
		entries = append(entries, LeaderboardEntry{
			Rank:       rank,
			PlayerName: rec.PlayerName,
			Score:      rec.Score,
			RecordedAt: rec.RecordedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, LeaderboardResponse{Available: len(entries) > 0, Entries: entries})
}

// RankResponse is the JSON structure for /api/rank.
type RankResponse struct {
	Rank  int  `json:"rank"`
	Known bool `json:"known"`
}

// Rank returns the position a score would take on the shared leaderboard.
func (h *Handler) Rank(w http.ResponseWriter, r *http.Request) {
	value, err := strconv.Atoi(r.URL.Query().Get("score"))
	if err != nil || value < 0 {
		http.Error(w, "score must be a non-negative integer", http.StatusBadRequest)
		return
	}
	rank := h.Scores.Rank(r.Context(), value)
	writeJSON(w, http.StatusOK, RankResponse{Rank: rank, Known: rank != score.RankUnknown})
}

// Best returns the device's personal best.
func (h *Handler) Best(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"personal_best": h.Scores.PersonalBest(r.Context())})
}

// Recent returns the latest scores saved on this device.
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	records := h.Scores.RecentScores(r.Context(), h.limitParam(r))
	writeJSON(w, http.StatusOK, map[string][]storage.ScoreRecord{"entries": records})
}

// ClearScores deletes every score saved on this device.
func (h *Handler) ClearScores(w http.ResponseWriter, r *http.Request) {
	if err := h.Scores.ClearLocal(r.Context()); err != nil {
		http.Error(w, "failed to clear scores", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PreferencesBody is the JSON structure for /api/preferences.
type PreferencesBody struct {
	SoundEnabled *bool `json:"sound_enabled"`
}

// GetPreferences returns the device preferences.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	on := h.Prefs.SoundEnabled()
	writeJSON(w, http.StatusOK, PreferencesBody{SoundEnabled: &on})
}

// PutPreferences updates the device preferences.
func (h *Handler) PutPreferences(w http.ResponseWriter, r *http.Request) {
	var body PreferencesBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SoundEnabled == nil {
		http.Error(w, "sound_enabled is required", http.StatusBadRequest)
		return
	}
	if err := h.Prefs.SetSoundEnabled(*body.SoundEnabled); err != nil {
		slog.Warn("saving preferences", "tag", "api", "err", err)
		http.Error(w, "failed to save preferences", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return h.Config.LeaderboardDefaultLimit
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "tag", "api", "err", err)
	}
}
