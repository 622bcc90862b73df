package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// TargetConfig bounds the random layout of each ad target. Values are cosmetic; game logic never reads them.
type TargetConfig struct {
	MinWidth       int `json:"min_width"`
	MaxWidth       int `json:"max_width"`
	MinHeight      int `json:"min_height"`
	MaxHeight      int `json:"max_height"`
	CloseOffsetMin int `json:"close_offset_min"`
	CloseOffsetMax int `json:"close_offset_max"`
}

// Config holds all configurable game and storage parameters.
type Config struct {
	SessionDurationSec int `json:"session_duration_sec"`
	BaseIncrement      int `json:"base_increment"`
	BonusFactor        int `json:"bonus_factor"`
	ComboWindow        int `json:"combo_window"`
	MissPenaltySec     int `json:"miss_penalty_sec"`
	TickIntervalMS     int `json:"tick_interval_ms"`

	MaxNameLength int `json:"max_name_length"`
	WSPort        int `json:"ws_port"`

	// MaxMessagesPerSec and MessageBurst bound inbound WebSocket traffic per connection.
	MaxMessagesPerSec int `json:"max_messages_per_sec"`
	MessageBurst      int `json:"message_burst"`

	// DatabaseURL is the shared Postgres DSN. Empty disables the remote store (no leaderboard, no rank).
	DatabaseURL string `json:"database_url"`
	// LocalDBPath is the embedded SQLite file. Empty means the embedded store is unsupported.
	LocalDBPath string `json:"local_db_path"`
	// LocalStorePath is the key-value file holding the personal best and preferences. Empty keeps it in memory.
	LocalStorePath string `json:"local_store_path"`

	RemoteTimeoutMS         int `json:"remote_timeout_ms"`
	LeaderboardDefaultLimit int `json:"leaderboard_default_limit"`
	LeaderboardMaxLimit     int `json:"leaderboard_max_limit"`

	LogLevel string `json:"log_level"`

	Targets TargetConfig `json:"targets"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		SessionDurationSec:      60,
		BaseIncrement:           10,
		BonusFactor:             2,
		ComboWindow:             3,
		MissPenaltySec:          5,
		TickIntervalMS:          1000,
		MaxNameLength:           24,
		WSPort:                  8080,
		MaxMessagesPerSec:       20,
		MessageBurst:            40,
		LocalDBPath:             "data/scores.db",
		LocalStorePath:          "data/local.json",
		RemoteTimeoutMS:         3000,
		LeaderboardDefaultLimit: 10,
		LeaderboardMaxLimit:     100,
		LogLevel:                "info",
		Targets: TargetConfig{
			MinWidth:       280,
			MaxWidth:       320,
			MinHeight:      180,
			MaxHeight:      250,
			CloseOffsetMin: 5,
			CloseOffsetMax: 15,
		},
	}
}

// Load reads configuration from an optional config.json file,
// then applies environment variable overrides. Fields not set
// in either source retain their default values.
func Load() *Config {
	return LoadFile("config.json")
}

// LoadFile is Load with an explicit config file path. A missing file is not an error.
func LoadFile(path string) *Config {
	cfg := Defaults()

	if f, err := os.Open(path); err == nil {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			slog.Warn("failed to parse config file", "tag", "config", "path", path, "err", err)
		}
	}

	overrideInt(&cfg.SessionDurationSec, "SESSION_DURATION_SEC")
	overrideInt(&cfg.BaseIncrement, "BASE_INCREMENT")
	overrideInt(&cfg.BonusFactor, "BONUS_FACTOR")
	overrideInt(&cfg.ComboWindow, "COMBO_WINDOW")
	overrideInt(&cfg.MissPenaltySec, "MISS_PENALTY_SEC")
	overrideInt(&cfg.TickIntervalMS, "TICK_INTERVAL_MS")
	overrideInt(&cfg.MaxNameLength, "MAX_NAME_LENGTH")
	overrideInt(&cfg.WSPort, "WS_PORT")
	overrideInt(&cfg.MaxMessagesPerSec, "MAX_MESSAGES_PER_SEC")
	overrideInt(&cfg.MessageBurst, "MESSAGE_BURST")
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.LocalDBPath, "LOCAL_DB_PATH")
	overrideString(&cfg.LocalStorePath, "LOCAL_STORE_PATH")
	overrideInt(&cfg.RemoteTimeoutMS, "REMOTE_TIMEOUT_MS")
	overrideInt(&cfg.LeaderboardDefaultLimit, "LEADERBOARD_DEFAULT_LIMIT")
	overrideInt(&cfg.LeaderboardMaxLimit, "LEADERBOARD_MAX_LIMIT")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")

	return cfg
}

// TickInterval returns the session clock period.
func (c *Config) TickInterval() time.Duration {
	if c.TickIntervalMS <= 0 {
		return time.Second
	}
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

// RemoteTimeout bounds every call to the remote store.
func (c *Config) RemoteTimeout() time.Duration {
	if c.RemoteTimeoutMS <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.RemoteTimeoutMS) * time.Millisecond
}

// SlogLevel maps LogLevel to a slog.Level; unknown values map to Info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func overrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*field = n
		} else {
			slog.Warn("invalid environment value", "tag", "config", "key", envKey, "value", val)
		}
	}
}

func overrideString(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}
