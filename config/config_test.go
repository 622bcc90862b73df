package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.SessionDurationSec != 60 {
		t.Errorf("expected SessionDurationSec=60, got %d", cfg.SessionDurationSec)
	}
	if cfg.BaseIncrement != 10 {
		t.Errorf("expected BaseIncrement=10, got %d", cfg.BaseIncrement)
	}
	if cfg.BonusFactor != 2 {
		t.Errorf("expected BonusFactor=2, got %d", cfg.BonusFactor)
	}
	if cfg.ComboWindow != 3 {
		t.Errorf("expected ComboWindow=3, got %d", cfg.ComboWindow)
	}
	if cfg.MissPenaltySec != 5 {
		t.Errorf("expected MissPenaltySec=5, got %d", cfg.MissPenaltySec)
	}
	if cfg.MaxNameLength != 24 {
		t.Errorf("expected MaxNameLength=24, got %d", cfg.MaxNameLength)
	}
	if cfg.WSPort != 8080 {
		t.Errorf("expected WSPort=8080, got %d", cfg.WSPort)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("expected empty DatabaseURL, got %q", cfg.DatabaseURL)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("SESSION_DURATION_SEC", "30")
	t.Setenv("MISS_PENALTY_SEC", "3")
	t.Setenv("WS_PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://example/db")

	cfg := LoadFile(filepath.Join(t.TempDir(), "missing.json"))

	if cfg.SessionDurationSec != 30 {
		t.Errorf("expected SessionDurationSec=30 after env override, got %d", cfg.SessionDurationSec)
	}
	if cfg.MissPenaltySec != 3 {
		t.Errorf("expected MissPenaltySec=3 after env override, got %d", cfg.MissPenaltySec)
	}
	if cfg.WSPort != 9090 {
		t.Errorf("expected WSPort=9090 after env override, got %d", cfg.WSPort)
	}
	if cfg.DatabaseURL != "postgres://example/db" {
		t.Errorf("expected DatabaseURL override, got %q", cfg.DatabaseURL)
	}
	// Non-overridden fields should remain default
	if cfg.BaseIncrement != 10 {
		t.Errorf("expected BaseIncrement=10 (default), got %d", cfg.BaseIncrement)
	}
}

func TestLoadWithInvalidEnv(t *testing.T) {
	t.Setenv("SESSION_DURATION_SEC", "invalid")

	cfg := LoadFile(filepath.Join(t.TempDir(), "missing.json"))

	if cfg.SessionDurationSec != 60 {
		t.Errorf("expected SessionDurationSec=60 (default) with invalid env, got %d", cfg.SessionDurationSec)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"session_duration_sec": 45, "combo_window": 4}`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COMBO_WINDOW", "5")

	cfg := LoadFile(path)

	if cfg.SessionDurationSec != 45 {
		t.Errorf("expected SessionDurationSec=45 from file, got %d", cfg.SessionDurationSec)
	}
	if cfg.ComboWindow != 5 {
		t.Errorf("expected env to win over file, got ComboWindow=%d", cfg.ComboWindow)
	}
}

func TestDurations(t *testing.T) {
	cfg := &Config{}
	if cfg.TickInterval() != time.Second {
		t.Errorf("expected 1s tick fallback, got %v", cfg.TickInterval())
	}
	if cfg.RemoteTimeout() != 3*time.Second {
		t.Errorf("expected 3s remote timeout fallback, got %v", cfg.RemoteTimeout())
	}
	cfg.TickIntervalMS = 250
	if cfg.TickInterval() != 250*time.Millisecond {
		t.Errorf("expected 250ms tick, got %v", cfg.TickInterval())
	}
}
