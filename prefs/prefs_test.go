package prefs

import (
	"errors"
	"path/filepath"
	"testing"

	"ad-eraser-server/storage"
)

func TestSoundDefaultsOnAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.json")
	p := New(storage.NewLocalStore(path))
	if !p.SoundEnabled() {
		t.Error("expected sound on by default")
	}
	if err := p.SetSoundEnabled(false); err != nil {
		t.Fatalf("set: %v", err)
	}
	if New(storage.NewLocalStore(path)).SoundEnabled() {
		t.Error("expected sound off after reopen")
	}
}

func TestUnreadableValueMeansOn(t *testing.T) {
	store := storage.NewLocalStore("")
	store.Set(storage.KeySoundEnabled, "maybe")
	if !New(store).SoundEnabled() {
		t.Error("expected unreadable value to default to on")
	}
}

func TestNilPreferences(t *testing.T) {
	var p *Preferences
	if !p.SoundEnabled() {
		t.Error("nil preferences should report sound on")
	}
	if err := p.SetSoundEnabled(true); !errors.Is(err, storage.ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}
