package prefs

import (
	"log/slog"
	"strconv"

	"ad-eraser-server/storage"
)

// Preferences owns the per-device user settings, persisted in the ephemeral store.
type Preferences struct {
	store storage.ScalarStore
}

// New returns preferences backed by store.
func New(store storage.ScalarStore) *Preferences {
	return &Preferences{store: store}
}

// SoundEnabled reports whether sound is on. Missing or unreadable values mean on.
func (p *Preferences) SoundEnabled() bool {
	if p == nil || p.store == nil {
		return true
	}
	v, ok, err := p.store.Get(storage.KeySoundEnabled)
	if err != nil || !ok {
		return true
	}
	on, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("ignoring unreadable sound preference", "tag", "prefs", "value", v)
		return true
	}
	return on
}

// SetSoundEnabled persists the sound flag.
func (p *Preferences) SetSoundEnabled(on bool) error {
	if p == nil || p.store == nil {
		return storage.ErrNotConfigured
	}
	return p.store.Set(storage.KeySoundEnabled, strconv.FormatBool(on))
}
