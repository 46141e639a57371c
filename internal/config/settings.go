package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Settings are the companion toggles that can change at runtime.
type Settings struct {
	UseMusicProfile    bool `koanf:"use_music_profile"`
	LikedSongsFallback bool `koanf:"liked_songs_fallback"`
}

// SettingsFile persists Settings as TOML next to the config file.
type SettingsFile struct {
	path string
}

// NewSettingsFile creates a SettingsFile at the given path.
func NewSettingsFile(path string) *SettingsFile {
	return &SettingsFile{path: path}
}

// Path returns the settings file path.
func (f *SettingsFile) Path() string {
	return f.path
}

// Save writes s, replacing any previous settings.
func (f *SettingsFile) Save(s Settings) error {
	k := koanf.New(".")
	if err := k.Set("use_music_profile", s.UseMusicProfile); err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := k.Set("liked_songs_fallback", s.LikedSongsFallback); err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	data, err := k.Marshal(toml.Parser())
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

// applyTo overlays saved settings onto c. A missing file leaves c unchanged.
func (f *SettingsFile) applyTo(c *CompanionConfig) error {
	if _, err := os.Stat(f.path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(f.path), toml.Parser()); err != nil {
		return fmt.Errorf("loading %s: %w", f.path, err)
	}
	if k.Exists("use_music_profile") {
		v := k.Bool("use_music_profile")
		c.UseMusicProfile = &v
	}
	if k.Exists("liked_songs_fallback") {
		v := k.Bool("liked_songs_fallback")
		c.LikedSongsFallback = &v
	}
	return nil
}
