// Package config loads Mood Music configuration from TOML files and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const appDirName = "moodmusic"

// Trigger policies. Exactly one is active at a time.
const (
	PolicyEvents     = "events"
	PolicyInactivity = "inactivity"
)

// ErrInvalidPolicy is returned when companion.trigger_policy is not a known policy.
var ErrInvalidPolicy = errors.New("trigger_policy must be \"events\" or \"inactivity\"")

type Config struct {
	Proxy     ProxyConfig     `koanf:"proxy"`
	Companion CompanionConfig `koanf:"companion"`
	NATS      NATSConfig      `koanf:"nats"`
}

// ProxyConfig holds settings for the Spotify OAuth proxy.
type ProxyConfig struct {
	Addr            string `koanf:"addr"`
	BasePath        string `koanf:"base_path"`
	PublicURL       string `koanf:"public_url"` // overrides scheme+host of the OAuth redirect URI
	CSRFToken       string `koanf:"csrf_token"`
	CredentialsFile string `koanf:"credentials_file"`
	TokenFile       string `koanf:"token_file"`
	DatabaseURL     string `koanf:"database_url"` // when set, Postgres replaces the files
	ClientID        string `koanf:"client_id"`
	ClientSecret    string `koanf:"client_secret"`
}

// CompanionConfig holds settings for the coordinator process.
type CompanionConfig struct {
	ProxyURL            string         `koanf:"proxy_url"`
	CSRFToken           string         `koanf:"csrf_token"`
	MusicProfile        string         `koanf:"music_profile"`
	UseMusicProfile     *bool          `koanf:"use_music_profile"`    // default: true
	LikedSongsFallback  *bool          `koanf:"liked_songs_fallback"` // default: true
	HistorySize         int            `koanf:"history_size"`
	PollInterval        time.Duration  `koanf:"poll_interval"`
	TriggerPolicy       string         `koanf:"trigger_policy"` // "events" or "inactivity"
	InactivityThreshold time.Duration  `koanf:"inactivity_threshold"`
	ModelTimeout        *time.Duration `koanf:"model_timeout"` // 0 disables; default: 60s
	MetricsAddr         string         `koanf:"metrics_addr"`
	SettingsFile        string         `koanf:"settings_file"` // runtime toggles, overrides the two flags above
}

// NATSConfig holds settings for the chat host bridge.
type NATSConfig struct {
	URL            string        `koanf:"url"`
	SubjectPrefix  string        `koanf:"subject_prefix"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// Load reads the default config paths, then extra (if non-empty), applies
// environment overrides and fills defaults.
func Load(extra string) (*Config, error) {
	k := koanf.New(".")

	// Later paths win
	paths := getConfigPaths()
	if extra != "" {
		if _, err := os.Stat(extra); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		paths = append(paths, extra)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("loading %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := NewSettingsFile(cfg.Companion.SettingsFile).applyTo(&cfg.Companion); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Companion.TriggerPolicy {
	case PolicyEvents, PolicyInactivity:
	default:
		return fmt.Errorf("%w, got %q", ErrInvalidPolicy, c.Companion.TriggerPolicy)
	}
	if !strings.HasPrefix(c.Proxy.BasePath, "/") {
		return fmt.Errorf("proxy.base_path must start with /, got %q", c.Proxy.BasePath)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MOODMUSIC_SPOTIFY_CLIENT_ID"); v != "" {
		c.Proxy.ClientID = v
	}
	if v := os.Getenv("MOODMUSIC_SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Proxy.ClientSecret = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Proxy.DatabaseURL = v
	}
	if v := os.Getenv("MOODMUSIC_CSRF_TOKEN"); v != "" {
		c.Proxy.CSRFToken = v
		c.Companion.CSRFToken = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
}

func (c *Config) applyDefaults() {
	p := &c.Proxy
	if p.Addr == "" {
		p.Addr = "127.0.0.1:8000"
	}
	if p.BasePath == "" {
		p.BasePath = "/api/plugins/moodmusic"
	}
	p.BasePath = strings.TrimSuffix(p.BasePath, "/")
	p.PublicURL = strings.TrimSuffix(p.PublicURL, "/")
	if p.CredentialsFile == "" {
		p.CredentialsFile = defaultFile("credentials.json")
	}
	if p.TokenFile == "" {
		p.TokenFile = defaultFile("token.json")
	}
	p.CredentialsFile = expandPath(p.CredentialsFile)
	p.TokenFile = expandPath(p.TokenFile)

	m := &c.Companion
	if m.ProxyURL == "" {
		m.ProxyURL = "http://" + p.Addr + p.BasePath
	}
	m.ProxyURL = strings.TrimSuffix(m.ProxyURL, "/")
	if m.CSRFToken == "" {
		m.CSRFToken = p.CSRFToken
	}
	if m.MusicProfile == "" {
		m.MusicProfile = "Music"
	}
	if m.HistorySize <= 0 {
		m.HistorySize = 8
	}
	if m.PollInterval <= 0 {
		m.PollInterval = 10 * time.Second
	}
	if m.TriggerPolicy == "" {
		m.TriggerPolicy = PolicyEvents
	}
	if m.InactivityThreshold <= 0 {
		m.InactivityThreshold = 10 * time.Second
	}
	if m.SettingsFile == "" {
		m.SettingsFile = defaultFile("settings.toml")
	}
	m.SettingsFile = expandPath(m.SettingsFile)

	n := &c.NATS
	if n.URL == "" {
		n.URL = "nats://127.0.0.1:4222"
	}
	if n.SubjectPrefix == "" {
		n.SubjectPrefix = "moodmusic.host"
	}
	n.SubjectPrefix = strings.TrimSuffix(n.SubjectPrefix, ".")
	if n.RequestTimeout <= 0 {
		n.RequestTimeout = 5 * time.Second
	}
}

// UseMusicProfileEnabled returns whether the dedicated music profile is used (default: true).
func (c *CompanionConfig) UseMusicProfileEnabled() bool {
	if c.UseMusicProfile == nil {
		return true
	}
	return *c.UseMusicProfile
}

// LikedSongsFallbackEnabled returns whether not-found songs fall back to liked songs (default: true).
func (c *CompanionConfig) LikedSongsFallbackEnabled() bool {
	if c.LikedSongsFallback == nil {
		return true
	}
	return *c.LikedSongsFallback
}

// ModelTimeoutValue returns the bound on a model call. Zero means unbounded.
func (c *CompanionConfig) ModelTimeoutValue() time.Duration {
	if c.ModelTimeout == nil {
		return 60 * time.Second
	}
	if *c.ModelTimeout < 0 {
		return 0
	}
	return *c.ModelTimeout
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/moodmusic/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", appDirName, "config.toml"))
	}

	// 2. ./config.toml
	paths = append(paths, "config.toml")

	return paths
}

func defaultFile(name string) string {
	return filepath.Join("~", ".config", appDirName, name)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
