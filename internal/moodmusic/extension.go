package moodmusic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/justestif/moodmusic/internal/config"
	"github.com/justestif/moodmusic/internal/metrics"
)

// ErrUnknownAction is returned by Control for unsupported actions.
var ErrUnknownAction = errors.New("unknown control action")

// Config holds the extension settings.
type Config struct {
	MusicProfile        string
	UseMusicProfile     bool
	LikedSongsFallback  bool
	HistorySize         int
	PollInterval        time.Duration
	TriggerPolicy       string // config.PolicyEvents or config.PolicyInactivity
	InactivityThreshold time.Duration
	ModelTimeout        time.Duration
	Cooldown            time.Duration
	SwipeCooldown       time.Duration
	SettleDelay         time.Duration // profile switch verification delay
	Bindings            BindingTimings
}

// ConfigFrom builds a Config from the companion section of the config file.
func ConfigFrom(c config.CompanionConfig) Config {
	return Config{
		MusicProfile:        c.MusicProfile,
		UseMusicProfile:     c.UseMusicProfileEnabled(),
		LikedSongsFallback:  c.LikedSongsFallbackEnabled(),
		HistorySize:         c.HistorySize,
		PollInterval:        c.PollInterval,
		TriggerPolicy:       c.TriggerPolicy,
		InactivityThreshold: c.InactivityThreshold,
		ModelTimeout:        c.ModelTimeoutValue(),
	}
}

func (c *Config) applyDefaults() {
	if c.MusicProfile == "" {
		c.MusicProfile = "Music"
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 8
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.TriggerPolicy == "" {
		c.TriggerPolicy = config.PolicyEvents
	}
	if c.InactivityThreshold <= 0 {
		c.InactivityThreshold = 10 * time.Second
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 3 * time.Second
	}
	if c.SwipeCooldown <= 0 {
		c.SwipeCooldown = time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.Bindings == (BindingTimings{}) {
		c.Bindings = DefaultBindingTimings()
	}
}

// Option configures an Extension.
type Option func(*options)

type options struct {
	clock    Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	settings SettingsStore
}

// SettingsStore persists the runtime toggles. *config.SettingsFile implements it.
type SettingsStore interface {
	Save(s config.Settings) error
}

var _ SettingsStore = (*config.SettingsFile)(nil)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSettingsStore saves toggle changes to s.
func WithSettingsStore(s SettingsStore) Option {
	return func(o *options) { o.settings = s }
}

// WithMetrics records metrics to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Extension wires the state, status cache, poller, guard, coordinator and
// event bindings together.
type Extension struct {
	cfg    Config
	host   Host
	proxy  Proxy
	logger *slog.Logger

	state    *State
	status   *StatusCache
	poller   *Poller
	guard    *Guard
	coord    *Coordinator
	bindings *Bindings

	settingsMu sync.Mutex
	settings   SettingsStore

	baseCtx context.Context
}

// New creates an Extension. Call Init to start it.
func New(host Host, proxy Proxy, cfg Config, opts ...Option) *Extension {
	cfg.applyDefaults()

	o := options{clock: SystemClock(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	state := NewState()
	guard := NewGuard(host, o.clock, cfg.SettleDelay, o.logger.With("component", "guard"), o.metrics)
	poller := NewPoller(proxy, state, guard, o.clock, cfg.PollInterval, o.logger.With("component", "poller"), o.metrics)
	status := NewStatusCache(proxy, state, poller, o.logger.With("component", "status"))

	coord := &Coordinator{
		host:   host,
		proxy:  proxy,
		state:  state,
		guard:  guard,
		poller: poller,
		status: status,
		clock:  o.clock,
		cfg: CoordinatorConfig{
			MusicProfile:  cfg.MusicProfile,
			HistorySize:   cfg.HistorySize,
			ModelTimeout:  cfg.ModelTimeout,
			Cooldown:      cfg.Cooldown,
			SwipeCooldown: cfg.SwipeCooldown,
		},
		logger:  o.logger.With("component", "coordinator"),
		metrics: o.metrics,
		phase:   PhaseIdle,
	}
	coord.useMusicProfile.Store(cfg.UseMusicProfile)
	coord.likedSongsFallback.Store(cfg.LikedSongsFallback)

	e := &Extension{
		cfg:      cfg,
		host:     host,
		proxy:    proxy,
		logger:   o.logger,
		state:    state,
		status:   status,
		poller:   poller,
		guard:    guard,
		coord:    coord,
		bindings: NewBindings(host, coord, o.clock, cfg.Bindings, o.logger.With("component", "triggers"), o.metrics),
		settings: o.settings,
		baseCtx:  context.Background(),
	}

	poller.onUnauthorized = func(ctx context.Context) { status.RefreshAuthStatus(ctx) }
	if cfg.TriggerPolicy == config.PolicyInactivity {
		poller.onInactive = func(ctx context.Context) { coord.Run(ctx, ReasonInactivity) }
		poller.inactivityThreshold = cfg.InactivityThreshold
	}
	return e
}

// Init loads the proxy status, starts the poller when logged in and arms
// the configured trigger policy. ctx is used by background work until Close.
func (e *Extension) Init(ctx context.Context) error {
	e.baseCtx = ctx
	e.status.pollCtx = ctx

	e.status.RefreshCredentialsStatus(ctx)
	e.status.RefreshAuthStatus(ctx)

	if e.cfg.TriggerPolicy == config.PolicyEvents {
		if err := e.bindings.Attach(ctx); err != nil {
			return fmt.Errorf("attaching event triggers: %w", err)
		}
	} else {
		e.logger.Info("inactivity triggering enabled", "threshold", e.cfg.InactivityThreshold)
	}

	e.logger.Info("mood music companion initialized",
		"authenticated", e.state.Authenticated(),
		"credentials_configured", e.state.CredentialsConfigured(),
		"policy", e.cfg.TriggerPolicy,
	)
	return nil
}

// SetActive pauses or resumes the extension. Pausing stops the poller,
// restores a switched profile early and drops any scheduled trigger. A
// request already running is left to finish.
func (e *Extension) SetActive(ctx context.Context, active bool) {
	e.state.SetActive(active)

	if active {
		e.logger.Info("extension resumed")
		e.status.RefreshAuthStatus(ctx)
		e.status.EnsurePoller()
		return
	}

	e.logger.Info("extension paused")
	e.poller.Stop()
	e.bindings.Cancel()
	if e.guard.Pending() {
		e.guard.RestorePending(ctx)
	}
}

// Toggle flips the pause state and returns the new value.
func (e *Extension) Toggle(ctx context.Context) bool {
	active := !e.state.Active()
	e.SetActive(ctx, active)
	return active
}

// TriggerManually runs an analysis now, subject to the usual entry guard.
func (e *Extension) TriggerManually(ctx context.Context) Outcome {
	switch e.coord.CanStart(ReasonManual) {
	case DropPaused:
		e.coord.notify(ctx, LevelInfo, "MoodMusic: Extension is paused - resume it to choose a song")
	case DropUnauthenticated:
		e.coord.notify(ctx, LevelError, "MoodMusic: Please log in to Spotify first")
	case DropBusy:
		e.coord.notify(ctx, LevelInfo, "MoodMusic: Analysis already in progress, please wait")
	case DropCooldown:
		e.coord.notify(ctx, LevelInfo, "MoodMusic: Please wait a moment before choosing another song")
	}
	return e.coord.Run(ctx, ReasonManual)
}

// SetUseMusicProfile selects between the dedicated music profile and a
// templated prompt on the current profile.
func (e *Extension) SetUseMusicProfile(v bool) {
	e.settingsMu.Lock()
	defer e.settingsMu.Unlock()
	e.coord.useMusicProfile.Store(v)
	e.logger.Info("model mode changed", "use_music_profile", v)
	e.saveSettingsLocked()
}

// SetLikedSongsFallback enables or disables the liked-songs fallback.
func (e *Extension) SetLikedSongsFallback(v bool) {
	e.settingsMu.Lock()
	defer e.settingsMu.Unlock()
	e.coord.likedSongsFallback.Store(v)
	e.logger.Info("liked songs fallback changed", "enabled", v)
	e.saveSettingsLocked()
}

// saveSettingsLocked persists the toggles. A failed save keeps the new
// value for this run.
func (e *Extension) saveSettingsLocked() {
	if e.settings == nil {
		return
	}
	s := config.Settings{
		UseMusicProfile:    e.coord.useMusicProfile.Load(),
		LikedSongsFallback: e.coord.likedSongsFallback.Load(),
	}
	if err := e.settings.Save(s); err != nil {
		e.logger.Warn("saving settings", "error", err)
	}
}

// PlayLikedSongs plays the liked songs directly.
func (e *Extension) PlayLikedSongs(ctx context.Context) error {
	if !e.state.Authenticated() {
		e.coord.notify(ctx, LevelError, "MoodMusic: Please log in to Spotify first")
		return errors.New("not logged in to spotify")
	}

	resp, err := e.proxy.PlayLiked(ctx)
	if err != nil {
		e.coord.reportPlayError(ctx, err)
		return fmt.Errorf("playing liked songs: %w", err)
	}
	if resp.Success {
		e.poller.Track(resp.TrackURI)
	}
	e.coord.notify(ctx, LevelSuccess, "MoodMusic: "+resp.Message)
	return nil
}

// Snapshot describes the extension for status displays.
type Snapshot struct {
	Active                bool   `json:"active"`
	Authenticated         bool   `json:"authenticated"`
	CredentialsConfigured bool   `json:"credentials_configured"`
	AnalysisInProgress    bool   `json:"analysis_in_progress"`
	CurrentRequestID      uint64 `json:"current_request_id,omitempty"`
	Phase                 Phase  `json:"phase"`
	UseMusicProfile       bool   `json:"use_music_profile"`
	LikedSongsFallback    bool   `json:"liked_songs_fallback"`
	TriggerPolicy         string `json:"trigger_policy"`
	PollerRunning         bool   `json:"poller_running"`
	TrackedURI            string `json:"tracked_uri,omitempty"`
}

// Snapshot returns the current state.
func (e *Extension) Snapshot() Snapshot {
	id, inProgress := e.state.CurrentRequestID()
	session, _ := e.poller.Session()
	return Snapshot{
		Active:                e.state.Active(),
		Authenticated:         e.state.Authenticated(),
		CredentialsConfigured: e.state.CredentialsConfigured(),
		AnalysisInProgress:    inProgress,
		CurrentRequestID:      id,
		Phase:                 e.coord.Phase(),
		UseMusicProfile:       e.coord.useMusicProfile.Load(),
		LikedSongsFallback:    e.coord.likedSongsFallback.Load(),
		TriggerPolicy:         e.cfg.TriggerPolicy,
		PollerRunning:         e.poller.Running(),
		TrackedURI:            session.TrackURI,
	}
}

// Control performs a named action and returns the resulting state.
func (e *Extension) Control(ctx context.Context, action string) (Snapshot, error) {
	switch action {
	case "pause":
		e.SetActive(ctx, false)
	case "resume":
		e.SetActive(ctx, true)
	case "toggle":
		e.Toggle(ctx)
	case "trigger":
		// The reply does not wait for the model.
		go e.TriggerManually(context.WithoutCancel(e.baseCtx))
	case "use_music_profile":
		e.SetUseMusicProfile(true)
	case "use_current_model":
		e.SetUseMusicProfile(false)
	case "liked_fallback_on":
		e.SetLikedSongsFallback(true)
	case "liked_fallback_off":
		e.SetLikedSongsFallback(false)
	case "play_liked":
		if err := e.PlayLikedSongs(ctx); err != nil {
			return e.Snapshot(), err
		}
	case "status":
	default:
		return e.Snapshot(), fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return e.Snapshot(), nil
}

// Close detaches the event bindings and stops the poller.
func (e *Extension) Close() {
	e.bindings.Detach()
	e.poller.Stop()
	e.logger.Info("mood music companion stopped")
}
