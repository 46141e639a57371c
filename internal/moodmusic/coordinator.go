package moodmusic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/justestif/moodmusic/internal/api"
	"github.com/justestif/moodmusic/internal/metrics"
)

// Phase is where the live analysis currently is.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseCapturing          Phase = "capturing"
	PhaseSwitching          Phase = "switching"
	PhaseAwaitingModel      Phase = "awaiting_model"
	PhaseParsing            Phase = "parsing"
	PhaseRequestingPlayback Phase = "requesting_playback"
	PhaseRestoring          Phase = "restoring"
)

// Outcome is how an analysis attempt ended.
type Outcome string

const (
	OutcomeDropped        Outcome = "dropped"
	OutcomePlayed         Outcome = "played"
	OutcomeFallbackPlayed Outcome = "fallback_played"
	OutcomeNoHistory      Outcome = "no_history"
	OutcomeSwitchFailed   Outcome = "switch_failed"
	OutcomeModelFailed    Outcome = "model_failed"
	OutcomeEmptyResponse  Outcome = "empty_response"
	OutcomeParseFailed    Outcome = "parse_failed"
	OutcomePlayFailed     Outcome = "play_failed"
	OutcomeAborted        Outcome = "aborted"
	OutcomeFailed         Outcome = "failed"
)

// modelSource identifies our model calls to the host.
const modelSource = "moodmusic"

// cleanupTimeout bounds profile restoration after the request context is gone.
const cleanupTimeout = 10 * time.Second

// CoordinatorConfig holds the fixed coordinator settings.
type CoordinatorConfig struct {
	MusicProfile  string
	HistorySize   int
	ModelTimeout  time.Duration // 0 disables the bound
	Cooldown      time.Duration
	SwipeCooldown time.Duration
}

// Coordinator runs analysis requests, at most one at a time.
type Coordinator struct {
	host    Host
	proxy   Proxy
	state   *State
	guard   *Guard
	poller  *Poller
	status  *StatusCache
	clock   Clock
	cfg     CoordinatorConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	useMusicProfile    atomic.Bool
	likedSongsFallback atomic.Bool

	phaseMu sync.Mutex
	phase   Phase
}

func (c *Coordinator) cooldown(reason Reason) time.Duration {
	if reason == ReasonSwipe {
		return c.cfg.SwipeCooldown
	}
	return c.cfg.Cooldown
}

// CanStart checks the entry guard for reason without starting anything.
// It returns the drop reason, or "" when a request could start.
func (c *Coordinator) CanStart(reason Reason) string {
	return c.state.canStart(c.clock.Now(), c.cooldown(reason))
}

// Phase returns the current phase.
func (c *Coordinator) Phase() Phase {
	c.phaseMu.Lock()
	defer c.phaseMu.Unlock()
	return c.phase
}

func (c *Coordinator) setPhase(p Phase) {
	c.phaseMu.Lock()
	c.phase = p
	c.phaseMu.Unlock()
}

// Run performs one analysis if the entry guard allows it. Triggers that
// fail the guard are dropped, never queued.
func (c *Coordinator) Run(ctx context.Context, reason Reason) (outcome Outcome) {
	req, drop := c.state.acquire(reason, c.clock.Now(), c.cooldown(reason))
	if req == nil {
		c.metrics.TriggerDropped(drop)
		c.logger.Debug("trigger dropped", "reason", drop, "trigger", reason)
		return OutcomeDropped
	}

	logger := c.logger.With(
		"request_id", req.RequestID,
		"correlation_id", req.CorrelationID,
		"trigger", reason,
	)
	logger.Info("mood analysis started")

	var lease *Lease
	defer func() {
		if r := recover(); r != nil {
			logger.Error("mood analysis panicked", "panic", r)
			c.notify(ctx, LevelError, fmt.Sprintf("MoodMusic: Unexpected error - %v", r))
			outcome = OutcomeFailed
		}

		// Restoration finishes before the request is released, so the next
		// request cannot switch profiles while this one is restoring.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		c.setPhase(PhaseRestoring)
		if lease != nil {
			lease.Restore(cleanupCtx)
		}
		c.setPhase(PhaseIdle)
		c.state.release(req)

		elapsed := c.clock.Now().Sub(req.StartedAt)
		c.metrics.Analysis(string(outcome), elapsed)
		logger.Info("mood analysis finished", "outcome", outcome, "duration", elapsed)
	}()

	return c.process(ctx, req, &lease, logger)
}

func (c *Coordinator) process(ctx context.Context, req *AnalysisRequest, lease **Lease, logger *slog.Logger) Outcome {
	c.setPhase(PhaseCapturing)
	turns, err := c.host.RecentHistory(ctx, c.cfg.HistorySize)
	if err != nil {
		logger.Warn("reading chat history", "error", err)
	}
	turns = processHistory(turns, c.cfg.HistorySize)
	if len(turns) == 0 {
		logger.Warn("no chat history available")
		c.notify(ctx, LevelWarning, "MoodMusic: No chat history available for mood analysis")
		return OutcomeNoHistory
	}
	logger.Debug("captured chat history", "turns", len(turns))

	req.OriginalProfileName = c.guard.CaptureCurrentProfile(ctx)

	prompt := ""
	if c.useMusicProfile.Load() {
		c.setPhase(PhaseSwitching)
		*lease = c.guard.Acquire(ctx, req.OriginalProfileName, c.cfg.MusicProfile)
		if *lease == nil {
			logger.Warn("could not switch to music profile, skipping model call", "profile", c.cfg.MusicProfile)
			c.notify(ctx, LevelWarning, fmt.Sprintf("MoodMusic: Could not switch to the %q profile", c.cfg.MusicProfile))
			return OutcomeSwitchFailed
		}
		req.ProfileRestoreRequired = true
	} else {
		prompt = buildPrompt(renderSnippet(turns))
	}

	c.setPhase(PhaseAwaitingModel)
	text, err := c.invokeModel(ctx, prompt)
	if err != nil {
		logger.Error("model call failed", "error", err)
		c.notify(ctx, LevelError, "MoodMusic: AI suggestion failed - "+err.Error())
		return OutcomeModelFailed
	}
	if !c.stillWanted() {
		logger.Info("extension paused or logged out during model call")
		return OutcomeAborted
	}

	text = strings.TrimSpace(text)
	if text == "" {
		logger.Warn("model returned an empty response")
		c.notify(ctx, LevelWarning, "MoodMusic: AI did not provide a music suggestion")
		return OutcomeEmptyResponse
	}

	c.setPhase(PhaseParsing)
	suggestion, ok := ParseSuggestion(text)
	if !ok {
		logger.Warn("could not parse model response", "response", text)
		c.notify(ctx, LevelWarning, "MoodMusic: Could not understand the AI's music suggestion")
		return OutcomeParseFailed
	}
	logger.Info("model suggested song", "title", suggestion.Title, "artist", suggestion.Artist)

	c.setPhase(PhaseRequestingPlayback)
	return c.play(ctx, suggestion, true, logger)
}

func (c *Coordinator) invokeModel(ctx context.Context, prompt string) (string, error) {
	if c.cfg.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ModelTimeout)
		defer cancel()
	}
	return c.host.InvokeModel(ctx, prompt, ModelOptions{Quiet: true, Source: modelSource})
}

// stillWanted re-checks the state that may have changed while suspended.
func (c *Coordinator) stillWanted() bool {
	return c.state.Active() && c.state.Authenticated()
}

// play requests the suggestion. original is false for the liked-songs
// fallback so that a fallback never falls back again.
func (c *Coordinator) play(ctx context.Context, s Suggestion, original bool, logger *slog.Logger) Outcome {
	if !c.stillWanted() {
		return OutcomeAborted
	}

	resp, err := c.proxy.Play(ctx, api.Suggestion{Title: s.Title, Artist: s.Artist})
	if err == nil {
		logger.Info("playback started", "message", resp.Message, "track_uri", resp.TrackURI)
		if resp.Success {
			c.poller.Track(resp.TrackURI)
		}
		c.notify(ctx, LevelSuccess, "MoodMusic: "+resp.Message)
		return OutcomePlayed
	}

	if original && c.likedSongsFallback.Load() && isNotFound(err) {
		logger.Info("suggested song not found, falling back to liked songs", "error", err)
		c.notify(ctx, LevelWarning, fmt.Sprintf("MoodMusic: %q not found, playing from your Liked Songs", s.Artist+" - "+s.Title))
		if c.playLiked(ctx, logger) {
			return OutcomeFallbackPlayed
		}
		return OutcomePlayFailed
	}

	logger.Warn("play request failed", "error", err)
	c.reportPlayError(ctx, err)
	return OutcomePlayFailed
}

// playLiked plays liked songs and tracks the result when a single track was chosen.
func (c *Coordinator) playLiked(ctx context.Context, logger *slog.Logger) bool {
	resp, err := c.proxy.PlayLiked(ctx)
	if err != nil {
		logger.Warn("liked songs request failed", "error", err)
		c.reportPlayError(ctx, err)
		return false
	}
	logger.Info("liked songs playing", "message", resp.Message, "track_uri", resp.TrackURI)
	if resp.Success {
		c.poller.Track(resp.TrackURI)
	}
	c.notify(ctx, LevelSuccess, "MoodMusic: "+resp.Message)
	return true
}

func (c *Coordinator) reportPlayError(ctx context.Context, err error) {
	msg := "Request failed"
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		msg = apiErr.Message
	} else if err != nil {
		msg = err.Error()
	}
	c.notify(ctx, LevelError, "MoodMusic: "+msg)

	if apiErr == nil {
		return
	}
	if apiErr.NeedsLogin {
		c.status.RefreshAuthStatus(ctx)
	}
	if apiErr.NeedsConfiguration {
		c.status.RefreshCredentialsStatus(ctx)
	}
}

func (c *Coordinator) notify(ctx context.Context, level Level, msg string) {
	if err := c.host.Notify(context.WithoutCancel(ctx), Notification{Level: level, Message: msg}); err != nil {
		c.logger.Warn("sending notification", "error", err)
	}
}

// isNotFound reports whether a play error means the song was not found.
func isNotFound(err error) bool {
	if errors.Is(err, api.ErrNotFound) {
		return true
	}
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, s := range []string{"not found", "No tracks found", "Could not find"} {
		if strings.Contains(apiErr.Message, s) {
			return true
		}
	}
	return false
}
