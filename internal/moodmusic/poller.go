package moodmusic

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/justestif/moodmusic/internal/api"
	"github.com/justestif/moodmusic/internal/metrics"
)

// PollingSession is the track the poller is watching.
type PollingSession struct {
	TrackURI          string
	IsActive          bool
	LastSeenPlayingAt time.Time
}

// Poller checks the player on a fixed interval and notices when the
// tracked song stops.
type Poller struct {
	proxy    Proxy
	state    *State
	guard    *Guard
	clock    Clock
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// onUnauthorized runs when the proxy answers 401.
	onUnauthorized func(ctx context.Context)

	// onInactive runs when nothing has played for inactivityThreshold.
	// nil disables inactivity triggering.
	onInactive          func(ctx context.Context)
	inactivityThreshold time.Duration

	mu            sync.Mutex
	ctx           context.Context
	running       bool
	gen           uint64
	timer         Timer
	session       *PollingSession
	inactiveSince time.Time
}

// NewPoller creates a stopped Poller.
func NewPoller(proxy Proxy, state *State, guard *Guard, clock Clock, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *Poller {
	return &Poller{
		proxy:    proxy,
		state:    state,
		guard:    guard,
		clock:    clock,
		interval: interval,
		logger:   logger,
		metrics:  m,
	}
}

// Start begins ticking every interval. It does nothing if already running.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.ctx = ctx
	p.gen++
	if p.inactiveSince.IsZero() {
		p.inactiveSince = p.clock.Now()
	}
	p.scheduleLocked(p.gen)
	p.logger.Info("playback poller started", "interval", p.interval)
}

// Stop halts ticking and forgets the tracked track.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		p.session = nil
		return
	}
	p.running = false
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.session != nil {
		p.session = nil
		p.inactiveSince = p.clock.Now()
	}
	p.logger.Info("playback poller stopped")
}

// Running reports whether the poller is ticking.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Track starts watching uri, replacing any previous session.
func (p *Poller) Track(uri string) {
	if uri == "" || !p.state.Active() || !p.state.Authenticated() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = &PollingSession{
		TrackURI:          uri,
		IsActive:          true,
		LastSeenPlayingAt: p.clock.Now(),
	}
	p.logger.Info("tracking playback", "track_uri", uri)
}

// Session returns a copy of the current session.
func (p *Poller) Session() (PollingSession, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return PollingSession{}, false
	}
	return *p.session, true
}

func (p *Poller) scheduleLocked(gen uint64) {
	p.timer = p.clock.AfterFunc(p.interval, func() {
		p.mu.Lock()
		if !p.running || p.gen != gen {
			p.mu.Unlock()
			return
		}
		ctx := p.ctx
		p.mu.Unlock()

		p.Tick(ctx)

		p.mu.Lock()
		if p.running && p.gen == gen {
			p.scheduleLocked(gen)
		}
		p.mu.Unlock()
	})
}

// Tick performs one poll.
func (p *Poller) Tick(ctx context.Context) {
	if !p.state.Active() || !p.state.Authenticated() {
		p.metrics.PollerTick("skipped")
		return
	}

	state, err := p.proxy.PlaybackState(ctx)
	if err != nil {
		p.metrics.PollerTick("error")
		p.logger.Warn("fetching playback state", "error", err)
		if p.endSession() {
			p.logger.Warn("stopped tracking after playback state error")
			p.restoreIdle(ctx)
		}
		if errors.Is(err, api.ErrUnauthorized) && p.onUnauthorized != nil {
			p.onUnauthorized(ctx)
		}
		return
	}

	now := p.clock.Now()
	playing := state.IsPlaying && state.Item != nil

	p.mu.Lock()
	session := p.session
	switch {
	case session != nil && playing && state.Item.URI == session.TrackURI:
		session.LastSeenPlayingAt = now
		p.mu.Unlock()
		p.metrics.PollerTick("playing")
		return

	case session != nil:
		uri := session.TrackURI
		p.session = nil
		p.inactiveSince = now
		p.mu.Unlock()
		p.metrics.PollerTick("stopped")
		// The next song comes from chat events.
		p.logger.Info("tracked track stopped", "track_uri", uri)
		p.restoreIdle(ctx)
		return

	case playing:
		// Something else is playing.
		p.inactiveSince = now
		p.mu.Unlock()
		p.metrics.PollerTick("other")
		return
	}

	idleFor := now.Sub(p.inactiveSince)
	fire := p.onInactive != nil && idleFor >= p.inactivityThreshold && !p.state.AnalysisInProgress()
	if fire {
		p.inactiveSince = now
	}
	p.mu.Unlock()
	p.metrics.PollerTick("idle")

	if fire {
		p.logger.Debug("playback inactive, triggering analysis", "idle_for", idleFor)
		p.onInactive(ctx)
	}
}

// restoreIdle restores a leftover lease. A running analysis owns its lease
// and restores it during cleanup.
func (p *Poller) restoreIdle(ctx context.Context) {
	if p.state.AnalysisInProgress() {
		p.logger.Debug("analysis in progress, leaving profile restore to it")
		return
	}
	p.guard.RestorePending(ctx)
}

// endSession drops the session and reports whether there was one.
func (p *Poller) endSession() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return false
	}
	p.session = nil
	p.inactiveSince = p.clock.Now()
	return true
}
