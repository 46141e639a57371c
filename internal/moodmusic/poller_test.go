package moodmusic

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/moodmusic/internal/api"
	"github.com/justestif/moodmusic/internal/config"
)

func TestPollerStartsOnLogin(t *testing.T) {
	env := newTestEnv(t)
	require.True(t, env.ext.poller.Running())
	assert.Equal(t, 1, env.clock.pending())

	env.ext.status.RefreshAuthStatus(context.Background())
	env.ext.status.EnsurePoller()
	assert.Equal(t, 1, env.clock.pending(), "no second ticker")
}

func TestPollerNotStartedWhenLoggedOut(t *testing.T) {
	host, proxy := newFakeHost(), newFakeProxy()
	proxy.auth.LoggedIn = false
	clock := newFakeClock()
	ext := New(host, proxy, Config{}, WithClock(clock), WithLogger(discardLogger()))
	t.Cleanup(ext.Close)

	require.NoError(t, ext.Init(context.Background()))

	assert.False(t, ext.poller.Running())
	assert.Zero(t, clock.pending())
}

func TestPollerKeepsTrackingWhilePlaying(t *testing.T) {
	env := newTestEnv(t)
	env.ext.poller.Track("spotify:track:a")
	env.proxy.setPlaying("spotify:track:a")

	env.clock.Advance(10 * time.Second)

	session, ok := env.ext.poller.Session()
	require.True(t, ok)
	assert.Equal(t, env.clock.Now(), session.LastSeenPlayingAt)
	assert.Equal(t, 1, env.proxy.stateCalls)
}

func TestPollerRestoresOnceWhenTrackStops(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lease := env.ext.guard.Acquire(ctx, "Default", "Music")
	require.NotNil(t, lease)
	env.ext.poller.Track("spotify:track:a")
	env.proxy.setPlaying("spotify:track:b")

	env.clock.Advance(10 * time.Second)

	_, ok := env.ext.poller.Session()
	assert.False(t, ok)
	assert.False(t, env.ext.guard.Pending())
	assert.Equal(t, "Default", env.host.profile)

	env.clock.Advance(30 * time.Second)
	lease.Restore(ctx)
	assert.Equal(t, []string{"Music", "Default"}, env.host.switches())
	assert.True(t, env.ext.poller.Running(), "the poller keeps ticking for the next song")
}

func TestPollerLeavesRestoreToRunningAnalysis(t *testing.T) {
	env := newTestEnv(t)
	env.ext.poller.Track("spotify:track:old")
	env.proxy.setPlaying("spotify:track:old")

	var profileDuringModel string
	env.host.onModel = func(context.Context) {
		env.proxy.setPlaying("")
		env.clock.Advance(10 * time.Second)
		env.host.mu.Lock()
		profileDuringModel = env.host.profile
		env.host.mu.Unlock()
	}

	outcome := env.ext.coord.Run(context.Background(), ReasonManual)

	assert.Equal(t, OutcomePlayed, outcome)
	assert.Equal(t, "Music", profileDuringModel)
	assert.Equal(t, []string{"Music", "Default"}, env.host.switches())
	assert.Equal(t, "Default", env.host.profile)
	assert.Equal(t, 1.0, counterValue(t, env.metrics, "moodmusic_poller_ticks_total", "stopped"))
}

func TestPollerStateErrorEndsSession(t *testing.T) {
	env := newTestEnv(t)
	env.ext.poller.Track("spotify:track:a")
	env.proxy.stateErr = api.NewError(http.StatusInternalServerError, api.ErrorResponse{Error: "boom"})

	env.clock.Advance(10 * time.Second)

	_, ok := env.ext.poller.Session()
	assert.False(t, ok)
	assert.True(t, env.ext.poller.Running())
	assert.Equal(t, 1.0, counterValue(t, env.metrics, "moodmusic_poller_ticks_total", "error"))
}

func TestPollerUnauthorizedStopsPolling(t *testing.T) {
	env := newTestEnv(t)
	env.proxy.stateErr = api.NewError(http.StatusUnauthorized, api.ErrorResponse{Error: "Not logged in to Spotify", NeedsLogin: true})
	env.proxy.setLoggedIn(false)

	env.clock.Advance(10 * time.Second)

	assert.False(t, env.ext.state.Authenticated())
	assert.False(t, env.ext.poller.Running())
	assert.Zero(t, env.clock.pending())
}

func TestPollerSkipsWhenPaused(t *testing.T) {
	env := newTestEnv(t)
	env.ext.state.SetActive(false)

	env.ext.poller.Tick(context.Background())

	assert.Zero(t, env.proxy.stateCalls)
	assert.Equal(t, 1.0, counterValue(t, env.metrics, "moodmusic_poller_ticks_total", "skipped"))
}

func TestPollerTrackRequiresActiveLogin(t *testing.T) {
	env := newTestEnv(t)

	env.ext.poller.Track("")
	_, ok := env.ext.poller.Session()
	assert.False(t, ok)

	env.ext.state.SetActive(false)
	env.ext.poller.Track("spotify:track:a")
	_, ok = env.ext.poller.Session()
	assert.False(t, ok)
}

func TestPollerInactivityTriggersAnalysis(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.TriggerPolicy = config.PolicyInactivity
		c.InactivityThreshold = 15 * time.Second
	})

	env.clock.Advance(10 * time.Second)
	assert.Zero(t, env.host.modelCalls(), "idle for less than the threshold")

	env.clock.Advance(10 * time.Second)
	assert.Equal(t, 1, env.host.modelCalls())
	session, ok := env.ext.poller.Session()
	require.True(t, ok)
	assert.Equal(t, "spotify:track:sun", session.TrackURI)

	// The suggested track is playing, so nothing is inactive.
	env.proxy.setPlaying("spotify:track:sun")
	env.clock.Advance(60 * time.Second)
	assert.Equal(t, 1, env.host.modelCalls())
}

func TestPollerEventsPolicyIgnoresInactivity(t *testing.T) {
	env := newTestEnv(t)

	env.clock.Advance(2 * time.Minute)

	assert.Zero(t, env.host.modelCalls())
	assert.Equal(t, 12.0, counterValue(t, env.metrics, "moodmusic_poller_ticks_total", "idle"))
}
