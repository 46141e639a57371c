package moodmusic

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/justestif/moodmusic/internal/api"
	"github.com/justestif/moodmusic/internal/config"
	"github.com/justestif/moodmusic/internal/metrics"
)

// fakeClock runs timers synchronously when advanced. Sleep advances the
// clock itself, so nothing in a test ever blocks on time.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	seq     int
	f       func()
	done    bool
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), seq: len(c.timers), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.Advance(d)
	return ctx.Err()
}

// Advance moves time forward by d, firing due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.done && !t.stopped && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			if c.now.Before(target) {
				c.now = target
			}
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at.Equal(due[j].at) {
				return due[i].seq < due[j].seq
			}
			return due[i].at.Before(due[j].at)
		})
		next := due[0]
		next.done = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()

		next.f()
	}
}

// pending counts timers that have not fired or been stopped.
func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done && !t.stopped {
			n++
		}
	}
	return n
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type fakeHost struct {
	mu sync.Mutex

	history    []Turn
	historyErr error
	generating bool

	profile      string
	profileErr   error
	setErr       error
	ignoreSwitch map[string]bool // switches to these names silently do nothing
	setCalls     []string
	onSet        func(name string)

	modelText  string
	modelErr   error
	modelPanic bool
	onModel    func(ctx context.Context)
	prompts    []string

	notes    []Notification
	handlers map[EventKind]func(Event)
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		history: []Turn{
			{Speaker: "Ann", IsUser: true, Text: "The storm finally passed."},
			{Speaker: "Narrator", Text: "Sunlight spills across the wet streets."},
		},
		profile:      "Default",
		modelText:    "Title: Here Comes the Sun\nArtist: The Beatles",
		ignoreSwitch: map[string]bool{},
		handlers:     map[EventKind]func(Event){},
	}
}

func (h *fakeHost) RecentHistory(_ context.Context, n int) ([]Turn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.historyErr != nil {
		return nil, h.historyErr
	}
	turns := h.history
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return append([]Turn(nil), turns...), nil
}

func (h *fakeHost) GenerationInProgress(context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.generating, nil
}

func (h *fakeHost) ActiveProfile(context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.profile, h.profileErr
}

func (h *fakeHost) SetActiveProfile(_ context.Context, name string) error {
	h.mu.Lock()
	h.setCalls = append(h.setCalls, name)
	onSet := h.onSet
	err := h.setErr
	if err == nil && !h.ignoreSwitch[name] {
		h.profile = name
	}
	h.mu.Unlock()

	if onSet != nil {
		onSet(name)
	}
	return err
}

func (h *fakeHost) InvokeModel(ctx context.Context, prompt string, _ ModelOptions) (string, error) {
	h.mu.Lock()
	h.prompts = append(h.prompts, prompt)
	onModel := h.onModel
	text, err, panics := h.modelText, h.modelErr, h.modelPanic
	h.mu.Unlock()

	if onModel != nil {
		onModel(ctx)
	}
	if panics {
		panic("model exploded")
	}
	return text, err
}

func (h *fakeHost) Notify(_ context.Context, n Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notes = append(h.notes, n)
	return nil
}

func (h *fakeHost) Subscribe(kind EventKind, handler func(Event)) (func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[kind] = handler
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.handlers, kind)
	}, nil
}

func (h *fakeHost) emit(ev Event) {
	h.mu.Lock()
	handler := h.handlers[ev.Kind]
	h.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
}

func (h *fakeHost) modelCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.prompts)
}

func (h *fakeHost) switches() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.setCalls...)
}

func (h *fakeHost) notifications(level Level) []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Notification
	for _, n := range h.notes {
		if n.Level == level {
			out = append(out, n)
		}
	}
	return out
}

type fakeProxy struct {
	mu sync.Mutex

	creds     api.ConfigStatus
	credsErr  error
	auth      api.AuthStatus
	authErr   error
	authCalls int

	state      *api.PlaybackState
	stateErr   error
	stateCalls int

	playResp *api.PlayResponse
	playErr  error
	plays    []api.Suggestion

	likedResp  *api.PlayResponse
	likedErr   error
	likedCalls int
}

func newFakeProxy() *fakeProxy {
	return &fakeProxy{
		creds:     api.ConfigStatus{ClientIDSet: true, ClientSecretSet: true},
		auth:      api.AuthStatus{LoggedIn: true, CredentialsSet: true},
		state:     &api.PlaybackState{},
		playResp:  &api.PlayResponse{Success: true, Message: `Playing "Here Comes the Sun by The Beatles"`, TrackURI: "spotify:track:sun"},
		likedResp: &api.PlayResponse{Success: true, Message: "Playing your liked songs (12 songs available)", TrackCount: 12},
	}
}

func (p *fakeProxy) CredentialsStatus(context.Context) (*api.ConfigStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.credsErr != nil {
		return nil, p.credsErr
	}
	c := p.creds
	return &c, nil
}

func (p *fakeProxy) AuthStatus(context.Context) (*api.AuthStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authCalls++
	if p.authErr != nil {
		return nil, p.authErr
	}
	a := p.auth
	return &a, nil
}

func (p *fakeProxy) PlaybackState(context.Context) (*api.PlaybackState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stateCalls++
	if p.stateErr != nil {
		return nil, p.stateErr
	}
	s := *p.state
	return &s, nil
}

func (p *fakeProxy) Play(_ context.Context, s api.Suggestion) (*api.PlayResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays = append(p.plays, s)
	if p.playErr != nil {
		return nil, p.playErr
	}
	r := *p.playResp
	return &r, nil
}

func (p *fakeProxy) PlayLiked(context.Context) (*api.PlayResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.likedCalls++
	if p.likedErr != nil {
		return nil, p.likedErr
	}
	r := *p.likedResp
	return &r, nil
}

func (p *fakeProxy) setPlaying(uri string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stateErr = nil
	if uri == "" {
		p.state = &api.PlaybackState{}
		return
	}
	p.state = &api.PlaybackState{IsPlaying: true, Item: &api.PlaybackItem{URI: uri}}
}

func (p *fakeProxy) setLoggedIn(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.auth.LoggedIn = v
}

type testEnv struct {
	ext     *Extension
	host    *fakeHost
	proxy   *fakeProxy
	clock   *fakeClock
	metrics *metrics.Metrics
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv builds an initialized extension against logged-in fakes.
func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	env := &testEnv{
		host:    newFakeHost(),
		proxy:   newFakeProxy(),
		clock:   newFakeClock(),
		metrics: metrics.New(),
	}

	cfg := Config{
		MusicProfile:       "Music",
		UseMusicProfile:    true,
		LikedSongsFallback: true,
		TriggerPolicy:      config.PolicyEvents,
		ModelTimeout:       time.Minute,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	env.ext = New(env.host, env.proxy, cfg,
		WithClock(env.clock),
		WithLogger(discardLogger()),
		WithMetrics(env.metrics),
	)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		env.ext.Close()
		cancel()
	})
	require.NoError(t, env.ext.Init(ctx))
	return env
}

var errBoom = errors.New("boom")

// counterValue reads the counter series of family name whose single label
// has the given value.
func counterValue(t *testing.T, m *metrics.Metrics, name, label string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetValue() == label {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
