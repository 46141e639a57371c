package moodmusic

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Reason is what caused an analysis attempt.
type Reason string

const (
	ReasonGenerationEnded Reason = "generation-ended"
	ReasonSwipe           Reason = "swipe"
	ReasonManual          Reason = "manual"
	ReasonInactivity      Reason = "playback-inactivity"
)

// Reasons a trigger is dropped before an analysis starts.
const (
	DropPaused          = "paused"
	DropUnauthenticated = "unauthenticated"
	DropBusy            = "busy"
	DropCooldown        = "cooldown"
	DropSpacing         = "spacing"
	DropDuplicate       = "duplicate"
	DropUserMessage     = "user_message"
	DropSuperseded      = "superseded"
)

// AnalysisRequest is one attempt to pick and play a song.
type AnalysisRequest struct {
	RequestID     uint64
	CorrelationID string
	TriggerReason Reason
	StartedAt     time.Time

	// OriginalProfileName is "" when it could not be determined.
	OriginalProfileName    string
	ProfileRestoreRequired bool
}

// State is the process-wide extension state. The live request is the only
// record of an analysis in progress: a request id exists exactly while
// the request does.
type State struct {
	mu sync.Mutex

	active                bool
	authenticated         bool
	credentialsConfigured bool

	current       *AnalysisRequest
	lastID        uint64
	lastStartedAt time.Time

	idle []func()
}

// NewState returns an active, unauthenticated state.
func NewState() *State {
	return &State{active: true}
}

// Active reports whether the user has the extension enabled.
func (s *State) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetActive sets the pause toggle.
func (s *State) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

// Authenticated reports whether the proxy holds a Spotify login.
func (s *State) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// CredentialsConfigured reports whether the proxy has Spotify app credentials.
func (s *State) CredentialsConfigured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credentialsConfigured
}

// setAuth stores new auth values and returns the previous authenticated value.
func (s *State) setAuth(authenticated, credentialsConfigured bool) (wasAuthenticated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasAuthenticated = s.authenticated
	s.authenticated = authenticated
	s.credentialsConfigured = credentialsConfigured
	return wasAuthenticated
}

func (s *State) setCredentialsConfigured(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentialsConfigured = v
}

// AnalysisInProgress reports whether a request is live.
func (s *State) AnalysisInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// CurrentRequestID returns the id of the live request, if any.
func (s *State) CurrentRequestID() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0, false
	}
	return s.current.RequestID, true
}

// canStart checks the entry guard without acquiring. It returns the drop
// reason when the guard fails.
func (s *State) canStart(now time.Time, cooldown time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkLocked(now, cooldown)
}

func (s *State) checkLocked(now time.Time, cooldown time.Duration) string {
	switch {
	case !s.active:
		return DropPaused
	case !s.authenticated:
		return DropUnauthenticated
	case s.current != nil:
		return DropBusy
	case !s.lastStartedAt.IsZero() && now.Sub(s.lastStartedAt) < cooldown:
		return DropCooldown
	}
	return ""
}

// acquire checks the entry guard and, when it holds, makes a new request live.
func (s *State) acquire(reason Reason, now time.Time, cooldown time.Duration) (*AnalysisRequest, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if drop := s.checkLocked(now, cooldown); drop != "" {
		return nil, drop
	}

	s.lastID++
	s.lastStartedAt = now
	s.current = &AnalysisRequest{
		RequestID:     s.lastID,
		CorrelationID: uuid.NewString(),
		TriggerReason: reason,
		StartedAt:     now,
	}
	return s.current, ""
}

// release ends req and runs the callbacks queued by whenIdle.
func (s *State) release(req *AnalysisRequest) {
	s.mu.Lock()
	if s.current != req {
		s.mu.Unlock()
		return
	}
	s.current = nil
	hooks := s.idle
	s.idle = nil
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// whenIdle runs fn now if no request is live, otherwise after the live one is released.
func (s *State) whenIdle(fn func()) {
	s.mu.Lock()
	if s.current != nil {
		s.idle = append(s.idle, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn()
}
