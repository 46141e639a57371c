// Package moodmusic decides when to ask a language model for a song that
// fits the current chat and plays the answer through the proxy.
package moodmusic

import (
	"context"

	"github.com/justestif/moodmusic/internal/api"
)

// Turn is one chat message.
type Turn struct {
	Speaker string
	IsUser  bool
	Text    string
}

// EventKind names a chat host event.
type EventKind string

const (
	EventGenerationEnded EventKind = "generation_ended"
	EventMessageSwiped   EventKind = "message_swiped"
)

// Event is a chat host notification about a message.
type Event struct {
	Kind      EventKind
	MessageID string
	SwipeID   int
	IsUser    bool // set for generation-ended when the message came from the user
}

// Level is the severity of a user notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a toast shown to the user. Persistent ones stay until dismissed.
type Notification struct {
	Level      Level
	Message    string
	Persistent bool
}

// ModelOptions are passed through to the host's model invocation.
type ModelOptions struct {
	Quiet  bool
	Source string
}

// Host is the chat application the coordinator runs inside.
type Host interface {
	RecentHistory(ctx context.Context, n int) ([]Turn, error)
	GenerationInProgress(ctx context.Context) (bool, error)

	// ActiveProfile returns "" when the profile cannot be determined.
	ActiveProfile(ctx context.Context) (string, error)
	SetActiveProfile(ctx context.Context, name string) error

	// InvokeModel runs the active profile. An empty prompt uses the profile's own instructions.
	InvokeModel(ctx context.Context, prompt string, opts ModelOptions) (string, error)

	Notify(ctx context.Context, n Notification) error

	// Subscribe delivers events of kind to handler until the returned func is called.
	Subscribe(kind EventKind, handler func(Event)) (func(), error)
}

// Proxy is the music proxy's REST API.
type Proxy interface {
	CredentialsStatus(ctx context.Context) (*api.ConfigStatus, error)
	AuthStatus(ctx context.Context) (*api.AuthStatus, error)
	PlaybackState(ctx context.Context) (*api.PlaybackState, error)
	Play(ctx context.Context, s api.Suggestion) (*api.PlayResponse, error)
	PlayLiked(ctx context.Context) (*api.PlayResponse, error)
}
