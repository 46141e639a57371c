// Package spotify provides a wrapper around the Spotify Web API for
// finding and playing suggested songs.
package spotify

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/zmb3/spotify/v2"
)

// Sentinel errors.
var (
	// ErrTrackNotFound is returned when every search strategy comes up empty.
	ErrTrackNotFound = errors.New("track not found")

	// ErrNoActiveDevice is returned when no Spotify Connect device is active.
	ErrNoActiveDevice = errors.New("no active Spotify device")

	// ErrNoLikedSongs is returned when the user's library is empty.
	ErrNoLikedSongs = errors.New("no liked songs")
)

// webAPI is the subset of *spotify.Client used by Client.
type webAPI interface {
	Search(ctx context.Context, query string, t spotify.SearchType, opts ...spotify.RequestOption) (*spotify.SearchResult, error)
	PlayerDevices(ctx context.Context) ([]spotify.PlayerDevice, error)
	PlayerState(ctx context.Context, opts ...spotify.RequestOption) (*spotify.PlayerState, error)
	PlayOpt(ctx context.Context, opt *spotify.PlayOptions) error
	ShuffleOpt(ctx context.Context, shuffle bool, opt *spotify.PlayOptions) error
	CurrentUsersTracks(ctx context.Context, opts ...spotify.RequestOption) (*spotify.SavedTrackPage, error)
}

var _ webAPI = (*spotify.Client)(nil)

// Client wraps the Spotify API client with convenience methods.
type Client struct {
	api    webAPI
	cache  TrackCache
	logger *slog.Logger
	pick   func(n int) int
	now    func() time.Time
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated.
func New(c *spotify.Client, logger *slog.Logger, opts ...Option) *Client {
	return newClient(c, logger, opts...)
}

func newClient(a webAPI, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{api: a, logger: logger, pick: rand.Intn, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusCode returns the HTTP status carried by a Spotify Web API error, or 0.
func StatusCode(err error) int {
	if se, ok := asAPIError(err); ok {
		return se.Status
	}
	return 0
}

// ErrorMessage returns the message carried by a Spotify Web API error.
func ErrorMessage(err error) string {
	if se, ok := asAPIError(err); ok {
		return se.Message
	}
	return ""
}

func asAPIError(err error) (spotify.Error, bool) {
	var se spotify.Error
	if errors.As(err, &se) {
		return se, true
	}
	var sep *spotify.Error
	if errors.As(err, &sep) && sep != nil {
		return *sep, true
	}
	return spotify.Error{}, false
}
