package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	spotifyapi "github.com/zmb3/spotify/v2"

	"github.com/justestif/moodmusic/internal/api"
	"github.com/justestif/moodmusic/internal/auth"
	"github.com/justestif/moodmusic/internal/spotify"
)

// Player performs playback on behalf of the logged-in account.
type Player interface {
	PlaySuggestion(ctx context.Context, title, artist string) (*spotify.PlayResult, error)
	PlayLiked(ctx context.Context) (*spotify.LikedResult, error)
	PlaybackState(ctx context.Context) (*api.PlaybackState, error)
}

var _ Player = (*spotify.Client)(nil)

// PlayerFactory builds a Player over an authorized HTTP client.
type PlayerFactory func(client *http.Client) Player

// SpotifyPlayers returns a PlayerFactory backed by the Spotify Web API.
func SpotifyPlayers(logger *slog.Logger, opts ...spotify.Option) PlayerFactory {
	return func(client *http.Client) Player {
		return spotify.New(spotifyapi.New(client), logger, opts...)
	}
}

// withPlayer runs fn with a fresh Player. A Spotify 401 forces a token
// refresh and the whole operation is retried once.
func (h *Handlers) withPlayer(ctx context.Context, fn func(Player) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var client *http.Client
		client, err = h.accounts.HTTPClient(ctx)
		if err != nil {
			return err
		}

		err = fn(h.newPlayer(client))
		if spotify.StatusCode(err) != http.StatusUnauthorized {
			return err
		}
		h.logger.Warn("spotify rejected access token, refreshing", "attempt", attempt+1)
		h.accounts.ForceRefresh()
	}
	return err
}

// PlaybackState returns the current player state (GET /playback/state).
func (h *Handlers) PlaybackState(w http.ResponseWriter, r *http.Request) {
	var state *api.PlaybackState
	err := h.withPlayer(r.Context(), func(p Player) error {
		var err error
		state, err = p.PlaybackState(r.Context())
		return err
	})
	if err != nil {
		if isAuthFailure(err) {
			writeNeedsLogin(w)
			return
		}
		h.logger.Error("fetching playback state", "error", err)
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "Could not fetch playback state."})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Play searches for a suggested song and plays it (POST /play).
func (h *Handlers) Play(w http.ResponseWriter, r *http.Request) {
	var req api.PlayRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Suggestion == nil || strings.TrimSpace(req.Suggestion.Title) == "" {
		h.respondPlay(w, "play", http.StatusBadRequest, api.ErrorResponse{Message: "Invalid song suggestion format."})
		return
	}

	title := strings.TrimSpace(req.Suggestion.Title)
	artist := strings.TrimSpace(req.Suggestion.Artist)
	h.logger.Info("play requested", "title", title, "artist", artist)

	var result *spotify.PlayResult
	err := h.withPlayer(r.Context(), func(p Player) error {
		var err error
		result, err = p.PlaySuggestion(r.Context(), title, artist)
		return err
	})
	if err != nil {
		if artist == "" {
			artist = "Unknown Artist"
		}
		status, body := h.playError(err, "An internal server error occurred.", map[error]string{
			spotify.ErrTrackNotFound:  fmt.Sprintf("Song \"%s\" by %s not found.", title, artist),
			spotify.ErrNoActiveDevice: "No active Spotify device found. Please start playing on a device first.",
		})
		h.respondPlay(w, "play", status, body)
		return
	}

	h.logger.Info("playing track", "track", result.Description, "device", result.DeviceName)
	h.respondPlay(w, "play", http.StatusOK, api.PlayResponse{
		Success:  true,
		Message:  fmt.Sprintf("Playing \"%s\"", result.Description),
		TrackURI: result.URI,
	})
}

// PlayLiked plays the account's liked songs (POST /play/liked).
func (h *Handlers) PlayLiked(w http.ResponseWriter, r *http.Request) {
	var result *spotify.LikedResult
	err := h.withPlayer(r.Context(), func(p Player) error {
		var err error
		result, err = p.PlayLiked(r.Context())
		return err
	})
	if err != nil {
		status, body := h.playError(err, "Failed to play liked songs.", map[error]string{
			spotify.ErrNoLikedSongs:   "No liked songs found. Please like some songs on Spotify first.",
			spotify.ErrNoActiveDevice: "No active Spotify device found. Please start playing on a device first.",
		})
		h.respondPlay(w, "liked", status, body)
		return
	}

	if result.Random {
		h.logger.Info("playing random liked song", "track", result.Description, "device", result.DeviceName)
		h.respondPlay(w, "liked", http.StatusOK, api.PlayResponse{
			Success:  true,
			Message:  fmt.Sprintf("Playing random liked song: \"%s\"", result.Description),
			TrackURI: result.URI,
		})
		return
	}

	h.logger.Info("playing liked songs", "count", result.TrackCount, "device", result.DeviceName)
	h.respondPlay(w, "liked", http.StatusOK, api.PlayResponse{
		Success:    true,
		Message:    fmt.Sprintf("Playing your liked songs (%d songs available)", result.TrackCount),
		TrackCount: result.TrackCount,
	})
}

// playError maps a playback failure to a status and body. Sentinels in
// known get 404 with their message, Spotify API errors keep their status.
func (h *Handlers) playError(err error, fallback string, known map[error]string) (int, any) {
	for sentinel, msg := range known {
		if errors.Is(err, sentinel) {
			return http.StatusNotFound, api.ErrorResponse{Message: msg}
		}
	}
	if isAuthFailure(err) {
		return http.StatusUnauthorized, api.ErrorResponse{Error: "Authentication required.", NeedsLogin: true}
	}
	if status := spotify.StatusCode(err); status != 0 {
		h.logger.Warn("spotify api error", "status", status, "error", err)
		return status, api.ErrorResponse{Message: "Spotify Error: " + spotify.ErrorMessage(err)}
	}
	h.logger.Error("playback failed", "error", err)
	return http.StatusInternalServerError, api.ErrorResponse{Message: fallback}
}

func (h *Handlers) respondPlay(w http.ResponseWriter, endpoint string, status int, body any) {
	h.metrics.ProxyPlay(endpoint, status)
	writeJSON(w, status, body)
}

// isAuthFailure reports whether err means the account must log in again.
func isAuthFailure(err error) bool {
	return errors.Is(err, auth.ErrNotAuthenticated) || errors.Is(err, auth.ErrRefreshFailed)
}
