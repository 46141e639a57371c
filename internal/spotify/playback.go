package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/moodmusic/internal/api"
)

// likedSongsContext is the context URI of the user's Liked Songs collection.
const likedSongsContext = spotify.URI("spotify:collection:tracks")

// ActiveDevice returns the currently active Spotify Connect device.
func (c *Client) ActiveDevice(ctx context.Context) (*spotify.PlayerDevice, error) {
	devices, err := c.api.PlayerDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	for i := range devices {
		if devices[i].Active && devices[i].ID != "" {
			return &devices[i], nil
		}
	}

	c.logger.Warn("no active spotify device", "available", len(devices))
	return nil, ErrNoActiveDevice
}

// PlaySuggestion finds the suggested song and plays it on the active device.
func (c *Client) PlaySuggestion(ctx context.Context, title, artist string) (*PlayResult, error) {
	uri, desc, err := c.resolve(ctx, title, artist)
	if err != nil {
		return nil, err
	}

	device, err := c.ActiveDevice(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.playURIs(ctx, device.ID, spotify.URI(uri)); err != nil {
		return nil, fmt.Errorf("starting playback: %w", err)
	}

	result := &PlayResult{
		URI:         uri,
		Description: desc,
		DeviceName:  device.Name,
	}
	c.logger.Info("play command sent", "track", result.Description, "device", device.Name)
	return result, nil
}

// PlaybackState returns the current player state. An idle player
// yields IsPlaying false and a nil Item.
func (c *Client) PlaybackState(ctx context.Context) (*api.PlaybackState, error) {
	state, err := c.api.PlayerState(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching player state: %w", err)
	}
	if state == nil || state.Item == nil {
		return &api.PlaybackState{IsPlaying: state != nil && state.Playing}, nil
	}

	out := &api.PlaybackState{
		IsPlaying:    state.Playing,
		Item:         convertItem(state.Item),
		ProgressMs:   int(state.Progress),
		ShuffleState: state.ShuffleState,
		RepeatState:  state.RepeatState,
	}
	if state.Device.ID != "" {
		out.Device = &api.Device{
			ID:   state.Device.ID.String(),
			Name: state.Device.Name,
			Type: state.Device.Type,
		}
	}
	return out, nil
}

func (c *Client) playURIs(ctx context.Context, deviceID spotify.ID, uris ...spotify.URI) error {
	return c.api.PlayOpt(ctx, &spotify.PlayOptions{
		DeviceID: &deviceID,
		URIs:     uris,
	})
}
