package spotify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"
)

// likedSongsLimit is the page size used when reading the library.
const likedSongsLimit = 50

// PlayLiked plays the user's Liked Songs on shuffle. When the collection
// context cannot be played, the fetched track URIs are queued instead.
// Accounts without Premium get a single random liked track.
func (c *Client) PlayLiked(ctx context.Context) (*LikedResult, error) {
	page, err := c.api.CurrentUsersTracks(ctx, spotify.Limit(likedSongsLimit))
	if err != nil {
		return nil, fmt.Errorf("fetching liked songs: %w", err)
	}
	if page == nil || len(page.Tracks) == 0 {
		return nil, ErrNoLikedSongs
	}
	liked := page.Tracks

	device, err := c.ActiveDevice(ctx)
	if err != nil {
		return nil, err
	}

	err = c.playLikedCollection(ctx, device.ID, liked)
	if err == nil {
		err = c.api.ShuffleOpt(ctx, true, &spotify.PlayOptions{DeviceID: &device.ID})
	}

	if err != nil {
		if StatusCode(err) != http.StatusForbidden {
			return nil, fmt.Errorf("playing liked songs: %w", err)
		}
		c.logger.Info("liked songs playback forbidden, falling back to a random track", "error", err)
		return c.playRandomLiked(ctx, device, liked)
	}

	c.logger.Info("started liked songs", "available", len(liked), "device", device.Name)
	return &LikedResult{TrackCount: len(liked), DeviceName: device.Name}, nil
}

func (c *Client) playLikedCollection(ctx context.Context, deviceID spotify.ID, liked []spotify.SavedTrack) error {
	collection := likedSongsContext
	err := c.api.PlayOpt(ctx, &spotify.PlayOptions{
		DeviceID:        &deviceID,
		PlaybackContext: &collection,
	})
	if err == nil {
		return nil
	}

	c.logger.Debug("liked songs context failed, queueing individual tracks", "error", err)
	uris := make([]spotify.URI, len(liked))
	for i := range liked {
		uris[i] = liked[i].URI
	}
	return c.playURIs(ctx, deviceID, uris...)
}

func (c *Client) playRandomLiked(ctx context.Context, device *spotify.PlayerDevice, liked []spotify.SavedTrack) (*LikedResult, error) {
	track := &liked[c.pick(len(liked))].FullTrack

	if err := c.playURIs(ctx, device.ID, track.URI); err != nil {
		return nil, fmt.Errorf("playing random liked song: %w", err)
	}

	return &LikedResult{
		TrackCount:  len(liked),
		Random:      true,
		URI:         string(track.URI),
		Description: describe(track),
		DeviceName:  device.Name,
	}, nil
}
