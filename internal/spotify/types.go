package spotify

import (
	"github.com/zmb3/spotify/v2"

	"github.com/justestif/moodmusic/internal/api"
)

// PlayResult describes a track that started playing.
type PlayResult struct {
	URI         string
	Description string // "<name> by <artists>"
	DeviceName  string
}

// LikedResult describes liked-songs playback.
type LikedResult struct {
	TrackCount  int
	Random      bool   // a single random liked track was played
	URI         string // set when Random
	Description string // set when Random
	DeviceName  string
}

// joinArtists returns the artist names joined by ", ".
func joinArtists(artists []spotify.SimpleArtist) string {
	return joinArtistNames(artists, ", ")
}

// describe returns "<name> by <artists>".
func describe(track *spotify.FullTrack) string {
	return track.Name + " by " + joinArtists(track.Artists)
}

// convertItem converts a Spotify track to the proxy's playback item.
func convertItem(track *spotify.FullTrack) *api.PlaybackItem {
	if track == nil {
		return nil
	}
	return &api.PlaybackItem{
		URI:         string(track.URI),
		ID:          track.ID.String(),
		Name:        track.Name,
		Artist:      joinArtists(track.Artists),
		Album:       track.Album.Name,
		DurationMs:  int(track.Duration),
		ExternalURL: track.ExternalURLs["spotify"],
	}
}
