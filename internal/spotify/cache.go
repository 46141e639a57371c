package spotify

import (
	"context"
	"strings"
	"time"
)

// TrackCacheTTL is the age after which a cached lookup is searched again.
const TrackCacheTTL = 30 * 24 * time.Hour

// CachedTrack is the track a suggestion resolved to.
type CachedTrack struct {
	URI         string
	Description string
	FetchedAt   time.Time
}

// TrackCache remembers search results across requests.
type TrackCache interface {
	// GetTrack returns (nil, nil) on a miss.
	GetTrack(ctx context.Context, key string) (*CachedTrack, error)
	PutTrack(ctx context.Context, key string, track CachedTrack) error
}

// Option configures a Client.
type Option func(*Client)

// WithTrackCache looks suggestions up in cache before searching.
func WithTrackCache(cache TrackCache) Option {
	return func(c *Client) { c.cache = cache }
}

// lookupKey normalizes a suggestion for caching.
func lookupKey(title, artist string) string {
	return strings.ToLower(strings.TrimSpace(artist)) + "\x1f" + strings.ToLower(strings.TrimSpace(title))
}

// resolve returns the URI and description of the suggested song, consulting
// the cache first. Cache failures fall through to a search.
func (c *Client) resolve(ctx context.Context, title, artist string) (string, string, error) {
	key := lookupKey(title, artist)

	if c.cache != nil {
		cached, err := c.cache.GetTrack(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn("reading track cache", "error", err)
		case cached != nil && c.now().Sub(cached.FetchedAt) < TrackCacheTTL:
			c.logger.Debug("track cache hit", "track", cached.Description)
			return cached.URI, cached.Description, nil
		}
	}

	track, err := c.FindTrack(ctx, title, artist)
	if err != nil {
		return "", "", err
	}
	uri, desc := string(track.URI), describe(track)

	if c.cache != nil {
		entry := CachedTrack{URI: uri, Description: desc, FetchedAt: c.now()}
		if err := c.cache.PutTrack(ctx, key, entry); err != nil {
			c.logger.Warn("writing track cache", "error", err)
		}
	}
	return uri, desc, nil
}
