package spotify

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/zmb3/spotify/v2"
)

// artistSeparator splits "A, B & C feat. D" into individual artists.
var artistSeparator = regexp.MustCompile(`(?i)[,&]|feat\.?`)

// FindTrack searches for a song using progressively looser strategies:
// exact title and artist, exact title and first artist, a broad query
// checked against the title, then title only.
func (c *Client) FindTrack(ctx context.Context, title, artist string) (*spotify.FullTrack, error) {
	title = strings.TrimSpace(title)
	artist = strings.TrimSpace(artist)

	if title == "" {
		return nil, ErrTrackNotFound
	}

	strategies := []struct {
		name string
		run  func(context.Context, string, string) (*spotify.FullTrack, error)
	}{
		{"exact", c.searchExact},
		{"first artist", c.searchFirstArtist},
		{"broad", c.searchBroad},
		{"title only", c.searchTitleOnly},
	}

	for _, s := range strategies {
		track, err := s.run(ctx, title, artist)
		if err != nil {
			return nil, fmt.Errorf("%s search: %w", s.name, err)
		}
		if track != nil {
			c.logger.Debug("found track", "strategy", s.name, "track", describe(track))
			return track, nil
		}
	}

	return nil, ErrTrackNotFound
}

func (c *Client) searchExact(ctx context.Context, title, artist string) (*spotify.FullTrack, error) {
	if artist == "" {
		return nil, nil
	}
	return c.first(ctx, fmt.Sprintf(`track:"%s" artist:"%s"`, title, artist))
}

func (c *Client) searchFirstArtist(ctx context.Context, title, artist string) (*spotify.FullTrack, error) {
	if !hasMultipleArtists(artist) {
		return nil, nil
	}
	first := strings.TrimSpace(artistSeparator.Split(artist, 2)[0])
	if first == "" {
		return nil, nil
	}
	return c.first(ctx, fmt.Sprintf(`track:"%s" artist:"%s"`, title, first))
}

func (c *Client) searchBroad(ctx context.Context, title, artist string) (*spotify.FullTrack, error) {
	if artist == "" {
		return nil, nil
	}
	candidates, err := c.search(ctx, fmt.Sprintf("track:%s artist:%s", title, artist), 5)
	if err != nil {
		return nil, err
	}

	want := strings.ToLower(title)
	for i := range candidates {
		name := strings.ToLower(candidates[i].Name)
		if strings.Contains(name, want) || strings.Contains(want, name) {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

func (c *Client) searchTitleOnly(ctx context.Context, title, artist string) (*spotify.FullTrack, error) {
	candidates, err := c.search(ctx, fmt.Sprintf(`track:"%s"`, title), 10)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Prefer a candidate credited to one of the suggested artists
	if artist != "" {
		fragments := splitArtists(strings.ToLower(artist))
		for i := range candidates {
			credited := strings.ToLower(joinArtistNames(candidates[i].Artists, " "))
			for _, f := range fragments {
				if strings.Contains(credited, f) {
					return &candidates[i], nil
				}
			}
		}
	}

	return &candidates[0], nil
}

func (c *Client) first(ctx context.Context, query string) (*spotify.FullTrack, error) {
	tracks, err := c.search(ctx, query, 1)
	if err != nil || len(tracks) == 0 {
		return nil, err
	}
	return &tracks[0], nil
}

func (c *Client) search(ctx context.Context, query string, limit int) ([]spotify.FullTrack, error) {
	c.logger.Debug("searching spotify", "query", query, "limit", limit)

	result, err := c.api.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(limit))
	if err != nil {
		return nil, err
	}
	if result == nil || result.Tracks == nil {
		return nil, nil
	}
	return result.Tracks.Tracks, nil
}

func hasMultipleArtists(artist string) bool {
	return strings.Contains(artist, ",") ||
		strings.Contains(artist, "&") ||
		strings.Contains(strings.ToLower(artist), " feat")
}

// splitArtists splits on separators and drops empty fragments.
func splitArtists(artist string) []string {
	var out []string
	for _, part := range artistSeparator.Split(artist, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func joinArtistNames(artists []spotify.SimpleArtist, sep string) string {
	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.Name
	}
	return strings.Join(names, sep)
}
