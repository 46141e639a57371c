package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/zmb3/spotify/v2"
)

// fakeAPI records calls and replays canned responses.
type fakeAPI struct {
	searches map[string][]spotify.FullTrack // query -> results
	queries  []string
	limits   []int

	devices    []spotify.PlayerDevice
	devicesErr error

	state    *spotify.PlayerState
	stateErr error

	liked    []spotify.SavedTrack
	likedErr error

	plays      []spotify.PlayOptions
	playErrs   []error // consumed in order, nil when exhausted
	shuffled   bool
	shuffleErr error
}

func (f *fakeAPI) Search(_ context.Context, query string, _ spotify.SearchType, opts ...spotify.RequestOption) (*spotify.SearchResult, error) {
	f.queries = append(f.queries, query)
	f.limits = append(f.limits, len(opts))
	tracks, ok := f.searches[query]
	if !ok {
		return &spotify.SearchResult{Tracks: &spotify.FullTrackPage{}}, nil
	}
	return &spotify.SearchResult{Tracks: &spotify.FullTrackPage{Tracks: tracks}}, nil
}

func (f *fakeAPI) PlayerDevices(context.Context) ([]spotify.PlayerDevice, error) {
	return f.devices, f.devicesErr
}

func (f *fakeAPI) PlayerState(context.Context, ...spotify.RequestOption) (*spotify.PlayerState, error) {
	return f.state, f.stateErr
}

func (f *fakeAPI) PlayOpt(_ context.Context, opt *spotify.PlayOptions) error {
	f.plays = append(f.plays, *opt)
	if len(f.playErrs) > 0 {
		err := f.playErrs[0]
		f.playErrs = f.playErrs[1:]
		return err
	}
	return nil
}

func (f *fakeAPI) ShuffleOpt(_ context.Context, shuffle bool, _ *spotify.PlayOptions) error {
	f.shuffled = shuffle
	return f.shuffleErr
}

func (f *fakeAPI) CurrentUsersTracks(context.Context, ...spotify.RequestOption) (*spotify.SavedTrackPage, error) {
	if f.likedErr != nil {
		return nil, f.likedErr
	}
	return &spotify.SavedTrackPage{Tracks: f.liked}, nil
}

func track(name, uri string, artists ...string) spotify.FullTrack {
	t := spotify.FullTrack{SimpleTrack: spotify.SimpleTrack{Name: name, URI: spotify.URI(uri)}}
	for _, a := range artists {
		t.Artists = append(t.Artists, spotify.SimpleArtist{Name: a})
	}
	return t
}

func activeDevice() []spotify.PlayerDevice {
	return []spotify.PlayerDevice{
		{ID: "idle", Name: "Phone"},
		{ID: "dev1", Name: "Desktop", Active: true},
	}
}

func TestFindTrack_Strategies(t *testing.T) {
	tests := []struct {
		name      string
		title     string
		artist    string
		searches  map[string][]spotify.FullTrack
		wantURI   string
		wantQuery []string
		wantErr   error
	}{
		{
			name:   "exact match",
			title:  "Clair de Lune",
			artist: "Debussy",
			searches: map[string][]spotify.FullTrack{
				`track:"Clair de Lune" artist:"Debussy"`: {track("Clair de Lune", "spotify:track:exact", "Claude Debussy")},
			},
			wantURI:   "spotify:track:exact",
			wantQuery: []string{`track:"Clair de Lune" artist:"Debussy"`},
		},
		{
			name:   "first artist of a collaboration",
			title:  "Under Pressure",
			artist: "Queen & David Bowie",
			searches: map[string][]spotify.FullTrack{
				`track:"Under Pressure" artist:"Queen"`: {track("Under Pressure", "spotify:track:first", "Queen", "David Bowie")},
			},
			wantURI: "spotify:track:first",
			wantQuery: []string{
				`track:"Under Pressure" artist:"Queen & David Bowie"`,
				`track:"Under Pressure" artist:"Queen"`,
			},
		},
		{
			name:   "first artist skipped for a single artist",
			title:  "Yesterday",
			artist: "The Beatles",
			searches: map[string][]spotify.FullTrack{
				"track:Yesterday artist:The Beatles": {
					track("Here Comes the Sun", "spotify:track:wrong", "The Beatles"),
					track("Yesterday - Remastered 2009", "spotify:track:broad", "The Beatles"),
				},
			},
			wantURI: "spotify:track:broad",
			wantQuery: []string{
				`track:"Yesterday" artist:"The Beatles"`,
				"track:Yesterday artist:The Beatles",
			},
		},
		{
			name:   "title only prefers a credited artist",
			title:  "Hurt",
			artist: "Johnny Cash feat. Nobody",
			searches: map[string][]spotify.FullTrack{
				`track:"Hurt"`: {
					track("Hurt", "spotify:track:nin", "Nine Inch Nails"),
					track("Hurt", "spotify:track:cash", "Johnny Cash"),
				},
			},
			wantURI: "spotify:track:cash",
		},
		{
			name:  "title only without artist takes the first result",
			title: "Hurt",
			searches: map[string][]spotify.FullTrack{
				`track:"Hurt"`: {track("Hurt", "spotify:track:nin", "Nine Inch Nails")},
			},
			wantURI:   "spotify:track:nin",
			wantQuery: []string{`track:"Hurt"`},
		},
		{
			name:    "nothing anywhere",
			title:   "Imaginary Song",
			artist:  "Nobody",
			wantErr: ErrTrackNotFound,
		},
		{
			name:    "blank title",
			title:   "   ",
			wantErr: ErrTrackNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeAPI{searches: tt.searches}
			c := newClient(fake, nil)

			got, err := c.FindTrack(context.Background(), tt.title, tt.artist)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("FindTrack() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if string(got.URI) != tt.wantURI {
				t.Errorf("URI = %q, want %q", got.URI, tt.wantURI)
			}
			if tt.wantQuery != nil {
				if fmt.Sprint(fake.queries) != fmt.Sprint(tt.wantQuery) {
					t.Errorf("queries = %q, want %q", fake.queries, tt.wantQuery)
				}
			}
		})
	}
}

func TestFindTrack_SearchError(t *testing.T) {
	c := newClient(&fakeSearchError{}, nil)

	_, err := c.FindTrack(context.Background(), "Song", "Artist")
	if StatusCode(err) != http.StatusUnauthorized {
		t.Errorf("StatusCode(%v) = %d, want 401", err, StatusCode(err))
	}
}

type fakeSearchError struct{ fakeAPI }

func (f *fakeSearchError) Search(context.Context, string, spotify.SearchType, ...spotify.RequestOption) (*spotify.SearchResult, error) {
	return nil, spotify.Error{Status: http.StatusUnauthorized, Message: "The access token expired"}
}

func TestPlaySuggestion(t *testing.T) {
	fake := &fakeAPI{
		searches: map[string][]spotify.FullTrack{
			`track:"Clair de Lune" artist:"Debussy"`: {track("Clair de Lune", "spotify:track:1", "Claude Debussy", "Isao Tomita")},
		},
		devices: activeDevice(),
	}
	c := newClient(fake, nil)

	got, err := c.PlaySuggestion(context.Background(), "Clair de Lune", "Debussy")
	if err != nil {
		t.Fatalf("PlaySuggestion() error = %v", err)
	}

	if got.URI != "spotify:track:1" {
		t.Errorf("URI = %q, want %q", got.URI, "spotify:track:1")
	}
	if got.Description != "Clair de Lune by Claude Debussy, Isao Tomita" {
		t.Errorf("Description = %q", got.Description)
	}
	if len(fake.plays) != 1 || *fake.plays[0].DeviceID != "dev1" || fake.plays[0].URIs[0] != "spotify:track:1" {
		t.Errorf("plays = %+v, want one play of spotify:track:1 on dev1", fake.plays)
	}
}

func TestPlaySuggestion_NoActiveDevice(t *testing.T) {
	fake := &fakeAPI{
		searches: map[string][]spotify.FullTrack{`track:"Song"`: {track("Song", "spotify:track:1", "A")}},
		devices:  []spotify.PlayerDevice{{ID: "idle", Name: "Phone"}},
	}
	c := newClient(fake, nil)

	if _, err := c.PlaySuggestion(context.Background(), "Song", ""); !errors.Is(err, ErrNoActiveDevice) {
		t.Errorf("PlaySuggestion() error = %v, want ErrNoActiveDevice", err)
	}
	if len(fake.plays) != 0 {
		t.Error("nothing should play without an active device")
	}
}

func TestPlaybackState(t *testing.T) {
	playing := track("Yesterday", "spotify:track:y", "The Beatles")

	tests := []struct {
		name        string
		state       *spotify.PlayerState
		wantPlaying bool
		wantURI     string
	}{
		{
			name:        "no active player",
			state:       &spotify.PlayerState{},
			wantPlaying: false,
		},
		{
			name: "playing",
			state: &spotify.PlayerState{
				CurrentlyPlaying: spotify.CurrentlyPlaying{Playing: true, Item: &playing},
				Device:           spotify.PlayerDevice{ID: "dev1", Name: "Desktop", Type: "Computer"},
			},
			wantPlaying: true,
			wantURI:     "spotify:track:y",
		},
		{
			name: "paused",
			state: &spotify.PlayerState{
				CurrentlyPlaying: spotify.CurrentlyPlaying{Playing: false, Item: &playing},
			},
			wantPlaying: false,
			wantURI:     "spotify:track:y",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(&fakeAPI{state: tt.state}, nil)

			got, err := c.PlaybackState(context.Background())
			if err != nil {
				t.Fatalf("PlaybackState() error = %v", err)
			}
			if got.IsPlaying != tt.wantPlaying {
				t.Errorf("IsPlaying = %v, want %v", got.IsPlaying, tt.wantPlaying)
			}
			if tt.wantURI == "" {
				if got.Item != nil {
					t.Errorf("Item = %+v, want nil", got.Item)
				}
				return
			}
			if got.Item == nil || got.Item.URI != tt.wantURI {
				t.Errorf("Item = %+v, want URI %q", got.Item, tt.wantURI)
			}
			if got.Item.Artist != "The Beatles" {
				t.Errorf("Artist = %q, want %q", got.Item.Artist, "The Beatles")
			}
		})
	}
}

func likedTracks(n int) []spotify.SavedTrack {
	out := make([]spotify.SavedTrack, n)
	for i := range out {
		out[i] = spotify.SavedTrack{FullTrack: track(fmt.Sprintf("Liked %d", i), fmt.Sprintf("spotify:track:l%d", i), "Artist")}
	}
	return out
}

func TestPlayLiked(t *testing.T) {
	forbidden := spotify.Error{Status: http.StatusForbidden, Message: "Player command failed: Premium required"}

	tests := []struct {
		name         string
		liked        []spotify.SavedTrack
		devices      []spotify.PlayerDevice
		playErrs     []error
		shuffleErr   error
		wantErr      error
		wantStatus   int
		wantRandom   bool
		wantPlays    int
		wantShuffled bool
	}{
		{
			name:         "collection context",
			liked:        likedTracks(3),
			devices:      activeDevice(),
			wantPlays:    1,
			wantShuffled: true,
		},
		{
			name:         "context fails, uris queued",
			liked:        likedTracks(3),
			devices:      activeDevice(),
			playErrs:     []error{errors.New("context rejected")},
			wantPlays:    2,
			wantShuffled: true,
		},
		{
			name:       "premium required picks a random track",
			liked:      likedTracks(3),
			devices:    activeDevice(),
			playErrs:   []error{forbidden, forbidden},
			wantRandom: true,
			wantPlays:  3,
		},
		{
			name:         "shuffle forbidden picks a random track",
			liked:        likedTracks(2),
			devices:      activeDevice(),
			shuffleErr:   forbidden,
			wantRandom:   true,
			wantPlays:    2,
			wantShuffled: true,
		},
		{
			name:    "empty library",
			devices: activeDevice(),
			wantErr: ErrNoLikedSongs,
		},
		{
			name:    "no device",
			liked:   likedTracks(1),
			wantErr: ErrNoActiveDevice,
		},
		{
			name:       "other spotify error",
			liked:      likedTracks(1),
			devices:    activeDevice(),
			playErrs:   []error{errors.New("x"), spotify.Error{Status: http.StatusBadGateway, Message: "bad gateway"}},
			wantStatus: http.StatusBadGateway,
			wantPlays:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeAPI{liked: tt.liked, devices: tt.devices, playErrs: tt.playErrs, shuffleErr: tt.shuffleErr}
			c := newClient(fake, nil)
			c.pick = func(n int) int { return n - 1 }

			got, err := c.PlayLiked(context.Background())

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("PlayLiked() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if tt.wantStatus != 0 {
				if StatusCode(err) != tt.wantStatus {
					t.Fatalf("StatusCode = %d, want %d (err %v)", StatusCode(err), tt.wantStatus, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("PlayLiked() error = %v", err)
			}

			if got.TrackCount != len(tt.liked) {
				t.Errorf("TrackCount = %d, want %d", got.TrackCount, len(tt.liked))
			}
			if got.Random != tt.wantRandom {
				t.Errorf("Random = %v, want %v", got.Random, tt.wantRandom)
			}
			if tt.wantRandom {
				last := fmt.Sprintf("spotify:track:l%d", len(tt.liked)-1)
				if got.URI != last {
					t.Errorf("URI = %q, want %q", got.URI, last)
				}
			}
			if len(fake.plays) != tt.wantPlays {
				t.Errorf("plays = %d, want %d", len(fake.plays), tt.wantPlays)
			}
			if fake.shuffled != tt.wantShuffled {
				t.Errorf("shuffled = %v, want %v", fake.shuffled, tt.wantShuffled)
			}
			if fake.plays[0].PlaybackContext == nil || *fake.plays[0].PlaybackContext != likedSongsContext {
				t.Errorf("first play should use the liked songs context, got %+v", fake.plays[0])
			}
		})
	}
}

func TestConvertItem(t *testing.T) {
	tr := track("Collab Track", "spotify:track:c", "Artist A", "Artist B")
	tr.ID = "c"
	tr.Album.Name = "Album"
	tr.ExternalURLs = map[string]string{"spotify": "https://open.spotify.com/track/c"}

	got := convertItem(&tr)

	if got.Artist != "Artist A, Artist B" {
		t.Errorf("Artist = %q, want %q", got.Artist, "Artist A, Artist B")
	}
	if got.ID != "c" || got.Album != "Album" || got.ExternalURL != "https://open.spotify.com/track/c" {
		t.Errorf("convertItem() = %+v", got)
	}
	if convertItem(nil) != nil {
		t.Error("convertItem(nil) should be nil")
	}
}
