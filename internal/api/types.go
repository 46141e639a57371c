// Package api defines the JSON wire types shared by the Mood Music proxy and its clients.
package api

// ConfigStatus is the body of GET /config.
type ConfigStatus struct {
	ClientIDSet     bool   `json:"clientIdSet"`
	ClientSecretSet bool   `json:"clientSecretSet"`
	ClientID        string `json:"clientId"`
	ClientSecret    string `json:"clientSecret"`
}

// ConfigRequest is the body of POST /config.
type ConfigRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// AuthStatus is the body of GET /auth/status.
type AuthStatus struct {
	LoggedIn       bool `json:"loggedIn"`
	CredentialsSet bool `json:"credentialsSet"`
}

// PlaybackState is the body of GET /playback/state.
// Item is nil when nothing is loaded on the player.
type PlaybackState struct {
	IsPlaying    bool          `json:"is_playing"`
	Item         *PlaybackItem `json:"item"`
	ProgressMs   int           `json:"progress_ms,omitempty"`
	Device       *Device       `json:"device,omitempty"`
	ShuffleState bool          `json:"shuffle_state,omitempty"`
	RepeatState  string        `json:"repeat_state,omitempty"`
}

// PlaybackItem describes the track currently loaded on the player.
type PlaybackItem struct {
	URI         string `json:"uri"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Artist      string `json:"artist"`
	Album       string `json:"album,omitempty"`
	DurationMs  int    `json:"duration_ms,omitempty"`
	ExternalURL string `json:"external_url,omitempty"`
}

// Device is a Spotify Connect device.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Suggestion is a song to search for.
type Suggestion struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// PlayRequest is the body of POST /play.
type PlayRequest struct {
	Suggestion *Suggestion `json:"suggestion"`
}

// PlayResponse is the success body of POST /play and POST /play/liked.
type PlayResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	TrackURI   string `json:"trackUri,omitempty"`
	TrackCount int    `json:"trackCount,omitempty"`
}

// MessageResponse is a generic {success, message} body.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx proxy response.
// Playback endpoints use Message, the auth middleware uses Error.
type ErrorResponse struct {
	Success            bool   `json:"success"`
	Message            string `json:"message,omitempty"`
	Error              string `json:"error,omitempty"`
	NeedsLogin         bool   `json:"needsLogin,omitempty"`
	NeedsConfiguration bool   `json:"needsConfiguration,omitempty"`
}

// HealthResponse is the body of GET /test.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
