package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Credentials are the Spotify application's client ID and secret.
type Credentials struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// Trimmed returns a copy with surrounding whitespace removed.
func (c Credentials) Trimmed() Credentials {
	return Credentials{
		ClientID:     strings.TrimSpace(c.ClientID),
		ClientSecret: strings.TrimSpace(c.ClientSecret),
	}
}

// Complete reports whether both values are set.
func (c Credentials) Complete() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Mask hides all but the first and last four characters of s.
// Values of eight characters or fewer are fully masked.
func Mask(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

// CredentialFile stores credentials as a JSON file.
type CredentialFile struct {
	path string
}

// NewCredentialFile creates a CredentialFile at path.
func NewCredentialFile(path string) *CredentialFile {
	return &CredentialFile{path: path}
}

// Path returns the file path where credentials are stored.
func (f *CredentialFile) Path() string {
	return f.path
}

// LoadCredentials reads the credentials file.
// Returns (nil, nil) if the file does not exist or is incomplete.
func (f *CredentialFile) LoadCredentials(_ context.Context) (*Credentials, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing credentials file: %w", err)
	}

	if !creds.Complete() {
		return nil, nil
	}
	return &creds, nil
}

// SaveCredentials writes the credentials file.
func (f *CredentialFile) SaveCredentials(_ context.Context, creds Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	return writePrivateFile(f.path, data)
}

// DeleteCredentials removes the credentials file.
// Returns nil if the file does not exist.
func (f *CredentialFile) DeleteCredentials(_ context.Context) error {
	return removeIfExists(f.path)
}

var _ CredentialStore = (*CredentialFile)(nil)
