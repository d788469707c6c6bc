package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrNoToken is returned when no stored token exists yet.
var ErrNoToken = errors.New("no Google OAuth token found, run the auth command first")

// ClientCredentials identifies the OAuth client. Either CredentialsFile
// (the JSON downloaded from the Google Cloud console) or ClientID and
// ClientSecret must be set.
type ClientCredentials struct {
	CredentialsFile string
	ClientID        string
	ClientSecret    string
	RedirectURL     string
}

// OAuthConfig builds the oauth2 configuration for the calendar scopes.
func OAuthConfig(creds ClientCredentials) (*oauth2.Config, error) {
	if creds.CredentialsFile != "" {
		data, err := os.ReadFile(creds.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		conf, err := google.ConfigFromJSON(data, DefaultOAuthScopes...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse credentials file: %w", err)
		}
		if creds.RedirectURL != "" {
			conf.RedirectURL = creds.RedirectURL
		}
		return conf, nil
	}

	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("either a credentials file or client id and secret are required")
	}

	redirect := creds.RedirectURL
	if redirect == "" {
		redirect = "http://localhost"
	}
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirect,
		Scopes:       DefaultOAuthScopes,
	}, nil
}

// AuthURL returns the consent URL the operator opens once to authorize access.
// Offline access is requested so that a refresh token is issued.
func AuthURL(conf *oauth2.Config) string {
	return conf.AuthCodeURL("megasecretaria", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeAndSave trades an authorization code for a token and writes it to path.
func ExchangeAndSave(ctx context.Context, conf *oauth2.Config, code, path string) error {
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return SaveToken(path, token)
}

// SaveToken writes token as JSON with owner-only permissions.
func SaveToken(path string, token *oauth2.Token) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

// LoadToken reads a token previously written by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("invalid token file: %w", err)
	}
	if token.RefreshToken == "" && token.AccessToken == "" {
		return nil, fmt.Errorf("invalid token file: no access or refresh token")
	}
	return &token, nil
}
