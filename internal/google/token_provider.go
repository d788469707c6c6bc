package google

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/oauth2"

	"github.com/megasecretaria/megasecretaria/internal/logging"
)

// TokenProvider is an interface for providing OAuth tokens for Google APIs.
type TokenProvider interface {
	// TokenSource returns a source that refreshes the token when needed.
	TokenSource(ctx context.Context) (oauth2.TokenSource, error)

	// HasToken reports whether a stored token exists.
	HasToken() bool
}

// FileTokenProvider serves the token stored at Path and writes refreshed
// tokens back to it.
type FileTokenProvider struct {
	Path   string
	Config *oauth2.Config
	Logger *slog.Logger
}

// NewFileTokenProvider creates a new file-based token provider.
func NewFileTokenProvider(path string, conf *oauth2.Config) *FileTokenProvider {
	return &FileTokenProvider{Path: path, Config: conf, Logger: slog.Default()}
}

// HasToken checks if the token file exists.
func (p *FileTokenProvider) HasToken() bool {
	_, err := os.Stat(p.Path)
	return err == nil
}

// TokenSource loads the stored token and wraps it in a persisting source.
func (p *FileTokenProvider) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	token, err := LoadToken(p.Path)
	if err != nil {
		return nil, err
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &persistingTokenSource{
		base:   p.Config.TokenSource(ctx, token),
		path:   p.Path,
		last:   token.AccessToken,
		logger: logging.WithService(logger, "google_oauth"),
	}, nil
}

// persistingTokenSource saves every newly minted access token so a restart
// does not depend on a refresh round-trip.
type persistingTokenSource struct {
	base   oauth2.TokenSource
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if token.AccessToken != s.last {
		s.last = token.AccessToken
		if err := SaveToken(s.path, token); err != nil {
			// Keep serving; the refresh token is still valid on disk.
			s.logger.Warn("failed to persist refreshed token", logging.Err(err))
		} else {
			s.logger.Debug("persisted refreshed token", "token", logging.SanitizeToken(token.AccessToken), "expiry", token.Expiry)
		}
	}
	return token, nil
}
