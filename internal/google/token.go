package google

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"

	"calbot/internal/logging"
)

// ErrNoToken is returned by a TokenStore that holds no token yet.
var ErrNoToken = errors.New("no stored token")

// TokenStore reads and writes the OAuth credential between runs.
type TokenStore interface {
	Load() (*oauth2.Token, error)
	Save(token *oauth2.Token) error
}

// FileTokenStore keeps the token as JSON (access token, refresh token, expiry) in a file.
type FileTokenStore struct {
	Path string
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{Path: path}
}

func (s *FileTokenStore) String() string {
	return s.Path
}

// Load retrieves a token from the file.
func (s *FileTokenStore) Load() (*oauth2.Token, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("unable to open token file: %w", err)
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("unable to decode token file %s: %w", s.Path, err)
	}
	return tok, nil
}

// Save writes the token to the file, readable only by the owner.
func (s *FileTokenStore) Save(token *oauth2.Token) error {
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("unable to create token directory: %w", err)
		}
	}
	f, err := os.OpenFile(s.Path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("unable to write token file: %w", err)
	}
	return nil
}

// persistingTokenSource saves every newly minted token back to the store.
type persistingTokenSource struct {
	logger *slog.Logger
	base   oauth2.TokenSource
	store  TokenStore

	mu      sync.Mutex
	current string
}

func newPersistingTokenSource(logger *slog.Logger, base oauth2.TokenSource, store TokenStore, initial *oauth2.Token) *persistingTokenSource {
	s := &persistingTokenSource{logger: logger, base: base, store: store}
	if initial != nil {
		s.current = initial.AccessToken
	}
	return s
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.current {
		if err := s.store.Save(tok); err != nil {
			s.logger.Warn("Failed to persist refreshed token", logging.Err(err))
		} else {
			s.logger.Debug("Persisted refreshed token", "token", logging.SanitizeToken(tok.AccessToken))
		}
		s.current = tok.AccessToken
	}
	return tok, nil
}
