package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

const (
	cacheDirName  = "spotify-wrapped"
	tokenFileName = "app_token.json"

	// expiryMargin is how long before its expiry a cached token stops being
	// handed out, so a run does not start with a token about to lapse.
	expiryMargin = time.Minute
)

// appToken is the on-disk form of a client-credentials token. App tokens have
// no refresh token; ClientID ties the token to the credentials that got it.
type appToken struct {
	ClientID    string    `json:"client_id"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Expiry      time.Time `json:"expiry"`
}

// TokenCache keeps the last app token between runs.
type TokenCache struct {
	path string
	now  func() time.Time
}

// DefaultTokenCache stores the token in the user cache directory,
// e.g. ~/.cache/spotify-wrapped/app_token.json.
func DefaultTokenCache() (*TokenCache, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("locating user cache dir: %w", err)
	}
	return NewTokenCache(filepath.Join(dir, cacheDirName, tokenFileName)), nil
}

// NewTokenCache creates a TokenCache backed by the file at path.
func NewTokenCache(path string) *TokenCache {
	return &TokenCache{path: path, now: time.Now}
}

// Path returns the token file location.
func (c *TokenCache) Path() string {
	return c.path
}

// Load returns the cached token for clientID. It returns (nil, nil) when no
// token is cached, when the token was issued to other credentials, or when it
// expires within a minute. An unreadable file is an error.
func (c *TokenCache) Load(clientID string) (*oauth2.Token, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token cache: %w", err)
	}

	var stored appToken
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decoding token cache %s: %w", c.path, err)
	}
	if stored.ClientID != clientID || stored.AccessToken == "" {
		return nil, nil
	}
	if !stored.Expiry.IsZero() && !c.now().Add(expiryMargin).Before(stored.Expiry) {
		return nil, nil
	}

	return &oauth2.Token{
		AccessToken: stored.AccessToken,
		TokenType:   stored.TokenType,
		Expiry:      stored.Expiry,
	}, nil
}

// Save replaces the cached token with token, issued to clientID. The file is
// private to the user and written atomically.
func (c *TokenCache) Save(clientID string, token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return errors.New("no app token to cache")
	}

	data, err := json.Marshal(appToken{
		ClientID:    clientID,
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		Expiry:      token.Expiry,
	})
	if err != nil {
		return fmt.Errorf("encoding app token: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("creating token cache dir: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing token cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing token cache: %w", err)
	}
	return nil
}

// Delete removes the cached token. A missing file is not an error.
func (c *TokenCache) Delete() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token cache: %w", err)
	}
	return nil
}
