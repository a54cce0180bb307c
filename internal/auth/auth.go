package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrMissingCredentials is returned when the Spotify client id or secret is empty.
var ErrMissingCredentials = errors.New("missing SPOTIFY_ID or SPOTIFY_SECRET")

// Authenticator obtains app tokens with the client-credentials grant.
// The engine only reads public catalog data, so no user login is involved.
type Authenticator struct {
	config clientcredentials.Config
	cache  *TokenCache
	logger *slog.Logger
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithTokenCache persists tokens at the cache location.
func WithTokenCache(c *TokenCache) Option {
	return func(a *Authenticator) {
		a.cache = c
	}
}

// WithTokenURL overrides the Spotify token endpoint, for tests.
func WithTokenURL(url string) Option {
	return func(a *Authenticator) {
		a.config.TokenURL = url
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authenticator) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Authenticator for the given app credentials.
// Returns ErrMissingCredentials if either is empty.
func New(clientID, clientSecret string, opts ...Option) (*Authenticator, error) {
	if clientID == "" || clientSecret == "" {
		return nil, ErrMissingCredentials
	}

	a := &Authenticator{
		config: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     spotifyauth.TokenURL,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Client returns an HTTP client that authorizes every request with an app
// token. A valid cached token is reused; a new one is requested otherwise and
// written back to the cache.
func (a *Authenticator) Client(ctx context.Context) (*http.Client, error) {
	source, err := a.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, source), nil
}

// TokenSource returns the caching token source behind Client. It fails fast
// when no token can be obtained at all.
func (a *Authenticator) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	var cached *oauth2.Token
	if a.cache != nil {
		token, err := a.cache.Load(a.config.ClientID)
		if err != nil {
			// A corrupt cache only costs one token request.
			a.logger.Warn("ignoring unreadable token cache", "path", a.cache.Path(), "err", err)
		} else {
			cached = token
		}
	}

	source := &cachingSource{
		base:     a.config.TokenSource(ctx),
		cache:    a.cache,
		clientID: a.config.ClientID,
		logger:   a.logger,
	}
	if cached != nil {
		source.last = cached.AccessToken
	}

	reuse := oauth2.ReuseTokenSource(cached, source)
	if _, err := reuse.Token(); err != nil {
		return nil, fmt.Errorf("requesting app token: %w", err)
	}
	return reuse, nil
}

// Logout removes the cached token.
func (a *Authenticator) Logout() error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Delete()
}

// cachingSource saves every new token it hands out.
type cachingSource struct {
	base     oauth2.TokenSource
	cache    *TokenCache
	clientID string
	logger   *slog.Logger

	mu   sync.Mutex
	last string
}

func (s *cachingSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache != nil && token.AccessToken != s.last {
		if err := s.cache.Save(s.clientID, token); err != nil {
			s.logger.Warn("caching app token failed", "err", err)
		}
		s.last = token.AccessToken
	}
	return token, nil
}
