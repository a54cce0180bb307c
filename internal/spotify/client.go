// Package spotify provides a wrapper around the Spotify Web API.
package spotify

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-spotify-wrapped/internal/features"
)

// maxTracksPerRequest is the Spotify limit for multi-id endpoints.
const maxTracksPerRequest = 100

// Client wraps the Spotify API client with the lookups the engine needs.
type Client struct {
	api *spotify.Client
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated and should not
// retry rate limits on its own; the caller owns backoff.
func New(api *spotify.Client) *Client {
	return &Client{api: api}
}

// NewFromHTTP builds a Client over an authenticated HTTP client.
// baseURL overrides the API root when non-empty and must end in a slash.
// The given client is not modified.
func NewFromHTTP(httpClient *http.Client, baseURL string) *Client {
	var opts []spotify.ClientOption
	if baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(baseURL))
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	hc := *httpClient
	hc.Transport = &rateLimitTransport{base: httpClient.Transport}
	return New(spotify.New(&hc, opts...))
}

// errHTTP429 is reported for every 429 response, whatever its body.
var errHTTP429 = fmt.Errorf("spotify: HTTP 429: %w", features.ErrRateLimited)

// rateLimitTransport turns 429 responses into errors before the response body
// reaches the Spotify client, which cannot decode non-JSON error bodies.
type rateLimitTransport struct {
	base http.RoundTripper
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, errHTTP429
	}
	return resp, nil
}

// statusCode extracts the HTTP status from a Spotify API error, or 0.
func statusCode(err error) int {
	if errors.Is(err, features.ErrRateLimited) {
		return http.StatusTooManyRequests
	}
	var value spotify.Error
	if errors.As(err, &value) {
		return value.Status
	}
	var ptr *spotify.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Status
	}
	// Clients built with New report 429s with an empty body as plain strings.
	if msg := err.Error(); strings.Contains(msg, "HTTP 429") {
		return http.StatusTooManyRequests
	}
	return 0
}

// classify maps API errors onto the engine's error taxonomy.
func classify(op string, err error) error {
	if errors.Is(err, features.ErrRateLimited) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if statusCode(err) == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w: %v", op, features.ErrRateLimited, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
