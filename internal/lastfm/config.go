// Package lastfm provides Last.fm API integration for fetching artist tags.
package lastfm

import (
	"errors"
)

// ErrMissingAPIKey is returned when no Last.fm API key is configured.
var ErrMissingAPIKey = errors.New("missing LASTFM_API_KEY")

// DefaultRatePerSecond stays under the documented limit of 5 requests/s.
const DefaultRatePerSecond = 4

// Config holds Last.fm API configuration.
type Config struct {
	APIKey        string
	RatePerSecond float64
}

// Validate reports ErrMissingAPIKey when the key is empty.
func (c *Config) Validate() error {
	if c == nil || c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.RatePerSecond < 0 {
		return errors.New("lastfm rate_per_second must not be negative")
	}
	return nil
}
