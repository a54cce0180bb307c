package db

import (
	"time"
)

// Storage backends reported by Stats.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// ArtistTag represents a Last.fm tag for an artist. Artist is the
// normalized (lowercased, trimmed) name.
type ArtistTag struct {
	Artist    string
	TagName   string
	TagCount  int
	FetchedAt time.Time
}

// Stats describes the contents of a store.
type Stats struct {
	Backend     string
	Features    int64
	Artists     int64
	OldestFetch time.Time // zero when empty
	NewestFetch time.Time // zero when empty
}
