package kb

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// ResourceRoot is the URI of the top-level resources directory.
const ResourceRoot = "lode://resources/"

// Memory is a stored free-form note.
type Memory struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Resource is an ingested document addressable by URI.
type Resource struct {
	ID       string `json:"id"`
	URI      string `json:"uri"`
	Title    string `json:"title"`
	Abstract string `json:"abstract,omitempty"`
	Content  string `json:"content,omitempty"`
}

// SearchResult holds the outcome of a Search or Find call. Total counts
// all matches in the store, which may exceed the returned slices when a
// limit is applied.
type SearchResult struct {
	Total     int        `json:"total"`
	Memories  []Memory   `json:"memories"`
	Resources []Resource `json:"resources"`
}

// AddResult reports the outcome of an AddResource ingestion.
type AddResult struct {
	Status  string   `json:"status"`
	Errors  []string `json:"errors,omitempty"`
	RootURI string   `json:"root_uri"`
}

// Ingestion status values.
const (
	StatusCompleted = "completed"
	StatusAccepted  = "accepted"
	StatusPartial   = "partial"
)

// DirEntry is one item in a directory listing.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
	Size  int64  `json:"size"`
}

// Session is a recorded conversation session.
type Session struct {
	ID        string    `json:"session_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// NewID generates a new ULID string for use as an entity identifier.
func NewID() string {
	return ulid.Make().String()
}
