package model

import (
	"context"
	"strings"
)

// TimeTBA marks a concert whose start time is not announced.
const TimeTBA = "TBA"

// ConcertRecord is one normalized concert, either from the events provider
// or from the fallback provider. Read-only after creation.
type ConcertRecord struct {
	Name      string `json:"name"`
	Date      string `json:"date"` // YYYY-MM-DD
	Time      string `json:"time"` // HH:MM:SS or TimeTBA
	Venue     string `json:"venue"`
	Location  string `json:"location"`
	ImageURL  string `json:"image_url,omitempty"`
	DetailURL string `json:"detail_url,omitempty"`
	Genre     string `json:"genre"`
}

// Listing is the structured payload handed to the presentation layer.
type Listing struct {
	Title    string          `json:"title"`
	Concerts []ConcertRecord `json:"concerts"`
	// Sample is set when the concerts come from the fallback provider.
	Sample    bool   `json:"sample"`
	Note      string `json:"note,omitempty"`
	EmptyText string `json:"empty_text,omitempty"`
}

// QueryKind selects one of the three event query shapes.
type QueryKind string

const (
	QueryByCity  QueryKind = "city"
	QueryByGenre QueryKind = "genre"
	QueryByDate  QueryKind = "date"
)

// QueryKey identifies a cached result list. Build it with NewQueryKey so
// that every field is normalized.
type QueryKey struct {
	Kind      QueryKind
	City      string
	Genre     string
	DateRange string
}

// NewQueryKey returns a key with trimmed, lower-cased parameters.
func NewQueryKey(kind QueryKind, city, genre, dateRange string) QueryKey {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	return QueryKey{Kind: kind, City: norm(city), Genre: norm(genre), DateRange: norm(dateRange)}
}

// String renders the key for storage backends that need a flat string.
func (k QueryKey) String() string {
	switch k.Kind {
	case QueryByGenre:
		return string(k.Kind) + ":" + k.Genre + ":" + k.City
	case QueryByDate:
		return string(k.Kind) + ":" + k.DateRange + ":" + k.City
	default:
		return string(k.Kind) + ":" + k.City
	}
}

type ConcertCache interface {
	// Get returns the cached records for key within the session.
	Get(ctx context.Context, sessionID string, key QueryKey) ([]ConcertRecord, bool, error)

	// Put stores records unless the key is already present; existing entries are never refreshed.
	Put(ctx context.Context, sessionID string, key QueryKey, records []ConcertRecord) error

	// Forget drops every entry of the session.
	Forget(ctx context.Context, sessionID string) error
}

// ConcertFinder answers the three query shapes. Implementations substitute
// sample data instead of failing; an error means the context was cancelled.
type ConcertFinder interface {
	ByCity(ctx context.Context, sessionID, city string) (*Listing, error)
	ByGenre(ctx context.Context, sessionID, genre, city string) (*Listing, error)
	ByDateRange(ctx context.Context, sessionID, phrase, city string) (*Listing, error)
}
