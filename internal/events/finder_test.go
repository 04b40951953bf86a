package events

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/concertbot/server/internal/agent/model"
	"github.com/concertbot/server/pkg/httpx"
)

var fixedNow = time.Date(2025, time.March, 12, 15, 4, 5, 0, time.UTC) // Wednesday

const twoEvents = `{"_embedded":{"events":[
 {"name":"Foo Fighters","url":"https://tm/1",
  "dates":{"start":{"localDate":"2025-03-20","localTime":"20:00:00"}},
  "images":[{"url":"https://img/1"}],
  "classifications":[{"genre":{"name":"Rock"}}],
  "_embedded":{"venues":[{"name":"United Center","city":{"name":"Chicago"},"state":{"stateCode":"IL"}}]}},
 {"name":"Mystery Gig",
  "dates":{"start":{"localDate":"2025-03-21"}}}
]}}`

// recorder is a fake Discovery endpoint that answers from a queue of bodies.
type recorder struct {
	mu      sync.Mutex
	queries []url.Values
	bodies  []string
	status  int
}

func (r *recorder) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/events.json" {
			t.Errorf("unexpected path %q", req.URL.Path)
		}
		r.mu.Lock()
		r.queries = append(r.queries, req.URL.Query())
		body := `{}`
		if len(r.bodies) > 0 {
			body = r.bodies[0]
			r.bodies = r.bodies[1:]
		}
		status := r.status
		r.mu.Unlock()

		if status != 0 {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	})
}

func (r *recorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queries)
}

func (r *recorder) query(i int) url.Values {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queries[i]
}

func newTestFinder(t *testing.T, rec *recorder) (*Finder, *MemoryCache) {
	t.Helper()
	srv := httptest.NewServer(rec.handler(t))
	t.Cleanup(srv.Close)

	cache := NewMemoryCache()
	f := NewFinder(Config{
		BaseURL:  srv.URL,
		APIKey:   "test-key",
		PageSize: 10,
		Retry:    httpx.Policy{MaxAttempts: 3, Delay: time.Millisecond, Multiplier: 1},
	}, cache, WithHTTPClient(srv.Client()), WithClock(func() time.Time { return fixedNow }))
	return f, cache
}

func TestByCityQueryAndNormalization(t *testing.T) {
	rec := &recorder{bodies: []string{twoEvents}}
	f, _ := newTestFinder(t, rec)

	listing, err := f.ByCity(context.Background(), "s1", "Chicago")
	if err != nil {
		t.Fatalf("ByCity: %v", err)
	}
	if listing.Sample {
		t.Fatal("live listing must not be marked as sample")
	}
	if listing.Title != "Concerts in Chicago" {
		t.Errorf("title = %q", listing.Title)
	}

	q := rec.query(0)
	for k, want := range map[string]string{
		"classificationName": "music",
		"city":               "Chicago",
		"apikey":             "test-key",
		"size":               "10",
	} {
		if got := q.Get(k); got != want {
			t.Errorf("query %s = %q, want %q", k, got, want)
		}
	}

	if len(listing.Concerts) != 2 {
		t.Fatalf("got %d concerts", len(listing.Concerts))
	}
	first := listing.Concerts[0]
	if first.Venue != "United Center" || first.Location != "Chicago, IL" || first.Genre != "Rock" ||
		first.ImageURL != "https://img/1" || first.DetailURL != "https://tm/1" || first.Time != "20:00:00" {
		t.Errorf("unexpected first record: %+v", first)
	}
	second := listing.Concerts[1]
	if second.Venue != "Venue TBA" || second.Time != model.TimeTBA || second.Genre != "Various" {
		t.Errorf("defaults not applied: %+v", second)
	}
}

func TestCachedQueryHitsProviderOnce(t *testing.T) {
	rec := &recorder{bodies: []string{twoEvents, twoEvents}}
	f, cache := newTestFinder(t, rec)
	ctx := context.Background()

	a, err := f.ByCity(ctx, "s1", "Chicago")
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.ByCity(ctx, "s1", "  chicago ")
	if err != nil {
		t.Fatal(err)
	}
	if rec.calls() != 1 {
		t.Fatalf("provider called %d times, want 1", rec.calls())
	}
	if len(a.Concerts) != len(b.Concerts) || a.Concerts[0] != b.Concerts[0] {
		t.Fatal("cached listing differs from the first response")
	}
	if cache.Len("s1") != 1 {
		t.Fatalf("cache entries = %d", cache.Len("s1"))
	}

	// Another session gets its own cache.
	if _, err := f.ByCity(ctx, "s2", "Chicago"); err != nil {
		t.Fatal(err)
	}
	if rec.calls() != 2 {
		t.Fatalf("provider called %d times, want 2", rec.calls())
	}
}

func TestEmptyResultServesFallbackAndSkipsCache(t *testing.T) {
	rec := &recorder{bodies: []string{`{"page":{"totalElements":0}}`}}
	f, cache := newTestFinder(t, rec)

	listing, err := f.ByCity(context.Background(), "s1", "Boise")
	if err != nil {
		t.Fatal(err)
	}
	if !listing.Sample {
		t.Fatal("expected sample listing")
	}
	if !strings.Contains(listing.Title, "Boise") || !strings.Contains(listing.Title, "API Unavailable") {
		t.Errorf("title = %q", listing.Title)
	}
	if len(listing.Concerts) == 0 {
		t.Fatal("fallback listing is empty")
	}
	if cache.Len("s1") != 0 {
		t.Fatal("fallback data must not be cached")
	}
}

func TestServerErrorServesFallback(t *testing.T) {
	rec := &recorder{status: http.StatusInternalServerError}
	f, _ := newTestFinder(t, rec)

	listing, err := f.ByGenre(context.Background(), "s1", "jazz", "Denver")
	if err != nil {
		t.Fatal(err)
	}
	if !listing.Sample || !strings.Contains(listing.Title, "Sample Data") || !strings.Contains(listing.Title, "Denver") {
		t.Fatalf("unexpected listing %+v", listing)
	}
	if rec.calls() != 1 {
		t.Fatalf("a 500 must not be retried, calls=%d", rec.calls())
	}
}

func TestRateLimitedThreeTimesServesFallback(t *testing.T) {
	rec := &recorder{status: http.StatusTooManyRequests}
	f, _ := newTestFinder(t, rec)

	listing, err := f.ByCity(context.Background(), "s1", "Austin")
	if err != nil {
		t.Fatal(err)
	}
	if !listing.Sample {
		t.Fatal("expected sample listing")
	}
	if rec.calls() != 3 {
		t.Fatalf("calls = %d, want 3", rec.calls())
	}
}

func TestByGenreRetriesWithKeyword(t *testing.T) {
	rec := &recorder{bodies: []string{`{}`, twoEvents}}
	f, cache := newTestFinder(t, rec)

	listing, err := f.ByGenre(context.Background(), "s1", "rock", "Chicago")
	if err != nil {
		t.Fatal(err)
	}
	if rec.calls() != 2 {
		t.Fatalf("calls = %d, want 2", rec.calls())
	}
	if got := rec.query(0).Get("genreId"); got != GenreID("rock") {
		t.Errorf("first query genreId = %q", got)
	}
	second := rec.query(1)
	if second.Get("keyword") != "rock" || second.Get("genreId") != "" {
		t.Errorf("second query = %v", second)
	}
	if listing.Title != "Rock-related concerts in Chicago" {
		t.Errorf("title = %q", listing.Title)
	}
	if cache.Len("s1") != 1 {
		t.Fatal("keyword result should be cached under the genre key")
	}
}

func TestByGenreUnknownGenreUsesKeywordOnly(t *testing.T) {
	rec := &recorder{bodies: []string{`{}`}}
	f, _ := newTestFinder(t, rec)

	listing, err := f.ByGenre(context.Background(), "s1", "polka", "Chicago")
	if err != nil {
		t.Fatal(err)
	}
	if rec.calls() != 1 {
		t.Fatalf("calls = %d, want 1", rec.calls())
	}
	if rec.query(0).Get("keyword") != "polka" {
		t.Errorf("query = %v", rec.query(0))
	}
	if listing.Title != "Polka concerts in Chicago, USA (Sample Data)" {
		t.Errorf("title = %q", listing.Title)
	}
}

func TestByDateRangeSendsWindow(t *testing.T) {
	rec := &recorder{bodies: []string{twoEvents}}
	f, _ := newTestFinder(t, rec)

	listing, err := f.ByDateRange(context.Background(), "s1", "tomorrow", "Chicago")
	if err != nil {
		t.Fatal(err)
	}
	if listing.Title != "Concerts in Chicago (tomorrow)" {
		t.Errorf("title = %q", listing.Title)
	}
	q := rec.query(0)
	if q.Get("startDateTime") != "2025-03-13T15:04:05Z" || q.Get("endDateTime") != "2025-03-13T23:59:59Z" {
		t.Errorf("window = %s .. %s", q.Get("startDateTime"), q.Get("endDateTime"))
	}
}

func TestCancelledContextReturnsError(t *testing.T) {
	rec := &recorder{status: http.StatusTooManyRequests}
	f, _ := newTestFinder(t, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.ByCity(ctx, "s1", "Chicago"); err == nil {
		t.Fatal("expected context error")
	}
}
