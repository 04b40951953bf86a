// Package events queries the Ticketmaster Discovery API for music events,
// caches normalized results per session and substitutes sample data when
// the provider fails or returns nothing.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/concertbot/server/internal/agent/model"
	errx "github.com/concertbot/server/internal/core/error"
	"github.com/concertbot/server/pkg/httpx"
	logx "github.com/concertbot/server/pkg/logger"
	"github.com/concertbot/server/pkg/metrics"
)

const (
	serviceName     = "ticketmaster"
	maxResponseSize = 4 << 20
	defaultPageSize = 10
)

// Config holds the provider endpoint and retry policy.
type Config struct {
	BaseURL  string
	APIKey   string
	PageSize int
	Retry    httpx.Policy
}

// Finder implements the three concert query shapes.
type Finder struct {
	cfg      Config
	http     httpx.Doer
	cache    model.ConcertCache
	fallback *Fallback
	now      func() time.Time
}

type Option func(*Finder)

// WithHTTPClient replaces the default client.
func WithHTTPClient(d httpx.Doer) Option {
	return func(f *Finder) { f.http = d }
}

// WithClock sets the reference time for date ranges and sample data.
func WithClock(now func() time.Time) Option {
	return func(f *Finder) { f.now = now }
}

func NewFinder(cfg Config, cache model.ConcertCache, opts ...Option) *Finder {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	f := &Finder{
		cfg:   cfg,
		http:  &http.Client{Timeout: 10 * time.Second},
		cache: cache,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.cache == nil {
		f.cache = NewMemoryCache()
	}
	f.fallback = NewFallback(f.now)
	return f
}

// Fallback exposes the sample-data provider bound to the finder's clock.
func (f *Finder) Fallback() *Fallback {
	return f.fallback
}

// ByCity lists music events in a city.
func (f *Finder) ByCity(ctx context.Context, sessionID, city string) (*model.Listing, error) {
	city = strings.TrimSpace(city)
	key := model.NewQueryKey(model.QueryByCity, city, "", "")
	title := "Concerts in " + city

	if recs, ok := f.cached(ctx, sessionID, key); ok {
		return liveListing(title, recs), nil
	}

	recs, err := f.search(ctx, url.Values{"city": {city}})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil || len(recs) == 0 {
		f.logMiss(sessionID, key, err)
		metrics.FallbackListings.WithLabelValues(string(model.QueryByCity)).Inc()
		return f.fallback.ForLocation(city), nil
	}

	f.store(ctx, sessionID, key, recs)
	return liveListing(title, recs), nil
}

// ByGenre lists events of a genre in a city. Known genres are searched by
// provider genre id first and by keyword when that finds nothing.
func (f *Finder) ByGenre(ctx context.Context, sessionID, genre, city string) (*model.Listing, error) {
	genre = strings.TrimSpace(genre)
	city = strings.TrimSpace(city)
	key := model.NewQueryKey(model.QueryByGenre, city, genre, "")
	label := capitalize(genre)
	title := label + " concerts in " + city

	if recs, ok := f.cached(ctx, sessionID, key); ok {
		return liveListing(title, recs), nil
	}

	params := url.Values{"city": {city}}
	id := GenreID(genre)
	if id != "" {
		params.Set("genreId", id)
	} else {
		params.Set("keyword", genre)
	}

	recs, err := f.search(ctx, params)
	if err == nil && len(recs) == 0 && id != "" {
		logx.Debug().Str("session_id", sessionID).Str("genre", genre).Str("city", city).
			Msg("no events for genre id, retrying with keyword")
		recs, err = f.search(ctx, url.Values{"city": {city}, "keyword": {genre}})
		title = label + "-related concerts in " + city
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil || len(recs) == 0 {
		f.logMiss(sessionID, key, err)
		metrics.FallbackListings.WithLabelValues(string(model.QueryByGenre)).Inc()
		return f.fallback.ForGenre(genre, city), nil
	}

	f.store(ctx, sessionID, key, recs)
	return liveListing(title, recs), nil
}

// ByDateRange lists events in a city within the window named by phrase.
func (f *Finder) ByDateRange(ctx context.Context, sessionID, phrase, city string) (*model.Listing, error) {
	phrase = strings.TrimSpace(phrase)
	city = strings.TrimSpace(city)
	key := model.NewQueryKey(model.QueryByDate, city, "", phrase)
	title := fmt.Sprintf("Concerts in %s (%s)", city, phrase)

	if recs, ok := f.cached(ctx, sessionID, key); ok {
		return liveListing(title, recs), nil
	}

	window := ResolveDateRange(phrase, f.now())
	recs, err := f.search(ctx, url.Values{
		"city":          {city},
		"startDateTime": {window.StartParam()},
		"endDateTime":   {window.EndParam()},
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil || len(recs) == 0 {
		f.logMiss(sessionID, key, err)
		metrics.FallbackListings.WithLabelValues(string(model.QueryByDate)).Inc()
		return f.fallback.ForDate(phrase, city), nil
	}

	f.store(ctx, sessionID, key, recs)
	return liveListing(title, recs), nil
}

// search runs one /events.json query and normalizes the result.
func (f *Finder) search(ctx context.Context, params url.Values) ([]model.ConcertRecord, error) {
	q := url.Values{}
	q.Set("classificationName", "music")
	q.Set("size", strconv.Itoa(f.cfg.PageSize))
	if f.cfg.APIKey != "" {
		q.Set("apikey", f.cfg.APIKey)
	}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	endpoint := strings.TrimRight(f.cfg.BaseURL, "/") + "/events.json?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build events request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpx.Do(ctx, f.http, req, f.cfg.Retry)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(serviceName, "error").Inc()
		return nil, errx.WrapUpstream(serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.UpstreamRequests.WithLabelValues(serviceName, "status_"+strconv.Itoa(resp.StatusCode)).Inc()
		return nil, errx.WrapUpstream(serviceName, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var body searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&body); err != nil {
		metrics.UpstreamRequests.WithLabelValues(serviceName, "decode_error").Inc()
		return nil, errx.WrapUpstream(serviceName, fmt.Errorf("decode events: %w", err))
	}

	evs := body.events()
	if len(evs) == 0 {
		metrics.UpstreamRequests.WithLabelValues(serviceName, "empty").Inc()
		return nil, nil
	}
	metrics.UpstreamRequests.WithLabelValues(serviceName, "ok").Inc()
	return normalize(evs), nil
}

func (f *Finder) cached(ctx context.Context, sessionID string, key model.QueryKey) ([]model.ConcertRecord, bool) {
	recs, ok, err := f.cache.Get(ctx, sessionID, key)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Str("key", key.String()).Msg("concert cache read failed")
		return nil, false
	}
	if ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		logx.Debug().Str("session_id", sessionID).Str("key", key.String()).Msg("concert cache hit")
		return recs, true
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()
	return nil, false
}

func (f *Finder) store(ctx context.Context, sessionID string, key model.QueryKey, recs []model.ConcertRecord) {
	if err := f.cache.Put(ctx, sessionID, key, recs); err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Str("key", key.String()).Msg("concert cache write failed")
	}
}

func (f *Finder) logMiss(sessionID string, key model.QueryKey, err error) {
	ev := logx.Info().Str("session_id", sessionID).Str("key", key.String())
	if err != nil {
		ev = logx.Warn().Err(err).Str("session_id", sessionID).Str("key", key.String())
	}
	ev.Msg("no live events, serving sample data")
}

func liveListing(title string, recs []model.ConcertRecord) *model.Listing {
	return &model.Listing{Title: title, Concerts: recs}
}

var _ model.ConcertFinder = (*Finder)(nil)
