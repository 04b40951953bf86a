// Package geo turns browser coordinates into the default US search city.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
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
	serviceName  = "bigdatacloud"
	country      = "United States"
	countryCode  = "US"
	maxBodyBytes = 1 << 20
)

// Coordinates as reported by the browser.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Resolution is the outcome of Resolve. Random is set when the city was
// picked from model.USCities rather than looked up.
type Resolution struct {
	Location model.Location `json:"location"`
	Random   bool           `json:"random"`
}

type reverseResponse struct {
	City        string `json:"city"`
	Locality    string `json:"locality"`
	CountryName string `json:"countryName"`
	CountryCode string `json:"countryCode"`
}

type Config struct {
	ReverseURL  string
	DefaultCity string
	Retry       httpx.Policy
}

type Resolver struct {
	cfg  Config
	http httpx.Doer
	pick func(n int) int
}

type Option func(*Resolver)

func WithHTTPClient(d httpx.Doer) Option {
	return func(r *Resolver) { r.http = d }
}

// WithPicker replaces the random index source, mostly for tests.
func WithPicker(pick func(n int) int) Option {
	return func(r *Resolver) { r.pick = pick }
}

func NewResolver(cfg Config, opts ...Option) *Resolver {
	r := &Resolver{
		cfg:  cfg,
		http: &http.Client{Timeout: 5 * time.Second},
		pick: rand.IntN,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve never fails: any problem ends in a random US city.
func (r *Resolver) Resolve(ctx context.Context, coords *Coordinates) Resolution {
	if coords == nil {
		return r.Random()
	}

	info, err := r.reverse(ctx, *coords)
	if err != nil {
		logx.Warn().Err(err).Float64("lat", coords.Latitude).Float64("lon", coords.Longitude).
			Msg("reverse geocoding failed, using random US city")
		return r.Random()
	}

	if info.CountryName != country && info.CountryCode != countryCode {
		logx.Debug().Str("country", info.CountryName).Msg("visitor outside the US, using random US city")
		return r.Random()
	}

	city := firstNonEmpty(info.City, info.Locality, r.cfg.DefaultCity)
	return Resolution{Location: model.Location{City: city, Country: country}}
}

// Random picks a city from model.USCities.
func (r *Resolver) Random() Resolution {
	city := model.USCities[r.pick(len(model.USCities))]
	return Resolution{Location: model.Location{City: city, Country: country}, Random: true}
}

func (r *Resolver) reverse(ctx context.Context, c Coordinates) (*reverseResponse, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(c.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(c.Longitude, 'f', -1, 64))
	q.Set("localityLanguage", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.ReverseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build geocode request: %w", err)
	}

	resp, err := httpx.Do(ctx, r.http, req, r.cfg.Retry)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(serviceName, "error").Inc()
		return nil, errx.WrapUpstream(serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.UpstreamRequests.WithLabelValues(serviceName, "status_"+strconv.Itoa(resp.StatusCode)).Inc()
		return nil, errx.WrapUpstream(serviceName, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var out reverseResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&out); err != nil {
		metrics.UpstreamRequests.WithLabelValues(serviceName, "decode_error").Inc()
		return nil, errx.WrapUpstream(serviceName, fmt.Errorf("decode geocode: %w", err))
	}
	metrics.UpstreamRequests.WithLabelValues(serviceName, "ok").Inc()
	return &out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
