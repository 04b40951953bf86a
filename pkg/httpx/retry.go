// Package httpx wraps outbound HTTP calls with a bounded retry policy.
package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	logx "github.com/concertbot/server/pkg/logger"
	"github.com/concertbot/server/pkg/metrics"
)

const maxDrainBytes = 64 << 10

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Policy bounds the retries. MaxAttempts counts the first try.
// With Multiplier 1 the delay stays fixed; larger values grow it per retry.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
}

// DefaultPolicy is three attempts one second apart.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Delay: time.Second, Multiplier: 1}
}

func (p Policy) normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

// Do sends req, retrying on HTTP 429 and transport errors. When attempts run
// out on a 429 the last response is returned as is; when they run out on a
// transport error that error is returned. Only body-less requests are retried
// safely; callers use it for GETs.
func Do(ctx context.Context, client Doer, req *http.Request, policy Policy) (*http.Response, error) {
	p := policy.normalize()
	delay := p.Delay

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		resp, err := client.Do(req.Clone(ctx))
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			if attempt < p.MaxAttempts {
				metrics.UpstreamRetries.WithLabelValues("network").Inc()
				logx.Warn().Err(err).Str("host", req.URL.Host).Int("attempt", attempt).
					Int("left", p.MaxAttempts-attempt).Msg("network error, retrying")
			}

		case resp.StatusCode == http.StatusTooManyRequests && attempt < p.MaxAttempts:
			drain(resp)
			metrics.UpstreamRetries.WithLabelValues("rate_limited").Inc()
			logx.Warn().Str("host", req.URL.Host).Int("attempt", attempt).
				Int("left", p.MaxAttempts-attempt).Msg("rate limited, retrying")

		default:
			return resp, nil
		}

		if attempt == p.MaxAttempts {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
	}

	return nil, fmt.Errorf("httpx: %d attempts failed: %w", p.MaxAttempts, lastErr)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
