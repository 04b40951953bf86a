package errx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// WrapRedis maps Redis errors to the unified AppError with appropriate status codes.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, redis.Nil) {
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	}

	return New(err, http.StatusBadGateway, RedisErrorMessage)
}

// WrapUpstream maps a failed third-party call (events provider, geocoder) to a 502.
func WrapUpstream(service string, err error) error {
	if err == nil {
		return nil
	}
	return New(fmt.Errorf("%s: %w", service, err), http.StatusBadGateway, UpstreamErrorMessage)
}
