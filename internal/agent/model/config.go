package model

import "time"

// ================ Config ================
type ConversationConfig struct {
	TTL           string        `envconfig:"CONVERSATION_TTL" default:"30m"`
	HistoryLimit  int           `envconfig:"CONVERSATION_HISTORY_LIMIT" default:"10"`
	FollowUpDelay time.Duration `envconfig:"CONVERSATION_FOLLOW_UP_DELAY" default:"3s"`
	FallbackDelay time.Duration `envconfig:"CONVERSATION_FALLBACK_DELAY" default:"1s"`
	// CancelPending drops scheduled follow-ups when the next user turn arrives.
	CancelPending bool `envconfig:"CONVERSATION_CANCEL_PENDING" default:"true"`
	// SweepSchedule is the cron expression of the idle session sweep (in-memory store only).
	SweepSchedule string `envconfig:"CONVERSATION_SWEEP_SCHEDULE" default:"@every 1m"`
}

// SessionTTL parses TTL; zero means no expiry.
func (c ConversationConfig) SessionTTL() (time.Duration, error) {
	if c.TTL == "" {
		return 0, nil
	}
	return time.ParseDuration(c.TTL)
}

type RetryConfig struct {
	MaxAttempts int           `envconfig:"HTTP_RETRY_MAX_ATTEMPTS" default:"3"`
	Delay       time.Duration `envconfig:"HTTP_RETRY_DELAY" default:"1s"`
	Multiplier  float64       `envconfig:"HTTP_RETRY_MULTIPLIER" default:"1"`
}

type EventsConfig struct {
	APIKey   string        `envconfig:"TICKETMASTER_API_KEY"`
	BaseURL  string        `envconfig:"TICKETMASTER_BASE_URL" default:"https://app.ticketmaster.com/discovery/v2"`
	PageSize int           `envconfig:"TICKETMASTER_PAGE_SIZE" default:"10"`
	Timeout  time.Duration `envconfig:"TICKETMASTER_TIMEOUT" default:"10s"`
}

type GeoConfig struct {
	ReverseURL  string        `envconfig:"GEO_REVERSE_URL" default:"https://api.bigdatacloud.net/data/reverse-geocode-client"`
	DefaultCity string        `envconfig:"GEO_DEFAULT_CITY" default:"New York"`
	Timeout     time.Duration `envconfig:"GEO_TIMEOUT" default:"5s"`
}

type ServerConfig struct {
	Addr        string `envconfig:"HTTP_ADDR" default:":3000"`
	StaticDir   string `envconfig:"STATIC_DIR" default:"public"`
	AllowOrigin string `envconfig:"CORS_ALLOW_ORIGIN" default:"*"`
}
