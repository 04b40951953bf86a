package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := Config{URL: "redis://" + mr.Addr(), ReadTimeout: 1, WriteTimeout: 1, DialTimeout: 1}
	if !cfg.Enabled() {
		t.Fatal("config with URL must be enabled")
	}
	client, err := cfg.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()
}

func TestNewRejectsBadURL(t *testing.T) {
	cfg := Config{URL: "not-a-url"}
	if _, err := cfg.New(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDisabledWithoutURL(t *testing.T) {
	var cfg Config
	if cfg.Enabled() {
		t.Fatal("empty config must be disabled")
	}
}
