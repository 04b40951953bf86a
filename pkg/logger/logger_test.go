package logx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/concertbot/server/internal/core"
)

func TestInitProductionWritesJSONAtInfo(t *testing.T) {
	var buf bytes.Buffer
	Init(LoggerOpts{Environment: core.Production, Output: &buf})
	t.Cleanup(func() { Init(LoggerOpts{Environment: core.Testing}) })

	Debug().Msg("hidden")
	Info().Str("city", "Austin").Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked in production: %s", out)
	}
	if !strings.Contains(out, `"city":"Austin"`) || !strings.Contains(out, `"message":"visible"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestSessionLoggerCarriesID(t *testing.T) {
	var buf bytes.Buffer
	Init(LoggerOpts{Environment: core.Production, Output: &buf})
	t.Cleanup(func() { Init(LoggerOpts{Environment: core.Testing}) })

	l := Session("s-1")
	l.Info().Msg("turn")
	if !strings.Contains(buf.String(), `"session_id":"s-1"`) {
		t.Fatalf("session id missing: %s", buf.String())
	}
}
