package nodes

import (
	"math/rand/v2"

	"github.com/concertbot/server/internal/agent/graph/nlu"
	"github.com/concertbot/server/internal/agent/model"
)

// Picker returns an index in [0, n). Nil means math/rand.
type Picker func(n int) int

func (p Picker) index(n int) int {
	if n <= 0 {
		return 0
	}
	if p == nil {
		return rand.IntN(n)
	}
	i := p(n)
	if i < 0 || i >= n {
		return 0
	}
	return i
}

// ===== Small helpers to keep handlers simple/readable =====
// userName returns the session's name or the default one.
func userName(s *model.Session) string {
	if s == nil || s.UserName == "" {
		return nlu.DefaultName
	}
	return s.UserName
}

// defaultCity returns the session's default city, or "" when unknown.
func defaultCity(s *model.Session) string {
	if s == nil {
		return ""
	}
	return s.DefaultLocation.City
}

// searchCity picks the explicit location when it differs from the default.
func searchCity(m model.ClassifiedMessage, fallback string) string {
	if loc := m.FirstLocation(); loc != "" && loc != fallback {
		return loc
	}
	return fallback
}
