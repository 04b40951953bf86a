// Package nlu is the keyword and regex classifier that turns a user
// utterance into an intent plus genre, location and date entities.
//
// Classification flow:
//  1. Entity extraction by substring match against fixed vocabularies.
//  2. Ordered intent rules; the first rule that matches wins.
package nlu

import (
	"regexp"
	"strings"

	"github.com/concertbot/server/internal/agent/model"
)

// Genres is the genre vocabulary in match order.
var Genres = []string{
	"rock", "pop", "classical", "jazz", "hip hop", "rap", "electronic",
	"edm", "country", "r&b", "metal", "indie", "folk",
}

// DateTerms is the relative date vocabulary in match order. "this week"
// precedes "this weekend", so a weekend phrase resolves to the week.
var DateTerms = []string{
	"today", "tomorrow", "this week", "this weekend", "this month",
	"next week", "next month",
}

const nearMe = "near me"

var (
	greetingRe = regexp.MustCompile(`\b(hello|hi|hey)\b`)
	concertRe  = regexp.MustCompile(`concert|event|show|performance`)
	wordsRe    = regexp.MustCompile(`^[a-zA-Z\s]+$`)
)

// rule pairs an intent with its predicate over the lower-cased text and
// the extracted entities.
type rule struct {
	intent  model.Intent
	matches func(lower string, m *model.ClassifiedMessage) bool
}

var rules = []rule{
	{model.IntentGreeting, func(lower string, _ *model.ClassifiedMessage) bool {
		return greetingRe.MatchString(lower)
	}},
	{model.IntentSearchByGenre, func(_ string, m *model.ClassifiedMessage) bool {
		return len(m.Genres) > 0
	}},
	{model.IntentSearchByLocation, func(_ string, m *model.ClassifiedMessage) bool {
		return len(m.Locations) > 0
	}},
	{model.IntentSearchByDate, func(_ string, m *model.ClassifiedMessage) bool {
		return len(m.Dates) > 0
	}},
	{model.IntentGeneralConcertInquiry, func(lower string, _ *model.ClassifiedMessage) bool {
		return concertRe.MatchString(lower)
	}},
	{model.IntentThankYou, func(lower string, _ *model.ClassifiedMessage) bool {
		return strings.Contains(lower, "thank")
	}},
	{model.IntentPossibleLocationOrArtist, func(lower string, _ *model.ClassifiedMessage) bool {
		return wordsRe.MatchString(lower) && len(strings.Split(lower, " ")) <= 3
	}},
}

// Classify is a pure function of text and the session's default city.
func Classify(text, defaultCity string) model.ClassifiedMessage {
	lower := strings.ToLower(text)
	m := model.ClassifiedMessage{
		RawText:   text,
		Genres:    []string{},
		Locations: []string{},
		Dates:     []string{},
	}

	for _, g := range Genres {
		if strings.Contains(lower, g) {
			m.Genres = append(m.Genres, g)
		}
	}
	if strings.Contains(lower, nearMe) && defaultCity != "" {
		m.Locations = append(m.Locations, defaultCity)
	}
	for _, c := range model.USCities {
		if strings.Contains(lower, strings.ToLower(c)) {
			m.Locations = append(m.Locations, c)
		}
	}
	for _, d := range DateTerms {
		if strings.Contains(lower, d) {
			m.Dates = append(m.Dates, d)
		}
	}

	m.Intent = model.IntentUnknown
	for _, r := range rules {
		if r.matches(lower, &m) {
			m.Intent = r.intent
			break
		}
	}
	if m.Intent == model.IntentPossibleLocationOrArtist {
		m.Locations = append(m.Locations, strings.TrimSpace(text))
	}
	return m
}
