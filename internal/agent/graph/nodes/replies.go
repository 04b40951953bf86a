package nodes

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/concertbot/server/internal/agent/graph/nlu"
	"github.com/concertbot/server/internal/agent/model"
)

var concertsWordRe = regexp.MustCompile(`[Cc]oncerts`)

// UnknownArea stands in for the default city when none is known.
const UnknownArea = "your area"

// IntroText opens every session and asks for the visitor's name.
const IntroText = "Hi there! I can help you find concerts across the United States. What's your name?"

func WelcomeText(name string) string {
	return fmt.Sprintf("Thanks, %s! It's nice to meet you. I can help you discover music concerts across America. What kind of music are you interested in?", name)
}

// RandomCityText tells the visitor which city was picked for them.
func RandomCityText(name, city string) string {
	return fmt.Sprintf("%s, I'll be showing you concerts in %s, United States. You can ask about concerts in any other US city too!", name, city)
}

// ApologyText precedes the sample listing sent after a failed turn.
func ApologyText(name string) string {
	return fmt.Sprintf("I'm having trouble connecting to the database right now, %s. Let me show you some sample concerts instead.", name)
}

// ListingHistoryText is recorded in the history instead of a listing.
func ListingHistoryText(name string) string {
	return fmt.Sprintf("I found some concerts that might interest you, %s.", name)
}

func cannedText(intent model.Intent, name string) string {
	switch intent {
	case model.IntentGreeting:
		return fmt.Sprintf("Hi again, %s! How can I help you find concerts today?", name)
	case model.IntentGeneralConcertInquiry:
		return fmt.Sprintf("%s, I can help you find concerts! Want to search by genre, location, or date?", name)
	case model.IntentThankYou:
		return fmt.Sprintf("You're welcome, %s! Anything else you'd like to know?", name)
	default:
		return fmt.Sprintf("I'm not sure what you're asking, %s. Try asking about concerts by genre (like rock or pop), location, or date.", name)
	}
}

// followUpPools are keyed by genre; "" is the default pool.
var followUpPools = map[string][]string{
	"rock": {
		"%[1]s, who's your favorite rock band?",
		"%[1]s, classic or modern rock?",
		"Been to many rock concerts, %[1]s?",
	},
	"pop": {
		"%[1]s, who's your favorite pop artist?",
		"Arena shows or intimate venues, %[1]s?",
		"Last pop concert you attended, %[1]s?",
	},
	"classical": {
		"Favorite composer, %[1]s?",
		"%[1]s, do you play any instruments?",
		"Ever been to the symphony, %[1]s?",
	},
	"electronic": {
		"%[1]s, into house, techno, or other subgenres?",
		"Festivals or club shows, %[1]s?",
		"%[1]s, who's your favorite DJ?",
	},
	"": {
		"%[1]s, what other music do you enjoy?",
		"Best concert you've ever been to, %[1]s?",
		"%[1]s, outdoor or indoor venues?",
	},
}

// FollowUpQuestion picks one question from the genre's pool.
func FollowUpQuestion(genre, name string, pick Picker) string {
	pool, ok := followUpPools[strings.ToLower(genre)]
	if !ok {
		pool = followUpPools[""]
	}
	return fmt.Sprintf(pool[pick.index(len(pool))], name)
}

// PersonalizeListing returns a copy of l addressed to name.
func PersonalizeListing(l *model.Listing, name string) *model.Listing {
	out := *l
	out.Title = personalizeTitle(l.Title, name)
	if len(l.Concerts) == 0 {
		out.EmptyText = fmt.Sprintf("Sorry %s, no concerts found matching your criteria.", name)
	} else if name != nlu.DefaultName {
		out.Note = fmt.Sprintf("Based on your interests, %s, I think you'll especially enjoy these shows!", name)
	}
	return &out
}

// personalizeTitle prefixes the first "Concerts" or "concerts" with the
// possessive name.
func personalizeTitle(title, name string) string {
	loc := concertsWordRe.FindStringIndex(title)
	if loc == nil {
		return title
	}
	return title[:loc[0]] + name + "'s " + title[loc[0]:]
}
