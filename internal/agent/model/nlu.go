package model

// Intent is the classified purpose of a user utterance.
type Intent string

const (
	IntentGreeting                 Intent = "greeting"
	IntentSearchByGenre            Intent = "search_by_genre"
	IntentSearchByLocation         Intent = "search_by_location"
	IntentSearchByDate             Intent = "search_by_date"
	IntentGeneralConcertInquiry    Intent = "general_concert_inquiry"
	IntentThankYou                 Intent = "thank_you"
	IntentPossibleLocationOrArtist Intent = "possible_location_or_artist"
	IntentUnknown                  Intent = "unknown"
)

// ClassifiedMessage is the classifier output for one user turn.
type ClassifiedMessage struct {
	RawText   string   `json:"raw_text"`
	Intent    Intent   `json:"intent"`
	Genres    []string `json:"genres"`
	Locations []string `json:"locations"`
	Dates     []string `json:"dates"`
}

// FirstGenre returns the first extracted genre or "".
func (m ClassifiedMessage) FirstGenre() string { return first(m.Genres) }

// FirstLocation returns the first extracted location or "".
func (m ClassifiedMessage) FirstLocation() string { return first(m.Locations) }

// FirstDate returns the first extracted date phrase or "".
func (m ClassifiedMessage) FirstDate() string { return first(m.Dates) }

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
