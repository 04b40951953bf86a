package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/concertbot/server/internal/agent/model"
)

const dateLayout = "2006-01-02"

const (
	imgStadium   = "https://i.scdn.co/image/ab6761610000e5eb989ed05e1f0570cc4726c2d3"
	imgPopStar   = "https://i.scdn.co/image/ab6761610000e5eb5a00969a4698c3132a15fbb0"
	imgRockBand  = "https://i.scdn.co/image/ab6761610000e5eb9a42185a6e2297e7c7f87ef3"
	imgPopArena  = "https://i.scdn.co/image/ab6761610000e5ebcdce7620dc940db079bf4952"
	imgEDM       = "https://images.unsplash.com/photo-1574137909569-6a7101cc701d?auto=format&fit=crop&w=500&q=60"
	imgDJ        = "https://images.unsplash.com/photo-1642078078166-5242179de5d8?auto=format&fit=crop&w=500&q=60"
	imgOrchestra = "https://images.unsplash.com/photo-1514846160150-2cfb150a9c6b?auto=format&fit=crop&w=500&q=60"
	imgPiano     = "https://images.unsplash.com/photo-1520523839897-bd0b52f945a0?auto=format&fit=crop&w=500&q=60"
	imgCountry   = "https://images.unsplash.com/photo-1506157786151-b8491531f063?auto=format&fit=crop&w=500&q=60"
	imgNashville = "https://images.unsplash.com/photo-1604848698030-c434ba08ece1?auto=format&fit=crop&w=500&q=60"
	imgCrowd     = "https://images.unsplash.com/photo-1501386761578-eac5c94b800a?auto=format&fit=crop&w=500&q=60"
	imgRockLive  = "https://images.unsplash.com/photo-1557787163-1635e2efb160?auto=format&fit=crop&w=500&q=60"
	imgSinger    = "https://images.unsplash.com/photo-1585023923179-dcd5c5ad13f9?auto=format&fit=crop&w=500&q=60"
	imgJazz      = "https://images.unsplash.com/photo-1415201364774-f6f0bb35f28f?auto=format&fit=crop&w=500&q=60"
)

// venuesByGenre holds curated venue names per genre; index 0 and 1 are used.
var venuesByGenre = map[string][]string{
	"rock":       {"Madison Square Garden", "The Forum", "Red Rocks Amphitheatre"},
	"pop":        {"SoFi Stadium", "MetLife Stadium", "T-Mobile Arena"},
	"classical":  {"Carnegie Hall", "Walt Disney Concert Hall", "Symphony Center"},
	"jazz":       {"Blue Note Jazz Club", "Village Vanguard", "Preservation Hall"},
	"electronic": {"Echostage", "Webster Hall", "Stereo Live"},
	"edm":        {"Echostage", "Webster Hall", "Stereo Live"},
	"country":    {"Grand Ole Opry", "The Ryman Auditorium", "Billy Bob's Texas"},
}

var defaultVenues = []string{"American Music Hall", "The Fillmore", "House of Blues"}

var popularVenues = []string{
	"Madison Square Garden",
	"Hollywood Bowl",
	"Red Rocks Amphitheatre",
	"Radio City Music Hall",
	"The Fillmore",
}

type sample struct {
	name  string
	time  string
	image string
	genre string
}

// genreSamples lists two headline shows per genre with curated data.
var genreSamples = map[string][2]sample{
	"rock": {
		{"Coldplay World Tour", "19:30:00", imgStadium, "Rock"},
		{"Foo Fighters Live", "20:00:00", imgRockBand, "Rock"},
	},
	"pop": {
		{"Taylor Swift - Eras Tour", "20:00:00", imgPopStar, "Pop"},
		{"Ariana Grande Concert", "19:00:00", imgPopArena, "Pop"},
	},
	"electronic": {
		{"EDM Winter Festival", "22:00:00", imgEDM, "Electronic"},
		{"Techno Night with Famous DJs", "23:00:00", imgDJ, "Electronic"},
	},
	"classical": {
		{"Symphony Orchestra Performance", "18:30:00", imgOrchestra, "Classical"},
		{"Piano Concerto Evening", "19:00:00", imgPiano, "Classical"},
	},
	"jazz": {
		{"Late Night Jazz Sessions", "21:00:00", imgJazz, "Jazz"},
		{"Big Band Swing Revival", "19:30:00", imgJazz, "Jazz"},
	},
	"country": {
		{"Country Music Festival", "18:00:00", imgCountry, "Country"},
		{"Nashville Night", "19:00:00", imgNashville, "Country"},
	},
}

// Fallback produces plausible sample listings when live data is missing.
// It never fails.
type Fallback struct {
	now func() time.Time
}

// NewFallback returns a provider dated relative to now; nil means time.Now.
func NewFallback(now func() time.Time) *Fallback {
	if now == nil {
		now = time.Now
	}
	return &Fallback{now: now}
}

func (f *Fallback) day(offset int) string {
	return f.now().AddDate(0, 0, offset).Format(dateLayout)
}

// ForLocation is used when a city query fails.
func (f *Fallback) ForLocation(location string) *model.Listing {
	where := location + ", USA"
	concerts := []model.ConcertRecord{
		{Name: "Coldplay Virtual Experience", Date: f.day(7), Time: "19:30:00", Venue: "Madison Square Garden", ImageURL: imgStadium, Genre: "Pop/Rock"},
		{Name: "Taylor Swift - Eras Tour", Date: f.day(12), Time: "20:00:00", Venue: "SoFi Stadium", ImageURL: imgPopStar, Genre: "Pop"},
		{Name: "Classical Symphony Night", Date: f.day(17), Time: "18:30:00", Venue: "Carnegie Hall", ImageURL: imgOrchestra, Genre: "Classical"},
		{Name: "EDM Winter Festival", Date: f.day(30), Time: "21:00:00", Venue: "Barclays Center", ImageURL: imgEDM, Genre: "Electronic"},
	}
	return sampleListing(fmt.Sprintf("Sample Concerts in %s (API Unavailable)", where), where, concerts)
}

// ForGenre is used when a genre query fails or finds nothing.
func (f *Fallback) ForGenre(genre, location string) *model.Listing {
	key := strings.ToLower(strings.TrimSpace(genre))
	label := capitalize(key)
	where := location + ", USA"

	venues, ok := venuesByGenre[key]
	if !ok {
		venues = defaultVenues
	}
	shows, ok := genreSamples[key]
	if !ok && key == "edm" {
		shows, ok = genreSamples["electronic"]
	}
	if !ok {
		shows = [2]sample{
			{label + " Music Festival", "18:00:00", imgEDM, label},
			{"Best of " + label, "19:00:00", imgCrowd, label},
		}
	}

	offsets := [2]int{7, 30}
	concerts := make([]model.ConcertRecord, 0, len(shows))
	for i, s := range shows {
		concerts = append(concerts, model.ConcertRecord{
			Name:     s.name,
			Date:     f.day(offsets[i]),
			Time:     s.time,
			Venue:    venues[i],
			ImageURL: s.image,
			Genre:    s.genre,
		})
	}
	return sampleListing(fmt.Sprintf("%s concerts in %s (Sample Data)", label, where), where, concerts)
}

// ForDate is used when a date-range query fails or finds nothing.
func (f *Fallback) ForDate(phrase, location string) *model.Listing {
	where := location + ", USA"
	offset := 0
	p := strings.ToLower(phrase)
	switch {
	case strings.Contains(p, "next week"), strings.Contains(p, "weekend"):
		offset = 7
	case strings.Contains(p, "next month"):
		offset = 30
	}
	date := f.day(offset)

	concerts := []model.ConcertRecord{
		{Name: "Mixed Genre Music Festival", Date: date, Time: "17:00:00", Venue: popularVenues[0], ImageURL: imgCrowd, Genre: "Various"},
		{Name: "Rock Night Live", Date: date, Time: "19:30:00", Venue: popularVenues[1], ImageURL: imgRockLive, Genre: "Rock"},
		{Name: "Classical Evening", Date: date, Time: "18:00:00", Venue: popularVenues[2], ImageURL: imgOrchestra, Genre: "Classical"},
		{Name: "Pop Stars Live", Date: date, Time: "20:00:00", Venue: popularVenues[3], ImageURL: imgSinger, Genre: "Pop"},
	}
	return sampleListing(fmt.Sprintf("Concerts in %s for %s (Sample Data)", where, phrase), where, concerts)
}

func sampleListing(title, where string, concerts []model.ConcertRecord) *model.Listing {
	for i := range concerts {
		concerts[i].Location = where
	}
	return &model.Listing{Title: title, Concerts: concerts, Sample: true}
}
