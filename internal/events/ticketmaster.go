package events

import (
	"strings"

	"github.com/concertbot/server/internal/agent/model"
)

// searchResponse is the subset of the Discovery v2 /events.json payload we read.
type searchResponse struct {
	Embedded *struct {
		Events []event `json:"events"`
	} `json:"_embedded"`
}

type event struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Dates struct {
		Start struct {
			LocalDate string `json:"localDate"`
			LocalTime string `json:"localTime"`
		} `json:"start"`
	} `json:"dates"`
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Classifications []struct {
		Genre *struct {
			Name string `json:"name"`
		} `json:"genre"`
	} `json:"classifications"`
	Embedded *struct {
		Venues []venue `json:"venues"`
	} `json:"_embedded"`
}

type venue struct {
	Name string `json:"name"`
	City *struct {
		Name string `json:"name"`
	} `json:"city"`
	State *struct {
		StateCode string `json:"stateCode"`
	} `json:"state"`
}

func (r *searchResponse) events() []event {
	if r == nil || r.Embedded == nil {
		return nil
	}
	return r.Embedded.Events
}

// normalize converts provider events into concert records.
func normalize(evs []event) []model.ConcertRecord {
	out := make([]model.ConcertRecord, 0, len(evs))
	for _, ev := range evs {
		out = append(out, toRecord(ev))
	}
	return out
}

func toRecord(ev event) model.ConcertRecord {
	rec := model.ConcertRecord{
		Name:      ev.Name,
		Date:      ev.Dates.Start.LocalDate,
		Time:      ev.Dates.Start.LocalTime,
		Venue:     "Venue TBA",
		DetailURL: ev.URL,
		Genre:     "Various",
	}
	if rec.Time == "" {
		rec.Time = model.TimeTBA
	}

	var v venue
	if ev.Embedded != nil && len(ev.Embedded.Venues) > 0 {
		v = ev.Embedded.Venues[0]
		if v.Name != "" {
			rec.Venue = v.Name
		}
	}
	var city, state string
	if v.City != nil {
		city = v.City.Name
	}
	if v.State != nil {
		state = v.State.StateCode
	}
	rec.Location = city + ", " + state

	if len(ev.Images) > 0 {
		rec.ImageURL = ev.Images[0].URL
	}
	if len(ev.Classifications) > 0 && ev.Classifications[0].Genre != nil {
		if name := strings.TrimSpace(ev.Classifications[0].Genre.Name); name != "" {
			rec.Genre = name
		}
	}
	return rec
}
