package events

import (
	"strings"
	"time"
)

// TimestampLayout is the Discovery API format for startDateTime/endDateTime.
const TimestampLayout = "2006-01-02T15:04:05Z"

// DateRange is an absolute search window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// StartParam renders Start in UTC for the query string.
func (r DateRange) StartParam() string { return r.Start.UTC().Format(TimestampLayout) }

// EndParam renders End in UTC for the query string.
func (r DateRange) EndParam() string { return r.End.UTC().Format(TimestampLayout) }

// ResolveDateRange translates a relative phrase into a window on now's
// calendar. Unknown phrases cover the next 30 days.
func ResolveDateRange(phrase string, now time.Time) DateRange {
	loc := now.Location()
	y, m, d := now.Date()
	endOfDay := func(t time.Time) time.Time {
		ty, tm, td := t.Date()
		return time.Date(ty, tm, td, 23, 59, 59, 0, loc)
	}
	weekday := int(now.Weekday()) // Sunday = 0

	switch strings.ToLower(strings.TrimSpace(phrase)) {
	case "today":
		return DateRange{Start: now, End: endOfDay(now)}

	case "tomorrow":
		start := now.AddDate(0, 0, 1)
		return DateRange{Start: start, End: endOfDay(start)}

	case "this week":
		return DateRange{Start: now, End: endOfDay(now.AddDate(0, 0, 7-weekday))}

	case "this weekend":
		untilFriday := 5 - weekday
		if weekday > 5 {
			untilFriday = 6
		}
		start := now.AddDate(0, 0, untilFriday)
		return DateRange{Start: start, End: endOfDay(start.AddDate(0, 0, 2))}

	case "this month":
		return DateRange{Start: now, End: time.Date(y, m+1, 0, 23, 59, 59, 0, loc)}

	case "next week":
		start := now.AddDate(0, 0, (7-weekday)%7+1)
		return DateRange{Start: start, End: endOfDay(start.AddDate(0, 0, 6))}

	case "next month":
		return DateRange{
			Start: time.Date(y, m+1, 1, 0, 0, 0, 0, loc),
			End:   time.Date(y, m+2, 0, 23, 59, 59, 0, loc),
		}

	default:
		return DateRange{Start: now, End: endOfDay(time.Date(y, m, d+30, 0, 0, 0, 0, loc))}
	}
}
