package calendar

import (
	"fmt"
	"time"
)

// Range is the instant interval a view mode currently covers, plus its
// human-readable label.
type Range struct {
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
	Label string    `json:"label"`
}

// ResolveRange computes the query range and title for the given state.
// It is a pure function of the state and the display location: no side
// effects and no reliance on "now" (anchor initialization is the
// Controller's job).
//
// Month mode covers the first instant of the anchor month through
// end-of-day on its last calendar day, labeled "January 2006". Week mode
// covers WeekStart through end-of-day six days later, labeled
// "Jan 2 – Jan 8, 2006".
func ResolveRange(s State, loc *time.Location) Range {
	if loc == nil {
		loc = time.Local
	}

	if s.View == ViewWeek {
		from := s.WeekStart
		if from.IsZero() {
			// An uninitialized week anchor still yields a structurally
			// valid range (the zero week).
			from = time.Date(1, 1, 1, 0, 0, 0, 0, loc)
		}
		to := endOfDay(from.AddDate(0, 0, 6))
		return Range{
			From:  from,
			To:    to,
			Label: fmt.Sprintf("%s – %s", from.Format("Jan 2"), to.Format("Jan 2, 2006")),
		}
	}

	from := time.Date(s.AnchorYear, s.AnchorMonth, 1, 0, 0, 0, 0, loc)
	to := endOfDay(from.AddDate(0, 1, -1))
	return Range{
		From:  from,
		To:    to,
		Label: from.Format("January 2006"),
	}
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
