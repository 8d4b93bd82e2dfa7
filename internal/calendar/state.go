package calendar

import "time"

// ViewMode selects which grid geometry the calendar currently renders.
type ViewMode string

const (
	ViewMonth ViewMode = "month"
	ViewWeek  ViewMode = "week"
)

// Valid reports whether v is a known view mode.
func (v ViewMode) Valid() bool {
	return v == ViewMonth || v == ViewWeek
}

// State is the complete navigation state of the calendar view. It is an
// explicit value owned by the Controller; nothing in this package keeps
// ambient cursor state.
//
// Exactly one of the month/week anchors is authoritative per render,
// selected by View, but both are retained across switches so that switching
// back restores the previous position instead of resetting.
type State struct {
	View ViewMode `json:"view"`

	// Month anchor, used when View == ViewMonth.
	AnchorYear  int        `json:"anchor_year"`
	AnchorMonth time.Month `json:"anchor_month"`

	// WeekStart is the Monday-aligned local midnight anchoring the
	// displayed week, used when View == ViewWeek. It stays zero until the
	// week view is first needed and is lazily initialized then.
	WeekStart time.Time `json:"week_start"`

	// PatientFilter optionally restricts the aggregate query to one
	// patient. Empty means all patients.
	PatientFilter string `json:"patient_filter,omitempty"`
}

// MondayOf returns local midnight of the Monday of the week containing t.
func MondayOf(t time.Time) time.Time {
	diff := int(time.Monday - t.Weekday())
	if t.Weekday() == time.Sunday {
		diff = -6
	}
	d := t.AddDate(0, 0, diff)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, t.Location())
}
