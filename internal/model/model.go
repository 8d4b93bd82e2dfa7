package model

import "time"

// EventType discriminates the three record kinds merged into the calendar.
type EventType string

const (
	EventAppointment EventType = "appointment"
	EventSymptom     EventType = "symptom"
	EventMedication  EventType = "medication"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventAppointment, EventSymptom, EventMedication:
		return true
	}
	return false
}

// Label returns the human-readable name for the event type.
func (t EventType) Label() string {
	switch t {
	case EventAppointment:
		return "Appointment"
	case EventSymptom:
		return "Symptom Log"
	case EventMedication:
		return "Medication"
	}
	return string(t)
}

// CalendarEvent is the normalized event shape returned by the tracker's
// aggregate calendar endpoint. The three record kinds are already merged
// and typed server-side.
//
// Datetime is kept as the raw ISO-8601 string from the wire: day bucketing
// keys off its first 10 characters (the date portion as emitted by the
// source), deliberately without any timezone reinterpretation.
//
// The optional fields are only meaningful for the event type they belong
// to: FollowUpRequired for appointments, Severity for symptom logs,
// IsOngoing for medications. Consumers must check Type before reading them.
type CalendarEvent struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	PatientID    string    `json:"patient_id"`
	PatientName  string    `json:"patient_name"`
	PatientColor string    `json:"patient_color"`
	Datetime     string    `json:"datetime"`
	Title        string    `json:"title"`
	Detail       string    `json:"detail,omitempty"`

	FollowUpRequired *bool `json:"follow_up_required,omitempty"`
	Severity         *int  `json:"severity,omitempty"`
	IsOngoing        *bool `json:"is_ongoing,omitempty"`
}

// At parses the event's instant. The tracker emits RFC 3339 timestamps,
// with or without an explicit offset.
func (e CalendarEvent) At() (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, e.Datetime); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", e.Datetime)
}

// DayKey returns the calendar-day key this event is bucketed under.
func (e CalendarEvent) DayKey() DayKey {
	return DayKeyFromISO(e.Datetime)
}

// DayKey identifies one calendar day as "YYYY-MM-DD".
type DayKey string

// DayKeyFromISO derives a day key from an ISO-8601 datetime string by
// truncating it to the date portion. This matches the convention the
// server pairs its datetime strings with, so bucketing never drifts from
// the requested range even in non-UTC display locales.
func DayKeyFromISO(s string) DayKey {
	if len(s) < 10 {
		return DayKey(s)
	}
	return DayKey(s[:10])
}

// DayKeyOf returns the day key for a concrete local date.
func DayKeyOf(t time.Time) DayKey {
	return DayKey(t.Format("2006-01-02"))
}

// Time interprets the day key as local midnight in loc.
func (k DayKey) Time(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", string(k), loc)
}

// Patient is an owning patient record, denormalized into events for
// rendering but also listed separately for the filter dropdown.
type Patient struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Notes       string `json:"notes,omitempty"`
}
