package ics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "healthcal/internal/log"
	"healthcal/internal/model"
)

const (
	productID = "-//healthcal//calendar//EN"

	// Appointments and symptom logs are point events; give them a nominal
	// duration so calendar apps render them as blocks.
	pointEventDuration = 30 * time.Minute
)

// Export serializes the given aggregated events as a VCALENDAR feed.
//
// Appointments and symptom logs become single VEVENTs. Medication courses
// arrive from the tracker as one event per active day with ids of the form
// "<course_id>:<date>"; each course is collapsed back into a single VEVENT
// carrying a daily recurrence rule spanning the course's days in range.
//
// Events whose datetime cannot be parsed are skipped with a log entry; the
// feed itself never fails on malformed members.
func Export(name string, events []model.CalendarEvent, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.Local
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetName(name)

	courses := make(map[string][]model.CalendarEvent)

	for _, ev := range events {
		if ev.Type == model.EventMedication {
			courses[courseID(ev.ID)] = append(courses[courseID(ev.ID)], ev)
			continue
		}

		at, err := ev.At()
		if err != nil {
			appLog.Error("ics export: skipping event with bad datetime", err, "id", ev.ID, "datetime", ev.Datetime)
			continue
		}

		ve := cal.AddEvent(ev.ID + "@healthcal")
		ve.SetDtStampTime(at)
		ve.SetStartAt(at.In(loc))
		ve.SetEndAt(at.In(loc).Add(pointEventDuration))
		ve.SetSummary(summary(ev))
		if ev.Detail != "" {
			ve.SetDescription(ev.Detail)
		}
	}

	ids := make([]string, 0, len(courses))
	for id := range courses {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := addCourse(cal, id, courses[id], loc); err != nil {
			appLog.Error("ics export: skipping medication course", err, "course_id", id)
		}
	}

	return cal.Serialize(), nil
}

// addCourse emits one daily-recurring VEVENT covering the span of a
// medication course's per-day occurrences.
func addCourse(cal *ical.Calendar, id string, days []model.CalendarEvent, loc *time.Location) error {
	var first, last time.Time
	var firstEv model.CalendarEvent

	for _, ev := range days {
		at, err := ev.At()
		if err != nil {
			continue
		}
		at = at.In(loc)
		if first.IsZero() || at.Before(first) {
			first = at
			firstEv = ev
		}
		if last.IsZero() || at.After(last) {
			last = at
		}
	}
	if first.IsZero() {
		return fmt.Errorf("course %s has no parsable occurrences", id)
	}

	ve := cal.AddEvent(id + "@healthcal")
	ve.SetDtStampTime(first)
	ve.SetStartAt(first)
	ve.SetEndAt(first.Add(24 * time.Hour))
	ve.SetSummary(summary(firstEv))
	if firstEv.Detail != "" {
		ve.SetDescription(firstEv.Detail)
	}

	if last.After(first) {
		r, err := rrule.NewRRule(rrule.ROption{
			Freq:    rrule.DAILY,
			Dtstart: first,
			Until:   last.Add(24*time.Hour - time.Second).UTC(),
		})
		if err != nil {
			return fmt.Errorf("building recurrence: %w", err)
		}
		ve.AddRrule(r.OrigOptions.RRuleString())
	}

	return nil
}

// courseID strips the per-day suffix from a medication occurrence id.
func courseID(id string) string {
	if i := strings.IndexByte(id, ':'); i >= 0 {
		return id[:i]
	}
	return id
}

func summary(ev model.CalendarEvent) string {
	if ev.PatientName == "" {
		return ev.Title
	}
	return ev.Title + " – " + ev.PatientName
}
