package calendar

import (
	"strconv"

	"healthcal/internal/model"
)

// Detail is the read-only detail block for one aggregated event: the
// fields every type shares, plus the type-specific rows that apply.
type Detail struct {
	TypeLabel    string      `json:"type_label"`
	Title        string      `json:"title"`
	PatientName  string      `json:"patient_name"`
	PatientColor string      `json:"patient_color"`
	When         string      `json:"when"`
	Rows         []DetailRow `json:"rows"`
}

// DetailRow is one labeled value in the detail block.
type DetailRow struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Present builds the detail block for an event. It is a pure function of
// its input and total over well-formed events: optional fields that are
// absent simply contribute no row, and a field is only consulted when it
// belongs to the event's type.
func Present(ev model.CalendarEvent) Detail {
	d := Detail{
		TypeLabel:    ev.Type.Label(),
		Title:        ev.Title,
		PatientName:  ev.PatientName,
		PatientColor: ev.PatientColor,
		When:         "—",
	}

	if t, err := ev.At(); err == nil {
		d.When = t.Format("Jan 2, 2006, 3:04 PM")
	}

	if ev.Detail != "" {
		d.Rows = append(d.Rows, DetailRow{Label: "Details", Value: ev.Detail})
	}

	switch ev.Type {
	case model.EventAppointment:
		if ev.FollowUpRequired != nil {
			v := "No"
			if *ev.FollowUpRequired {
				v = "Yes"
			}
			d.Rows = append(d.Rows, DetailRow{Label: "Follow-up Required", Value: v})
		}
	case model.EventSymptom:
		if ev.Severity != nil {
			d.Rows = append(d.Rows, DetailRow{Label: "Severity", Value: strconv.Itoa(*ev.Severity)})
		}
	case model.EventMedication:
		if ev.IsOngoing != nil {
			v := "Limited course"
			if *ev.IsOngoing {
				v = "Ongoing"
			}
			d.Rows = append(d.Rows, DetailRow{Label: "Status", Value: v})
		}
	}

	return d
}
