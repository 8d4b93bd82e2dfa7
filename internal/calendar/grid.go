package calendar

import (
	"sort"
	"time"

	"healthcal/internal/model"
)

// Month grid geometry: always complete weeks, Sunday through Saturday.
const (
	monthGridWeeks = 6
	daysPerWeek    = 7
	monthGridCells = monthGridWeeks * daysPerWeek

	// maxMonthMarkers caps how many event markers a month cell carries;
	// EventCount still reflects the full bucket.
	maxMonthMarkers = 8
)

// DayCell is one cell of the month grid.
type DayCell struct {
	Date           time.Time     `json:"date"`
	Key            model.DayKey  `json:"key"`
	DayOfMonth     int           `json:"day_of_month"`
	IsCurrentMonth bool          `json:"is_current_month"`
	IsToday        bool          `json:"is_today"`
	// Markers are the first events of the cell's bucket, in bucket order,
	// truncated at maxMonthMarkers. Each carries the full event so detail
	// display needs no further lookup.
	Markers    []model.CalendarEvent `json:"markers"`
	EventCount int                   `json:"event_count"`
}

// DayColumn is one column of the week strip. Unlike month cells, a column
// lists all of its day's events, ordered by instant ascending.
type DayColumn struct {
	Date    time.Time             `json:"date"`
	Key     model.DayKey          `json:"key"`
	IsToday bool                  `json:"is_today"`
	Events  []model.CalendarEvent `json:"events"`
}

// BuildMonthGrid produces the 42-cell month grid for the anchor month:
// 6 rows of 7 columns, starting at the Sunday on or before the 1st, so the
// first cell is always a Sunday and the last always a Saturday. Padding
// cells from adjacent months carry IsCurrentMonth == false.
//
// A month with no events still yields the full grid; a day with no events
// yields an empty cell. The builder is total over any (year, month) pair.
func BuildMonthGrid(year int, month time.Month, buckets Buckets, today model.DayKey, loc *time.Location) []DayCell {
	if loc == nil {
		loc = time.Local
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	start := first.AddDate(0, 0, -int(first.Weekday()))

	cells := make([]DayCell, 0, monthGridCells)
	for i := 0; i < monthGridCells; i++ {
		d := start.AddDate(0, 0, i)
		key := model.DayKeyOf(d)
		bucket := buckets[key]

		markers := bucket
		if len(markers) > maxMonthMarkers {
			markers = markers[:maxMonthMarkers]
		}

		cells = append(cells, DayCell{
			Date:           d,
			Key:            key,
			DayOfMonth:     d.Day(),
			IsCurrentMonth: d.Month() == month && d.Year() == first.Year(),
			IsToday:        key == today,
			Markers:        markers,
			EventCount:     len(bucket),
		})
	}
	return cells
}

// BuildWeekGrid produces the 7 day columns covering weekStart through
// weekStart+6. Column events are sorted by instant ascending; events whose
// datetime fails to parse keep their received order at the end.
func BuildWeekGrid(weekStart time.Time, buckets Buckets, today model.DayKey) []DayColumn {
	cols := make([]DayColumn, 0, daysPerWeek)
	for i := 0; i < daysPerWeek; i++ {
		d := weekStart.AddDate(0, 0, i)
		key := model.DayKeyOf(d)

		events := make([]model.CalendarEvent, len(buckets[key]))
		copy(events, buckets[key])
		sortByInstant(events)

		cols = append(cols, DayColumn{
			Date:    d,
			Key:     key,
			IsToday: key == today,
			Events:  events,
		})
	}
	return cols
}

func sortByInstant(events []model.CalendarEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		ti, erri := events[i].At()
		tj, errj := events[j].At()
		if erri != nil || errj != nil {
			return erri == nil && errj != nil
		}
		return ti.Before(tj)
	})
}
