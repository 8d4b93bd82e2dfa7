package calendar

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthcal/internal/model"
)

func TestBuildMonthGridGeometry(t *testing.T) {
	cases := []struct {
		year  int
		month time.Month
	}{
		{2024, time.February}, // leap year
		{2023, time.February}, // 28 days starting on Wednesday
		{2024, time.March},
		{2024, time.September}, // starts on a Sunday
		{2024, time.December},  // year boundary padding
		{2025, time.January},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d-%s", tc.year, tc.month), func(t *testing.T) {
			cells := BuildMonthGrid(tc.year, tc.month, nil, "", time.UTC)

			require.Len(t, cells, 42)
			assert.Equal(t, time.Sunday, cells[0].Date.Weekday())
			assert.Equal(t, time.Saturday, cells[41].Date.Weekday())

			// Consecutive dates throughout.
			for i := 1; i < len(cells); i++ {
				assert.Equal(t, cells[i-1].Date.AddDate(0, 0, 1), cells[i].Date)
			}

			// Every date of the target month appears exactly once among
			// current-month cells.
			seen := make(map[int]int)
			for _, c := range cells {
				if c.IsCurrentMonth {
					seen[c.DayOfMonth]++
				}
			}
			daysInMonth := time.Date(tc.year, tc.month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1).Day()
			require.Len(t, seen, daysInMonth)
			for day := 1; day <= daysInMonth; day++ {
				assert.Equal(t, 1, seen[day], "day %d", day)
			}
		})
	}
}

func TestBuildMonthGridEmptyMonth(t *testing.T) {
	cells := BuildMonthGrid(2024, time.June, Buckets{}, "", time.UTC)

	require.Len(t, cells, 42)
	for _, c := range cells {
		assert.Empty(t, c.Markers)
		assert.Zero(t, c.EventCount)
	}
}

func TestBuildMonthGridMarkersAndToday(t *testing.T) {
	buckets := Buckets{
		"2024-03-15": {
			{ID: "a1", Type: model.EventAppointment, Datetime: "2024-03-15T14:00:00Z", Title: "Dr. Chen"},
		},
	}

	cells := BuildMonthGrid(2024, time.March, buckets, "2024-03-15", time.UTC)

	var cell DayCell
	for _, c := range cells {
		if c.Key == "2024-03-15" {
			cell = c
		}
	}
	require.Len(t, cell.Markers, 1)
	assert.Equal(t, model.EventAppointment, cell.Markers[0].Type)
	assert.Equal(t, 1, cell.EventCount)
	assert.True(t, cell.IsToday)
	assert.True(t, cell.IsCurrentMonth)

	for _, c := range cells {
		if c.Key != "2024-03-15" {
			assert.False(t, c.IsToday)
		}
	}
}

func TestBuildMonthGridTruncatesMarkers(t *testing.T) {
	day := make([]model.CalendarEvent, 11)
	for i := range day {
		day[i] = model.CalendarEvent{
			ID:       fmt.Sprintf("s%d", i),
			Type:     model.EventSymptom,
			Datetime: fmt.Sprintf("2024-03-10T%02d:00:00Z", i+8),
		}
	}
	buckets := Buckets{"2024-03-10": day}

	cells := BuildMonthGrid(2024, time.March, buckets, "", time.UTC)

	for _, c := range cells {
		if c.Key == "2024-03-10" {
			require.Len(t, c.Markers, 8)
			// First 8 in bucket order, no reordering.
			assert.Equal(t, "s0", c.Markers[0].ID)
			assert.Equal(t, "s7", c.Markers[7].ID)
			assert.Equal(t, 11, c.EventCount)
		}
	}
}

func TestBuildWeekGridGeometry(t *testing.T) {
	weekStart := time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC)

	cols := BuildWeekGrid(weekStart, nil, "2024-03-13")

	require.Len(t, cols, 7)
	for i, col := range cols {
		assert.Equal(t, weekStart.AddDate(0, 0, i), col.Date)
		assert.Empty(t, col.Events)
	}
	assert.True(t, cols[2].IsToday)
	assert.False(t, cols[0].IsToday)
}

func TestBuildWeekGridSortsByInstant(t *testing.T) {
	weekStart := time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC)
	buckets := Buckets{
		"2024-03-12": {
			{ID: "late", Type: model.EventSymptom, Datetime: "2024-03-12T21:00:00Z"},
			{ID: "early", Type: model.EventAppointment, Datetime: "2024-03-12T08:30:00Z"},
			{ID: "noon", Type: model.EventMedication, Datetime: "2024-03-12T12:00:00Z"},
		},
	}

	cols := BuildWeekGrid(weekStart, buckets, "")

	ids := make([]string, 0, 3)
	for _, ev := range cols[1].Events {
		ids = append(ids, ev.ID)
	}
	assert.Equal(t, []string{"early", "noon", "late"}, ids)
}

func TestBuildWeekGridDoesNotMutateBuckets(t *testing.T) {
	weekStart := time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC)
	buckets := Buckets{
		"2024-03-11": {
			{ID: "b", Datetime: "2024-03-11T20:00:00Z"},
			{ID: "a", Datetime: "2024-03-11T07:00:00Z"},
		},
	}

	BuildWeekGrid(weekStart, buckets, "")

	// Bucket order (as received) is preserved for month-view truncation.
	assert.Equal(t, "b", buckets["2024-03-11"][0].ID)
}
