package calendar

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthcal/internal/model"
)

// newTestController pins the controller's clock and initial anchors to a
// fixed instant so navigation assertions are deterministic.
func newTestController(src EventSource, now time.Time) *Controller {
	c := NewController(src, time.UTC)
	c.now = func() time.Time { return now }
	c.state = State{View: ViewMonth, AnchorYear: now.Year(), AnchorMonth: now.Month()}
	c.snap = Snapshot{State: c.state, Range: ResolveRange(c.state, time.UTC), Loading: true}
	return c
}

var testNow = time.Date(2024, time.March, 13, 12, 0, 0, 0, time.UTC) // a Wednesday

func TestControllerInitialState(t *testing.T) {
	c := newTestController(staticSource(nil), testNow)

	st := c.State()
	assert.Equal(t, ViewMonth, st.View)
	assert.Equal(t, 2024, st.AnchorYear)
	assert.Equal(t, time.March, st.AnchorMonth)
	assert.True(t, st.WeekStart.IsZero())
	assert.Empty(t, st.PatientFilter)
}

func TestPrevNextMonthRollsAcrossYears(t *testing.T) {
	c := newTestController(staticSource(nil), time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	snap := c.Prev(ctx)
	assert.Equal(t, 2023, snap.State.AnchorYear)
	assert.Equal(t, time.December, snap.State.AnchorMonth)

	snap = c.Next(ctx)
	assert.Equal(t, 2024, snap.State.AnchorYear)
	assert.Equal(t, time.January, snap.State.AnchorMonth)

	snap = c.Next(ctx)
	assert.Equal(t, time.February, snap.State.AnchorMonth)
}

func TestPrevThenNextReturnsToOriginalAnchor(t *testing.T) {
	c := newTestController(staticSource(nil), testNow)
	ctx := context.Background()

	orig := c.State()
	c.Prev(ctx)
	snap := c.Next(ctx)

	assert.Equal(t, orig.AnchorYear, snap.State.AnchorYear)
	assert.Equal(t, orig.AnchorMonth, snap.State.AnchorMonth)
}

func TestWeekNavigationShiftsByWholeWeeks(t *testing.T) {
	c := newTestController(staticSource(nil), testNow)
	ctx := context.Background()

	snap := c.SwitchView(ctx, ViewWeek)
	monday := time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, snap.State.WeekStart, "lazy init aligns to Monday")

	snap = c.Next(ctx)
	assert.Equal(t, monday.AddDate(0, 0, 7), snap.State.WeekStart)

	snap = c.Prev(ctx)
	snap = c.Prev(ctx)
	assert.Equal(t, monday.AddDate(0, 0, -7), snap.State.WeekStart)
}

func TestTodayResetsBothAnchors(t *testing.T) {
	c := newTestController(staticSource(nil), testNow)
	ctx := context.Background()

	// Drift both cursors away.
	c.Prev(ctx)
	c.Prev(ctx)
	c.SwitchView(ctx, ViewWeek)
	c.Next(ctx)
	c.Next(ctx)

	snap := c.Today(ctx)

	assert.Equal(t, 2024, snap.State.AnchorYear)
	assert.Equal(t, time.March, snap.State.AnchorMonth)
	assert.Equal(t, time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC), snap.State.WeekStart)

	// The active (week) range contains today.
	assert.False(t, testNow.Before(snap.Range.From))
	assert.False(t, testNow.After(snap.Range.To))
}

func TestSwitchViewKeepsIndependentAnchors(t *testing.T) {
	c := newTestController(staticSource(nil), testNow)
	ctx := context.Background()

	// Advance the month cursor two months, then the week cursor one week.
	c.Next(ctx)
	c.Next(ctx)
	c.SwitchView(ctx, ViewWeek)
	c.Next(ctx)

	// Switching back to month restores the month cursor, not the week's
	// position.
	snap := c.SwitchView(ctx, ViewMonth)
	assert.Equal(t, time.May, snap.State.AnchorMonth)

	// And the week cursor survives the round trip.
	snap = c.SwitchView(ctx, ViewWeek)
	assert.Equal(t, time.Date(2024, time.March, 18, 0, 0, 0, 0, time.UTC), snap.State.WeekStart)
}

func TestSwitchViewIgnoresUnknownMode(t *testing.T) {
	c := newTestController(staticSource(nil), testNow)

	snap := c.SwitchView(context.Background(), ViewMode("year"))

	assert.Equal(t, ViewMonth, snap.State.View)
}

func TestSetPatientFilterKeepsAnchors(t *testing.T) {
	var gotPatient string
	src := sourceFunc(func(_ context.Context, _, _ time.Time, patientID string) ([]model.CalendarEvent, error) {
		gotPatient = patientID
		return nil, nil
	})
	c := newTestController(src, testNow)
	ctx := context.Background()

	c.Prev(ctx)
	before := c.State()

	snap := c.SetPatientFilter(ctx, "p1")
	assert.Equal(t, "p1", snap.State.PatientFilter)
	assert.Equal(t, "p1", gotPatient)
	assert.Equal(t, before.AnchorYear, snap.State.AnchorYear)
	assert.Equal(t, before.AnchorMonth, snap.State.AnchorMonth)

	snap = c.SetPatientFilter(ctx, "")
	assert.Empty(t, snap.State.PatientFilter)
}

func TestRenderBuildsMonthGrid(t *testing.T) {
	events := []model.CalendarEvent{
		{ID: "a1", Type: model.EventAppointment, Datetime: "2024-03-15T14:00:00Z", Title: "Dr. Chen", PatientID: "p1", PatientName: "Ada"},
	}
	c := newTestController(staticSource(events), testNow)

	snap := c.Refresh(context.Background())

	require.Empty(t, snap.Err)
	require.Len(t, snap.MonthCells, 42)
	assert.Nil(t, snap.WeekCols)

	var markers []model.CalendarEvent
	for _, cell := range snap.MonthCells {
		if cell.Key == "2024-03-15" {
			markers = cell.Markers
			assert.True(t, cell.IsCurrentMonth)
		}
	}
	require.Len(t, markers, 1)
	assert.Equal(t, model.EventAppointment, markers[0].Type)
}

func TestRenderSurfacesFetchError(t *testing.T) {
	failing := sourceFunc(func(context.Context, time.Time, time.Time, string) ([]model.CalendarEvent, error) {
		return nil, errors.New("tracker unreachable")
	})
	c := newTestController(failing, testNow)

	snap := c.Refresh(context.Background())

	assert.Contains(t, snap.Err, "tracker unreachable")
	assert.Empty(t, snap.MonthCells)

	// A later successful render clears the error.
	c.src = staticSource(nil)
	snap = c.Refresh(context.Background())
	assert.Empty(t, snap.Err)
	assert.Len(t, snap.MonthCells, 42)
}

func TestStaleFetchIsSuperseded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var mu sync.Mutex
	calls := 0

	src := sourceFunc(func(_ context.Context, from, _ time.Time, _ string) ([]model.CalendarEvent, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		ev := model.CalendarEvent{
			Type:     model.EventAppointment,
			Datetime: from.Format("2006-01-02") + "T10:00:00Z",
		}
		if n == 1 {
			ev.ID = "stale"
			close(started)
			<-release
			return []model.CalendarEvent{ev}, nil
		}
		ev.ID = "fresh"
		return []model.CalendarEvent{ev}, nil
	})

	c := newTestController(src, testNow)
	ctx := context.Background()

	firstDone := make(chan Snapshot)
	go func() { firstDone <- c.Refresh(ctx) }()
	<-started

	// Navigate while the first fetch is still in flight.
	fresh := c.Next(ctx)
	close(release)
	superseded := <-firstDone

	// Only the range requested by Next is ever applied.
	final := c.Snapshot()
	assert.Equal(t, time.April, final.State.AnchorMonth)
	assert.Equal(t, fresh.Generation, final.Generation)

	// The superseded render observed the newer snapshot, not its own data.
	assert.Equal(t, fresh.Generation, superseded.Generation)

	var ids []string
	for _, cell := range final.MonthCells {
		for _, m := range cell.Markers {
			ids = append(ids, m.ID)
		}
	}
	assert.Equal(t, []string{"fresh"}, ids)
}
