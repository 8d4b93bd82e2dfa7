package calendar

import (
	"context"
	"sync"
	"time"

	appLog "healthcal/internal/log"
	"healthcal/internal/model"
)

// Snapshot is the result of one render pass: the state and range it was
// computed for plus the built grid (or the fetch error in its place).
// Snapshots are immutable once published; the Controller replaces them
// wholesale, never mutates them in place.
type Snapshot struct {
	State      State  `json:"state"`
	Range      Range  `json:"range"`
	Generation uint64 `json:"generation"`

	// Loading is true while the fetch for this generation is in flight.
	Loading bool `json:"loading"`

	// Err carries the aggregation failure message, shown inline in place
	// of the grid. Empty on success.
	Err string `json:"error,omitempty"`

	Buckets    Buckets     `json:"-"`
	MonthCells []DayCell   `json:"month_cells,omitempty"`
	WeekCols   []DayColumn `json:"week_columns,omitempty"`
}

// Controller owns the calendar's navigation state and drives the render
// pipeline: on every command it resolves the active range, re-aggregates
// events, rebuilds the grid, and publishes a new snapshot.
//
// Commands may run concurrently (each HTTP request is one command); the
// state itself is mutated under a single lock, and a generation counter
// guarantees that only the latest requested range is ever applied. A stale
// fetch result arriving after a newer command is discarded, not aborted.
type Controller struct {
	src EventSource
	loc *time.Location
	now func() time.Time

	mu    sync.Mutex
	state State
	gen   uint64
	snap  Snapshot
}

// NewController builds a Controller with the initial state: month view
// anchored on the current month, no patient filter, week anchor
// uninitialized until first needed.
func NewController(src EventSource, loc *time.Location) *Controller {
	if loc == nil {
		loc = time.Local
	}
	c := &Controller{
		src: src,
		loc: loc,
		now: time.Now,
	}
	now := c.now().In(loc)
	c.state = State{
		View:        ViewMonth,
		AnchorYear:  now.Year(),
		AnchorMonth: now.Month(),
	}
	c.snap = Snapshot{State: c.state, Range: ResolveRange(c.state, loc), Loading: true}
	return c
}

// Snapshot returns the most recently published snapshot.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// State returns a copy of the current navigation state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Prev moves the active anchor one step back: one month in month view,
// seven days in week view.
func (c *Controller) Prev(ctx context.Context) Snapshot {
	return c.render(ctx, func() { c.step(-1) })
}

// Next moves the active anchor one step forward.
func (c *Controller) Next(ctx context.Context) Snapshot {
	return c.render(ctx, func() { c.step(1) })
}

// Today resets both anchors to the current date regardless of view: the
// month anchor to the current month and the week anchor to the Monday of
// the current week.
func (c *Controller) Today(ctx context.Context) Snapshot {
	return c.render(ctx, func() {
		now := c.now().In(c.loc)
		c.state.AnchorYear = now.Year()
		c.state.AnchorMonth = now.Month()
		c.state.WeekStart = MondayOf(now)
	})
}

// SwitchView changes the view mode. The stored anchors are untouched: the
// month and week cursors advance independently, and switching back to a
// mode restores wherever it was last navigated to.
func (c *Controller) SwitchView(ctx context.Context, mode ViewMode) Snapshot {
	return c.render(ctx, func() {
		if mode.Valid() {
			c.state.View = mode
		}
	})
}

// SetPatientFilter restricts (or, with an empty id, widens) the aggregate
// query to one patient. Anchors are unaffected.
func (c *Controller) SetPatientFilter(ctx context.Context, patientID string) Snapshot {
	return c.render(ctx, func() { c.state.PatientFilter = patientID })
}

// Refresh re-runs the pipeline for the current state without changing it.
// Used by the cron schedule and by the create-appointment success hook.
func (c *Controller) Refresh(ctx context.Context) Snapshot {
	return c.render(ctx, nil)
}

// step shifts the anchor selected by the current view.
func (c *Controller) step(dir int) {
	if c.state.View == ViewWeek {
		c.ensureWeekStart()
		c.state.WeekStart = c.state.WeekStart.AddDate(0, 0, 7*dir)
		return
	}

	m := int(c.state.AnchorMonth) + dir
	switch {
	case m > int(time.December):
		m = int(time.January)
		c.state.AnchorYear++
	case m < int(time.January):
		m = int(time.December)
		c.state.AnchorYear--
	}
	c.state.AnchorMonth = time.Month(m)
}

// ensureWeekStart lazily initializes the week anchor to the current week.
// Callers must hold mu.
func (c *Controller) ensureWeekStart() {
	if c.state.WeekStart.IsZero() {
		c.state.WeekStart = MondayOf(c.now().In(c.loc))
	}
}

// render applies the state mutation, then runs the pipeline: resolve range,
// aggregate, build grid, publish. The generation captured before the fetch
// is compared again before applying, so out-of-order responses from
// superseded commands can never reach the published snapshot.
func (c *Controller) render(ctx context.Context, mutate func()) Snapshot {
	c.mu.Lock()
	if mutate != nil {
		mutate()
	}
	c.ensureWeekStart()
	c.gen++
	gen := c.gen
	st := c.state
	rng := ResolveRange(st, c.loc)
	c.snap = Snapshot{State: st, Range: rng, Generation: gen, Loading: true}
	c.mu.Unlock()

	buckets, err := AggregateBuckets(ctx, c.src, rng, st.PatientFilter)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		// A newer command superseded this fetch; keep its snapshot.
		appLog.Debug("stale render dropped", "generation", gen, "current", c.gen)
		return c.snap
	}

	snap := Snapshot{State: st, Range: rng, Generation: gen}
	if err != nil {
		appLog.Error("calendar aggregation failed", err,
			"from", rng.From.Format(time.RFC3339),
			"to", rng.To.Format(time.RFC3339),
			"patient_id", st.PatientFilter,
		)
		snap.Err = err.Error()
	} else {
		today := model.DayKeyOf(c.now().In(c.loc))
		snap.Buckets = buckets
		if st.View == ViewWeek {
			snap.WeekCols = BuildWeekGrid(st.WeekStart, buckets, today)
		} else {
			snap.MonthCells = BuildMonthGrid(st.AnchorYear, st.AnchorMonth, buckets, today, c.loc)
		}
	}
	c.snap = snap
	return snap
}
