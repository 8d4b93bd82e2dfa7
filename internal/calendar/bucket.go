package calendar

import (
	"context"
	"sort"
	"time"

	"healthcal/internal/model"
)

// EventSource is the aggregate calendar query this view depends on. It is
// satisfied by the tracker API client; tests substitute fakes.
type EventSource interface {
	Events(ctx context.Context, from, to time.Time, patientID string) ([]model.CalendarEvent, error)
}

// Buckets maps each calendar-day key to the events anchored on that day,
// in the order the source returned them. Built fresh on every fetch.
type Buckets map[model.DayKey][]model.CalendarEvent

// AggregateBuckets issues one aggregate query for the range and bins the
// returned events by day key. Bucketing truncates the wire datetime string
// to its date portion (model.DayKeyFromISO) before any display conversion,
// so a day never drifts between what was requested and what is shown.
//
// Fetch failures propagate to the caller with the underlying message; there
// is no automatic retry.
func AggregateBuckets(ctx context.Context, src EventSource, rng Range, patientID string) (Buckets, error) {
	events, err := src.Events(ctx, rng.From, rng.To, patientID)
	if err != nil {
		return nil, err
	}

	buckets := make(Buckets, len(events))
	for _, ev := range events {
		key := ev.DayKey()
		buckets[key] = append(buckets[key], ev)
	}
	return buckets, nil
}

// Flatten returns all bucketed events ordered by day key, preserving
// in-bucket order. Used by the ICS export.
func (b Buckets) Flatten() []model.CalendarEvent {
	keys := make([]model.DayKey, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	// Day keys are "YYYY-MM-DD", so lexical order is chronological.
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]model.CalendarEvent, 0)
	for _, k := range keys {
		out = append(out, b[k]...)
	}
	return out
}
