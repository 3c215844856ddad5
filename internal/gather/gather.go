// Package gather runs data gathering jobs that pull from the broker and
// archive into local storage.
package gather

import (
	"context"
	"fmt"
	"time"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs the gathering job. It returns early if ctx is cancelled.
	Run(ctx context.Context) error
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// DayRange turns inclusive YYYY-MM-DD bounds into a range from the start of
// from to the last second of to, both in loc. An empty from means today; an
// empty to means from.
func DayRange(from, to string, now time.Time, loc *time.Location) (DateRange, error) {
	now = now.In(loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if from != "" {
		d, err := time.ParseInLocation(time.DateOnly, from, loc)
		if err != nil {
			return DateRange{}, fmt.Errorf("parsing from: %w", err)
		}
		start = d
	}
	last := start
	if to != "" {
		d, err := time.ParseInLocation(time.DateOnly, to, loc)
		if err != nil {
			return DateRange{}, fmt.Errorf("parsing to: %w", err)
		}
		last = d
	}
	if last.Before(start) {
		return DateRange{}, fmt.Errorf("range ends %s before it starts %s", last.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return DateRange{Start: start, End: last.AddDate(0, 0, 1).Add(-time.Second)}, nil
}
