package models

import (
	"errors"
	"time"
)

// PatternSummary is a mined lifecycle shape in report form.
type PatternSummary struct {
	ID    string
	Shape string
	Count int
}

// RunReport is the persisted outcome of one analysis run over an event log.
type RunReport struct {
	ID          string
	StartedAt   time.Time
	Source      string
	Events      int
	Rejected    int
	FlaggedRows int
	Venues      []VenueSnapshot
	Patterns    []PatternSummary
}

// Validate checks the fields required to persist a report.
func (r *RunReport) Validate() error {
	if r.StartedAt.IsZero() {
		return errors.New("started at is required")
	}
	if r.Events < 0 || r.Rejected < 0 || r.FlaggedRows < 0 {
		return errors.New("counters must not be negative")
	}
	return nil
}

// TotalFlaggedOrders sums flagged orders across venues.
func (r *RunReport) TotalFlaggedOrders() int {
	n := 0
	for _, v := range r.Venues {
		n += len(v.FlaggedOrders)
	}
	return n
}

// TotalNovelSymbols sums novel symbols across venues.
func (r *RunReport) TotalNovelSymbols() int {
	n := 0
	for _, v := range r.Venues {
		n += len(v.NovelSymbols)
	}
	return n
}
