package ingest

import (
	"context"
	"time"

	"health-geo/internal/logger"
)

// Schedule is either a fixed interval (Every > 0) or a weekly slot on Weekday at Hour in Location.
type Schedule struct {
	Every    time.Duration
	Weekday  time.Weekday
	Hour     int
	Location *time.Location
}

// nextWeekdayAt returns the first wd at hour:00 strictly after now, in loc.
func nextWeekdayAt(now time.Time, loc *time.Location, wd time.Weekday, hour int) time.Time {
	now = now.In(loc)
	for i := 0; i <= 7; i++ {
		d := now.AddDate(0, 0, i)
		if d.Weekday() != wd {
			continue
		}
		t := time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, loc)
		if t.After(now) {
			return t
		}
	}
	d := now.AddDate(0, 0, 7)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, loc)
}

// Next returns the run time following now.
func (s Schedule) Next(now time.Time) time.Time {
	if s.Every > 0 {
		return now.Add(s.Every)
	}
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	return nextWeekdayAt(now, loc, s.Weekday, s.Hour)
}

// Start runs fn at every scheduled time until ctx is canceled. Errors are logged and the next
// run is still scheduled.
func (s Schedule) Start(ctx context.Context, fn func(context.Context) error) {
	l := logger.L()
	go func() {
		for {
			next := s.Next(time.Now())
			l.Info("ingest_scheduled", "next", next)
			t := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			l.Info("ingest_start", "scheduled", next)
			if err := fn(ctx); err != nil {
				l.Error("ingest_error", "err", err)
			} else {
				l.Info("ingest_scheduled_done")
			}
		}
	}()
}
