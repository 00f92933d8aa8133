package cron

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// exprParser accepts standard 5-field expressions, an optional seconds field,
// and @-descriptors.
var exprParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NextRunAt computes the next trigger time for a schedule in unix
// milliseconds. The second return value is false when nothing is left to
// schedule. The result is always strictly greater than nowMs.
//
// NextRunAt is pure: identical (schedule, nowMs) inputs yield identical
// outputs, timezone database aside.
func NextRunAt(s Schedule, nowMs int64) (int64, bool) {
	switch s.Kind {
	case ScheduleKindAt:
		if s.AtMs > nowMs {
			return s.AtMs, true
		}
		return 0, false

	case ScheduleKindEvery:
		every := s.EveryMs
		if every < 1 {
			every = 1
		}
		anchor := s.AnchorMs
		if anchor == 0 {
			anchor = nowMs
		}
		if nowMs < anchor {
			return anchor, true
		}
		// Smallest anchor + k*every strictly after now, with at least one
		// step so zero or negative elapsed intervals still make forward
		// progress.
		k := (nowMs-anchor)/every + 1
		if k < 1 {
			k = 1
		}
		return anchor + k*every, true

	case ScheduleKindCron:
		sched, loc, err := parseCronExpr(s.Expr, s.TZ)
		if err != nil {
			return 0, false
		}
		return futureCronNext(sched, loc, nowMs)
	}
	return 0, false
}

// JobNextRunAt computes a job's next trigger, layering the one-shot
// completion rules on top of NextRunAt. A disabled job never has a next run.
// A one-shot job that last completed successfully only fires again if its
// "at" timestamp was later moved strictly past that run.
func JobNextRunAt(j *CronJob, nowMs int64) (int64, bool) {
	if j == nil || !j.Enabled {
		return 0, false
	}
	if j.oneShotCompleted() {
		return 0, false
	}
	return NextRunAt(j.Schedule, nowMs)
}

// parseCronExpr parses a cron expression under its resolved timezone.
func parseCronExpr(expr, tz string) (cron.Schedule, *time.Location, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil, fmt.Errorf("empty cron expression")
	}
	sched, err := exprParser.Parse(expr)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	loc := time.Local
	if tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
	}
	return sched, loc, nil
}

// futureCronNext evaluates a cron schedule and guards against evaluators
// that hand back a non-future time for certain timezone/date combinations
// (past-year results have been observed in the wild). It retries from one
// second ahead, then from the start of the next UTC day, and gives up rather
// than ever returning a timestamp at or before now.
func futureCronNext(sched cron.Schedule, loc *time.Location, nowMs int64) (int64, bool) {
	starts := []time.Time{
		time.UnixMilli(nowMs).In(loc),
		time.UnixMilli(nowMs).Add(time.Second).In(loc),
		startOfNextUTCDay(nowMs).In(loc),
	}
	for _, from := range starts {
		next := sched.Next(from)
		if next.IsZero() {
			continue
		}
		if ms := next.UnixMilli(); ms > nowMs {
			return ms, true
		}
	}
	return 0, false
}

// startOfNextUTCDay returns midnight UTC of the day after nowMs.
func startOfNextUTCDay(nowMs int64) time.Time {
	t := time.UnixMilli(nowMs).UTC()
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
}
