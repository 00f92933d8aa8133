package cron

import (
	"fmt"
	"strings"
)

// ValidateSchedule rejects malformed schedule definitions. It runs on the
// CRUD path only: recomputation inside the wake loop must never fail a
// previously-accepted job, it degrades to "no next run" instead.
func ValidateSchedule(s Schedule) error {
	switch s.Kind {
	case ScheduleKindAt:
		if s.AtMs == 0 {
			return fmt.Errorf("at schedule requires an 'at' timestamp")
		}
	case ScheduleKindEvery:
		if s.EveryMs < 1 {
			return fmt.Errorf("every schedule requires everyMs >= 1")
		}
	case ScheduleKindCron:
		if strings.TrimSpace(s.Expr) == "" {
			return fmt.Errorf("cron schedule requires an expression")
		}
		if _, _, err := parseCronExpr(s.Expr, s.TZ); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown schedule kind: %q", s.Kind)
	}
	return nil
}
