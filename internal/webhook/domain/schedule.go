package domain

import "time"

// Schedule maps a 1-based attempt number to the delay before that attempt.
// Attempts beyond the table reuse its last entry.
type Schedule []time.Duration

var (
	ProductionSchedule = Schedule{0, time.Minute, 5 * time.Minute, 30 * time.Minute, 2 * time.Hour}
	TestSchedule       = Schedule{0, 5 * time.Second, 10 * time.Second, 15 * time.Second, 20 * time.Second}
)

func (s Schedule) Delay(attempt int) time.Duration {
	if len(s) == 0 {
		return 0
	}
	i := attempt - 1
	if i < 0 {
		i = 0
	}
	if i >= len(s) {
		i = len(s) - 1
	}
	return s[i]
}

// ScheduleFor picks the fast table when test intervals are enabled.
func ScheduleFor(testIntervals bool) Schedule {
	if testIntervals {
		return TestSchedule
	}
	return ProductionSchedule
}
