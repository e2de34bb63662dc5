package model

// Schedule is the day-driven state shared by every obligation: when it runs next,
// how often it has failed in a row and whether it is still being attempted.
type Schedule struct {
	IntervalDays     int64 `json:"interval_days"`
	NextExecutionDay int64 `json:"next_execution_day"`
	FailureCount     int   `json:"failure_count"`
	Active           bool  `json:"active"`
}

// NewSchedule starts an active schedule whose first run is one interval after startDay.
func NewSchedule(startDay, intervalDays int64) Schedule {
	return Schedule{
		IntervalDays:     intervalDays,
		NextExecutionDay: startDay + intervalDays,
		Active:           true,
	}
}

func (s *Schedule) Due(day int64) bool {
	return s.Active && s.NextExecutionDay <= day
}

// Succeed advances by a full interval and clears the failure streak.
func (s *Schedule) Succeed() {
	s.NextExecutionDay += s.IntervalDays
	s.FailureCount = 0
}

// Fail records a failed attempt on day and retries the following day. It returns true
// when the failure streak reached ceiling and the schedule was deactivated.
func (s *Schedule) Fail(day int64, ceiling int) bool {
	s.FailureCount++
	if retry := day + 1; retry > s.NextExecutionDay {
		s.NextExecutionDay = retry
	}
	if s.FailureCount >= ceiling {
		s.Active = false
		return true
	}
	return false
}

func (s *Schedule) Pause() {
	s.Active = false
}

// Resume reactivates the schedule and pushes the next run one interval past day.
// NextExecutionDay never moves backwards.
func (s *Schedule) Resume(day int64) {
	s.Active = true
	s.FailureCount = 0
	if next := day + s.IntervalDays; next > s.NextExecutionDay {
		s.NextExecutionDay = next
	}
}
