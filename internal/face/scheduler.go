package face

import (
	"time"

	"code.cloudfoundry.org/clock"
)

// InteractiveUpdateRate is the refresh period while visible and interactive
const InteractiveUpdateRate = time.Second

// Scheduler owns the single pending refresh timer. It is not safe for
// concurrent use; the engine loop is its only caller.
type Scheduler struct {
	clk      clock.Clock
	interval time.Duration
	timer    clock.Timer
	arms     int
}

// NewScheduler creates a disarmed scheduler
func NewScheduler(clk clock.Clock, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = InteractiveUpdateRate
	}
	return &Scheduler{clk: clk, interval: interval}
}

// NextDelay returns the wait until the next interval boundary of wall-clock time
func (s *Scheduler) NextDelay(now time.Time) time.Duration {
	period := s.interval.Milliseconds()
	if period <= 0 {
		return s.interval
	}
	return time.Duration(period-now.UnixMilli()%period) * time.Millisecond
}

// Arm schedules a tick at the next boundary if eligible and nothing is pending.
// It reports whether a timer is pending afterwards.
func (s *Scheduler) Arm(eligible bool) bool {
	if !eligible {
		return s.timer != nil
	}
	if s.timer != nil {
		return true
	}
	s.timer = s.clk.NewTimer(s.NextDelay(s.clk.Now()))
	s.arms++
	return true
}

// Cancel clears the pending timer; calling it with nothing pending is a no-op
func (s *Scheduler) Cancel() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
}

// Reset cancels and then re-arms, used on every power state change
func (s *Scheduler) Reset(eligible bool) bool {
	s.Cancel()
	return s.Arm(eligible)
}

// Fired marks the pending timer as consumed. The caller re-arms afterwards.
func (s *Scheduler) Fired() {
	s.timer = nil
}

// C returns the pending timer's channel, or nil when disarmed so that a
// select on it blocks forever
func (s *Scheduler) C() <-chan time.Time {
	if s.timer == nil {
		return nil
	}
	return s.timer.C()
}

// Pending reports whether a tick is scheduled
func (s *Scheduler) Pending() bool {
	return s.timer != nil
}

// Arms returns how many timers have been created so far
func (s *Scheduler) Arms() int {
	return s.arms
}
