package batch

import (
	"time"
)

// maxBackoffExponent caps the exponential growth of the consecutive-failure
// pre-batch delay at 2^5.
const maxBackoffExponent = 5

// FailureStreak tracks consecutive failing batches and derives the two
// recovery delays the dispatcher uses: an exponential pre-batch backoff and
// a capped inter-batch delay. It is the run-level replacement for a
// process-wide circuit breaker: the streak lives in the dispatcher's run
// state and resets with it.
type FailureStreak struct {
	failures  int
	baseDelay time.Duration
	delayCap  time.Duration
}

// NewFailureStreak creates a streak tracker with the given base delay.
// The inter-batch delay is capped at delayCap (30s if zero).
func NewFailureStreak(baseDelay, delayCap time.Duration) *FailureStreak {
	if delayCap <= 0 {
		delayCap = 30 * time.Second
	}
	return &FailureStreak{baseDelay: baseDelay, delayCap: delayCap}
}

// RecordSuccess resets the streak after a batch that met the success
// threshold.
func (s *FailureStreak) RecordSuccess() {
	s.failures = 0
}

// RecordFailure increments the streak after a batch that missed the
// success threshold even after its redispatch budget.
func (s *FailureStreak) RecordFailure() {
	s.failures++
}

// Reset clears the streak, used after the long cooldown pause.
func (s *FailureStreak) Reset() {
	s.failures = 0
}

// Count returns the current number of consecutive failing batches.
func (s *FailureStreak) Count() int {
	return s.failures
}

// PreBatchDelay returns the sleep applied before dispatching the next batch:
// base * 2^min(failures-1, 5), or zero when the streak is clean.
func (s *FailureStreak) PreBatchDelay() time.Duration {
	if s.failures == 0 {
		return 0
	}
	exp := s.failures - 1
	if exp > maxBackoffExponent {
		exp = maxBackoffExponent
	}
	return s.baseDelay * (1 << exp)
}

// InterBatchDelay returns the pause between batches given the current
// streak: the base delay when clean, escalating toward the cap while
// batches keep failing.
func (s *FailureStreak) InterBatchDelay() time.Duration {
	if s.failures == 0 {
		return s.baseDelay
	}
	exp := s.failures - 1
	if exp > maxBackoffExponent {
		exp = maxBackoffExponent
	}
	d := s.baseDelay * (1 << exp)
	if d > s.delayCap {
		d = s.delayCap
	}
	return d
}
