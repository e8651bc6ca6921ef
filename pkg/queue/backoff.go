package queue

import (
	"math/rand"
	"time"
)

// Strategy computes the delay before re-enqueueing a failed job.
// attempt is the job's attempt count after the failure (1 for the first failure).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Exponential doubles the base delay per attempt and removes up to half of it
// as jitter, so the result lies in (d/2, d] with d = Min*2^(attempt-1) capped at Max.
// Jitter never reaches below the previous attempt's ceiling, so delays never
// shrink; once capped every retry waits exactly Max.
type Exponential struct {
	Min time.Duration
	Max time.Duration
}

func NewExponential(min, max time.Duration) *Exponential {
	return &Exponential{Min: min, Max: max}
}

func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	ceil := e.ceiling(attempt)
	floor := ceil / 2
	if attempt > 1 {
		if prev := e.ceiling(attempt - 1); prev > floor {
			floor = prev
		}
	}
	if ceil-floor <= 0 {
		return ceil
	}
	return ceil - time.Duration(rand.Int63n(int64(ceil-floor)))
}

// ceiling is Min*2^(attempt-1) capped at Max.
func (e *Exponential) ceiling(attempt int) time.Duration {
	min, max := e.Min, e.Max
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt > 62 {
		return max
	}
	if d := min << uint(attempt-1); d > 0 && d < max {
		return d
	}
	return max
}

// Constant always waits Interval.
type Constant struct {
	Interval time.Duration
}

func (c Constant) Delay(int) time.Duration { return c.Interval }

// Linear waits Step*attempt, capped at Max when Max > 0.
type Linear struct {
	Step time.Duration
	Max  time.Duration
}

func (l Linear) Delay(attempt int) time.Duration {
	d := l.Step * time.Duration(attempt)
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// RetryPolicy bounds how often a failing job is retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of handler invocations before a job is dead.
	MaxAttempts int
	Backoff     Strategy
}

// DefaultRetryPolicy is 3 attempts with exponential backoff between 1s and 1m.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: NewExponential(time.Second, time.Minute)}
}

// NewStrategy builds a strategy from its configuration name.
func NewStrategy(kind string, min, max time.Duration) Strategy {
	switch kind {
	case "constant":
		return Constant{Interval: min}
	case "linear":
		return Linear{Step: min, Max: max}
	default:
		return NewExponential(min, max)
	}
}
