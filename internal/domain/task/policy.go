package task

import "time"

// StagePolicy bounds the retries of one stage
type StagePolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Delay returns base * 2^(attempt-1), capped at MaxDelay
func (p StagePolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return p.MaxDelay
	}
	d := p.BaseDelay * time.Duration(1<<uint(attempt-1))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Policy holds a StagePolicy per stage
type Policy struct {
	Initialize StagePolicy
	Execute    StagePolicy
	Finalize   StagePolicy
}

// For returns the policy of a stage
func (p Policy) For(stage Stage) StagePolicy {
	switch stage {
	case StageInitialize:
		return p.Initialize
	case StageFinalize:
		return p.Finalize
	default:
		return p.Execute
	}
}

// DefaultPolicy returns the retry policy used when none is configured
func DefaultPolicy() Policy {
	return Policy{
		Initialize: StagePolicy{MaxAttempts: 3, BaseDelay: 5 * time.Second, MaxDelay: time.Minute},
		Execute:    StagePolicy{MaxAttempts: 5, BaseDelay: 30 * time.Second, MaxDelay: 30 * time.Minute},
		Finalize:   StagePolicy{MaxAttempts: 5, BaseDelay: 10 * time.Second, MaxDelay: 10 * time.Minute},
	}
}
