package scheduler

import (
	"time"

	"github.com/Inventorum/ebay-sub000/internal/application/reconcile"
	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
	"github.com/google/uuid"
)

// RunJobStatus represents the status of a sync job
type RunJobStatus string

const (
	RunJobStatusPending RunJobStatus = "PENDING"
	RunJobStatusRunning RunJobStatus = "RUNNING"
	RunJobStatusSuccess RunJobStatus = "SUCCESS"
	RunJobStatusPartial RunJobStatus = "PARTIAL"
	RunJobStatusFailed  RunJobStatus = "FAILED"
	// RunJobStatusSkipped means another process held the run lock
	RunJobStatusSkipped RunJobStatus = "SKIPPED"
)

// RunJob is one queued reconciliation run of a kind for an account
type RunJob struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Kind        delta.SyncKind
	Status      RunJobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time
	Report      *reconcile.RunReport
}

// NewRunJob creates a pending job
func NewRunJob(accountID uuid.UUID, kind delta.SyncKind, maxRetries int) *RunJob {
	return &RunJob{
		ID:         uuid.New(),
		AccountID:  accountID,
		Kind:       kind,
		Status:     RunJobStatusPending,
		MaxRetries: maxRetries,
	}
}

func (j *RunJob) key() string {
	return j.AccountID.String() + ":" + string(j.Kind)
}

// Start marks the job as running
func (j *RunJob) Start() {
	now := time.Now()
	j.Status = RunJobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete records the run report. Record failures inside an otherwise
// finished run make the job partial.
func (j *RunJob) Complete(report *reconcile.RunReport) {
	now := time.Now()
	j.Report = report
	j.CompletedAt = &now
	if report != nil && report.Failed > 0 {
		j.Status = RunJobStatusPartial
		return
	}
	j.Status = RunJobStatusSuccess
}

// Skip marks a job that found its run already going elsewhere
func (j *RunJob) Skip(reason string) {
	now := time.Now()
	j.Status = RunJobStatusSkipped
	j.CompletedAt = &now
	j.Error = reason
}

// Fail marks the job as failed
func (j *RunJob) Fail(err string) {
	now := time.Now()
	j.Status = RunJobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *RunJob) ShouldRetry() bool {
	return j.Status == RunJobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry schedules the job for retry with exponential backoff and
// returns the delay
func (j *RunJob) ScheduleRetry(baseDelay time.Duration) time.Duration {
	j.RetryCount++
	j.Status = RunJobStatusPending
	delay := baseDelay * time.Duration(1<<(j.RetryCount-1))
	if delay > 30*time.Minute {
		delay = 30 * time.Minute
	}
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	j.Error = ""
	return delay
}
