package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/application/reconcile"
	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/scheduler"
	"github.com/Inventorum/ebay-sub000/internal/interfaces/http/dto"
	"github.com/Inventorum/ebay-sub000/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SyncRunner executes one reconciliation run inline
type SyncRunner interface {
	Execute(ctx context.Context, accountID uuid.UUID, kind delta.SyncKind) (*reconcile.RunReport, error)
}

// SyncQueue queues runs for the background workers
type SyncQueue interface {
	Schedule(accountID uuid.UUID, kind delta.SyncKind) (*scheduler.RunJob, error)
	GetJobHistoryByAccount(accountID uuid.UUID, limit int) []*scheduler.RunJob
}

// SyncHandler triggers reconciliation runs
type SyncHandler struct {
	BaseHandler
	runner SyncRunner
	queue  SyncQueue
}

// NewSyncHandler creates a new SyncHandler. Without a queue every request
// runs inline.
func NewSyncHandler(runner SyncRunner, queue SyncQueue) *SyncHandler {
	return &SyncHandler{runner: runner, queue: queue}
}

// QueuedRunResponse describes a queued run
type QueuedRunResponse struct {
	JobID     uuid.UUID      `json:"job_id"`
	AccountID uuid.UUID      `json:"account_id"`
	Kind      delta.SyncKind `json:"kind"`
	Status    string         `json:"status"`
}

// RunJobResponse is one entry of the run history
type RunJobResponse struct {
	JobID       uuid.UUID            `json:"job_id"`
	Kind        delta.SyncKind       `json:"kind"`
	Status      string               `json:"status"`
	Error       string               `json:"error,omitempty"`
	RetryCount  int                  `json:"retry_count"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	Report      *reconcile.RunReport `json:"report,omitempty"`
}

// Trigger starts a run of one kind for the account. By default the run is
// queued and the answer is 202; with ?wait=true it runs inline and the
// answer carries the run report.
// POST /api/v1/accounts/:account_id/sync/:kind
func (h *SyncHandler) Trigger(c *gin.Context) {
	var path dto.SyncPath
	if err := c.ShouldBindUri(&path); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	var query dto.SyncQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	accountID := uuid.MustParse(path.AccountID)

	kind, err := delta.ParseSyncKind(path.Kind)
	if err != nil {
		h.ErrorWithCode(c, dto.ErrCodeUnknownSyncKind, err.Error())
		return
	}

	if query.Wait || h.queue == nil {
		report, err := h.runner.Execute(c.Request.Context(), accountID, kind)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, report)
		return
	}

	job, err := h.queue.Schedule(accountID, kind)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, QueuedRunResponse{
		JobID:     job.ID,
		AccountID: accountID,
		Kind:      kind,
		Status:    string(scheduler.RunJobStatusPending),
	})
}

// History lists the most recent finished runs of the account.
// GET /api/v1/accounts/:account_id/sync/jobs
func (h *SyncHandler) History(c *gin.Context) {
	var path dto.AccountPath
	if err := c.ShouldBindUri(&path); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	if h.queue == nil {
		h.Success(c, []RunJobResponse{})
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			h.BadRequest(c, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	jobs := h.queue.GetJobHistoryByAccount(uuid.MustParse(path.AccountID), limit)
	out := make([]RunJobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, RunJobResponse{
			JobID:       j.ID,
			Kind:        j.Kind,
			Status:      string(j.Status),
			Error:       j.Error,
			RetryCount:  j.RetryCount,
			StartedAt:   j.StartedAt,
			CompletedAt: j.CompletedAt,
			Report:      j.Report,
		})
	}
	h.Success(c, out)
}
