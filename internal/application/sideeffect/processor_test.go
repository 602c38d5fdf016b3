package sideeffect

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/core"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/marketplace"
	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/Inventorum/ebay-sub000/internal/domain/task"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func publishTask(t *testing.T, e *env, itemID uuid.UUID) *task.Task {
	t.Helper()
	tasks, err := e.store.Tasks().FindByEntity(context.Background(), task.EntityItem, itemID)
	require.NoError(t, err)
	for _, tk := range tasks {
		if tk.Kind == task.KindPublish {
			return tk
		}
	}
	t.Fatalf("no publish task for item %s", itemID)
	return nil
}

func TestProcessor_PublishSucceeds(t *testing.T) {
	e := newEnv(t, fastPolicy())
	ctx := context.Background()

	item, err := e.publisher.RequestPublish(ctx, e.acct.ID, "p-1")
	require.NoError(t, err)

	n, err := e.processor.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := e.store.Items().FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusPublished, got.Status)
	require.NotNil(t, got.ExternalMarketplaceID)
	assert.NotEmpty(t, *got.ExternalMarketplaceID)

	tk := publishTask(t, e, item.ID)
	assert.Equal(t, task.StatusDone, tk.Status)
	assert.Equal(t, task.OutcomeSucceeded, tk.Outcome)

	pushes := e.core.Calls("PushProductState")
	require.Len(t, pushes, 1)
	assert.Equal(t, "p-1", pushes[0].Target)
	assert.Equal(t, listing.StatusPublished.String(), pushes[0].Args.(core.ProductState).State)
}

func TestProcessor_PublishRetryExhaustion(t *testing.T) {
	e := newEnv(t, fastPolicy())
	ctx := context.Background()

	item, err := e.publisher.RequestPublish(ctx, e.acct.ID, "p-1")
	require.NoError(t, err)

	unavailable := fmt.Errorf("%w: connection reset", marketplace.ErrMarketplaceUnavailable)
	e.market.FailNext("PublishListing", unavailable, unavailable, unavailable)

	_, err = e.processor.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, e.market.CallCount("PublishListing"))

	got, err := e.store.Items().FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusFailed, got.Status)
	require.NotNil(t, got.FailureDetails)
	assert.Equal(t, listing.ReasonRetryExhausted, got.FailureDetails.Reason)
	require.NotEmpty(t, got.FailureDetails.Messages)
	assert.Contains(t, got.FailureDetails.Messages[0].Message, "connection reset")

	// finalize ran exactly once
	pushes := e.core.Calls("PushProductState")
	require.Len(t, pushes, 1)
	assert.Equal(t, listing.StatusFailed.String(), pushes[0].Args.(core.ProductState).State)

	tk := publishTask(t, e, item.ID)
	assert.Equal(t, task.StatusDone, tk.Status)
	assert.Equal(t, task.OutcomeFailed, tk.Outcome)
}

func TestProcessor_PublishLostReplyCreatesOneListing(t *testing.T) {
	tests := []struct {
		name string
		lost []error
	}{
		{name: "one lost reply", lost: []error{fmt.Errorf("%w: i/o timeout", marketplace.ErrMarketplaceUnavailable)}},
		{name: "two lost replies", lost: []error{
			fmt.Errorf("%w: i/o timeout", marketplace.ErrMarketplaceUnavailable),
			fmt.Errorf("%w: connection reset", marketplace.ErrMarketplaceUnavailable),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, fastPolicy())
			ctx := context.Background()

			item, err := e.publisher.RequestPublish(ctx, e.acct.ID, "p-1")
			require.NoError(t, err)
			e.market.LoseNextPublishReplies(tt.lost...)

			_, err = e.processor.Drain(ctx)
			require.NoError(t, err)

			assert.Equal(t, len(tt.lost)+1, e.market.CallCount("PublishListing"))
			assert.Equal(t, 1, e.market.ListingsCreated())

			got, err := e.store.Items().FindByID(ctx, item.ID)
			require.NoError(t, err)
			assert.Equal(t, listing.StatusPublished, got.Status)
			require.NotNil(t, got.ExternalMarketplaceID)
			assert.Equal(t, "110000000001", *got.ExternalMarketplaceID)
		})
	}
}

func TestProcessor_PublishBusinessRejection(t *testing.T) {
	e := newEnv(t, fastPolicy())
	ctx := context.Background()

	item, err := e.publisher.RequestPublish(ctx, e.acct.ID, "p-1")
	require.NoError(t, err)
	e.market.FailNext("PublishListing", &marketplace.BusinessError{
		Classification: "RequestError",
		Code:           "240",
		Messages:       []marketplace.Message{{Code: "240", Severity: "Error", Message: "category not leaf"}},
	})

	_, err = e.processor.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, e.market.CallCount("PublishListing"), "business errors are not retried")

	got, err := e.store.Items().FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusFailed, got.Status)
	require.NotNil(t, got.FailureDetails)
	assert.Equal(t, listing.ReasonMarketplaceFail, got.FailureDetails.Reason)
	assert.Equal(t, "RequestError", got.FailureDetails.Classification)

	assert.Equal(t, 1, e.core.CallCount("PushProductState"))
	tk := publishTask(t, e, item.ID)
	assert.Equal(t, task.OutcomeFailed, tk.Outcome)
	assert.Equal(t, task.StatusDone, tk.Status)
}

func TestProcessor_RetryWaitsForDelay(t *testing.T) {
	policy := fastPolicy()
	policy.Execute.BaseDelay = 10 * time.Second
	e := newEnv(t, policy)
	ctx := context.Background()

	var mu sync.Mutex
	now := time.Now().Add(time.Second)
	e.processor.WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})

	item, err := e.publisher.RequestPublish(ctx, e.acct.ID, "p-1")
	require.NoError(t, err)
	e.market.FailNext("PublishListing", marketplace.ErrMarketplaceUnavailable)

	_, err = e.processor.Drain(ctx)
	require.NoError(t, err)

	tk := publishTask(t, e, item.ID)
	assert.Equal(t, task.StatusPending, tk.Status)
	assert.Equal(t, task.StageExecute, tk.Stage)
	assert.Equal(t, 1, tk.Attempt)
	assert.WithinDuration(t, now.Add(10*time.Second), tk.NextRunAt, time.Millisecond)

	n, err := e.processor.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "task is not due yet")

	mu.Lock()
	now = now.Add(11 * time.Second)
	mu.Unlock()

	_, err = e.processor.Drain(ctx)
	require.NoError(t, err)

	got, err := e.store.Items().FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusPublished, got.Status)
	assert.Equal(t, 2, e.market.CallCount("PublishListing"))
}

func TestProcessor_FinalizeExhaustedIsDead(t *testing.T) {
	e := newEnv(t, fastPolicy())
	ctx := context.Background()

	item, err := e.publisher.RequestPublish(ctx, e.acct.ID, "p-1")
	require.NoError(t, err)
	down := fmt.Errorf("%w: 503 from core", core.ErrCoreUnavailable)
	e.core.FailNext("PushProductState", down, down, down)

	_, err = e.processor.Drain(ctx)
	require.NoError(t, err)

	tk := publishTask(t, e, item.ID)
	assert.Equal(t, task.StatusDead, tk.Status)
	assert.Equal(t, task.StageFinalize, tk.Stage)
	assert.Contains(t, tk.LastError, "503 from core")
	assert.Equal(t, 3, e.core.CallCount("PushProductState"))

	got, err := e.store.Items().FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusPublished, got.Status, "listing stays published")
}

func TestProcessor_UnknownKindGoesDead(t *testing.T) {
	e := newEnv(t, fastPolicy())
	ctx := context.Background()

	_, err := task.Schedule(ctx, e.store.Tasks(), task.Spec{Kind: "bogus", EntityID: uuid.New()})
	require.NoError(t, err)

	n, err := e.processor.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	counts, err := e.store.Tasks().CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[task.StatusDead])
}

// contextRecordingHandler records the execution context its stages ran under
type contextRecordingHandler struct {
	mu       sync.Mutex
	seen     []shared.ExecutionContext
	outcomes []task.Outcome
	failWith error
	panics   bool
}

func (h *contextRecordingHandler) Kind() task.Kind { return "context_recording" }

func (h *contextRecordingHandler) record(ctx context.Context) {
	exec, _ := shared.ExecutionFromContext(ctx)
	h.mu.Lock()
	h.seen = append(h.seen, exec)
	h.mu.Unlock()
}

func (h *contextRecordingHandler) Initialize(ctx context.Context, t *task.Task) error {
	h.record(ctx)
	return nil
}

func (h *contextRecordingHandler) Execute(ctx context.Context, t *task.Task) error {
	h.record(ctx)
	if h.panics {
		panic("boom")
	}
	return h.failWith
}

func (h *contextRecordingHandler) Finalize(ctx context.Context, t *task.Task, outcome task.Outcome) error {
	h.record(ctx)
	h.mu.Lock()
	h.outcomes = append(h.outcomes, outcome)
	h.mu.Unlock()
	return nil
}

func TestProcessor_RestoresExecutionContext(t *testing.T) {
	e := newEnv(t, fastPolicy())
	recorder := &contextRecordingHandler{}
	e.registry.Register(recorder)

	exec := shared.ExecutionContext{AccountID: e.acct.ID, UserID: uuid.New(), RequestID: "req-42"}
	enqueueCtx := shared.WithExecution(context.Background(), exec)
	_, err := task.Schedule(enqueueCtx, e.store.Tasks(), task.Spec{Kind: "context_recording", EntityID: uuid.New()})
	require.NoError(t, err)

	// the worker starts from a bare context
	_, err = e.processor.Drain(context.Background())
	require.NoError(t, err)

	require.Len(t, recorder.seen, 3)
	for _, got := range recorder.seen {
		assert.Equal(t, exec, got)
	}
	assert.Equal(t, []task.Outcome{task.OutcomeSucceeded}, recorder.outcomes)
}

func TestProcessor_PermanentErrorSkipsRetries(t *testing.T) {
	e := newEnv(t, fastPolicy())
	recorder := &contextRecordingHandler{failWith: task.Permanent(shared.ErrNotFound)}
	e.registry.Register(recorder)

	_, err := task.Schedule(context.Background(), e.store.Tasks(), task.Spec{Kind: "context_recording", EntityID: uuid.New()})
	require.NoError(t, err)
	_, err = e.processor.Drain(context.Background())
	require.NoError(t, err)

	// initialize, one execute, finalize
	assert.Len(t, recorder.seen, 3)
	assert.Equal(t, []task.Outcome{task.OutcomeFailed}, recorder.outcomes)
}

func TestProcessor_PanicIsAStageFailure(t *testing.T) {
	e := newEnv(t, fastPolicy())
	recorder := &contextRecordingHandler{panics: true}
	e.registry.Register(recorder)

	_, err := task.Schedule(context.Background(), e.store.Tasks(), task.Spec{Kind: "context_recording", EntityID: uuid.New()})
	require.NoError(t, err)
	_, err = e.processor.Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []task.Outcome{task.OutcomeFailed}, recorder.outcomes)
}

func TestProcessor_Cleanup(t *testing.T) {
	e := newEnv(t, fastPolicy())
	ctx := context.Background()
	e.registry.Register(&contextRecordingHandler{})

	_, err := task.Schedule(ctx, e.store.Tasks(), task.Spec{Kind: "context_recording", EntityID: uuid.New()})
	require.NoError(t, err)
	_, err = e.processor.Drain(ctx)
	require.NoError(t, err)

	e.processor.cleanup(ctx)
	counts, err := e.store.Tasks().CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[task.StatusDone], "recent tasks are kept")

	e.processor.WithClock(func() time.Time { return time.Now().Add(8 * 24 * time.Hour) })
	e.processor.cleanup(ctx)
	counts, err = e.store.Tasks().CountByStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts[task.StatusDone])
}

func TestProcessor_StartStop(t *testing.T) {
	e := newEnv(t, fastPolicy())
	recorder := &contextRecordingHandler{}
	e.registry.Register(recorder)
	p := NewProcessor(e.store.Tasks(), e.registry, ProcessorConfig{
		PollInterval: 10 * time.Millisecond,
		Policy:       fastPolicy(),
	}, nil, zap.NewNop())

	require.NoError(t, p.Start(context.Background()))
	_, err := task.Schedule(context.Background(), e.store.Tasks(), task.Spec{Kind: "context_recording", EntityID: uuid.New()})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		counts, err := e.store.Tasks().CountByStatus(context.Background())
		return err == nil && counts[task.StatusDone] == 1
	}, time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Stop(stopCtx))
}
