package task

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTask(t *testing.T) *Task {
	t.Helper()
	exec := shared.ExecutionContext{AccountID: uuid.New(), UserID: uuid.New(), RequestID: "req-1"}
	tk, err := New(exec, Spec{Kind: KindPublish, EntityType: EntityItem, EntityID: uuid.New(), IdempotencyKey: "k", Payload: MarketplaceEventPayload{Event: "X"}})
	require.NoError(t, err)
	return tk
}

func TestNew(t *testing.T) {
	tk := newTestTask(t)
	assert.Equal(t, StageInitialize, tk.Stage)
	assert.Equal(t, StatusPending, tk.Status)
	assert.Equal(t, OutcomeNone, tk.Outcome)
	require.NotNil(t, tk.IdempotencyKey)
	assert.Equal(t, "k", *tk.IdempotencyKey)
	assert.Equal(t, "req-1", tk.Execution().RequestID)

	var p MarketplaceEventPayload
	require.NoError(t, tk.DecodePayload(&p))
	assert.Equal(t, "X", p.Event)

	_, err := New(shared.ExecutionContext{}, Spec{})
	assert.Error(t, err)
}

func TestStagePolicy_Delay(t *testing.T) {
	p := StagePolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4))
	assert.Equal(t, 5*time.Second, p.Delay(64))
}

func TestTask_HappyChain(t *testing.T) {
	tk := newTestTask(t)
	now := time.Now()
	tk.Claim(now, time.Minute)
	assert.Equal(t, StatusProcessing, tk.Status)

	tk.CompleteStage(now)
	assert.Equal(t, StageExecute, tk.Stage)
	tk.CompleteStage(now)
	assert.Equal(t, StageFinalize, tk.Stage)
	assert.Equal(t, OutcomeSucceeded, tk.Outcome)
	tk.CompleteStage(now)
	assert.Equal(t, StatusDone, tk.Status)
	assert.True(t, tk.IsFinished())
}

func TestTask_FailStage(t *testing.T) {
	policy := StagePolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute}
	now := time.Now()

	t.Run("transient retries then escalates to finalize", func(t *testing.T) {
		tk := newTestTask(t)
		tk.CompleteStage(now)

		assert.Equal(t, FailureRetry, tk.FailStage(errors.New("boom"), policy, now))
		assert.Equal(t, now.Add(time.Second), tk.NextRunAt)
		assert.Equal(t, FailureRetry, tk.FailStage(errors.New("boom"), policy, now))
		assert.Equal(t, now.Add(2*time.Second), tk.NextRunAt)
		assert.Equal(t, FailureEscalated, tk.FailStage(errors.New("boom"), policy, now))

		assert.Equal(t, StageFinalize, tk.Stage)
		assert.Equal(t, OutcomeFailed, tk.Outcome)
		assert.Equal(t, 0, tk.Attempt)
		assert.Equal(t, StatusPending, tk.Status)
	})

	t.Run("permanent skips remaining attempts", func(t *testing.T) {
		tk := newTestTask(t)
		res := tk.FailStage(Permanent(errors.New("rejected")), policy, now)
		assert.Equal(t, FailureEscalated, res)
		assert.Equal(t, OutcomeFailed, tk.Outcome)
	})

	t.Run("finalize exhaustion is dead", func(t *testing.T) {
		tk := newTestTask(t)
		tk.Stage = StageFinalize
		for i := 0; i < 2; i++ {
			assert.Equal(t, FailureRetry, tk.FailStage(errors.New("x"), policy, now))
		}
		assert.Equal(t, FailureDead, tk.FailStage(errors.New("x"), policy, now))
		assert.Equal(t, StatusDead, tk.Status)
		assert.True(t, tk.IsFinished())
	})
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))
	base := errors.New("base")
	p := Permanent(base)
	assert.True(t, IsPermanent(p))
	assert.True(t, IsPermanent(fmt.Errorf("wrapped: %w", p)))
	assert.ErrorIs(t, p, base)
	assert.False(t, IsPermanent(base))
	assert.Same(t, p, Permanent(p))
}
