package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/application/reconcile"
	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

type executeFunc func(ctx context.Context, accountID uuid.UUID, kind delta.SyncKind) (*reconcile.RunReport, error)

type fakeExecutor struct {
	mu    sync.Mutex
	calls int
	fn    executeFunc
}

func (f *fakeExecutor) Execute(ctx context.Context, accountID uuid.UUID, kind delta.SyncKind) (*reconcile.RunReport, error) {
	f.mu.Lock()
	f.calls++
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return &reconcile.RunReport{AccountID: accountID, Kind: kind}, nil
	}
	return fn(ctx, accountID, kind)
}

func (f *fakeExecutor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// blockingExecutor parks every run until release is closed or the scheduler stops
func blockingExecutor(release <-chan struct{}) *fakeExecutor {
	return &fakeExecutor{fn: func(ctx context.Context, accountID uuid.UUID, kind delta.SyncKind) (*reconcile.RunReport, error) {
		select {
		case <-release:
			return &reconcile.RunReport{AccountID: accountID, Kind: kind}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
}

func testConfig() RunSchedulerConfig {
	cfg := DefaultRunSchedulerConfig()
	cfg.MaxConcurrentJobs = 2
	cfg.RetryDelay = 10 * time.Millisecond
	return cfg
}

func startScheduler(t *testing.T, cfg RunSchedulerConfig, exec RunExecutor) *RunScheduler {
	t.Helper()
	s, err := NewRunScheduler(cfg, exec, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func waitForHistory(t *testing.T, s *RunScheduler, n int) []*RunJob {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(s.GetJobHistory(0)) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return s.GetJobHistory(0)
}

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestRunSchedulerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RunSchedulerConfig)
		wantErr bool
	}{
		{"defaults", func(c *RunSchedulerConfig) {}, false},
		{"no workers", func(c *RunSchedulerConfig) { c.MaxConcurrentJobs = 0 }, true},
		{"no queue", func(c *RunSchedulerConfig) { c.QueueSize = 0 }, true},
		{"no timeout", func(c *RunSchedulerConfig) { c.JobTimeout = 0 }, true},
		{"negative retries", func(c *RunSchedulerConfig) { c.RetryAttempts = -1 }, true},
		{"zero retries allowed", func(c *RunSchedulerConfig) { c.RetryAttempts = 0 }, false},
		{"no history", func(c *RunSchedulerConfig) { c.HistorySize = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRunSchedulerConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// RunJob Tests
// ---------------------------------------------------------------------------

func TestRunJob_Lifecycle(t *testing.T) {
	job := NewRunJob(uuid.New(), delta.KindOrdersFromCore, 3)
	assert.Equal(t, RunJobStatusPending, job.Status)

	job.Start()
	assert.Equal(t, RunJobStatusRunning, job.Status)
	assert.NotNil(t, job.StartedAt)

	job.Complete(&reconcile.RunReport{Applied: 3})
	assert.Equal(t, RunJobStatusSuccess, job.Status)
	assert.NotNil(t, job.CompletedAt)

	job.Complete(&reconcile.RunReport{Applied: 3, Failed: 1})
	assert.Equal(t, RunJobStatusPartial, job.Status)
}

func TestRunJob_ShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		status     RunJobStatus
		retryCount int
		expected   bool
	}{
		{"Failed with retries available", RunJobStatusFailed, 0, true},
		{"Failed max retries reached", RunJobStatusFailed, 3, false},
		{"Skipped should not retry", RunJobStatusSkipped, 0, false},
		{"Partial should not retry", RunJobStatusPartial, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &RunJob{Status: tt.status, RetryCount: tt.retryCount, MaxRetries: 3}
			assert.Equal(t, tt.expected, job.ShouldRetry())
		})
	}
}

func TestRunJob_ScheduleRetry_ExponentialBackoff(t *testing.T) {
	job := NewRunJob(uuid.New(), delta.KindProductsFromCore, 10)

	assert.Equal(t, time.Minute, job.ScheduleRetry(time.Minute))
	assert.Equal(t, 2*time.Minute, job.ScheduleRetry(time.Minute))
	assert.Equal(t, 4*time.Minute, job.ScheduleRetry(time.Minute))
	assert.Equal(t, 3, job.RetryCount)
	assert.Equal(t, RunJobStatusPending, job.Status)

	for i := 0; i < 5; i++ {
		job.ScheduleRetry(time.Minute)
	}
	assert.Equal(t, 30*time.Minute, job.ScheduleRetry(time.Minute), "delay is capped")
}

// ---------------------------------------------------------------------------
// RunScheduler Tests
// ---------------------------------------------------------------------------

func TestRunScheduler_RejectsWhenStopped(t *testing.T) {
	s, err := NewRunScheduler(testConfig(), &fakeExecutor{}, zap.NewNop())
	require.NoError(t, err)

	_, err = s.Schedule(uuid.New(), delta.KindOrdersFromCore)
	assert.ErrorIs(t, err, ErrSchedulerNotRunning)
}

func TestRunScheduler_RejectsUnknownKind(t *testing.T) {
	s := startScheduler(t, testConfig(), &fakeExecutor{})

	_, err := s.Schedule(uuid.New(), delta.SyncKind("stock_from_core"))
	assert.ErrorIs(t, err, reconcile.ErrUnknownKind)
}

func TestRunScheduler_ExecutesJobs(t *testing.T) {
	exec := &fakeExecutor{}
	s := startScheduler(t, testConfig(), exec)
	accountID := uuid.New()

	_, err := s.Schedule(accountID, delta.KindProductsFromCore)
	require.NoError(t, err)
	_, err = s.Schedule(accountID, delta.KindOrdersFromCore)
	require.NoError(t, err)

	history := waitForHistory(t, s, 2)
	for _, job := range history {
		assert.Equal(t, RunJobStatusSuccess, job.Status)
		require.NotNil(t, job.Report)
	}
	assert.Len(t, s.GetJobHistoryByAccount(accountID, 10), 2)
	assert.Empty(t, s.GetJobHistoryByAccount(uuid.New(), 10))
}

func TestRunScheduler_RunInProgressIsSkipped(t *testing.T) {
	exec := &fakeExecutor{fn: func(ctx context.Context, accountID uuid.UUID, kind delta.SyncKind) (*reconcile.RunReport, error) {
		return nil, reconcile.ErrRunInProgress
	}}
	s := startScheduler(t, testConfig(), exec)

	_, err := s.Schedule(uuid.New(), delta.KindReturnsFromCore)
	require.NoError(t, err)

	history := waitForHistory(t, s, 1)
	assert.Equal(t, RunJobStatusSkipped, history[0].Status)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, exec.Calls(), "skipped runs are not retried")
}

func TestRunScheduler_RetriesFailedRuns(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	exec := &fakeExecutor{fn: func(ctx context.Context, accountID uuid.UUID, kind delta.SyncKind) (*reconcile.RunReport, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return nil, errors.New("core unavailable")
		}
		return &reconcile.RunReport{Applied: 1}, nil
	}}
	s := startScheduler(t, testConfig(), exec)

	job, err := s.Schedule(uuid.New(), delta.KindOrdersFromMarketplace)
	require.NoError(t, err)

	history := waitForHistory(t, s, 3)
	assert.Equal(t, RunJobStatusSuccess, history[0].Status)
	assert.Equal(t, 2, history[0].RetryCount)
	assert.Equal(t, RunJobStatusFailed, history[1].Status)
	assert.Equal(t, job.ID, history[2].ID)
}

func TestRunScheduler_GivesUpAfterRetries(t *testing.T) {
	exec := &fakeExecutor{fn: func(ctx context.Context, accountID uuid.UUID, kind delta.SyncKind) (*reconcile.RunReport, error) {
		return nil, errors.New("paginator failed")
	}}
	cfg := testConfig()
	cfg.RetryAttempts = 1
	s := startScheduler(t, cfg, exec)
	accountID := uuid.New()

	_, err := s.Schedule(accountID, delta.KindOrdersFromCore)
	require.NoError(t, err)

	waitForHistory(t, s, 2)
	assert.Eventually(t, func() bool {
		_, err := s.Schedule(accountID, delta.KindOrdersFromCore)
		return err == nil
	}, time.Second, 5*time.Millisecond, "pair is released once retries are exhausted")
	assert.GreaterOrEqual(t, exec.Calls(), 2)
}

func TestRunScheduler_DeduplicatesPendingPairs(t *testing.T) {
	release := make(chan struct{})
	exec := blockingExecutor(release)
	s := startScheduler(t, testConfig(), exec)
	accountID := uuid.New()

	_, err := s.Schedule(accountID, delta.KindProductsFromCore)
	require.NoError(t, err)
	_, err = s.Schedule(accountID, delta.KindProductsFromCore)
	assert.ErrorIs(t, err, ErrJobAlreadyQueued)

	_, err = s.Schedule(accountID, delta.KindOrdersFromCore)
	assert.NoError(t, err, "other kinds of the same account are independent")

	close(release)
	waitForHistory(t, s, 2)

	_, err = s.Schedule(accountID, delta.KindProductsFromCore)
	assert.NoError(t, err)
}

func TestRunScheduler_QueueFull(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	exec := blockingExecutor(release)
	cfg := testConfig()
	cfg.MaxConcurrentJobs = 1
	cfg.QueueSize = 1
	s := startScheduler(t, cfg, exec)

	_, err := s.Schedule(uuid.New(), delta.KindOrdersFromCore)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return exec.Calls() == 1 }, time.Second, 5*time.Millisecond)

	_, err = s.Schedule(uuid.New(), delta.KindOrdersFromCore)
	require.NoError(t, err)
	_, err = s.Schedule(uuid.New(), delta.KindOrdersFromCore)
	assert.ErrorIs(t, err, ErrJobQueueFull)
}

func TestRunScheduler_HistoryIsBounded(t *testing.T) {
	cfg := testConfig()
	cfg.HistorySize = 3
	s := startScheduler(t, cfg, &fakeExecutor{})

	for i := 0; i < 5; i++ {
		_, err := s.Schedule(uuid.New(), delta.KindOrdersFromCore)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return len(s.GetJobHistory(0)) == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, s.GetJobHistory(0), 3)
	assert.Len(t, s.GetJobHistory(2), 2)
}

// ---------------------------------------------------------------------------
// IntervalTrigger Tests
// ---------------------------------------------------------------------------

type fakeAccounts struct {
	accounts []account.Account
	err      error
}

func (f *fakeAccounts) ListActive(ctx context.Context) ([]account.Account, error) {
	return f.accounts, f.err
}

func twoAccounts() *fakeAccounts {
	return &fakeAccounts{accounts: []account.Account{
		*account.NewAccount("core-1", "seller-1", account.Settings{}),
		*account.NewAccount("core-2", "seller-2", account.Settings{}),
	}}
}

func TestIntervalTriggerConfig_Validate(t *testing.T) {
	cfg := DefaultIntervalTriggerConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Kinds = []delta.SyncKind{"bogus"}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultIntervalTriggerConfig()
	cfg.Interval = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestIntervalTrigger_TriggerNow(t *testing.T) {
	release := make(chan struct{})
	exec := blockingExecutor(release)
	s := startScheduler(t, testConfig(), exec)

	cfg := DefaultIntervalTriggerConfig()
	cfg.Kinds = []delta.SyncKind{delta.KindProductsFromCore, delta.KindOrdersFromCore}
	trigger, err := NewIntervalTrigger(cfg, s, twoAccounts(), zap.NewNop())
	require.NoError(t, err)

	first := trigger.TriggerNow(context.Background())
	assert.Equal(t, TriggerReport{Accounts: 2, Queued: 4}, first)

	second := trigger.TriggerNow(context.Background())
	assert.Equal(t, TriggerReport{Accounts: 2, Skipped: 4}, second, "pairs from the first round are still pending")

	close(release)
	waitForHistory(t, s, 4)
}

func TestIntervalTrigger_ListFailure(t *testing.T) {
	s := startScheduler(t, testConfig(), &fakeExecutor{})
	trigger, err := NewIntervalTrigger(DefaultIntervalTriggerConfig(), s, &fakeAccounts{err: errors.New("db down")}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, TriggerReport{}, trigger.TriggerNow(context.Background()))
}

func TestIntervalTrigger_StartRunsOnInterval(t *testing.T) {
	exec := &fakeExecutor{}
	s := startScheduler(t, testConfig(), exec)

	cfg := IntervalTriggerConfig{
		Interval:   20 * time.Millisecond,
		Kinds:      []delta.SyncKind{delta.KindOrdersFromMarketplace},
		RunOnStart: true,
	}
	trigger, err := NewIntervalTrigger(cfg, s, twoAccounts(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, trigger.Start(context.Background()))

	require.Eventually(t, func() bool { return exec.Calls() >= 4 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, trigger.Stop(ctx))
}
