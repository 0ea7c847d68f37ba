package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/domain-scout/internal/resilience"
)

// recordingReconciler captures every reconciled batch.
type recordingReconciler struct {
	mu      sync.Mutex
	batches [][]Outcome[string]
}

func (r *recordingReconciler) Reconcile(_ context.Context, outcomes []Outcome[string]) (Tally, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make([]Outcome[string], len(outcomes))
	copy(copied, outcomes)
	r.batches = append(r.batches, copied)
	return Tally{}, nil
}

func (r *recordingReconciler) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func testConfig() Config {
	return Config{
		BatchSize:          10,
		BaseDelay:          time.Millisecond,
		RedispatchMinDelay: time.Millisecond,
		Retry: resilience.RetryConfig{
			MaxAttempts: 1,
			BaseDelay:   time.Millisecond,
			Jitter:      time.Millisecond,
		},
	}
}

func domains(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("d%03d.io", i)
	}
	return out
}

func TestRunAllSucceed(t *testing.T) {
	rec := &recordingReconciler{}
	worker := func(_ context.Context, d string) (string, error) { return d, nil }

	cfg := testConfig()
	cfg.BatchSize = 4
	stats, err := New("test", cfg, worker, rec).Run(context.Background(), domains(10))
	require.NoError(t, err)

	assert.Equal(t, 10, stats.Total)
	assert.Equal(t, 10, stats.Succeeded)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 3, stats.Batches)
	assert.Len(t, rec.batches, 3)
	assert.Equal(t, 10, rec.total())
	assert.False(t, stats.Interrupted)
	assert.False(t, stats.EarlyStop)
}

func TestRunEmptyInput(t *testing.T) {
	rec := &recordingReconciler{}
	worker := func(_ context.Context, d string) (string, error) { return d, nil }

	stats, err := New("test", testConfig(), worker, rec).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.Empty(t, rec.batches)
}

func TestRunPartialFailureIsolation(t *testing.T) {
	rec := &recordingReconciler{}
	worker := func(_ context.Context, d string) (string, error) {
		if d == "d001.io" || d == "d004.io" || d == "d007.io" {
			return "", &resilience.StageError{Kind: resilience.KindServer, Err: fmt.Errorf("boom")}
		}
		return d, nil
	}

	stats, err := New("test", testConfig(), worker, rec).Run(context.Background(), domains(10))
	require.NoError(t, err)

	assert.Equal(t, 10, stats.Total)
	assert.Equal(t, 7, stats.Succeeded)
	assert.Equal(t, 3, stats.Failed)
	assert.Equal(t, 3, stats.ErrorsByKind[resilience.KindServer])

	// Every item reaches the reconciler exactly once, failures included.
	require.Len(t, rec.batches, 1)
	assert.Len(t, rec.batches[0], 10)
}

func TestRunBoundsConcurrency(t *testing.T) {
	var current, peak atomic.Int64
	worker := func(_ context.Context, d string) (string, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		current.Add(-1)
		return d, nil
	}

	cfg := testConfig()
	cfg.BatchSize = 40
	cfg.Concurrency, cfg.MinConcurrency, cfg.MaxConcurrency = 4, 4, 4
	_, err := New("test", cfg, worker, &recordingReconciler{}).Run(context.Background(), domains(40))
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int64(4))
}

func TestRunRedispatchesFailedItems(t *testing.T) {
	var attempts sync.Map
	worker := func(_ context.Context, d string) (string, error) {
		n, _ := attempts.LoadOrStore(d, new(atomic.Int64))
		// Most of the batch fails on the first pass, succeeds on retry.
		if d != "d000.io" && n.(*atomic.Int64).Add(1) == 1 {
			return "", &resilience.StageError{Kind: resilience.KindTimeout, Err: fmt.Errorf("slow")}
		}
		return d, nil
	}

	rec := &recordingReconciler{}
	cfg := testConfig()
	cfg.BatchRetries = 2
	stats, err := New("test", cfg, worker, rec).Run(context.Background(), domains(10))
	require.NoError(t, err)

	assert.Equal(t, 10, stats.Succeeded)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 1, stats.Redispatches)

	// The reconciler still sees one commit for the batch, with the
	// retried outcomes merged in.
	require.Len(t, rec.batches, 1)
	assert.Len(t, rec.batches[0], 10)
	for _, o := range rec.batches[0] {
		assert.True(t, o.OK(), o.Domain)
	}
}

func TestRunStopsAtErrorCap(t *testing.T) {
	rec := &recordingReconciler{}
	worker := func(_ context.Context, d string) (string, error) {
		return "", &resilience.StageError{Kind: resilience.KindServer, Err: fmt.Errorf("down")}
	}

	cfg := testConfig()
	cfg.BatchSize = 5
	cfg.MaxErrors = 5
	cfg.SuccessFraction = 0.5
	stats, err := New("test", cfg, worker, rec).Run(context.Background(), domains(20))
	require.NoError(t, err)

	assert.True(t, stats.EarlyStop)
	assert.Equal(t, 5, stats.Total)
	assert.Len(t, rec.batches, 1)
}

func TestRunInterruptCommitsInFlightBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recordingReconciler{}
	worker := func(_ context.Context, d string) (string, error) {
		// An interrupt arriving mid-batch must not lose the batch.
		cancel()
		return d, nil
	}

	cfg := testConfig()
	cfg.BatchSize = 5
	stats, err := New("test", cfg, worker, rec).Run(ctx, domains(15))
	require.NoError(t, err)

	assert.True(t, stats.Interrupted)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 5, stats.Succeeded)
	require.Len(t, rec.batches, 1)
	assert.Len(t, rec.batches[0], 5)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	worker := func(_ context.Context, d string) (string, error) { return d, nil }
	stats, err := New("test", testConfig(), worker, &recordingReconciler{}).Run(ctx, domains(10))
	require.NoError(t, err)
	assert.True(t, stats.Interrupted)
	assert.Equal(t, 0, stats.Total)
}

func TestRunStepsDownOnRateLimits(t *testing.T) {
	var batchNo atomic.Int64
	var current, peak atomic.Int64
	worker := func(_ context.Context, d string) (string, error) {
		if batchNo.Load() == 0 {
			return "", &resilience.StageError{Kind: resilience.KindRateLimit, Err: fmt.Errorf("429")}
		}
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		current.Add(-1)
		return d, nil
	}

	rec := ReconcilerFunc[string](func(_ context.Context, outcomes []Outcome[string]) (Tally, error) {
		batchNo.Add(1)
		return Tally{}, nil
	})

	cfg := testConfig()
	cfg.BatchSize = 20
	cfg.Concurrency, cfg.MinConcurrency, cfg.MaxConcurrency = 8, 1, 8
	cfg.StepDown = 5
	cfg.RateLimitTolerance = 0
	cfg.SuccessFraction = 0.01 // no redispatch churn for the failing batch

	stats, err := New("test", cfg, worker, rec).Run(context.Background(), domains(40))
	require.NoError(t, err)
	assert.Equal(t, 20, stats.ErrorsByKind[resilience.KindRateLimit])

	// After the rate-limited first batch, concurrency drops from 8 to 3.
	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.Positive(t, peak.Load())
}
