package batch

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/domain-scout/internal/resilience"
)

// Config holds every dispatcher tunable. The adaptive-control step sizes
// and thresholds are deliberately configuration, not constants.
type Config struct {
	// BatchSize is the number of domains dispatched per batch.
	BatchSize int

	// Concurrency is the starting size of the global in-flight semaphore,
	// adjusted between batches within [MinConcurrency, MaxConcurrency].
	Concurrency    int
	MinConcurrency int
	MaxConcurrency int

	// StepUp / StepDown are the adaptive concurrency adjustments applied
	// after clean and rate-limited batches respectively.
	StepUp   int
	StepDown int

	// RateLimitTolerance is the number of rate-limit-tagged outcomes in a
	// batch above which concurrency is stepped down.
	RateLimitTolerance int

	// SuccessFraction is the share of a batch that must succeed for the
	// batch to count as accepted (redispatch and streak threshold).
	SuccessFraction float64

	// BatchRetries is how many times a below-threshold batch is
	// redispatched before being accepted as-is. RedispatchMinDelay is
	// the floor for the pause before each redispatch.
	BatchRetries       int
	RedispatchMinDelay time.Duration

	// Retry configures the per-item retry loop.
	Retry resilience.RetryConfig

	// BaseDelay is the inter-batch pause and the backoff unit for
	// consecutive-failure delays.
	BaseDelay time.Duration

	// LongCooldown is the recovery pause taken when the failure streak
	// reaches MaxConsecutiveFailures; the streak resets afterward.
	LongCooldown           time.Duration
	MaxConsecutiveFailures int

	// MaxErrors stops the run early (gracefully) once the cumulative
	// error count reaches it. Zero means no cap.
	MaxErrors int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 20
	}
	if c.MinConcurrency <= 0 {
		c.MinConcurrency = 5
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 40
	}
	if c.StepUp <= 0 {
		c.StepUp = 2
	}
	if c.StepDown <= 0 {
		c.StepDown = 5
	}
	if c.RateLimitTolerance < 0 {
		c.RateLimitTolerance = 0
	}
	if c.SuccessFraction <= 0 || c.SuccessFraction > 1 {
		c.SuccessFraction = 0.5
	}
	if c.BatchRetries < 0 {
		c.BatchRetries = 0
	}
	if c.RedispatchMinDelay <= 0 {
		c.RedispatchMinDelay = 5 * time.Second
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 1 * time.Second
	}
	if c.LongCooldown <= 0 {
		c.LongCooldown = 60 * time.Second
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = 3
	}
	if c.Concurrency < c.MinConcurrency {
		c.Concurrency = c.MinConcurrency
	}
	if c.Concurrency > c.MaxConcurrency {
		c.Concurrency = c.MaxConcurrency
	}
	return c
}

// Dispatcher drives one full run of a stage over a candidate list.
type Dispatcher[T any] struct {
	stage  string
	cfg    Config
	worker WorkerFunc[T]
	rec    Reconciler[T]
}

// New creates a dispatcher for one stage run.
func New[T any](stage string, cfg Config, worker WorkerFunc[T], rec Reconciler[T]) *Dispatcher[T] {
	return &Dispatcher[T]{
		stage:  stage,
		cfg:    cfg.withDefaults(),
		worker: worker,
		rec:    rec,
	}
}

// Run partitions domains into batches and processes them in order. The
// context governs cooperative shutdown: cancellation is honored between
// batches and during sleeps, while the in-flight batch runs to completion
// on a non-cancelable child context so its results are always committed.
// No per-item failure and no failing batch ever aborts the run; only the
// configured error cap ends it early, and then gracefully.
func (d *Dispatcher[T]) Run(ctx context.Context, domains []string) (*RunStats, error) {
	cfg := d.cfg
	log := zap.L().With(zap.String("stage", d.stage))

	stats := newRunStats(d.stage)
	defer func() { stats.Duration = time.Since(stats.StartedAt) }()

	if len(domains) == 0 {
		return stats, nil
	}

	totalBatches := (len(domains) + cfg.BatchSize - 1) / cfg.BatchSize
	log.Info("dispatch starting",
		zap.Int("candidates", len(domains)),
		zap.Int("batches", totalBatches),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Int("concurrency", cfg.Concurrency),
	)

	streak := NewFailureStreak(cfg.BaseDelay, 30*time.Second)
	limit := cfg.Concurrency
	sem := semaphore.NewWeighted(int64(limit))

	// The batch itself must survive an interrupt so partial work is
	// committed, not discarded; only the pacing sleeps observe ctx.
	workCtx := context.WithoutCancel(ctx)

	for i := 0; i < len(domains); i += cfg.BatchSize {
		if ctx.Err() != nil {
			stats.Interrupted = true
			break
		}

		end := i + cfg.BatchSize
		if end > len(domains) {
			end = len(domains)
		}
		batchDomains := domains[i:end]
		batchNum := i/cfg.BatchSize + 1

		if wait := streak.PreBatchDelay(); wait > 0 {
			log.Warn("cooling down before batch",
				zap.Int("batch", batchNum),
				zap.Duration("delay", wait),
				zap.Int("consecutive_failures", streak.Count()),
			)
			if !sleepCtx(ctx, wait) {
				stats.Interrupted = true
				break
			}
		}

		outcomes := d.dispatch(workCtx, batchDomains, sem)
		needed := int(math.Ceil(cfg.SuccessFraction * float64(len(batchDomains))))

		// Redispatch the not-yet-succeeded items while the batch is below
		// the acceptance threshold and retry budget remains.
		for attempt := 1; attempt <= cfg.BatchRetries && countOK(outcomes) < needed; attempt++ {
			retryDelay := cfg.BaseDelay * (1 << (attempt - 1))
			if retryDelay < cfg.RedispatchMinDelay {
				retryDelay = cfg.RedispatchMinDelay
			}
			log.Warn("batch below success threshold, redispatching",
				zap.Int("batch", batchNum),
				zap.Int("attempt", attempt),
				zap.Int("succeeded", countOK(outcomes)),
				zap.Int("size", len(batchDomains)),
				zap.Duration("delay", retryDelay),
			)
			if !sleepCtx(ctx, retryDelay) {
				stats.Interrupted = true
				break
			}
			stats.Redispatches++
			redo := failedDomains(outcomes)
			retried := d.dispatch(workCtx, redo, sem)
			mergeOutcomes(outcomes, retried)
		}

		succeeded := countOK(outcomes)
		failed := len(outcomes) - succeeded

		// Commit the whole batch before anything else happens; errors in
		// the store are logged, counted, and do not stop the run.
		tally, err := d.rec.Reconcile(workCtx, outcomes)
		if err != nil {
			log.Error("batch reconcile failed", zap.Int("batch", batchNum), zap.Error(err))
		}
		stats.fold(succeeded, failed, countByKind(outcomes), tally)

		// An interrupt during a redispatch pause still commits the batch
		// above; stop before starting another one.
		if stats.Interrupted {
			break
		}

		rateLimited := countKind(outcomes, resilience.KindRateLimit)

		if succeeded >= needed {
			streak.RecordSuccess()
		} else {
			streak.RecordFailure()
		}

		// Adaptive concurrency: back off under rate-limit pressure, creep
		// up after clean batches.
		switch {
		case rateLimited > cfg.RateLimitTolerance:
			next := limit - cfg.StepDown
			if next < cfg.MinConcurrency {
				next = cfg.MinConcurrency
			}
			if next != limit {
				limit = next
				sem = semaphore.NewWeighted(int64(limit))
				log.Warn("rate limits detected, reducing concurrency", zap.Int("concurrency", limit))
			}
		case rateLimited == 0 && succeeded > 0 && limit < cfg.MaxConcurrency:
			next := limit + cfg.StepUp
			if next > cfg.MaxConcurrency {
				next = cfg.MaxConcurrency
			}
			limit = next
			sem = semaphore.NewWeighted(int64(limit))
		}

		log.Info("batch complete",
			zap.Int("batch", batchNum),
			zap.Int("total_batches", totalBatches),
			zap.Int("succeeded", succeeded),
			zap.Int("failed", failed),
			zap.Int("rate_limited", rateLimited),
			zap.Int("concurrency", limit),
		)

		if streak.Count() >= cfg.MaxConsecutiveFailures {
			log.Warn("too many consecutive failing batches, pausing",
				zap.Int("consecutive_failures", streak.Count()),
				zap.Duration("cooldown", cfg.LongCooldown),
			)
			if !sleepCtx(ctx, cfg.LongCooldown) {
				stats.Interrupted = true
				break
			}
			streak.Reset()
		}

		if cfg.MaxErrors > 0 && stats.Failed >= cfg.MaxErrors {
			log.Warn("error cap reached, stopping run",
				zap.Int("errors", stats.Failed),
				zap.Int("max_errors", cfg.MaxErrors),
			)
			stats.EarlyStop = true
			break
		}

		if end < len(domains) {
			if !sleepCtx(ctx, streak.InterBatchDelay()) {
				stats.Interrupted = true
				break
			}
		}
	}

	stats.Duration = time.Since(stats.StartedAt)
	log.Info("dispatch finished",
		zap.Int("processed", stats.Total),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
		zap.Bool("interrupted", stats.Interrupted),
		zap.Bool("early_stop", stats.EarlyStop),
	)
	return stats, nil
}

// dispatch fans out one batch, each item gated by the shared semaphore and
// wrapped in the per-item retry loop. It always returns one outcome per
// domain, in input order.
func (d *Dispatcher[T]) dispatch(ctx context.Context, domains []string, sem *semaphore.Weighted) []Outcome[T] {
	outcomes := make([]Outcome[T], len(domains))
	var wg sync.WaitGroup
	for i, dom := range domains {
		wg.Add(1)
		go func(i int, dom string) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				outcomes[i] = Outcome[T]{Domain: dom, Err: resilience.Classify(err)}
				return
			}
			defer sem.Release(1)

			attempts := 0
			val, serr := resilience.DoVal(ctx, d.cfg.Retry, func(ctx context.Context) (T, error) {
				attempts++
				return d.worker(ctx, dom)
			})
			outcomes[i] = Outcome[T]{Domain: dom, Value: val, Err: serr, Attempts: attempts}
		}(i, dom)
	}
	wg.Wait()
	return outcomes
}

// sleepCtx pauses for d, returning false if ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func countOK[T any](outcomes []Outcome[T]) int {
	n := 0
	for _, o := range outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

func countKind[T any](outcomes []Outcome[T], kind resilience.Kind) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil && o.Err.Kind == kind {
			n++
		}
	}
	return n
}

func countByKind[T any](outcomes []Outcome[T]) map[resilience.Kind]int {
	byKind := make(map[resilience.Kind]int)
	for _, o := range outcomes {
		if o.Err != nil {
			byKind[o.Err.Kind]++
		}
	}
	return byKind
}

func failedDomains[T any](outcomes []Outcome[T]) []string {
	var failed []string
	for _, o := range outcomes {
		if !o.OK() {
			failed = append(failed, o.Domain)
		}
	}
	return failed
}

// mergeOutcomes overwrites failed entries in dst with the retried outcomes,
// matched by domain.
func mergeOutcomes[T any](dst []Outcome[T], retried []Outcome[T]) {
	byDomain := make(map[string]Outcome[T], len(retried))
	for _, o := range retried {
		byDomain[o.Domain] = o
	}
	for i := range dst {
		if dst[i].OK() {
			continue
		}
		if o, ok := byDomain[dst[i].Domain]; ok {
			dst[i] = o
		}
	}
}
