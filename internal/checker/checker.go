// Package checker runs the availability stage: it resolves registration
// status for unchecked candidates through the RDAP client and commits the
// outcomes batch by batch.
package checker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/domain-scout/internal/batch"
	"github.com/sells-group/domain-scout/internal/model"
	"github.com/sells-group/domain-scout/internal/resilience"
	"github.com/sells-group/domain-scout/internal/store"
	"github.com/sells-group/domain-scout/pkg/rdap"
)

const stageName = "check"

// Checker wires the RDAP client and the store into the batch pipeline.
type Checker struct {
	client rdap.Client
	store  store.Store
	cfg    batch.Config
}

// New creates a checker.
func New(client rdap.Client, st store.Store, cfg batch.Config) *Checker {
	return &Checker{client: client, store: st, cfg: cfg}
}

// Run processes up to limit unchecked candidates (0 = all) and returns the
// run statistics. The run is logged in the store's run table.
func (c *Checker) Run(ctx context.Context, limit int) (*batch.RunStats, error) {
	domains, err := c.store.UncheckedCandidates(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(domains) == 0 {
		zap.L().Info("no unchecked candidates")
		return batch.New(stageName, c.cfg, c.worker, c).Run(ctx, nil)
	}

	runID, err := c.store.CreateRun(ctx, stageName, c.cfg)
	if err != nil {
		return nil, err
	}

	stats, err := batch.New(stageName, c.cfg, c.worker, c).Run(ctx, domains)
	if err != nil {
		return stats, err
	}

	// Summaries are written even after an interrupt.
	if err := c.store.CompleteRun(context.WithoutCancel(ctx), runID, stats.Summary()); err != nil {
		zap.L().Warn("failed to record run summary", zap.String("run_id", runID), zap.Error(err))
	}
	return stats, nil
}

// worker makes exactly one lookup attempt; the dispatcher owns retries.
func (c *Checker) worker(ctx context.Context, domain string) (model.AvailabilityStatus, error) {
	res, err := c.client.Lookup(ctx, domain)
	if err != nil {
		var se *rdap.StatusError
		if errors.As(err, &se) {
			return model.AvailabilityError, &resilience.StageError{
				Kind: resilience.ClassifyHTTPStatus(se.Code),
				Err:  err,
			}
		}
		return model.AvailabilityError, err
	}

	switch res.Status {
	case rdap.StatusAvailable:
		return model.AvailabilityAvailable, nil
	case rdap.StatusTaken:
		return model.AvailabilityTaken, nil
	default:
		return model.AvailabilityUnknown, nil
	}
}

// Reconcile commits one batch of availability outcomes.
func (c *Checker) Reconcile(ctx context.Context, outcomes []batch.Outcome[model.AvailabilityStatus]) (batch.Tally, error) {
	updates := make([]store.AvailabilityUpdate, 0, len(outcomes))
	var tally batch.Tally
	for _, o := range outcomes {
		u := store.AvailabilityUpdate{Domain: o.Domain}
		if o.OK() {
			u.Status = o.Value
			if o.Value == model.AvailabilityTaken {
				tally.Taken++
			}
		} else {
			u.Status = model.AvailabilityError
			u.Err = fmt.Sprintf("%s: %s", o.Err.Kind, o.Err.Error())
		}
		updates = append(updates, u)
	}
	return tally, c.store.ApplyAvailability(ctx, updates)
}
