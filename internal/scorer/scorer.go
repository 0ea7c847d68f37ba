// Package scorer runs the quality-scoring stage: available domains are
// rated on four branding criteria by a language model and the parsed scores
// are committed batch by batch.
package scorer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/domain-scout/internal/batch"
	"github.com/sells-group/domain-scout/internal/model"
	"github.com/sells-group/domain-scout/internal/resilience"
	"github.com/sells-group/domain-scout/internal/store"
	"github.com/sells-group/domain-scout/pkg/anthropic"
)

const stageName = "score"

const promptTemplate = `You are a branding expert. Evaluate the domain %q based on the following four criteria:

Memorability: How easy is it to remember the domain?

Pronunciation: How easily can it be pronounced?

Visual Appeal: How attractive is the domain when seen as text?

Brandability: How well can the domain serve as a strong, unique brand identity?

Provide your response as a raw JSON object with exactly these keys: "memorability", "pronunciation", "visual_appeal", and "brandability". Each key should map to a number from 1 (poor) to 10 (excellent).

IMPORTANT: Return ONLY the JSON object without any markdown formatting, code blocks, explanations, or additional text.`

// Options configure the scoring calls and reporting.
type Options struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	// HighScoreThreshold is the average above which a domain is surfaced
	// as notable in the run summary.
	HighScoreThreshold float64
}

// result pairs the parsed scores with the raw reply for auditing.
type result struct {
	scores *model.QualityScores
	raw    string
}

// Scorer wires the model client and the store into the batch pipeline.
type Scorer struct {
	client anthropic.Client
	store  store.Store
	cfg    batch.Config
	opts   Options
}

// New creates a scorer.
func New(client anthropic.Client, st store.Store, cfg batch.Config, opts Options) *Scorer {
	if opts.HighScoreThreshold <= 0 {
		opts.HighScoreThreshold = 8.0
	}
	return &Scorer{client: client, store: st, cfg: cfg, opts: opts}
}

// Prompt returns the scoring prompt for one domain.
func Prompt(domain string) string {
	return fmt.Sprintf(promptTemplate, domain)
}

// Run scores up to limit available, unscored domains (0 = all).
func (s *Scorer) Run(ctx context.Context, limit int) (*batch.RunStats, error) {
	domains, err := s.store.UnscoredAvailable(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(domains) == 0 {
		zap.L().Info("no unscored available domains")
		return batch.New(stageName, s.cfg, s.worker, s).Run(ctx, nil)
	}

	runID, err := s.store.CreateRun(ctx, stageName, s.cfg)
	if err != nil {
		return nil, err
	}

	stats, err := batch.New(stageName, s.cfg, s.worker, s).Run(ctx, domains)
	if err != nil {
		return stats, err
	}

	if err := s.store.CompleteRun(context.WithoutCancel(ctx), runID, stats.Summary()); err != nil {
		zap.L().Warn("failed to record run summary", zap.String("run_id", runID), zap.Error(err))
	}
	return stats, nil
}

// worker makes one scoring call and parses the reply.
func (s *Scorer) worker(ctx context.Context, domain string) (result, error) {
	temp := s.opts.Temperature
	completion, err := s.client.Complete(ctx, anthropic.CompletionRequest{
		Model:       s.opts.Model,
		MaxTokens:   s.opts.MaxTokens,
		Prompt:      Prompt(domain),
		Temperature: &temp,
	})
	if err != nil {
		var se *anthropic.StatusError
		if errors.As(err, &se) {
			return result{}, &resilience.StageError{
				Kind: resilience.ClassifyHTTPStatus(se.Code),
				Err:  err,
			}
		}
		return result{}, err
	}
	completion.Usage.LogCost(s.opts.Model, stageName)

	scores, serr := ParseScores(completion.Text)
	if serr != nil {
		// The raw reply travels with the error so the reconciler can
		// persist it for debugging.
		return result{raw: completion.Text}, serr
	}
	return result{scores: scores, raw: completion.Text}, nil
}

// Reconcile commits one batch of scoring outcomes and surfaces notables.
func (s *Scorer) Reconcile(ctx context.Context, outcomes []batch.Outcome[result]) (batch.Tally, error) {
	updates := make([]store.ScoreUpdate, 0, len(outcomes))
	var tally batch.Tally
	for _, o := range outcomes {
		u := store.ScoreUpdate{Domain: o.Domain, Raw: o.Value.raw}
		if o.OK() {
			u.Scores = o.Value.scores
			if avg := o.Value.scores.Average(); avg >= s.opts.HighScoreThreshold {
				tally.Notables = append(tally.Notables, model.Notable{Domain: o.Domain, Score: avg})
			}
		} else {
			u.Err = fmt.Sprintf("%s: %s", o.Err.Kind, o.Err.Error())
		}
		updates = append(updates, u)
	}
	return tally, s.store.ApplyScores(ctx, updates)
}
