// Package pricer runs the pricing stage: scored domains are checked
// against the registrar for availability and premium status, standard
// registrations are priced per TLD through a cache, and premium domains
// above the configured ceiling are filtered out.
package pricer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/domain-scout/internal/batch"
	"github.com/sells-group/domain-scout/internal/cache"
	"github.com/sells-group/domain-scout/internal/model"
	"github.com/sells-group/domain-scout/internal/resilience"
	"github.com/sells-group/domain-scout/internal/store"
	"github.com/sells-group/domain-scout/pkg/registrar"
)

const stageName = "price"

// fallbackPrices are approximate first-year registration prices used when
// the registrar's pricing endpoint is unavailable.
var fallbackPrices = map[string]float64{
	"com": 10.98,
	"net": 11.98,
	"org": 11.98,
	"io":  32.98,
	"ai":  79.98,
	"co":  25.98,
	"me":  19.98,
	"us":  9.98,
	"to":  39.98,
	"xyz": 12.98,
}

const defaultFallbackPrice = 14.98

// FallbackPrice returns the static price for a TLD.
func FallbackPrice(tld string) float64 {
	if p, ok := fallbackPrices[strings.ToLower(tld)]; ok {
		return p
	}
	return defaultFallbackPrice
}

// Options configure candidate selection and pricing policy.
type Options struct {
	// MinScore is the average-score floor for pricing candidates.
	MinScore float64
	// SortField orders candidates (best first). Defaults to
	// average_score.
	SortField string
	// Limit caps the number of candidates (0 = all).
	Limit int
	// MaxPremiumPrice filters premium domains above this ceiling
	// (0 = no ceiling).
	MaxPremiumPrice float64
	// RetryFiltered re-queues rows previously filtered by the ceiling.
	RetryFiltered bool
	// IncludeTaken re-prices rows already known to be taken.
	IncludeTaken bool
	// ProcessAll ignores pricing completion and re-prices every scored
	// row.
	ProcessAll bool
	// TLDCacheTTL is how long a standard TLD price stays cached.
	TLDCacheTTL time.Duration
	// NotableThreshold is the score above which a priced domain is
	// surfaced in the run summary.
	NotableThreshold float64
}

// outcome carries one pricing verdict plus the raw exchange for auditing.
type outcome struct {
	priceType  model.PriceType
	price      *float64
	diagnostic string
}

// Pricer wires the registrar client, the price cache, and the store into
// the batch pipeline.
type Pricer struct {
	client registrar.Client
	store  store.Store
	prices cache.Cache
	cfg    batch.Config
	opts   Options
}

// New creates a pricer.
func New(client registrar.Client, st store.Store, prices cache.Cache, cfg batch.Config, opts Options) *Pricer {
	if opts.TLDCacheTTL <= 0 {
		opts.TLDCacheTTL = time.Hour
	}
	if opts.NotableThreshold <= 0 {
		opts.NotableThreshold = 7.0
	}
	return &Pricer{client: client, store: st, prices: prices, cfg: cfg, opts: opts}
}

// Run prices the eligible scored domains and returns the run statistics.
func (p *Pricer) Run(ctx context.Context) (*batch.RunStats, error) {
	domains, err := p.store.UnpricedScored(ctx, store.PricingQuery{
		MinScore:      p.opts.MinScore,
		SortField:     p.opts.SortField,
		Limit:         p.opts.Limit,
		IncludeTaken:  p.opts.IncludeTaken,
		RetryFiltered: p.opts.RetryFiltered,
		ProcessAll:    p.opts.ProcessAll,
	})
	if err != nil {
		return nil, err
	}
	if len(domains) == 0 {
		zap.L().Info("no domains need pricing")
		return batch.New(stageName, p.cfg, p.worker, p).Run(ctx, nil)
	}

	runID, err := p.store.CreateRun(ctx, stageName, p.cfg)
	if err != nil {
		return nil, err
	}

	stats, err := batch.New(stageName, p.cfg, p.worker, p).Run(ctx, domains)
	if err != nil {
		return stats, err
	}

	if err := p.store.CompleteRun(context.WithoutCancel(ctx), runID, stats.Summary()); err != nil {
		zap.L().Warn("failed to record run summary", zap.String("run_id", runID), zap.Error(err))
	}
	return stats, nil
}

// worker makes one registrar check and resolves the price.
func (p *Pricer) worker(ctx context.Context, domain string) (outcome, error) {
	results, err := p.client.Check(ctx, []string{domain})
	if err != nil {
		return outcome{}, classifyRegistrarError(err)
	}
	if len(results) == 0 {
		return outcome{}, &resilience.StageError{
			Kind: resilience.KindParse,
			Err:  fmt.Errorf("pricer: empty check response for %s", domain),
		}
	}

	res := results[0]
	diag, _ := json.Marshal(res)

	switch {
	case !res.Available:
		return outcome{priceType: model.PriceTaken, diagnostic: string(diag)}, nil
	case res.IsPremium:
		price := 0.0
		if res.PremiumPrice != nil {
			price = *res.PremiumPrice
		}
		if p.opts.MaxPremiumPrice > 0 && price > p.opts.MaxPremiumPrice {
			return outcome{priceType: model.PriceFiltered, price: &price, diagnostic: string(diag)}, nil
		}
		return outcome{priceType: model.PricePremium, price: &price, diagnostic: string(diag)}, nil
	default:
		price := p.standardPrice(ctx, model.TLD(domain))
		return outcome{priceType: model.PriceStandard, price: &price, diagnostic: string(diag)}, nil
	}
}

// standardPrice resolves a TLD's registration price through the cache,
// asking the registrar on a miss and falling back to the static table when
// the pricing endpoint fails. Fallback prices are not cached, so a later
// batch gets another chance at the live price.
func (p *Pricer) standardPrice(ctx context.Context, tld string) float64 {
	key := "tldprice:" + tld
	if v, ok, err := p.prices.Get(ctx, key); err == nil && ok {
		if price, err := strconv.ParseFloat(v, 64); err == nil {
			return price
		}
	}

	price, err := p.client.TLDPrice(ctx, tld)
	if err != nil {
		price = FallbackPrice(tld)
		zap.L().Warn("tld pricing lookup failed, using fallback",
			zap.String("tld", tld),
			zap.Float64("fallback", price),
			zap.Error(err),
		)
		return price
	}

	if err := p.prices.Set(ctx, key, strconv.FormatFloat(price, 'f', -1, 64), p.opts.TLDCacheTTL); err != nil {
		zap.L().Warn("tld price cache write failed", zap.String("tld", tld), zap.Error(err))
	}
	return price
}

// Reconcile commits one batch of pricing outcomes.
func (p *Pricer) Reconcile(ctx context.Context, outcomes []batch.Outcome[outcome]) (batch.Tally, error) {
	updates := make([]store.PricingUpdate, 0, len(outcomes))
	var tally batch.Tally
	for _, o := range outcomes {
		u := store.PricingUpdate{Domain: o.Domain}
		if o.OK() {
			u.PriceType = o.Value.priceType
			u.Price = o.Value.price
			u.Diagnostic = o.Value.diagnostic
			switch o.Value.priceType {
			case model.PriceTaken:
				tally.Taken++
			case model.PricePremium:
				tally.Premium++
			case model.PriceStandard:
				tally.Standard++
			case model.PriceFiltered:
				tally.Filtered++
			}
			if n, ok := p.notable(ctx, o); ok {
				tally.Notables = append(tally.Notables, n)
			}
		} else {
			u.PriceType = model.PriceError
			u.Diagnostic = o.Value.diagnostic
			u.Err = fmt.Sprintf("%s: %s", o.Err.Kind, o.Err.Error())
		}
		updates = append(updates, u)
	}
	return tally, p.store.ApplyPricing(ctx, updates)
}

// notable checks whether a successfully priced domain clears the score
// threshold for the run summary.
func (p *Pricer) notable(ctx context.Context, o batch.Outcome[outcome]) (model.Notable, bool) {
	if o.Value.priceType != model.PricePremium && o.Value.priceType != model.PriceStandard {
		return model.Notable{}, false
	}
	rec, err := p.store.GetDomain(ctx, o.Domain)
	if err != nil || rec == nil || rec.AverageScore == nil {
		return model.Notable{}, false
	}
	if *rec.AverageScore < p.opts.NotableThreshold {
		return model.Notable{}, false
	}
	return model.Notable{
		Domain:    o.Domain,
		Score:     *rec.AverageScore,
		PriceType: o.Value.priceType,
		Price:     o.Value.price,
	}, true
}

// classifyRegistrarError maps registrar failures onto retry kinds. API
// errors arrive with status OK at the HTTP layer, so the message is the
// only signal.
func classifyRegistrarError(err error) *resilience.StageError {
	var apiErr *registrar.APIError
	if errors.As(err, &apiErr) {
		msg := strings.ToLower(apiErr.Message)
		switch {
		case strings.Contains(msg, "too many requests"):
			return &resilience.StageError{Kind: resilience.KindRateLimit, Err: err}
		case strings.Contains(msg, "api key") || strings.Contains(msg, "not enabled") ||
			strings.Contains(msg, "ip is not in the whitelist"):
			return &resilience.StageError{Kind: resilience.KindAuth, Err: err}
		default:
			return &resilience.StageError{Kind: resilience.KindServer, Err: err}
		}
	}
	var statusErr *registrar.StatusError
	if errors.As(err, &statusErr) {
		return &resilience.StageError{Kind: resilience.ClassifyHTTPStatus(statusErr.Code), Err: err}
	}
	return resilience.Classify(err)
}
