// Package store persists domain records and run summaries. Two backends
// are provided: SQLite (default, local file) and Postgres.
package store

import (
	"context"

	"github.com/sells-group/domain-scout/internal/model"
)

// AvailabilityUpdate is one availability-stage outcome to persist.
type AvailabilityUpdate struct {
	Domain string
	Status model.AvailabilityStatus
	Err    string
}

// ScoreUpdate is one scoring-stage outcome to persist. Scores is nil for
// failed items; Raw carries the scorer's response either way so errors are
// inspectable without re-running.
type ScoreUpdate struct {
	Domain string
	Scores *model.QualityScores
	Raw    string
	Err    string
}

// PricingUpdate is one pricing-stage outcome to persist. Diagnostic is the
// JSON capture of the last API exchange.
type PricingUpdate struct {
	Domain     string
	PriceType  model.PriceType
	Price      *float64
	Diagnostic string
	Err        string
}

// PricingQuery selects pricing-stage candidates.
type PricingQuery struct {
	MinScore      float64 // 0 = no floor
	SortField     string  // validated against sortFields
	Limit         int     // 0 = no limit
	IncludeTaken  bool    // include rows already marked Taken
	RetryFiltered bool    // re-queue rows previously Filtered by the price ceiling
	ProcessAll    bool    // ignore completion and re-price everything scored
}

// DomainFilter selects and orders rows for the dashboard listing.
type DomainFilter struct {
	MinScore float64
	TLD      string
	Search   string
	SortBy   string // validated against sortFields
	SortDesc bool
	Limit    int
	Offset   int
}

// PriceTypeStat aggregates pricing outcomes for one price type.
type PriceTypeStat struct {
	Type     string   `json:"price_type"`
	Count    int      `json:"count"`
	AvgPrice *float64 `json:"avg_price,omitempty"`
	MinPrice *float64 `json:"min_price,omitempty"`
	MaxPrice *float64 `json:"max_price,omitempty"`
}

// TLDCount is the number of candidate rows under one TLD.
type TLDCount struct {
	TLD   string `json:"tld"`
	Count int    `json:"count"`
}

// Stats is the aggregate dashboard/status report.
type Stats struct {
	Total          int                `json:"total"`
	ByAvailability map[string]int     `json:"by_availability"`
	Scored         int                `json:"scored"`
	Errored        int                `json:"errored"`
	ScoreAverages  map[string]float64 `json:"score_averages,omitempty"`
	ByPriceType    []PriceTypeStat    `json:"price_stats,omitempty"`
	ByTLD          []TLDCount         `json:"tlds,omitempty"`
}

// Store is the persistence interface consumed by the pipeline stages and
// the dashboard. The pipeline only upserts; rows are never deleted.
type Store interface {
	// Candidate seeding and per-stage batch commits. Each Apply method
	// writes its whole batch in a single transaction and never touches
	// another stage's fields.
	SeedCandidates(ctx context.Context, domains []string) (int64, error)
	ApplyAvailability(ctx context.Context, updates []AvailabilityUpdate) error
	ApplyScores(ctx context.Context, updates []ScoreUpdate) error
	ApplyPricing(ctx context.Context, updates []PricingUpdate) error

	// Stage candidate queries; each returns only rows not yet complete
	// for that stage, so re-running is idempotent.
	UncheckedCandidates(ctx context.Context, limit int) ([]string, error)
	UnscoredAvailable(ctx context.Context, limit int) ([]string, error)
	UnpricedScored(ctx context.Context, q PricingQuery) ([]string, error)

	// Reads.
	GetDomain(ctx context.Context, domain string) (*model.DomainRecord, error)
	ListDomains(ctx context.Context, f DomainFilter) ([]model.DomainRecord, error)
	TopDomains(ctx context.Context, limit int) ([]model.DomainRecord, error)
	Stats(ctx context.Context) (*Stats, error)

	// Run log.
	CreateRun(ctx context.Context, stage string, config any) (string, error)
	CompleteRun(ctx context.Context, runID string, summary model.RunSummary) error

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}

// sortFields whitelists the columns callers may sort candidate and
// dashboard queries by.
var sortFields = map[string]bool{
	"domain":        true,
	"memorability":  true,
	"pronunciation": true,
	"visual_appeal": true,
	"brandability":  true,
	"average_score": true,
	"price":         true,
	"created_at":    true,
}

// SortField validates a requested sort column, falling back to
// average_score.
func SortField(requested string) string {
	if sortFields[requested] {
		return requested
	}
	return "average_score"
}
