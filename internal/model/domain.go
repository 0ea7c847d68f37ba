// Package model defines the core domain types shared across the pipeline.
package model

import (
	"strings"
	"time"
)

// AvailabilityStatus is the registration state of a candidate domain as
// reported by the lookup protocol.
type AvailabilityStatus string

const (
	AvailabilityUnknown   AvailabilityStatus = "Unknown"
	AvailabilityAvailable AvailabilityStatus = "Available"
	AvailabilityTaken     AvailabilityStatus = "Taken"
	AvailabilityError     AvailabilityStatus = "Error"
)

// PriceType classifies the pricing outcome for a domain.
type PriceType string

const (
	PriceStandard PriceType = "Standard"
	PricePremium  PriceType = "Premium"
	PriceTaken    PriceType = "Taken"
	PriceFiltered PriceType = "Filtered"
	PriceError    PriceType = "Error"
)

// QualityScores holds the four brand-quality sub-scores, each in [1,10].
type QualityScores struct {
	Memorability  float64 `json:"memorability"`
	Pronunciation float64 `json:"pronunciation"`
	VisualAppeal  float64 `json:"visual_appeal"`
	Brandability  float64 `json:"brandability"`
}

// Average returns the unweighted mean of the four sub-scores.
func (q QualityScores) Average() float64 {
	return (q.Memorability + q.Pronunciation + q.VisualAppeal + q.Brandability) / 4
}

// Valid reports whether every sub-score lies in [1,10].
func (q QualityScores) Valid() bool {
	for _, v := range []float64{q.Memorability, q.Pronunciation, q.VisualAppeal, q.Brandability} {
		if v < 1 || v > 10 {
			return false
		}
	}
	return true
}

// DomainRecord is one row per candidate domain. The domain string is the
// unique key, normalized to lowercase, and is never deleted by the pipeline.
type DomainRecord struct {
	Domain       string             `json:"domain"`
	Availability AvailabilityStatus `json:"availability"`

	Scores       *QualityScores `json:"scores,omitempty"`
	AverageScore *float64       `json:"average_score,omitempty"`
	RawScoring   string         `json:"raw_scoring,omitempty"`

	Price       *float64  `json:"price,omitempty"`
	PriceType   PriceType `json:"price_type,omitempty"`
	PricingData string    `json:"pricing_data,omitempty"`

	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scored reports whether the scoring stage has completed for this record.
// An error alone does not count: only a recorded average marks completion,
// so failed rows stay eligible for retry.
func (r *DomainRecord) Scored() bool {
	return r.AverageScore != nil
}

// Priced reports whether the pricing stage has completed for this record.
// Rows with PriceType Error remain eligible for retry on later runs.
func (r *DomainRecord) Priced() bool {
	return r.PriceType != "" && r.PriceType != PriceError
}

// Normalize lowercases and trims a domain for use as a store key.
func Normalize(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

// TLD returns the top-level-domain suffix of a domain, or "" if the
// domain has no dot.
func TLD(domain string) string {
	idx := strings.LastIndex(domain, ".")
	if idx < 0 || idx == len(domain)-1 {
		return ""
	}
	return strings.ToLower(domain[idx+1:])
}

// Notable is a successfully processed domain that met the reporting
// threshold. Observational only: it never affects control flow.
type Notable struct {
	Domain    string    `json:"domain"`
	Score     float64   `json:"score"`
	PriceType PriceType `json:"price_type,omitempty"`
	Price     *float64  `json:"price,omitempty"`
}

// RunSummary is the persisted end-of-run report for one stage run.
type RunSummary struct {
	Stage        string         `json:"stage"`
	Total        int            `json:"total"`
	Succeeded    int            `json:"succeeded"`
	Failed       int            `json:"failed"`
	ErrorsByKind map[string]int `json:"errors_by_kind,omitempty"`
	Taken        int            `json:"taken,omitempty"`
	Premium      int            `json:"premium,omitempty"`
	Standard     int            `json:"standard,omitempty"`
	Filtered     int            `json:"filtered,omitempty"`
	Notables     []Notable      `json:"notables,omitempty"`
	Duration     time.Duration  `json:"duration"`
}
