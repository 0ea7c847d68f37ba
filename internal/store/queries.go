package store

import (
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/sells-group/domain-scout/internal/model"
)

// domainColumns is the scan order shared by both backends.
var domainColumns = []string{
	"domain", "availability",
	"memorability", "pronunciation", "visual_appeal", "brandability",
	"average_score", "raw_scoring",
	"price", "price_type", "pricing_data",
	"last_error", "created_at", "updated_at",
}

// rowScanner abstracts *sql.Rows and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDomain(row rowScanner) (*model.DomainRecord, error) {
	var (
		rec                               model.DomainRecord
		avail                             sql.NullString
		mem, pron, vis, brand, avg, price sql.NullFloat64
		raw, ptype, pdata, lastErr        sql.NullString
	)
	err := row.Scan(
		&rec.Domain, &avail,
		&mem, &pron, &vis, &brand,
		&avg, &raw,
		&price, &ptype, &pdata,
		&lastErr, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Availability = model.AvailabilityStatus(avail.String)
	if mem.Valid && pron.Valid && vis.Valid && brand.Valid {
		rec.Scores = &model.QualityScores{
			Memorability:  mem.Float64,
			Pronunciation: pron.Float64,
			VisualAppeal:  vis.Float64,
			Brandability:  brand.Float64,
		}
	}
	if avg.Valid {
		rec.AverageScore = &avg.Float64
	}
	rec.RawScoring = raw.String
	if price.Valid {
		rec.Price = &price.Float64
	}
	rec.PriceType = model.PriceType(ptype.String)
	rec.PricingData = pdata.String
	rec.LastError = lastErr.String
	return &rec, nil
}

// uncheckedQuery selects domains whose availability has not been resolved.
// Unknown and Error rows are both fair game on a later run.
func uncheckedQuery(b sq.StatementBuilderType, limit int) sq.SelectBuilder {
	q := b.Select("domain").From("domains").
		Where(sq.Eq{"availability": []string{
			string(model.AvailabilityUnknown), string(model.AvailabilityError),
		}}).
		OrderBy("domain")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q
}

// unscoredQuery selects available domains with no average score yet.
func unscoredQuery(b sq.StatementBuilderType, limit int) sq.SelectBuilder {
	q := b.Select("domain").From("domains").
		Where(sq.Eq{"availability": string(model.AvailabilityAvailable)}).
		Where(sq.Eq{"average_score": nil}).
		OrderBy("domain")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q
}

// pricingCandidatesQuery selects scored domains eligible for pricing.
func pricingCandidatesQuery(b sq.StatementBuilderType, q PricingQuery) sq.SelectBuilder {
	sel := b.Select("domain").From("domains").
		Where(sq.NotEq{"average_score": nil})
	if q.MinScore > 0 {
		sel = sel.Where(sq.GtOrEq{"average_score": q.MinScore})
	}
	if !q.ProcessAll {
		eligible := []string{"", string(model.PriceError)}
		if q.RetryFiltered {
			eligible = append(eligible, string(model.PriceFiltered))
		}
		sel = sel.Where(sq.Or{
			sq.Eq{"price_type": nil},
			sq.Eq{"price_type": eligible},
		})
	}
	if !q.IncludeTaken {
		sel = sel.Where(sq.NotEq{"availability": string(model.AvailabilityTaken)})
	}
	sel = sel.OrderBy(SortField(q.SortField) + " DESC")
	if q.Limit > 0 {
		sel = sel.Limit(uint64(q.Limit))
	}
	return sel
}

// listQuery builds the dashboard listing.
func listQuery(b sq.StatementBuilderType, f DomainFilter) sq.SelectBuilder {
	sel := b.Select(domainColumns...).From("domains")
	if f.MinScore > 0 {
		sel = sel.Where(sq.GtOrEq{"average_score": f.MinScore})
	}
	if f.TLD != "" {
		sel = sel.Where(sq.Like{"domain": "%." + f.TLD})
	}
	if f.Search != "" {
		sel = sel.Where(sq.Like{"domain": "%" + f.Search + "%"})
	}
	dir := " ASC"
	if f.SortDesc {
		dir = " DESC"
	}
	sel = sel.OrderBy(SortField(f.SortBy)+dir, "domain ASC")
	if f.Limit > 0 {
		sel = sel.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		sel = sel.Offset(uint64(f.Offset))
	}
	return sel
}

// topQuery ranks scored, non-taken domains by score then price.
func topQuery(b sq.StatementBuilderType, limit int) sq.SelectBuilder {
	sel := b.Select(domainColumns...).From("domains").
		Where(sq.NotEq{"average_score": nil}).
		Where(sq.NotEq{"availability": string(model.AvailabilityTaken)}).
		OrderBy("average_score DESC", "price ASC", "domain ASC")
	if limit > 0 {
		sel = sel.Limit(uint64(limit))
	}
	return sel
}

func nowUTC() time.Time { return time.Now().UTC() }
