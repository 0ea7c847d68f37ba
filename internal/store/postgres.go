package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/domain-scout/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS domains (
	domain        TEXT PRIMARY KEY,
	availability  TEXT NOT NULL DEFAULT 'Unknown',
	memorability  DOUBLE PRECISION,
	pronunciation DOUBLE PRECISION,
	visual_appeal DOUBLE PRECISION,
	brandability  DOUBLE PRECISION,
	average_score DOUBLE PRECISION,
	raw_scoring   TEXT,
	price         DOUBLE PRECISION,
	price_type    TEXT,
	pricing_data  TEXT,
	last_error    TEXT,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_domains_availability ON domains(availability);
CREATE INDEX IF NOT EXISTS idx_domains_average_score ON domains(average_score);
CREATE INDEX IF NOT EXISTS idx_domains_price_type ON domains(price_type);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          UUID PRIMARY KEY,
	stage       TEXT NOT NULL,
	config      JSONB,
	summary     JSONB,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);
`

// Pool is the subset of pgxpool.Pool the store needs. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore backs the pipeline with a Postgres pool for shared or
// larger deployments.
type PostgresStore struct {
	pool Pool
	sb   sq.StatementBuilderType
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects a pool for the given DSN and pings it.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "store: open postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping postgres")
	}
	zap.S().Debug("postgres store connected")
	return NewPostgres(pool), nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return eris.Wrap(err, "store: migrate postgres")
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SeedCandidates(ctx context.Context, domains []string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "store: begin seed")
	}
	defer tx.Rollback(ctx)

	var inserted int64
	now := nowUTC()
	for _, d := range domains {
		tag, err := tx.Exec(ctx, `
			INSERT INTO domains (domain, availability, created_at, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (domain) DO NOTHING`,
			model.Normalize(d), model.AvailabilityUnknown, now, now)
		if err != nil {
			return 0, eris.Wrapf(err, "store: seed %s", d)
		}
		inserted += tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "store: commit seed")
	}
	return inserted, nil
}

func (s *PostgresStore) ApplyAvailability(ctx context.Context, updates []AvailabilityUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "store: begin availability")
	}
	defer tx.Rollback(ctx)

	now := nowUTC()
	for _, u := range updates {
		if _, err := tx.Exec(ctx, `
			INSERT INTO domains (domain, availability, last_error, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (domain) DO UPDATE SET
				availability = excluded.availability,
				last_error   = excluded.last_error,
				updated_at   = excluded.updated_at`,
			model.Normalize(u.Domain), u.Status, nullIfEmpty(u.Err), now, now); err != nil {
			return eris.Wrapf(err, "store: availability %s", u.Domain)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "store: commit availability")
	}
	return nil
}

func (s *PostgresStore) ApplyScores(ctx context.Context, updates []ScoreUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "store: begin scores")
	}
	defer tx.Rollback(ctx)

	now := nowUTC()
	for _, u := range updates {
		key := model.Normalize(u.Domain)
		if u.Scores != nil {
			_, err = tx.Exec(ctx, `
				INSERT INTO domains (domain, availability, memorability, pronunciation,
					visual_appeal, brandability, average_score, raw_scoring,
					last_error, created_at, updated_at)
				VALUES ($1, 'Unknown', $2, $3, $4, $5, $6, $7, NULL, $8, $9)
				ON CONFLICT (domain) DO UPDATE SET
					memorability  = excluded.memorability,
					pronunciation = excluded.pronunciation,
					visual_appeal = excluded.visual_appeal,
					brandability  = excluded.brandability,
					average_score = excluded.average_score,
					raw_scoring   = excluded.raw_scoring,
					last_error    = NULL,
					updated_at    = excluded.updated_at`,
				key, u.Scores.Memorability, u.Scores.Pronunciation,
				u.Scores.VisualAppeal, u.Scores.Brandability,
				u.Scores.Average(), nullIfEmpty(u.Raw), now, now)
		} else {
			_, err = tx.Exec(ctx, `
				INSERT INTO domains (domain, availability, raw_scoring, last_error, created_at, updated_at)
				VALUES ($1, 'Unknown', $2, $3, $4, $5)
				ON CONFLICT (domain) DO UPDATE SET
					raw_scoring = excluded.raw_scoring,
					last_error  = excluded.last_error,
					updated_at  = excluded.updated_at`,
				key, nullIfEmpty(u.Raw), nullIfEmpty(u.Err), now, now)
		}
		if err != nil {
			return eris.Wrapf(err, "store: score %s", u.Domain)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "store: commit scores")
	}
	return nil
}

func (s *PostgresStore) ApplyPricing(ctx context.Context, updates []PricingUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "store: begin pricing")
	}
	defer tx.Rollback(ctx)

	now := nowUTC()
	for _, u := range updates {
		var price any
		if u.Price != nil {
			price = *u.Price
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO domains (domain, availability, price, price_type, pricing_data,
				last_error, created_at, updated_at)
			VALUES ($1, 'Unknown', $2, $3, $4, $5, $6, $7)
			ON CONFLICT (domain) DO UPDATE SET
				price        = excluded.price,
				price_type   = excluded.price_type,
				pricing_data = excluded.pricing_data,
				last_error   = excluded.last_error,
				updated_at   = excluded.updated_at`,
			model.Normalize(u.Domain), price, string(u.PriceType),
			nullIfEmpty(u.Diagnostic), nullIfEmpty(u.Err), now, now); err != nil {
			return eris.Wrapf(err, "store: pricing %s", u.Domain)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "store: commit pricing")
	}
	return nil
}

func (s *PostgresStore) UncheckedCandidates(ctx context.Context, limit int) ([]string, error) {
	return s.selectDomains(ctx, uncheckedQuery(s.sb, limit), "unchecked candidates")
}

func (s *PostgresStore) UnscoredAvailable(ctx context.Context, limit int) ([]string, error) {
	return s.selectDomains(ctx, unscoredQuery(s.sb, limit), "unscored available")
}

func (s *PostgresStore) UnpricedScored(ctx context.Context, q PricingQuery) ([]string, error) {
	return s.selectDomains(ctx, pricingCandidatesQuery(s.sb, q), "unpriced scored")
}

func (s *PostgresStore) selectDomains(ctx context.Context, q sq.SelectBuilder, op string) ([]string, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrapf(err, "store: build %s", op)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "store: query %s", op)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrapf(err, "store: scan %s", op)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetDomain(ctx context.Context, domain string) (*model.DomainRecord, error) {
	query, args, err := s.sb.Select(domainColumns...).From("domains").
		Where(sq.Eq{"domain": model.Normalize(domain)}).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "store: build get")
	}
	rec, err := scanDomain(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get %s", domain)
	}
	return rec, nil
}

func (s *PostgresStore) ListDomains(ctx context.Context, f DomainFilter) ([]model.DomainRecord, error) {
	return s.selectRecords(ctx, listQuery(s.sb, f), "list domains")
}

func (s *PostgresStore) TopDomains(ctx context.Context, limit int) ([]model.DomainRecord, error) {
	return s.selectRecords(ctx, topQuery(s.sb, limit), "top domains")
}

func (s *PostgresStore) selectRecords(ctx context.Context, q sq.SelectBuilder, op string) ([]model.DomainRecord, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrapf(err, "store: build %s", op)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "store: query %s", op)
	}
	defer rows.Close()

	var out []model.DomainRecord
	for rows.Next() {
		rec, err := scanDomain(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "store: scan %s", op)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByAvailability: map[string]int{}}

	rows, err := s.pool.Query(ctx,
		`SELECT availability, COUNT(*) FROM domains GROUP BY availability`)
	if err != nil {
		return nil, eris.Wrap(err, "store: stats availability")
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "store: scan availability stats")
		}
		stats.ByAvailability[status] = n
		stats.Total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: stats availability")
	}

	var mem, pron, vis, brand, avg float64
	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COALESCE(AVG(memorability), 0), COALESCE(AVG(pronunciation), 0),
			COALESCE(AVG(visual_appeal), 0), COALESCE(AVG(brandability), 0),
			COALESCE(AVG(average_score), 0)
		FROM domains WHERE average_score IS NOT NULL`).
		Scan(&stats.Scored, &mem, &pron, &vis, &brand, &avg); err != nil {
		return nil, eris.Wrap(err, "store: stats scores")
	}
	if stats.Scored > 0 {
		stats.ScoreAverages = map[string]float64{
			"memorability":  mem,
			"pronunciation": pron,
			"visual_appeal": vis,
			"brandability":  brand,
			"average_score": avg,
		}
	}

	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM domains WHERE last_error IS NOT NULL`).
		Scan(&stats.Errored); err != nil {
		return nil, eris.Wrap(err, "store: stats errors")
	}

	rows, err = s.pool.Query(ctx, `
		SELECT price_type, COUNT(*), AVG(price), MIN(price), MAX(price)
		FROM domains WHERE price_type IS NOT NULL
		GROUP BY price_type ORDER BY price_type`)
	if err != nil {
		return nil, eris.Wrap(err, "store: stats pricing")
	}
	for rows.Next() {
		var st PriceTypeStat
		var avgP, minP, maxP sql.NullFloat64
		if err := rows.Scan(&st.Type, &st.Count, &avgP, &minP, &maxP); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "store: scan pricing stats")
		}
		if avgP.Valid {
			st.AvgPrice, st.MinPrice, st.MaxPrice = &avgP.Float64, &minP.Float64, &maxP.Float64
		}
		stats.ByPriceType = append(stats.ByPriceType, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: stats pricing")
	}

	rows, err = s.pool.Query(ctx, `
		SELECT split_part(domain, '.', 2) AS tld, COUNT(*)
		FROM domains GROUP BY tld ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "store: stats tlds")
	}
	defer rows.Close()
	for rows.Next() {
		var tc TLDCount
		if err := rows.Scan(&tc.TLD, &tc.Count); err != nil {
			return nil, eris.Wrap(err, "store: scan tld stats")
		}
		stats.ByTLD = append(stats.ByTLD, tc)
	}
	return stats, rows.Err()
}

func (s *PostgresStore) CreateRun(ctx context.Context, stage string, config any) (string, error) {
	id := uuid.NewString()
	cfg, err := json.Marshal(config)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal run config")
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO pipeline_runs (id, stage, config, started_at)
		VALUES ($1, $2, $3, $4)`, id, stage, cfg, nowUTC()); err != nil {
		return "", eris.Wrap(err, "store: create run")
	}
	return id, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary model.RunSummary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "store: marshal run summary")
	}
	if _, err := s.pool.Exec(ctx, `
		UPDATE pipeline_runs SET summary = $1, finished_at = $2 WHERE id = $3`,
		body, nowUTC(), runID); err != nil {
		return eris.Wrap(err, "store: complete run")
	}
	return nil
}
