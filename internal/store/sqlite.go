package store

import (
	"context"
	"database/sql"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/domain-scout/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS domains (
	domain        TEXT PRIMARY KEY,
	availability  TEXT NOT NULL DEFAULT 'Unknown',
	memorability  REAL,
	pronunciation REAL,
	visual_appeal REAL,
	brandability  REAL,
	average_score REAL,
	raw_scoring   TEXT,
	price         REAL,
	price_type    TEXT,
	pricing_data  TEXT,
	last_error    TEXT,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_domains_availability ON domains(availability);
CREATE INDEX IF NOT EXISTS idx_domains_average_score ON domains(average_score);
CREATE INDEX IF NOT EXISTS idx_domains_price_type ON domains(price_type);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY,
	stage       TEXT NOT NULL,
	config      TEXT,
	summary     TEXT,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);
`

// SQLiteStore is the default single-file backend.
type SQLiteStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies
// the WAL pragmas. Connections are capped at one writer; WAL keeps readers
// from blocking on the pipeline's batch commits.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "store: open sqlite")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "store: %s", pragma)
		}
	}
	zap.S().Debugw("sqlite store opened", "path", path)
	return &SQLiteStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return eris.Wrap(err, "store: migrate sqlite")
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// SeedCandidates inserts new candidate rows, silently skipping domains that
// already exist. Returns the number of rows actually inserted.
func (s *SQLiteStore) SeedCandidates(ctx context.Context, domains []string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "store: begin seed")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO domains (domain, availability, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(domain) DO NOTHING`)
	if err != nil {
		return 0, eris.Wrap(err, "store: prepare seed")
	}
	defer stmt.Close()

	var inserted int64
	now := nowUTC()
	for _, d := range domains {
		res, err := stmt.ExecContext(ctx, model.Normalize(d), model.AvailabilityUnknown, now, now)
		if err != nil {
			return 0, eris.Wrapf(err, "store: seed %s", d)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "store: commit seed")
	}
	return inserted, nil
}

// ApplyAvailability commits one batch of availability outcomes in a single
// transaction. Scoring and pricing columns are left untouched.
func (s *SQLiteStore) ApplyAvailability(ctx context.Context, updates []AvailabilityUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "store: begin availability")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO domains (domain, availability, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			availability = excluded.availability,
			last_error   = excluded.last_error,
			updated_at   = excluded.updated_at`)
	if err != nil {
		return eris.Wrap(err, "store: prepare availability")
	}
	defer stmt.Close()

	now := nowUTC()
	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, model.Normalize(u.Domain), u.Status, nullIfEmpty(u.Err), now, now); err != nil {
			return eris.Wrapf(err, "store: availability %s", u.Domain)
		}
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "store: commit availability")
	}
	return nil
}

// ApplyScores commits one batch of scoring outcomes. Failed items persist
// the raw response and error but leave the score columns alone, keeping the
// row eligible for a later run.
func (s *SQLiteStore) ApplyScores(ctx context.Context, updates []ScoreUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "store: begin scores")
	}
	defer tx.Rollback()

	okStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO domains (domain, availability, memorability, pronunciation,
			visual_appeal, brandability, average_score, raw_scoring,
			last_error, created_at, updated_at)
		VALUES (?, 'Unknown', ?, ?, ?, ?, ?, ?, NULL, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			memorability  = excluded.memorability,
			pronunciation = excluded.pronunciation,
			visual_appeal = excluded.visual_appeal,
			brandability  = excluded.brandability,
			average_score = excluded.average_score,
			raw_scoring   = excluded.raw_scoring,
			last_error    = NULL,
			updated_at    = excluded.updated_at`)
	if err != nil {
		return eris.Wrap(err, "store: prepare scores")
	}
	defer okStmt.Close()

	errStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO domains (domain, availability, raw_scoring, last_error, created_at, updated_at)
		VALUES (?, 'Unknown', ?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			raw_scoring = excluded.raw_scoring,
			last_error  = excluded.last_error,
			updated_at  = excluded.updated_at`)
	if err != nil {
		return eris.Wrap(err, "store: prepare score errors")
	}
	defer errStmt.Close()

	now := nowUTC()
	for _, u := range updates {
		key := model.Normalize(u.Domain)
		if u.Scores != nil {
			avg := u.Scores.Average()
			_, err = okStmt.ExecContext(ctx, key,
				u.Scores.Memorability, u.Scores.Pronunciation,
				u.Scores.VisualAppeal, u.Scores.Brandability,
				avg, nullIfEmpty(u.Raw), now, now)
		} else {
			_, err = errStmt.ExecContext(ctx, key, nullIfEmpty(u.Raw), nullIfEmpty(u.Err), now, now)
		}
		if err != nil {
			return eris.Wrapf(err, "store: score %s", u.Domain)
		}
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "store: commit scores")
	}
	return nil
}

// ApplyPricing commits one batch of pricing outcomes. Error outcomes record
// price_type Error plus diagnostics, which keeps the row retryable.
func (s *SQLiteStore) ApplyPricing(ctx context.Context, updates []PricingUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "store: begin pricing")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO domains (domain, availability, price, price_type, pricing_data,
			last_error, created_at, updated_at)
		VALUES (?, 'Unknown', ?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			price        = excluded.price,
			price_type   = excluded.price_type,
			pricing_data = excluded.pricing_data,
			last_error   = excluded.last_error,
			updated_at   = excluded.updated_at`)
	if err != nil {
		return eris.Wrap(err, "store: prepare pricing")
	}
	defer stmt.Close()

	now := nowUTC()
	for _, u := range updates {
		var price any
		if u.Price != nil {
			price = *u.Price
		}
		if _, err := stmt.ExecContext(ctx, model.Normalize(u.Domain),
			price, string(u.PriceType), nullIfEmpty(u.Diagnostic),
			nullIfEmpty(u.Err), now, now); err != nil {
			return eris.Wrapf(err, "store: pricing %s", u.Domain)
		}
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "store: commit pricing")
	}
	return nil
}

func (s *SQLiteStore) UncheckedCandidates(ctx context.Context, limit int) ([]string, error) {
	return s.selectDomains(ctx, uncheckedQuery(s.sb, limit), "unchecked candidates")
}

func (s *SQLiteStore) UnscoredAvailable(ctx context.Context, limit int) ([]string, error) {
	return s.selectDomains(ctx, unscoredQuery(s.sb, limit), "unscored available")
}

func (s *SQLiteStore) UnpricedScored(ctx context.Context, q PricingQuery) ([]string, error) {
	return s.selectDomains(ctx, pricingCandidatesQuery(s.sb, q), "unpriced scored")
}

func (s *SQLiteStore) selectDomains(ctx context.Context, q sq.SelectBuilder, op string) ([]string, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrapf(err, "store: build %s", op)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *SQLiteStore) GetDomain(ctx context.Context, domain string) (*model.DomainRecord, error) {
	query, args, err := s.sb.Select(domainColumns...).From("domains").
		Where(sq.Eq{"domain": model.Normalize(domain)}).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "store: build get")
	}
	rec, err := scanDomain(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get %s", domain)
	}
	return rec, nil
}

func (s *SQLiteStore) ListDomains(ctx context.Context, f DomainFilter) ([]model.DomainRecord, error) {
	return s.selectRecords(ctx, listQuery(s.sb, f), "list domains")
}

func (s *SQLiteStore) TopDomains(ctx context.Context, limit int) ([]model.DomainRecord, error) {
	return s.selectRecords(ctx, topQuery(s.sb, limit), "top domains")
}

func (s *SQLiteStore) selectRecords(ctx context.Context, q sq.SelectBuilder, op string) ([]model.DomainRecord, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrapf(err, "store: build %s", op)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByAvailability: map[string]int{}}

	rows, err := s.db.QueryContext(ctx,
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

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(AVG(memorability), 0), COALESCE(AVG(pronunciation), 0),
			COALESCE(AVG(visual_appeal), 0), COALESCE(AVG(brandability), 0),
			COALESCE(AVG(average_score), 0)
		FROM domains WHERE average_score IS NOT NULL`)
	var mem, pron, vis, brand, avg float64
	if err := row.Scan(&stats.Scored, &mem, &pron, &vis, &brand, &avg); err != nil {
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

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM domains WHERE last_error IS NOT NULL`).
		Scan(&stats.Errored); err != nil {
		return nil, eris.Wrap(err, "store: stats errors")
	}

	rows, err = s.db.QueryContext(ctx, `
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

	rows, err = s.db.QueryContext(ctx, `
		SELECT substr(domain, instr(domain, '.') + 1) AS tld, COUNT(*)
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

func (s *SQLiteStore) CreateRun(ctx context.Context, stage string, config any) (string, error) {
	id := uuid.NewString()
	cfg, err := json.Marshal(config)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal run config")
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, stage, config, started_at)
		VALUES (?, ?, ?, ?)`, id, stage, string(cfg), nowUTC()); err != nil {
		return "", eris.Wrap(err, "store: create run")
	}
	return id, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary model.RunSummary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "store: marshal run summary")
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_runs SET summary = ?, finished_at = ? WHERE id = ?`,
		string(body), nowUTC(), runID); err != nil {
		return eris.Wrap(err, "store: complete run")
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
