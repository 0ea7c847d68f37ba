package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/domain-scout/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr(f float64) *float64 { return &f }

func TestSeedCandidatesIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.SeedCandidates(ctx, []string{"abc.io", "XYZ.IO", "qrs.me"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	// Re-seeding the same candidates inserts nothing new.
	n, err = s.SeedCandidates(ctx, []string{"abc.io", "xyz.io", "new.co"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// Keys are lowercased.
	rec, err := s.GetDomain(ctx, "xyz.io")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "xyz.io", rec.Domain)
	assert.Equal(t, model.AvailabilityUnknown, rec.Availability)
}

func TestApplyAvailability(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SeedCandidates(ctx, []string{"abc.io", "def.io", "ghi.io"})
	require.NoError(t, err)

	err = s.ApplyAvailability(ctx, []AvailabilityUpdate{
		{Domain: "abc.io", Status: model.AvailabilityAvailable},
		{Domain: "def.io", Status: model.AvailabilityTaken},
		{Domain: "ghi.io", Status: model.AvailabilityError, Err: "lookup timed out"},
	})
	require.NoError(t, err)

	rec, err := s.GetDomain(ctx, "abc.io")
	require.NoError(t, err)
	assert.Equal(t, model.AvailabilityAvailable, rec.Availability)
	assert.Empty(t, rec.LastError)

	rec, err = s.GetDomain(ctx, "ghi.io")
	require.NoError(t, err)
	assert.Equal(t, model.AvailabilityError, rec.Availability)
	assert.Equal(t, "lookup timed out", rec.LastError)

	// Only the unresolved row remains a candidate.
	unchecked, err := s.UncheckedCandidates(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ghi.io"}, unchecked)
}

func TestApplyAvailabilityCreatesRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// A stage outcome for an unseeded domain still creates the record.
	err := s.ApplyAvailability(ctx, []AvailabilityUpdate{
		{Domain: "New.IO", Status: model.AvailabilityAvailable},
	})
	require.NoError(t, err)

	rec, err := s.GetDomain(ctx, "new.io")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.AvailabilityAvailable, rec.Availability)
}

func TestApplyScoresPartialFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SeedCandidates(ctx, []string{"abc.io", "def.io"})
	require.NoError(t, err)
	err = s.ApplyAvailability(ctx, []AvailabilityUpdate{
		{Domain: "abc.io", Status: model.AvailabilityAvailable},
		{Domain: "def.io", Status: model.AvailabilityAvailable},
	})
	require.NoError(t, err)

	err = s.ApplyScores(ctx, []ScoreUpdate{
		{
			Domain: "abc.io",
			Scores: &model.QualityScores{Memorability: 8, Pronunciation: 7, VisualAppeal: 9, Brandability: 6},
			Raw:    `{"memorability": 8}`,
		},
		{Domain: "def.io", Raw: "not json", Err: "scorer: parse scores: invalid JSON"},
	})
	require.NoError(t, err)

	rec, err := s.GetDomain(ctx, "abc.io")
	require.NoError(t, err)
	require.NotNil(t, rec.AverageScore)
	assert.InDelta(t, 7.5, *rec.AverageScore, 1e-9)
	assert.True(t, rec.Scored())
	assert.Empty(t, rec.LastError)

	// The failed row keeps its diagnostics and stays eligible.
	rec, err = s.GetDomain(ctx, "def.io")
	require.NoError(t, err)
	assert.Nil(t, rec.AverageScore)
	assert.Equal(t, "not json", rec.RawScoring)
	assert.Contains(t, rec.LastError, "invalid JSON")
	assert.Equal(t, model.AvailabilityAvailable, rec.Availability)

	unscored, err := s.UnscoredAvailable(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"def.io"}, unscored)
}

func TestApplyScoresDoesNotTouchOtherStages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ApplyAvailability(ctx, []AvailabilityUpdate{
		{Domain: "abc.io", Status: model.AvailabilityAvailable},
	}))
	require.NoError(t, s.ApplyPricing(ctx, []PricingUpdate{
		{Domain: "abc.io", PriceType: model.PriceStandard, Price: ptr(32.98)},
	}))
	require.NoError(t, s.ApplyScores(ctx, []ScoreUpdate{
		{Domain: "abc.io", Scores: &model.QualityScores{Memorability: 5, Pronunciation: 5, VisualAppeal: 5, Brandability: 5}},
	}))

	rec, err := s.GetDomain(ctx, "abc.io")
	require.NoError(t, err)
	assert.Equal(t, model.AvailabilityAvailable, rec.Availability)
	assert.Equal(t, model.PriceStandard, rec.PriceType)
	require.NotNil(t, rec.Price)
	assert.Equal(t, 32.98, *rec.Price)
	require.NotNil(t, rec.AverageScore)
}

func TestUnpricedScored(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	scores := &model.QualityScores{Memorability: 8, Pronunciation: 8, VisualAppeal: 8, Brandability: 8}
	low := &model.QualityScores{Memorability: 3, Pronunciation: 3, VisualAppeal: 3, Brandability: 3}
	require.NoError(t, s.ApplyScores(ctx, []ScoreUpdate{
		{Domain: "high.io", Scores: scores},
		{Domain: "low.io", Scores: low},
		{Domain: "done.io", Scores: scores},
		{Domain: "errored.io", Scores: scores},
		{Domain: "filtered.io", Scores: scores},
		{Domain: "taken.io", Scores: scores},
	}))
	require.NoError(t, s.ApplyAvailability(ctx, []AvailabilityUpdate{
		{Domain: "taken.io", Status: model.AvailabilityTaken},
	}))
	require.NoError(t, s.ApplyPricing(ctx, []PricingUpdate{
		{Domain: "done.io", PriceType: model.PriceStandard, Price: ptr(32.98)},
		{Domain: "errored.io", PriceType: model.PriceError, Err: "registrar: server error"},
		{Domain: "filtered.io", PriceType: model.PriceFiltered},
	}))

	// Error rows are retried, Filtered rows are not by default, Taken
	// rows are excluded.
	got, err := s.UnpricedScored(ctx, PricingQuery{SortField: "average_score"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"high.io", "low.io", "errored.io"}, got)

	got, err = s.UnpricedScored(ctx, PricingQuery{RetryFiltered: true, IncludeTaken: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"high.io", "low.io", "errored.io", "filtered.io", "taken.io"}, got)

	got, err = s.UnpricedScored(ctx, PricingQuery{MinScore: 7})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"high.io", "errored.io"}, got)

	got, err = s.UnpricedScored(ctx, PricingQuery{Limit: 2, SortField: "average_score"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.NotContains(t, got, "low.io")
}

func TestListDomains(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ApplyScores(ctx, []ScoreUpdate{
		{Domain: "aaa.io", Scores: &model.QualityScores{Memorability: 9, Pronunciation: 9, VisualAppeal: 9, Brandability: 9}},
		{Domain: "bbb.me", Scores: &model.QualityScores{Memorability: 4, Pronunciation: 4, VisualAppeal: 4, Brandability: 4}},
		{Domain: "abc.io", Scores: &model.QualityScores{Memorability: 7, Pronunciation: 7, VisualAppeal: 7, Brandability: 7}},
	}))

	got, err := s.ListDomains(ctx, DomainFilter{TLD: "io", SortBy: "average_score", SortDesc: true})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "aaa.io", got[0].Domain)
	assert.Equal(t, "abc.io", got[1].Domain)

	got, err = s.ListDomains(ctx, DomainFilter{MinScore: 6})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ListDomains(ctx, DomainFilter{Search: "bb"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bbb.me", got[0].Domain)
}

func TestTopDomainsOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	nine := &model.QualityScores{Memorability: 9, Pronunciation: 9, VisualAppeal: 9, Brandability: 9}
	require.NoError(t, s.ApplyScores(ctx, []ScoreUpdate{
		{Domain: "cheap.io", Scores: nine},
		{Domain: "dear.io", Scores: nine},
		{Domain: "mid.io", Scores: &model.QualityScores{Memorability: 6, Pronunciation: 6, VisualAppeal: 6, Brandability: 6}},
		{Domain: "gone.io", Scores: nine},
	}))
	require.NoError(t, s.ApplyAvailability(ctx, []AvailabilityUpdate{
		{Domain: "gone.io", Status: model.AvailabilityTaken},
	}))
	require.NoError(t, s.ApplyPricing(ctx, []PricingUpdate{
		{Domain: "cheap.io", PriceType: model.PriceStandard, Price: ptr(32.98)},
		{Domain: "dear.io", PriceType: model.PricePremium, Price: ptr(649.0)},
	}))

	got, err := s.TopDomains(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Equal scores break ties toward the lower price; taken rows are out.
	assert.Equal(t, "cheap.io", got[0].Domain)
	assert.Equal(t, "dear.io", got[1].Domain)
	assert.Equal(t, "mid.io", got[2].Domain)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SeedCandidates(ctx, []string{"abc.io", "def.me", "ghi.io"})
	require.NoError(t, err)
	require.NoError(t, s.ApplyAvailability(ctx, []AvailabilityUpdate{
		{Domain: "abc.io", Status: model.AvailabilityAvailable},
		{Domain: "def.me", Status: model.AvailabilityTaken},
	}))
	require.NoError(t, s.ApplyScores(ctx, []ScoreUpdate{
		{Domain: "abc.io", Scores: &model.QualityScores{Memorability: 8, Pronunciation: 6, VisualAppeal: 8, Brandability: 6}},
	}))
	require.NoError(t, s.ApplyPricing(ctx, []PricingUpdate{
		{Domain: "abc.io", PriceType: model.PricePremium, Price: ptr(500)},
	}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ByAvailability[string(model.AvailabilityAvailable)])
	assert.Equal(t, 1, stats.ByAvailability[string(model.AvailabilityTaken)])
	assert.Equal(t, 1, stats.ByAvailability[string(model.AvailabilityUnknown)])
	assert.Equal(t, 1, stats.Scored)
	assert.InDelta(t, 7.0, stats.ScoreAverages["average_score"], 1e-9)

	require.Len(t, stats.ByPriceType, 1)
	assert.Equal(t, string(model.PricePremium), stats.ByPriceType[0].Type)
	require.NotNil(t, stats.ByPriceType[0].AvgPrice)
	assert.Equal(t, 500.0, *stats.ByPriceType[0].AvgPrice)

	tlds := map[string]int{}
	for _, tc := range stats.ByTLD {
		tlds[tc.TLD] = tc.Count
	}
	assert.Equal(t, 2, tlds["io"])
	assert.Equal(t, 1, tlds["me"])
}

func TestRunLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateRun(ctx, "score", map[string]int{"batch_size": 100})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	err = s.CompleteRun(ctx, id, model.RunSummary{
		Stage: "score", Total: 10, Succeeded: 9, Failed: 1,
	})
	require.NoError(t, err)

	var stage, summary string
	err = s.db.QueryRowContext(ctx,
		`SELECT stage, summary FROM pipeline_runs WHERE id = ?`, id).
		Scan(&stage, &summary)
	require.NoError(t, err)
	assert.Equal(t, "score", stage)
	assert.Contains(t, summary, `"succeeded":9`)
}

func TestGetDomainMissing(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.GetDomain(context.Background(), "nope.io")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
