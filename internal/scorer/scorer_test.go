package scorer

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/domain-scout/internal/batch"
	"github.com/sells-group/domain-scout/internal/model"
	"github.com/sells-group/domain-scout/internal/resilience"
	"github.com/sells-group/domain-scout/internal/store"
	"github.com/sells-group/domain-scout/pkg/anthropic"
)

type fakeModel struct {
	mu      sync.Mutex
	replies map[string]string // keyed by domain found in the prompt
	errs    map[string]error
	calls   int
}

func (f *fakeModel) Complete(_ context.Context, req anthropic.CompletionRequest) (*anthropic.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for domain, err := range f.errs {
		if containsDomain(req.Prompt, domain) {
			return nil, err
		}
	}
	for domain, text := range f.replies {
		if containsDomain(req.Prompt, domain) {
			return &anthropic.Completion{Text: text, StopReason: "end_turn"}, nil
		}
	}
	return &anthropic.Completion{Text: "no idea"}, nil
}

// containsDomain matches the quoted domain inside a prompt.
func containsDomain(prompt, domain string) bool {
	return strings.Contains(prompt, `"`+domain+`"`)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func fastConfig() batch.Config {
	return batch.Config{
		BatchSize: 10,
		BaseDelay: time.Millisecond,
		Retry: resilience.RetryConfig{
			MaxAttempts: 1,
			BaseDelay:   time.Millisecond,
			Jitter:      time.Millisecond,
		},
	}
}

func seedAvailable(t *testing.T, st store.Store, domains ...string) {
	t.Helper()
	updates := make([]store.AvailabilityUpdate, len(domains))
	for i, d := range domains {
		updates[i] = store.AvailabilityUpdate{Domain: d, Status: model.AvailabilityAvailable}
	}
	require.NoError(t, st.ApplyAvailability(context.Background(), updates))
}

func TestRunScoresAvailableDomains(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedAvailable(t, st, "gdx.io", "mediocre.io")

	client := &fakeModel{replies: map[string]string{
		"gdx.io":      `{"memorability": 9, "pronunciation": 8, "visual_appeal": 9, "brandability": 8}`,
		"mediocre.io": `{"memorability": 4, "pronunciation": 4, "visual_appeal": 4, "brandability": 4}`,
	}}

	s := New(client, st, fastConfig(), Options{Model: "test-model", MaxTokens: 256})
	stats, err := s.Run(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Succeeded)

	// Only the high scorer is notable (threshold defaults to 8.0).
	require.Len(t, stats.Notables, 1)
	assert.Equal(t, "gdx.io", stats.Notables[0].Domain)
	assert.InDelta(t, 8.5, stats.Notables[0].Score, 1e-9)

	rec, err := st.GetDomain(ctx, "gdx.io")
	require.NoError(t, err)
	require.NotNil(t, rec.AverageScore)
	assert.InDelta(t, 8.5, *rec.AverageScore, 1e-9)
	assert.Contains(t, rec.RawScoring, "memorability")
}

func TestRunKeepsFailedRowsEligible(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedAvailable(t, st, "good.io", "junk.io")

	client := &fakeModel{replies: map[string]string{
		"good.io": `{"memorability": 7, "pronunciation": 7, "visual_appeal": 7, "brandability": 7}`,
		"junk.io": "certainly! here are the scores",
	}}

	s := New(client, st, fastConfig(), Options{Model: "test-model", MaxTokens: 256})
	stats, err := s.Run(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.ErrorsByKind[resilience.KindParse])

	// The failed row keeps its raw reply and stays unscored.
	rec, err := st.GetDomain(ctx, "junk.io")
	require.NoError(t, err)
	assert.Nil(t, rec.AverageScore)
	assert.Equal(t, "certainly! here are the scores", rec.RawScoring)

	remaining, err := st.UnscoredAvailable(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"junk.io"}, remaining)
}

func TestRunAuthErrorNotRetried(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedAvailable(t, st, "abc.io")

	client := &fakeModel{errs: map[string]error{
		"abc.io": &anthropic.StatusError{Code: http.StatusUnauthorized},
	}}

	cfg := fastConfig()
	cfg.Retry.MaxAttempts = 3
	s := New(client, st, cfg, Options{Model: "test-model", MaxTokens: 256})
	stats, err := s.Run(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ErrorsByKind[resilience.KindAuth])
	assert.Equal(t, 1, client.calls)
}

func TestPromptNamesTheDomain(t *testing.T) {
	p := Prompt("gdx.io")
	assert.Contains(t, p, `"gdx.io"`)
	assert.Contains(t, p, "memorability")
	assert.Contains(t, p, "brandability")
	assert.Contains(t, p, "Return ONLY the JSON object")
}
