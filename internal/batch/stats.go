package batch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sells-group/domain-scout/internal/model"
	"github.com/sells-group/domain-scout/internal/resilience"
)

// RunStats accumulates the outcome of one dispatcher run. It is owned by
// the dispatcher and returned to the caller: there are no process-wide
// counters.
type RunStats struct {
	Stage string

	Total     int
	Succeeded int
	Failed    int

	ErrorsByKind map[resilience.Kind]int

	Taken    int
	Premium  int
	Standard int
	Filtered int

	Notables []model.Notable

	Batches      int
	Redispatches int
	Interrupted  bool
	EarlyStop    bool

	StartedAt time.Time
	Duration  time.Duration
}

func newRunStats(stage string) *RunStats {
	return &RunStats{
		Stage:        stage,
		ErrorsByKind: make(map[resilience.Kind]int),
		StartedAt:    time.Now().UTC(),
	}
}

// fold merges one reconciled batch into the running totals.
func (s *RunStats) fold(succeeded, failed int, byKind map[resilience.Kind]int, tally Tally) {
	s.Total += succeeded + failed
	s.Succeeded += succeeded
	s.Failed += failed
	for kind, n := range byKind {
		s.ErrorsByKind[kind] += n
	}
	s.Taken += tally.Taken
	s.Premium += tally.Premium
	s.Standard += tally.Standard
	s.Filtered += tally.Filtered
	s.Notables = append(s.Notables, tally.Notables...)
	s.Batches++
}

// Summary converts the stats into the persistable run summary.
func (s *RunStats) Summary() model.RunSummary {
	byKind := make(map[string]int, len(s.ErrorsByKind))
	for kind, n := range s.ErrorsByKind {
		byKind[string(kind)] = n
	}
	return model.RunSummary{
		Stage:        s.Stage,
		Total:        s.Total,
		Succeeded:    s.Succeeded,
		Failed:       s.Failed,
		ErrorsByKind: byKind,
		Taken:        s.Taken,
		Premium:      s.Premium,
		Standard:     s.Standard,
		Filtered:     s.Filtered,
		Notables:     s.TopNotables(10),
		Duration:     s.Duration,
	}
}

// TopNotables returns up to n notable results sorted by score descending,
// ties broken by lower price first.
func (s *RunStats) TopNotables(n int) []model.Notable {
	sorted := make([]model.Notable, len(s.Notables))
	copy(sorted, s.Notables)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		pi, pj := 0.0, 0.0
		if sorted[i].Price != nil {
			pi = *sorted[i].Price
		}
		if sorted[j].Price != nil {
			pj = *sorted[j].Price
		}
		return pi < pj
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Report renders a human-readable end-of-run summary.
func (s *RunStats) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s run complete in %.1fs\n", s.Stage, s.Duration.Seconds())
	fmt.Fprintf(&b, "  processed: %d (%d batches)\n", s.Total, s.Batches)
	fmt.Fprintf(&b, "  succeeded: %d\n", s.Succeeded)
	fmt.Fprintf(&b, "  errors:    %d\n", s.Failed)

	if len(s.ErrorsByKind) > 0 {
		kinds := make([]string, 0, len(s.ErrorsByKind))
		for kind := range s.ErrorsByKind {
			kinds = append(kinds, string(kind))
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Fprintf(&b, "    - %s: %d\n", kind, s.ErrorsByKind[resilience.Kind(kind)])
		}
	}

	if s.Taken+s.Premium+s.Standard+s.Filtered > 0 {
		fmt.Fprintf(&b, "  taken: %d  premium: %d  standard: %d  filtered: %d\n",
			s.Taken, s.Premium, s.Standard, s.Filtered)
	}

	if top := s.TopNotables(10); len(top) > 0 {
		b.WriteString("  notable results:\n")
		for _, nb := range top {
			if nb.Price != nil {
				fmt.Fprintf(&b, "    %-24s %.1f/10  %s $%.2f\n", nb.Domain, nb.Score, nb.PriceType, *nb.Price)
			} else {
				fmt.Fprintf(&b, "    %-24s %.1f/10\n", nb.Domain, nb.Score)
			}
		}
	}

	if s.Interrupted {
		b.WriteString("  run interrupted; committed batches are saved\n")
	}
	if s.EarlyStop {
		b.WriteString("  stopped early after reaching the error cap\n")
	}
	return b.String()
}
