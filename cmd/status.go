package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/domain-scout/internal/model"
	"github.com/sells-group/domain-scout/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline progress and result summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Stats(ctx)
		if err != nil {
			return err
		}

		formatStats(os.Stdout, stats)

		top, _ := cmd.Flags().GetInt("top")
		if top > 0 {
			records, err := st.TopDomains(ctx, top)
			if err != nil {
				return err
			}
			formatTopDomains(os.Stdout, records)
		}
		return nil
	},
}

// formatStats writes a tabular progress report to w.
func formatStats(out io.Writer, stats *store.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "total candidates\t%d\n", stats.Total)

	statuses := make([]string, 0, len(stats.ByAvailability))
	for s := range stats.ByAvailability {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		_, _ = fmt.Fprintf(w, "  %s\t%d\n", s, stats.ByAvailability[s])
	}

	_, _ = fmt.Fprintf(w, "scored\t%d\n", stats.Scored)
	_, _ = fmt.Fprintf(w, "errored\t%d\n", stats.Errored)
	_ = w.Flush()

	if len(stats.ByPriceType) > 0 {
		_, _ = fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "PRICE TYPE\tCOUNT\tAVG\tMIN\tMAX")
		for _, p := range stats.ByPriceType {
			_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
				p.Type, p.Count, money(p.AvgPrice), money(p.MinPrice), money(p.MaxPrice))
		}
		_ = w.Flush()
	}

	if len(stats.ByTLD) > 0 {
		_, _ = fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "TLD\tCOUNT")
		for _, t := range stats.ByTLD {
			_, _ = fmt.Fprintf(w, ".%s\t%d\n", t.TLD, t.Count)
		}
		_ = w.Flush()
	}
}

// formatTopDomains writes the best available results to w.
func formatTopDomains(out io.Writer, records []model.DomainRecord) {
	if len(records) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DOMAIN\tSCORE\tTYPE\tPRICE")
	for _, r := range records {
		score := "-"
		if r.AverageScore != nil {
			score = fmt.Sprintf("%.1f", *r.AverageScore)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Domain, score, r.PriceType, money(r.Price))
	}
	_ = w.Flush()
}

func money(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("$%.2f", *p)
}

func init() {
	statusCmd.Flags().Int("top", 0, "also list the top N priced domains")
	rootCmd.AddCommand(statusCmd)
}
