package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/domain-scout/internal/scorer"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score available domains for brand quality",
	Long: `Sends each available, unscored domain to Claude and records four
quality scores (memorability, pronounceability, brandability, versatility)
plus their average. Failed rows keep the raw model reply for inspection and
stay eligible for the next run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		limit, _ := cmd.Flags().GetInt("limit")
		if limit == 0 {
			limit = cfg.Score.Limit
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		model, err := initAnthropic()
		if err != nil {
			return err
		}

		sc := scorer.New(model, st, cfg.Batch.Dispatcher(), scorer.Options{
			Model:              cfg.Anthropic.Model,
			MaxTokens:          cfg.Anthropic.MaxTokens,
			Temperature:        cfg.Anthropic.Temperature,
			HighScoreThreshold: cfg.Score.HighScoreThreshold,
		})

		stats, err := sc.Run(ctx, limit)
		if err != nil {
			return err
		}

		fmt.Print(stats.Report())
		return nil
	},
}

func init() {
	scoreCmd.Flags().Int("limit", 0, "maximum domains to score (0=use config default)")
	rootCmd.AddCommand(scoreCmd)
}
