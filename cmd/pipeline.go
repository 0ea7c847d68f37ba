package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/domain-scout/internal/checker"
	"github.com/sells-group/domain-scout/internal/pricer"
	"github.com/sells-group/domain-scout/internal/scorer"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run check, score, and price in sequence",
	Long: `Runs the full pipeline over whatever is pending: availability
checks, then scoring, then pricing. Each stage commits per batch, so an
interrupted pipeline resumes cleanly on the next invocation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		model, err := initAnthropic()
		if err != nil {
			return err
		}
		reg, err := initRegistrar()
		if err != nil {
			return err
		}
		prices, err := initCache(ctx)
		if err != nil {
			return err
		}
		defer prices.Close()

		batchCfg := cfg.Batch.Dispatcher()

		zap.L().Info("pipeline stage starting", zap.String("stage", "check"))
		checkStats, err := checker.New(initRDAP(), st, batchCfg).Run(ctx, 0)
		if err != nil {
			return err
		}
		fmt.Print(checkStats.Report())
		if ctx.Err() != nil {
			return nil
		}

		zap.L().Info("pipeline stage starting", zap.String("stage", "score"))
		sc := scorer.New(model, st, batchCfg, scorer.Options{
			Model:              cfg.Anthropic.Model,
			MaxTokens:          cfg.Anthropic.MaxTokens,
			Temperature:        cfg.Anthropic.Temperature,
			HighScoreThreshold: cfg.Score.HighScoreThreshold,
		})
		scoreStats, err := sc.Run(ctx, cfg.Score.Limit)
		if err != nil {
			return err
		}
		fmt.Print(scoreStats.Report())
		if ctx.Err() != nil {
			return nil
		}

		zap.L().Info("pipeline stage starting", zap.String("stage", "price"))
		priceStats, err := pricer.New(reg, st, prices, batchCfg, pricerOptions(cmd, args)).Run(ctx)
		if err != nil {
			return err
		}
		fmt.Print(priceStats.Report())
		return nil
	},
}

func init() {
	f := pipelineCmd.Flags()
	f.Int("limit", 0, "maximum domains to price (0=use config default)")
	f.Float64("min-score", 0, "minimum average score for pricing (overrides config)")
	f.Bool("retry-filtered", false, "re-queue rows filtered by the price ceiling")
	f.Bool("include-taken", false, "re-price rows already marked taken")
	rootCmd.AddCommand(pipelineCmd)
}
