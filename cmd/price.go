package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/domain-scout/internal/batch"
	"github.com/sells-group/domain-scout/internal/pricer"
)

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Price scored domains through the registrar API",
	Long: `Checks each scored domain against the registrar, classifies it as
taken, premium, or standard, and records the registration price. Standard
TLD prices are cached per run; premium prices above the configured ceiling
are marked filtered instead of priced.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		reg, err := initRegistrar()
		if err != nil {
			return err
		}

		prices, err := initCache(ctx)
		if err != nil {
			return err
		}
		defer prices.Close()

		opts := pricerOptions(cmd, nil)
		stats, err := pricer.New(reg, st, prices, batchOverrides(cmd), opts).Run(ctx)
		if err != nil {
			return err
		}

		fmt.Print(stats.Report())
		return nil
	},
}

// pricerOptions merges config defaults with command flags. flags may come
// from a different command (pipeline reuses this), so the lookup tolerates
// missing flags.
func pricerOptions(cmd *cobra.Command, _ []string) pricer.Options {
	opts := pricer.Options{
		MinScore:         cfg.Pricing.MinScore,
		SortField:        cfg.Pricing.SortField,
		Limit:            cfg.Pricing.Limit,
		MaxPremiumPrice:  cfg.Pricing.MaxPrice,
		RetryFiltered:    cfg.Pricing.RetryFiltered,
		IncludeTaken:     cfg.Pricing.IncludeTaken,
		TLDCacheTTL:      time.Duration(cfg.Pricing.TLDCacheTTLMins) * time.Minute,
		NotableThreshold: cfg.Pricing.HighScoreThreshold,
	}
	if f := cmd.Flags().Lookup("limit"); f != nil && f.Changed {
		if v, err := cmd.Flags().GetInt("limit"); err == nil {
			opts.Limit = v
		}
	}
	if f := cmd.Flags().Lookup("min-score"); f != nil && f.Changed {
		if v, err := cmd.Flags().GetFloat64("min-score"); err == nil {
			opts.MinScore = v
		}
	}
	if f := cmd.Flags().Lookup("retry-filtered"); f != nil && f.Changed {
		if v, err := cmd.Flags().GetBool("retry-filtered"); err == nil {
			opts.RetryFiltered = v
		}
	}
	if f := cmd.Flags().Lookup("include-taken"); f != nil && f.Changed {
		if v, err := cmd.Flags().GetBool("include-taken"); err == nil {
			opts.IncludeTaken = v
		}
	}
	if f := cmd.Flags().Lookup("sort-field"); f != nil && f.Changed {
		if v, err := cmd.Flags().GetString("sort-field"); err == nil {
			opts.SortField = v
		}
	}
	if f := cmd.Flags().Lookup("max-price"); f != nil && f.Changed {
		if v, err := cmd.Flags().GetFloat64("max-price"); err == nil {
			opts.MaxPremiumPrice = v
		}
	}
	if f := cmd.Flags().Lookup("all"); f != nil && f.Changed {
		if v, err := cmd.Flags().GetBool("all"); err == nil {
			opts.ProcessAll = v
		}
	}
	return opts
}

// batchOverrides applies dispatcher flag overrides on top of the config.
func batchOverrides(cmd *cobra.Command) batch.Config {
	bc := cfg.Batch.Dispatcher()
	if f := cmd.Flags().Lookup("batch-size"); f != nil && f.Changed {
		if v, err := cmd.Flags().GetInt("batch-size"); err == nil {
			bc.BatchSize = v
		}
	}
	if f := cmd.Flags().Lookup("retries"); f != nil && f.Changed {
		if v, err := cmd.Flags().GetInt("retries"); err == nil {
			bc.BatchRetries = v
		}
	}
	if f := cmd.Flags().Lookup("cooldown"); f != nil && f.Changed {
		if v, err := cmd.Flags().GetInt("cooldown"); err == nil {
			bc.LongCooldown = time.Duration(v) * time.Second
		}
	}
	if f := cmd.Flags().Lookup("max-errors"); f != nil && f.Changed {
		if v, err := cmd.Flags().GetInt("max-errors"); err == nil {
			bc.MaxErrors = v
		}
	}
	if f := cmd.Flags().Lookup("max-failures"); f != nil && f.Changed {
		if v, err := cmd.Flags().GetInt("max-failures"); err == nil {
			bc.MaxConsecutiveFailures = v
		}
	}
	return bc
}

func init() {
	f := priceCmd.Flags()
	f.Int("limit", 0, "maximum domains to price (0=use config default)")
	f.Float64("min-score", 0, "minimum average score (overrides config)")
	f.Bool("retry-filtered", false, "re-queue rows filtered by the price ceiling")
	f.Bool("include-taken", false, "re-price rows already marked taken")
	f.String("sort-field", "", "candidate ordering column (overrides config)")
	f.Float64("max-price", 0, "premium price ceiling, 0 = none (overrides config)")
	f.Bool("all", false, "re-price every scored row, ignoring completion")
	f.Int("batch-size", 0, "domains per batch (overrides config)")
	f.Int("retries", 0, "redispatch attempts for a failing batch (overrides config)")
	f.Int("cooldown", 0, "long cooldown seconds after repeated batch failures (overrides config)")
	f.Int("max-errors", 0, "stop the run after this many errors, 0 = no cap (overrides config)")
	f.Int("max-failures", 0, "consecutive failing batches before the long cooldown (overrides config)")
	rootCmd.AddCommand(priceCmd)
}
