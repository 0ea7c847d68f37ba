package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/domain-scout/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "domain-scout",
	Short: "Short domain discovery pipeline",
	Long:  "Generates 3-letter domain candidates from a word list, checks registration status over RDAP, scores brand quality with Claude, prices candidates through the registrar API, and serves a read-only dashboard.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
