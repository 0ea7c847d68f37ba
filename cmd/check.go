package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/domain-scout/internal/checker"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check candidate availability over RDAP",
	Long: `Looks up every unresolved candidate against the RDAP bootstrap
service in adaptive concurrent batches. Rows that resolved on a previous run
are skipped, so interrupting and re-running picks up where it left off.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		limit, _ := cmd.Flags().GetInt("limit")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := checker.New(initRDAP(), st, cfg.Batch.Dispatcher()).Run(ctx, limit)
		if err != nil {
			return err
		}

		fmt.Print(stats.Report())
		return nil
	},
}

func init() {
	checkCmd.Flags().Int("limit", 0, "maximum candidates to check (0=all)")
	rootCmd.AddCommand(checkCmd)
}
