package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/domain-scout/internal/dashboard"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only results dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		c, err := initCache(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		addr := fmt.Sprintf(":%d", port)

		zap.L().Info("starting dashboard", zap.String("addr", addr))
		return dashboard.NewServer(st, c).ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
