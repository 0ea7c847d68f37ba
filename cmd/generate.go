package main

import (
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/domain-scout/internal/words"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate domain candidates from the word list",
	Long: `Reads the word list, keeps four-letter words containing exactly one
vowel, strips the vowel to form a three-letter name, and seeds one candidate
row per name/TLD combination. Re-running never duplicates or resets rows.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		wordlist, _ := cmd.Flags().GetString("wordlist")
		if wordlist == "" {
			wordlist = cfg.Generate.WordlistPath
		}
		tldFlag, _ := cmd.Flags().GetString("tlds")
		tlds := cfg.Generate.TLDs
		if tldFlag != "" {
			tlds = strings.Split(tldFlag, ",")
		}

		candidates, err := words.Candidates(ctx, words.FileLexicon{Path: wordlist})
		if err != nil {
			return err
		}
		domains := words.Domains(candidates, tlds)

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		inserted, err := st.SeedCandidates(ctx, domains)
		if err != nil {
			return err
		}

		zap.L().Info("candidates seeded",
			zap.Int("words", len(candidates)),
			zap.Int("domains", len(domains)),
			zap.Int64("new", inserted),
		)
		return nil
	},
}

func init() {
	generateCmd.Flags().String("wordlist", "", "word list path (default from config)")
	generateCmd.Flags().String("tlds", "", "comma-separated TLDs (default from config)")
	rootCmd.AddCommand(generateCmd)
}
