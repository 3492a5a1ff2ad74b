package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List your recent searches",
	Run: func(cmd *cobra.Command, _ []string) {
		listHistory(cmd)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "l", 10, "number of searches to show")
}

func listHistory(cmd *cobra.Command) {
	ctx := context.Background()

	matcher, err := newApplication(ctx, false)
	if err != nil {
		log.Fatal(err)
	}
	defer matcher.Close()
	logger := matcher.logger

	if matcher.history == nil {
		logger.Fatal("search history is disabled", zap.String("hint", "set history.enabled in the config"))
	}

	user, err := matcher.userID()
	if err != nil {
		logger.Fatal("resolving user", zap.Error(err))
	}

	limit, _ := cmd.Flags().GetInt("limit")
	entries, err := matcher.history.List(ctx, user, limit)
	if err != nil {
		logger.Fatal("listing search history", zap.Error(err))
	}

	for _, e := range entries {
		logger.Info(e.Mission,
			zap.String("search_id", e.ID),
			zap.String("session_id", e.SessionID),
			zap.Time("created_at", e.CreatedAt),
			zap.Int("matches", len(e.Matches)),
			zap.Bool("fallback", e.Fallback),
		)
	}
	logger.Info("searches listed", zap.Int("count", len(entries)))
}
