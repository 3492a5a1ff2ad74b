package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/mission-matcher/internal/store"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the contacts of a session or your search history",
	Run: func(cmd *cobra.Command, _ []string) {
		clearData(cmd)
	},
}

func init() {
	rootCmd.AddCommand(clearCmd)

	clearCmd.Flags().StringP("session", "s", "", "session id to delete")
	clearCmd.Flags().Bool("history", false, "delete the archived searches of the user")
	clearCmd.Flags().BoolP("auto-aprove", "y", false, "do not ask for confirmation")
}

func clearData(cmd *cobra.Command) {
	ctx := context.Background()

	matcher, err := newApplication(ctx, false)
	if err != nil {
		log.Fatal(err)
	}
	defer matcher.Close()
	logger := matcher.logger

	user, err := matcher.userID()
	if err != nil {
		logger.Fatal("resolving user", zap.Error(err))
	}

	session, _ := cmd.Flags().GetString("session")
	withHistory, _ := cmd.Flags().GetBool("history")
	if session == "" && !withHistory {
		logger.Fatal("nothing to clear", zap.String("hint", "pass --session or --history"))
	}

	if auto, _ := cmd.Flags().GetBool("auto-aprove"); !auto {
		confirm := promptui.Prompt{
			Label:     fmt.Sprintf("Delete data of user %s", user),
			IsConfirm: true,
		}
		if _, err := confirm.Run(); err != nil {
			logger.Info("exiting", zap.String("reason", "not confirmed"))
			return
		}
	}

	if session != "" {
		removed, err := matcher.store.DeleteSession(ctx, user, session)
		switch {
		case errors.Is(err, store.ErrNotFound):
			logger.Warn("session has no contacts", zap.String("session_id", session))
		case err != nil:
			logger.Fatal("deleting session", zap.Error(err))
		default:
			logger.Info("session deleted", zap.String("session_id", session), zap.Int("removed", removed))
		}
	}

	if withHistory {
		if matcher.history == nil {
			logger.Fatal("search history is disabled", zap.String("hint", "set history.enabled in the config"))
		}
		removed, err := matcher.history.DeleteUser(ctx, user)
		if err != nil {
			logger.Fatal("deleting search history", zap.Error(err))
		}
		logger.Info("search history deleted", zap.Int("removed", removed))
	}
}
