package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/mission-matcher/internal/candidate"
	"github.com/spigell/mission-matcher/internal/matching"
)

const (
	PromptShowReasoning      = "Show reasoning"
	PromptShowRecommendation = "Show recommendation"
	PromptMatchDetails       = "Show match details"
	PromptDiagnostics        = "Show diagnostics"
	PromptMatchesToFile      = "Dump matches to file"
	PromptExit               = "Exit"
	PromptBack               = "back"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptShowReasoning, PromptShowRecommendation, PromptMatchDetails, PromptDiagnostics, PromptMatchesToFile, PromptExit},
}

var searchCmd = &cobra.Command{
	Use:   "search [mission]",
	Short: "Rank the contacts of a session against a mission",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		search(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringP("session", "s", "", "session id holding the imported contacts")
	searchCmd.Flags().String("industry", "", "industry the mission targets")
	searchCmd.Flags().String("location", "", "location the mission targets")
	searchCmd.Flags().String("role", "", "role the mission targets")
	searchCmd.Flags().Bool("no-extract", false, "do not ask the ai provider for mission attributes")
	searchCmd.Flags().BoolP("auto-aprove", "y", false, "print the results and exit without prompting")

	searchCmd.MarkFlagRequired("session")
}

func search(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	matcher, err := newApplication(ctx, true)
	if err != nil {
		log.Fatal(err)
	}
	defer matcher.Close()
	logger := matcher.logger

	user, err := matcher.userID()
	if err != nil {
		logger.Fatal("resolving user", zap.Error(err))
	}

	mission := ""
	if len(args) > 0 {
		mission = args[0]
	}
	if strings.TrimSpace(mission) == "" {
		missionPrompt := promptui.Prompt{Label: "Describe your mission"}
		mission, err = missionPrompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
	}

	attrs := attributesFromFlags(cmd)
	noExtract, _ := cmd.Flags().GetBool("no-extract")

	session, _ := cmd.Flags().GetString("session")
	logger.Info("starting the search", zap.String("session_id", session))

	resp, err := matcher.engine.Search(ctx, matching.Request{
		Mission:           mission,
		SessionID:         session,
		UserID:            user,
		Attributes:        attrs,
		ExtractAttributes: !noExtract,
	})
	if err != nil {
		fatalSearch(logger, err)
	}
	logger.Info("search attributes",
		zap.String("industry", resp.Attributes.Industry),
		zap.String("location", resp.Attributes.Location),
		zap.String("role", resp.Attributes.Role),
	)

	printMatches(logger, resp)
	if len(resp.Matches) == 0 {
		logger.Info("exiting", zap.String("reason", resp.Message))
		return
	}

	if auto, _ := cmd.Flags().GetBool("auto-aprove"); auto {
		return
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleAction(action, logger, resp); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func attributesFromFlags(cmd *cobra.Command) candidate.Attributes {
	industry, _ := cmd.Flags().GetString("industry")
	location, _ := cmd.Flags().GetString("location")
	role, _ := cmd.Flags().GetString("role")
	return candidate.Attributes{
		Industry: strings.TrimSpace(industry),
		Location: strings.TrimSpace(location),
		Role:     strings.TrimSpace(role),
	}
}

func fatalSearch(logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, matching.ErrMissingCredentials):
		logger.Fatal("search is not possible", zap.Error(err),
			zap.String("hint", "configure an ai provider with embedding support (GEMINI_API_KEY or OPENAI_API_KEY)"))
	case errors.Is(err, matching.ErrTimeout):
		logger.Fatal("search timed out", zap.Error(err),
			zap.String("hint", "run the search again, embeddings computed so far are kept"))
	case matching.IsInputError(err):
		logger.Fatal("invalid search", zap.Error(err))
	default:
		logger.Fatal("search failed", zap.Error(err))
	}
}

func printMatches(logger *zap.Logger, resp *matching.Response) {
	if resp.Message != "" {
		logger.Warn(resp.Message, zap.Bool("fallback", resp.Fallback))
	}
	for i, m := range resp.Matches {
		logger.Info(fmt.Sprintf("%d. %s", i+1, m.Label()),
			zap.String("id", m.ID),
			zap.Float64("similarity", m.Similarity),
		)
	}
	logger.Info("search finished",
		zap.String("search_id", resp.SearchID),
		zap.Int("matches", len(resp.Matches)),
	)
}

func handleAction(action string, logger *zap.Logger, resp *matching.Response) error {
	switch action {
	case PromptShowReasoning:
		for i, m := range resp.Matches {
			logger.Info(fmt.Sprintf("%d. %s", i+1, m.Label()), zap.String("reasoning", m.Reasoning))
		}
		return nil
	case PromptShowRecommendation:
		logger.Info(resp.Recommendation)
		return nil
	case PromptMatchDetails:
		return matchDetails(logger, resp.Matches)
	case PromptDiagnostics:
		pretty, _ := json.MarshalIndent(resp.Diagnostics, "", "  ")
		logger.Info(string(pretty), zap.Bool("fallback", resp.Fallback))
		return nil
	case PromptMatchesToFile:
		filename, err := candidate.DumpMatchesToTmpFile(resp.Matches)
		if err != nil {
			return fmt.Errorf("dump matches to file: %w", err)
		}
		logger.Info("dumping matches to file", zap.String("filename", filename))
		return nil
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func matchDetails(logger *zap.Logger, matches []candidate.Match) error {
	items := make([]string, 0, len(matches)+1)
	for _, m := range matches {
		items = append(items, m.Label())
	}

	matchPrompt := promptui.Select{
		Label: "Choose a match and press ENTER",
		Items: append(items, PromptBack),
	}

	for {
		idx, selected, err := matchPrompt.Run()
		if err != nil {
			return err
		}
		if selected == PromptBack {
			return nil
		}

		pretty, _ := json.MarshalIndent(matches[idx], "", "  ")
		logger.Info(string(pretty))
	}
}
