package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import a CSV export of contacts into a session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runImport(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringP("session", "s", "", "session id to import into (default is a new session)")
	importCmd.Flags().String("delimiter", "", "field delimiter: comma, tab or semicolon (default depends on the file extension)")
}

func runImport(cmd *cobra.Command, path string) {
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

	delimiter, _ := cmd.Flags().GetString("delimiter")
	comma, err := delimiterFor(path, delimiter)
	if err != nil {
		logger.Fatal("parsing flags", zap.Error(err))
	}

	f, err := os.Open(path)
	if err != nil {
		logger.Fatal("opening contacts file", zap.Error(err))
	}
	defer f.Close()

	session, _ := cmd.Flags().GetString("session")
	res, err := matcher.importer.Import(ctx, user, session, f, comma)
	if err != nil {
		logger.Fatal("importing contacts", zap.String("file", path), zap.Error(err))
	}

	logger.Info("use this session for searches", zap.String("session_id", res.SessionID))
}

func delimiterFor(path, delimiter string) (rune, error) {
	switch strings.ToLower(strings.TrimSpace(delimiter)) {
	case "":
		if strings.EqualFold(filepath.Ext(path), ".tsv") {
			return '\t', nil
		}
		return ',', nil
	case "comma", ",":
		return ',', nil
	case "tab", "\\t":
		return '\t', nil
	case "semicolon", ";":
		return ';', nil
	default:
		return 0, fmt.Errorf("unsupported delimiter %q", delimiter)
	}
}
