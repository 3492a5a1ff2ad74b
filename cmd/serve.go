package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/mission-matcher/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search API over HTTP",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default is :8080)")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	matcher, err := newApplication(ctx, true)
	if err != nil {
		log.Fatal(err)
	}
	defer matcher.Close()
	logger := matcher.logger

	deps := server.Deps{
		Engine:   matcher.engine,
		Importer: matcher.importer,
		Sessions: matcher.store,
	}
	if matcher.history != nil {
		deps.History = matcher.history
	}

	cfg := matcher.config.Server
	srv, err := server.New(deps, server.Config{
		Addr:           cfg.Addr,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, logger.Named("http"))
	if err != nil {
		logger.Fatal("creating http server", zap.Error(err))
	}

	logger.Info("starting the mission-matcher server", zap.String("version", version))

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("http server stopped", zap.Error(err))
	}
}
