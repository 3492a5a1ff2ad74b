package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/mission-matcher/internal/ai"
	"github.com/spigell/mission-matcher/internal/ai/gemini"
	"github.com/spigell/mission-matcher/internal/ai/openai"
	"github.com/spigell/mission-matcher/internal/embedding"
	"github.com/spigell/mission-matcher/internal/explain"
	"github.com/spigell/mission-matcher/internal/history"
	"github.com/spigell/mission-matcher/internal/importer"
	"github.com/spigell/mission-matcher/internal/logger"
	"github.com/spigell/mission-matcher/internal/matching"
	"github.com/spigell/mission-matcher/internal/prefilter"
	"github.com/spigell/mission-matcher/internal/ranking"
	"github.com/spigell/mission-matcher/internal/secrets"
	"github.com/spigell/mission-matcher/internal/store"
	"github.com/spigell/mission-matcher/internal/store/postgres"
	"github.com/spigell/mission-matcher/internal/store/sqlite"
)

// application holds everything a command may need. Engine parts are only
// built on request since import and clear work without providers.
type application struct {
	config    *Config
	logger    *zap.Logger
	store     store.Store
	history   *history.Store
	importer  *importer.Importer
	resolver  *embedding.Resolver
	engine    *matching.Engine
	extractor *ai.MissionExtractor
}

func newApplication(ctx context.Context, withEngine bool) (*application, error) {
	log, err := logger.New(logger.Options{JSON: viper.GetBool("json"), Debug: viper.GetBool("debug")})
	if err != nil {
		return nil, fmt.Errorf("creating a logger: %w", err)
	}

	config, err := getConfig()
	if err != nil {
		return nil, fmt.Errorf("getting a config: %w", err)
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	log.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	a := &application{config: config, logger: log}

	a.store, err = openStore(ctx, config.Store)
	if err != nil {
		return nil, err
	}
	a.importer = importer.New(a.store, log)

	if config.History.Enabled {
		a.history, err = history.Open(history.Options{Dir: config.History.Dir, TTL: config.History.TTL}, log)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	if withEngine {
		if err := a.buildEngine(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

func (a *application) buildEngine(ctx context.Context) error {
	cfg := a.config
	generator, embedder, err := newProviders(ctx, cfg.AI, a.logger)
	if err != nil {
		return err
	}

	if embedder != nil {
		a.resolver, err = embedding.New(embedder, a.store, embedding.Config{
			BatchSize:              cfg.Matching.BatchSize,
			MaxConcurrentBatches:   cfg.Matching.MaxConcurrentBatches,
			GroupPause:             cfg.Matching.GroupPause,
			MaxConsecutiveFailures: cfg.Matching.MaxConsecutiveFailures,
		}, a.logger.Named("embedding"))
		if err != nil {
			return err
		}
	}

	if generator != nil {
		a.extractor = ai.NewMissionExtractor(generator, a.logger.Named("mission"), cfg.AI.MaxLogLength)
	}

	floor := cfg.Matching.MinSimilarity
	ranker, err := ranking.New(ranking.Config{MinSimilarity: &floor, TopK: cfg.Matching.TopK})
	if err != nil {
		return fmt.Errorf("matching config: %w", err)
	}

	deps := matching.Deps{
		Store:     a.store,
		Resolver:  a.resolver,
		Prefilter: prefilter.New(prefilter.Config{Limit: cfg.Matching.PrefilterLimit}),
		Ranker:    ranker,
		Explainer: explain.New(generator, explain.Config{
			Strict:       cfg.Matching.Strict,
			MaxLogLength: cfg.AI.MaxLogLength,
		}, a.logger.Named("explain")),
	}
	if a.extractor != nil {
		deps.Extractor = a.extractor
	}
	if a.history != nil {
		deps.Recorder = a.history
	}

	a.engine, err = matching.New(deps, matching.Config{Timeout: cfg.Matching.Timeout}, a.logger)
	if err != nil {
		return err
	}

	for _, status := range a.engine.Describe() {
		a.logger.Debug("search stage",
			zap.String("name", status.Name),
			zap.Bool("enabled", status.Enabled),
			zap.String("reason", status.Reason),
			zap.Any("details", status.Details),
		)
	}

	return nil
}

func (a *application) Close() {
	if a.resolver != nil {
		a.resolver.Release()
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("closing search history", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing candidate store", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// userID returns the configured identity of the local user.
func (a *application) userID() (string, error) {
	user := strings.TrimSpace(a.config.User)
	if user == "" {
		return "", errors.New("user id is not configured (use --user or MISSION_MATCHER_USER)")
	}
	return user, nil
}

func openStore(ctx context.Context, cfg *StoreConfig) (store.Store, error) {
	dsn, err := secrets.Load(secrets.Source{Name: "store dsn", Value: cfg.DSN, File: cfg.DSNFile})
	if err != nil {
		return nil, err
	}

	var backend store.Store
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite":
		backend, err = sqlite.Open(dsn)
	case "postgres", "postgresql":
		backend, err = postgres.Open(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening candidate store: %w", err)
	}

	cached, err := store.NewCached(backend, cfg.CacheSize)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return cached, nil
}

// newProviders returns nil providers without an error when credentials are
// missing. The engine then reports the missing credentials per search.
func newProviders(ctx context.Context, cfg *AIConfig, log *zap.Logger) (ai.TextGenerator, ai.Embedder, error) {
	var (
		generator ai.TextGenerator
		embedder  ai.Embedder
	)

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	switch provider {
	case "", gemini.ProviderName:
		apiKey, err := secrets.Optional(secrets.Source{
			Name:  "gemini api key",
			Value: cfg.Gemini.APIKey,
			File:  cfg.Gemini.APIKeyFile,
			Env:   []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"},
		})
		if err != nil {
			return nil, nil, err
		}
		if apiKey == "" {
			log.Warn("ai provider is not configured",
				zap.String("provider", gemini.ProviderName),
				zap.String("hint", "set GEMINI_API_KEY or ai.gemini.api-key-file"),
			)
			return nil, nil, nil
		}

		gen, err := gemini.NewGenerator(ctx, gemini.GeneratorConfig{
			APIKey:     apiKey,
			Model:      cfg.Gemini.Model,
			MaxRetries: cfg.Gemini.MaxRetries,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		emb, err := gemini.NewEmbedder(ctx, gemini.EmbedderConfig{
			APIKey:     apiKey,
			Model:      cfg.Gemini.EmbeddingModel,
			Dimensions: cfg.Gemini.EmbeddingDimensions,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		generator, embedder = gen, emb

	case openai.ProviderName:
		apiKey, err := secrets.Optional(secrets.Source{
			Name:  "openai api key",
			Value: cfg.OpenAI.APIKey,
			File:  cfg.OpenAI.APIKeyFile,
			Env:   []string{"OPENAI_API_KEY"},
		})
		if err != nil {
			return nil, nil, err
		}

		providerCfg := openai.Config{
			APIKey:         apiKey,
			BaseURL:        cfg.OpenAI.BaseURL,
			Model:          cfg.OpenAI.Model,
			EmbeddingModel: cfg.OpenAI.EmbeddingModel,
			Temperature:    cfg.OpenAI.Temperature,
		}
		gen, err := openai.NewGenerator(providerCfg, log)
		if errors.Is(err, ai.ErrMissingCredentials) {
			log.Warn("ai provider is not configured",
				zap.String("provider", openai.ProviderName),
				zap.String("hint", "set OPENAI_API_KEY or ai.openai.base-url for a local server"),
			)
			return nil, nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		emb, err := openai.NewEmbedder(providerCfg, log)
		if err != nil {
			return nil, nil, err
		}
		generator, embedder = gen, emb

	default:
		return nil, nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	breaker := ai.BreakerConfig{
		MaxFailures:      cfg.Breaker.MaxFailures,
		Timeout:          cfg.Breaker.Timeout,
		HalfOpenRequests: cfg.Breaker.HalfOpenRequests,
	}

	return ai.WithGeneratorBreaker(generator, breaker, log), ai.WithEmbedderBreaker(embedder, breaker, log), nil
}

// redacted hides secrets before the config is logged.
func redacted(config *Config) Config {
	cp := *config
	if config.AI != nil {
		aiCfg := *config.AI
		if aiCfg.Gemini != nil && aiCfg.Gemini.APIKey != "" {
			g := *aiCfg.Gemini
			g.APIKey = "***"
			aiCfg.Gemini = &g
		}
		if aiCfg.OpenAI != nil && aiCfg.OpenAI.APIKey != "" {
			o := *aiCfg.OpenAI
			o.APIKey = "***"
			aiCfg.OpenAI = &o
		}
		cp.AI = &aiCfg
	}
	if config.Store != nil && config.Store.DSN != "" {
		s := *config.Store
		s.DSN = "***"
		cp.Store = &s
	}
	return cp
}
