package cmd

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/mission-matcher/internal/ai/gemini"
	"github.com/spigell/mission-matcher/internal/embedding"
	"github.com/spigell/mission-matcher/internal/matching"
	"github.com/spigell/mission-matcher/internal/prefilter"
	"github.com/spigell/mission-matcher/internal/ranking"
	"github.com/spigell/mission-matcher/internal/store"
)

const (
	app = "mission-matcher"

	envPrefix = "MISSION_MATCHER"
)

type Config struct {
	// User is the identity used by the local commands.
	User     string          `mapstructure:"user"`
	Store    *StoreConfig    `mapstructure:"store"`
	History  *HistoryConfig  `mapstructure:"history"`
	AI       *AIConfig       `mapstructure:"ai"`
	Matching *MatchingConfig `mapstructure:"matching"`
	Server   *ServerConfig   `mapstructure:"server"`
}

type StoreConfig struct {
	// Driver is sqlite or postgres.
	Driver    string `mapstructure:"driver"`
	DSN       string `mapstructure:"dsn"`
	DSNFile   string `mapstructure:"dsn-file"`
	CacheSize int    `mapstructure:"cache-size"`
}

type HistoryConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Dir     string        `mapstructure:"dir"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type AIConfig struct {
	// Provider is gemini or openai.
	Provider     string         `mapstructure:"provider"`
	MaxLogLength int            `mapstructure:"max-log-length"`
	Breaker      *BreakerConfig `mapstructure:"breaker"`
	Gemini       *GeminiConfig  `mapstructure:"gemini"`
	OpenAI       *OpenAIConfig  `mapstructure:"openai"`
}

type BreakerConfig struct {
	MaxFailures      uint32        `mapstructure:"max-failures"`
	Timeout          time.Duration `mapstructure:"timeout"`
	HalfOpenRequests uint32        `mapstructure:"half-open-requests"`
}

type GeminiConfig struct {
	APIKey              string `mapstructure:"api-key"`
	APIKeyFile          string `mapstructure:"api-key-file"`
	Model               string `mapstructure:"model"`
	EmbeddingModel      string `mapstructure:"embedding-model"`
	EmbeddingDimensions int32  `mapstructure:"embedding-dimensions"`
	MaxRetries          int    `mapstructure:"max-retries"`
}

type OpenAIConfig struct {
	APIKey         string  `mapstructure:"api-key"`
	APIKeyFile     string  `mapstructure:"api-key-file"`
	BaseURL        string  `mapstructure:"base-url"`
	Model          string  `mapstructure:"model"`
	EmbeddingModel string  `mapstructure:"embedding-model"`
	Temperature    float64 `mapstructure:"temperature"`
}

type MatchingConfig struct {
	PrefilterLimit         int           `mapstructure:"prefilter-limit"`
	BatchSize              int           `mapstructure:"batch-size"`
	MaxConcurrentBatches   int           `mapstructure:"max-concurrent-batches"`
	GroupPause             time.Duration `mapstructure:"group-pause"`
	MaxConsecutiveFailures int           `mapstructure:"max-consecutive-failures"`
	MinSimilarity          float64       `mapstructure:"min-similarity"`
	TopK                   int           `mapstructure:"top-k"`
	Strict                 bool          `mapstructure:"strict"`
	Timeout                time.Duration `mapstructure:"timeout"`
}

type ServerConfig struct {
	Addr           string  `mapstructure:"addr"`
	RateLimit      float64 `mapstructure:"rate-limit"`
	RateBurst      int     `mapstructure:"rate-burst"`
	MaxUploadBytes int64   `mapstructure:"max-upload-bytes"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "mission-matcher ranks your professional contacts against a mission you describe",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is mission-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().StringP("user", "u", "", "user id owning the sessions (default is $USER)")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))

	setDefaults()

	envs := map[string][]string{
		"user":                   {envPrefix + "_USER", "USER"},
		"store.dsn":              {envPrefix + "_STORE_DSN", "DATABASE_URL"},
		"ai.gemini.api-key":      {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"ai.openai.api-key":      {"OPENAI_API_KEY"},
		"ai.openai.base-url":     {"OPENAI_BASE_URL"},
		"server.addr":            {envPrefix + "_ADDR"},
		"ai.gemini.api-key-file": {"GEMINI_API_KEY_FILE"},
	}
	for key, names := range envs {
		if err := viper.BindEnv(append([]string{key}, names...)...); err != nil {
			log.Fatalf("binding %s environment variables: %v", key, err)
		}
	}
}

func setDefaults() {
	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("store.dsn", app+".db")
	viper.SetDefault("store.cache-size", store.DefaultCacheSize)

	viper.SetDefault("history.enabled", false)
	viper.SetDefault("history.dir", app+"-history")

	viper.SetDefault("ai.provider", gemini.ProviderName)
	viper.SetDefault("ai.max-log-length", 200)

	viper.SetDefault("matching.prefilter-limit", prefilter.DefaultLimit)
	viper.SetDefault("matching.batch-size", embedding.DefaultBatchSize)
	viper.SetDefault("matching.max-concurrent-batches", embedding.DefaultMaxConcurrentBatches)
	viper.SetDefault("matching.group-pause", embedding.DefaultGroupPause)
	viper.SetDefault("matching.max-consecutive-failures", embedding.DefaultMaxConsecutiveFailures)
	viper.SetDefault("matching.min-similarity", ranking.DefaultMinSimilarity)
	viper.SetDefault("matching.top-k", ranking.DefaultTopK)
	viper.SetDefault("matching.strict", true)
	viper.SetDefault("matching.timeout", matching.DefaultTimeout)

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.rate-limit", 10.0)
	viper.SetDefault("server.rate-burst", 20)
}

func initConfig() {
	// a missing .env is fine, the variables may come from the environment
	_ = godotenv.Load()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// The config file is optional, but we can't proceed if it is broken.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.Store == nil {
		config.Store = &StoreConfig{}
	}
	if config.History == nil {
		config.History = &HistoryConfig{}
	}
	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	if config.AI.Breaker == nil {
		config.AI.Breaker = &BreakerConfig{}
	}
	if config.AI.Gemini == nil {
		config.AI.Gemini = &GeminiConfig{}
	}
	if config.AI.OpenAI == nil {
		config.AI.OpenAI = &OpenAIConfig{}
	}
	if config.Matching == nil {
		config.Matching = &MatchingConfig{}
	}
	if config.Server == nil {
		config.Server = &ServerConfig{}
	}

	return config, nil
}
