package cmd

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TomkerDev/Al-Moussaid/internal/sources"
)

const (
	app       = "al-moussaid"
	envPrefix = "AL_MOUSSAID"
)

type Config struct {
	AI         *AIConfig         `mapstructure:"ai"`
	Embedding  *EmbeddingConfig  `mapstructure:"embedding"`
	Store      *StoreConfig      `mapstructure:"store"`
	Redis      *RedisConfig      `mapstructure:"redis"`
	Search     *SearchConfig     `mapstructure:"search"`
	Alerts     *AlertsConfig     `mapstructure:"alerts"`
	Extraction *ExtractionConfig `mapstructure:"extraction"`
	Ingestion  *IngestionConfig  `mapstructure:"ingestion"`
	Timeouts   *TimeoutsConfig   `mapstructure:"timeouts"`
	Filters    *FiltersConfig    `mapstructure:"filters"`
	Sources    []sources.Config  `mapstructure:"sources"`
}

type AIConfig struct {
	// Provider selects the language model: gemini or openai.
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
	OpenAI   *OpenAIConfig `mapstructure:"openai"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type OpenAIConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	BaseURL      string `mapstructure:"base-url"`
	Model        string `mapstructure:"model"`
	MaxTokens    int    `mapstructure:"max-tokens"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type EmbeddingConfig struct {
	// Provider selects the embedding backend: sidecar, gemini or openai.
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension"`
	// Version overrides the "<model>@<dimension>" tag stored with every vector.
	Version    string         `mapstructure:"version"`
	MaxRetries int            `mapstructure:"max-retries"`
	Sidecar    *SidecarConfig `mapstructure:"sidecar"`
}

type SidecarConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
}

type StoreConfig struct {
	// Driver is postgres or memory.
	Driver  string `mapstructure:"driver"`
	DSN     string `mapstructure:"dsn"`
	DSNFile string `mapstructure:"dsn-file"`
}

type RedisConfig struct {
	URL        string `mapstructure:"url"`
	LockPrefix string `mapstructure:"lock-prefix"`
}

type SearchConfig struct {
	Threshold float64 `mapstructure:"threshold"`
	Limit     int     `mapstructure:"limit"`
	MaxLimit  int     `mapstructure:"max-limit"`
}

type AlertsConfig struct {
	Threshold    float64 `mapstructure:"threshold"`
	MinThreshold float64 `mapstructure:"min-threshold"`
	// Notifier is log or redis.
	Notifier     string `mapstructure:"notifier"`
	RedisStream  string `mapstructure:"redis-stream"`
	StreamMaxLen int64  `mapstructure:"stream-max-len"`
}

type ExtractionConfig struct {
	MaxChars int `mapstructure:"max-chars"`
}

type IngestionConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Delay       time.Duration `mapstructure:"delay"`
	ItemTimeout time.Duration `mapstructure:"item-timeout"`
	Schedule    string        `mapstructure:"schedule"`
}

type TimeoutsConfig struct {
	Model     time.Duration `mapstructure:"model"`
	Embedding time.Duration `mapstructure:"embedding"`
	Store     time.Duration `mapstructure:"store"`
	Notify    time.Duration `mapstructure:"notify"`
}

type FiltersConfig struct {
	Companies []string `mapstructure:"companies"`
	RedFlags  []string `mapstructure:"red-flags"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "al-moussaid matches candidate profiles with job postings and alerts subscribers about new ones",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	for key, env := range map[string]string{
		"ai.gemini.api-key-file":         "GEMINI_API_KEY_FILE",
		"ai.openai.api-key-file":         "OPENAI_API_KEY_FILE",
		"embedding.sidecar.api-key-file": "EMBEDDING_API_KEY_FILE",
		"store.dsn-file":                 "DATABASE_DSN_FILE",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	setDefaults(viper.GetViper())

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is al-moussaid.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.gemini.api-key", "")
	v.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	v.SetDefault("ai.gemini.max-retries", 3)
	v.SetDefault("ai.gemini.max-log-length", 200)
	v.SetDefault("ai.openai.api-key", "")
	v.SetDefault("ai.openai.base-url", "")
	v.SetDefault("ai.openai.model", "")
	v.SetDefault("ai.openai.max-tokens", 1024)
	v.SetDefault("ai.openai.max-retries", 3)
	v.SetDefault("ai.openai.max-log-length", 200)

	v.SetDefault("embedding.provider", "sidecar")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimension", 384)
	v.SetDefault("embedding.version", "")
	v.SetDefault("embedding.max-retries", 3)
	v.SetDefault("embedding.sidecar.endpoint", "http://localhost:8080")
	v.SetDefault("embedding.sidecar.api-key", "")

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.dsn", "")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.lock-prefix", "")

	v.SetDefault("search.threshold", 0.35)
	v.SetDefault("search.limit", 20)
	v.SetDefault("search.max-limit", 100)

	v.SetDefault("alerts.threshold", 0.90)
	v.SetDefault("alerts.min-threshold", 0.0)
	v.SetDefault("alerts.notifier", "log")
	v.SetDefault("alerts.redis-stream", "")
	v.SetDefault("alerts.stream-max-len", 10000)

	v.SetDefault("extraction.max-chars", 1500)

	v.SetDefault("ingestion.concurrency", 1)
	v.SetDefault("ingestion.delay", time.Second)
	v.SetDefault("ingestion.item-timeout", 2*time.Minute)
	v.SetDefault("ingestion.schedule", "@every 6h")

	v.SetDefault("timeouts.model", 60*time.Second)
	v.SetDefault("timeouts.embedding", 30*time.Second)
	v.SetDefault("timeouts.store", 10*time.Second)
	v.SetDefault("timeouts.notify", 10*time.Second)

	v.SetDefault("filters.companies", []string{})
	v.SetDefault("filters.red-flags", []string{})
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// An explicit config file must parse; the default one is optional.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
