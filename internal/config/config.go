package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LLM providers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderMock      = "mock"
)

// Store backends.
const (
	StoreMemory    = "memory"
	StoreSQLite    = "sqlite"
	StoreSurrealDB = "surrealdb"
)

// LLMConfig selects and tunes the text generator.
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	URL         string        `yaml:"url"`
	APIKey      string        `yaml:"api_key"`
	AWSRegion   string        `yaml:"aws_region"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
}

// SurrealDBConfig holds SurrealDB connection settings.
type SurrealDBConfig struct {
	URL       string `yaml:"url"`
	Namespace string `yaml:"namespace"`
	Database  string `yaml:"database"`
	User      string `yaml:"user"`
	Pass      string `yaml:"pass"`
}

// Config holds all configuration values.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	// Storage
	Store      string          `yaml:"store"`
	SQLitePath string          `yaml:"sqlite_path"`
	SurrealDB  SurrealDBConfig `yaml:"surrealdb"`

	LLM LLMConfig `yaml:"llm"`

	// Extra scenario seed files (*.md) merged over the built-in ones
	ScenarioDir string `yaml:"scenario_dir"`

	// Conversation tuning
	SupportOfferAt int `yaml:"support_offer_at"`

	// Facts distillation
	DistillQueue   int `yaml:"distill_queue"`
	DistillWorkers int `yaml:"distill_workers"`

	// Logging
	LogFile     string     `yaml:"log_file"`
	LogLevelRaw string     `yaml:"log_level"`
	LogLevel    slog.Level `yaml:"-"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		HTTPAddr:   ":8080",
		Store:      StoreSQLite,
		SQLitePath: "wspiernik.db",
		SurrealDB: SurrealDBConfig{
			URL:       "ws://localhost:8000/rpc",
			Namespace: "wspiernik",
			Database:  "care",
			User:      "root",
			Pass:      "root",
		},
		LLM: LLMConfig{
			Provider:    ProviderOllama,
			Model:       "llama3.1",
			URL:         "http://localhost:11434",
			AWSRegion:   "eu-central-1",
			Timeout:     30 * time.Second,
			Temperature: 0.7,
			MaxTokens:   1024,
		},
		SupportOfferAt: 12,
		DistillQueue:   64,
		DistillWorkers: 2,
		LogFile:        "/tmp/wspiernik.log",
		LogLevelRaw:    "INFO",
		LogLevel:       slog.LevelInfo,
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by WSPIERNIK_CONFIG, and environment variables, in that order of precedence.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("WSPIERNIK_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.HTTPAddr = getEnv("WSPIERNIK_HTTP_ADDR", cfg.HTTPAddr)
	cfg.Store = getEnv("WSPIERNIK_STORE", cfg.Store)
	cfg.SQLitePath = getEnv("WSPIERNIK_SQLITE_PATH", cfg.SQLitePath)

	cfg.SurrealDB.URL = getEnv("SURREALDB_URL", cfg.SurrealDB.URL)
	cfg.SurrealDB.Namespace = getEnv("SURREALDB_NAMESPACE", cfg.SurrealDB.Namespace)
	cfg.SurrealDB.Database = getEnv("SURREALDB_DATABASE", cfg.SurrealDB.Database)
	cfg.SurrealDB.User = getEnv("SURREALDB_USER", cfg.SurrealDB.User)
	cfg.SurrealDB.Pass = getEnv("SURREALDB_PASS", cfg.SurrealDB.Pass)

	cfg.LLM.Provider = strings.ToLower(getEnv("WSPIERNIK_LLM_PROVIDER", cfg.LLM.Provider))
	cfg.LLM.Model = getEnv("WSPIERNIK_LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.URL = getEnv("WSPIERNIK_LLM_URL", cfg.LLM.URL)
	cfg.LLM.APIKey = getEnv("WSPIERNIK_LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.AWSRegion = getEnv("AWS_REGION", cfg.LLM.AWSRegion)

	var err error
	if cfg.LLM.Timeout, err = getEnvDuration("WSPIERNIK_LLM_TIMEOUT", cfg.LLM.Timeout); err != nil {
		return Config{}, err
	}
	if cfg.LLM.Temperature, err = getEnvFloat("WSPIERNIK_LLM_TEMPERATURE", cfg.LLM.Temperature); err != nil {
		return Config{}, err
	}
	if cfg.LLM.MaxTokens, err = getEnvInt("WSPIERNIK_LLM_MAX_TOKENS", cfg.LLM.MaxTokens); err != nil {
		return Config{}, err
	}
	if cfg.SupportOfferAt, err = getEnvInt("WSPIERNIK_SUPPORT_OFFER_AT", cfg.SupportOfferAt); err != nil {
		return Config{}, err
	}
	if cfg.DistillQueue, err = getEnvInt("WSPIERNIK_DISTILL_QUEUE", cfg.DistillQueue); err != nil {
		return Config{}, err
	}
	if cfg.DistillWorkers, err = getEnvInt("WSPIERNIK_DISTILL_WORKERS", cfg.DistillWorkers); err != nil {
		return Config{}, err
	}

	cfg.ScenarioDir = getEnv("WSPIERNIK_SCENARIO_DIR", cfg.ScenarioDir)
	cfg.LogFile = getEnv("WSPIERNIK_LOG_FILE", cfg.LogFile)
	cfg.LogLevelRaw = getEnv("WSPIERNIK_LOG_LEVEL", cfg.LogLevelRaw)
	cfg.LogLevel = parseLogLevel(cfg.LogLevelRaw)

	return cfg, cfg.Validate()
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects unknown backends and non-positive sizes.
func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreMemory, StoreSQLite, StoreSurrealDB:
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	switch c.LLM.Provider {
	case ProviderOllama, ProviderOpenAI, ProviderAnthropic, ProviderBedrock, ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}
	if c.SupportOfferAt <= 0 {
		errs = append(errs, errors.New("support_offer_at must be positive"))
	}
	if c.DistillQueue <= 0 || c.DistillWorkers <= 0 {
		errs = append(errs, errors.New("distill queue and workers must be positive"))
	}
	if c.LLM.Timeout < 0 {
		errs = append(errs, errors.New("llm timeout must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
