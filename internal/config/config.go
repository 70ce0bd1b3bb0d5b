package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "ADVERSE_SCREENER_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Fetcher  FetcherConfig  `yaml:"fetcher"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Matching MatchingConfig `yaml:"matching"`
	Database DatabaseConfig `yaml:"database"`
	Alerts   AlertConfig    `yaml:"alerts"`
	Batch    BatchConfig    `yaml:"batch"`
}

// LoggingConfig controls log verbosity and rendering.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FetcherConfig describes how article HTML is retrieved and bounded.
type FetcherConfig struct {
	TimeoutSeconds  int    `yaml:"timeoutSeconds"`
	MaxArticleChars int    `yaml:"maxArticleChars"`
	UserAgent       string `yaml:"userAgent"`
}

// Timeout resolves the configured fetch timeout.
func (f FetcherConfig) Timeout() time.Duration {
	if f.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// ProviderConfig describes one oracle backend. Providers earlier in the list
// have higher priority; fallback walks the list in order.
type ProviderConfig struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"` // "openai" (OpenAI-compatible) or "anthropic"
	BaseURL   string `yaml:"baseUrl"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"apiKeyEnv"`
}

// APIKey resolves the provider's key from its configured environment variable.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// OracleConfig groups backend priority and retry policy.
type OracleConfig struct {
	Providers      []ProviderConfig `yaml:"providers"`
	MaxAttempts    int              `yaml:"maxAttempts"`
	BackoffMillis  int              `yaml:"backoffMillis"`
	TimeoutSeconds int              `yaml:"timeoutSeconds"`
	MaxTokens      int              `yaml:"maxTokens"`
}

// Backoff resolves the base retry backoff.
func (o OracleConfig) Backoff() time.Duration {
	if o.BackoffMillis <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(o.BackoffMillis) * time.Millisecond
}

// Timeout resolves the per-call oracle timeout.
func (o OracleConfig) Timeout() time.Duration {
	if o.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// MatchingConfig carries the decision thresholds of the identity matcher.
type MatchingConfig struct {
	AgeToleranceYears int `yaml:"ageToleranceYears"`
}

// DatabaseConfig describes Postgres connection details for the report sink.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// AlertConfig encapsulates outbound alerting channels.
type AlertConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send adverse-match alerts.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// BatchConfig bounds concurrent screenings against oracle rate limits.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()

	if len(cfg.Oracle.Providers) == 0 {
		cfg.Oracle.Providers = defaultConfig().Oracle.Providers
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Alerts.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Alerts.Telegram.ChatID = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Fetcher.TimeoutSeconds > 0 {
		base.Fetcher.TimeoutSeconds = override.Fetcher.TimeoutSeconds
	}
	if override.Fetcher.MaxArticleChars > 0 {
		base.Fetcher.MaxArticleChars = override.Fetcher.MaxArticleChars
	}
	if override.Fetcher.UserAgent != "" {
		base.Fetcher.UserAgent = override.Fetcher.UserAgent
	}

	if len(override.Oracle.Providers) > 0 {
		base.Oracle.Providers = override.Oracle.Providers
	}
	if override.Oracle.MaxAttempts > 0 {
		base.Oracle.MaxAttempts = override.Oracle.MaxAttempts
	}
	if override.Oracle.BackoffMillis > 0 {
		base.Oracle.BackoffMillis = override.Oracle.BackoffMillis
	}
	if override.Oracle.TimeoutSeconds > 0 {
		base.Oracle.TimeoutSeconds = override.Oracle.TimeoutSeconds
	}
	if override.Oracle.MaxTokens > 0 {
		base.Oracle.MaxTokens = override.Oracle.MaxTokens
	}

	if override.Matching.AgeToleranceYears > 0 {
		base.Matching.AgeToleranceYears = override.Matching.AgeToleranceYears
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Alerts.Telegram.BotToken != "" {
		base.Alerts.Telegram.BotToken = override.Alerts.Telegram.BotToken
	}
	if override.Alerts.Telegram.ChatID != "" {
		base.Alerts.Telegram.ChatID = override.Alerts.Telegram.ChatID
	}

	if override.Batch.Concurrency > 0 {
		base.Batch.Concurrency = override.Batch.Concurrency
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Fetcher: FetcherConfig{
			TimeoutSeconds:  30,
			MaxArticleChars: 50000,
			UserAgent:       "AdverseScreener/1.0 (compliance screening)",
		},
		Oracle: OracleConfig{
			Providers: []ProviderConfig{
				{
					Name:      "groq",
					Kind:      "openai",
					BaseURL:   "https://api.groq.com/openai/v1",
					Model:     "llama-3.3-70b-versatile",
					APIKeyEnv: "GROQ_API_KEY",
				},
				{
					Name:      "openai",
					Kind:      "openai",
					BaseURL:   "https://api.openai.com/v1",
					Model:     "gpt-4o-2024-11-20",
					APIKeyEnv: "OPENAI_API_KEY",
				},
				{
					Name:      "anthropic",
					Kind:      "anthropic",
					BaseURL:   "https://api.anthropic.com",
					Model:     "claude-sonnet-4-20250514",
					APIKeyEnv: "ANTHROPIC_API_KEY",
				},
			},
			MaxAttempts:    3,
			BackoffMillis:  500,
			TimeoutSeconds: 60,
			MaxTokens:      4096,
		},
		Matching: MatchingConfig{AgeToleranceYears: 1},
		Database: DatabaseConfig{DSN: ""},
		Alerts:   AlertConfig{Telegram: TelegramConfig{BotToken: "", ChatID: ""}},
		Batch:    BatchConfig{Concurrency: 3},
	}
}
