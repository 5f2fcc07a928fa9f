package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the quiz solver service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Solver    SolverConfig    `mapstructure:"solver"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
	Listen   string `mapstructure:"listen"`
}

// AuthConfig holds the shared-secret credentials a requester must present.
type AuthConfig struct {
	StudentEmail  string `mapstructure:"student_email"`
	StudentSecret string `mapstructure:"student_secret"`
}

// SolverConfig bounds the solving loop.
type SolverConfig struct {
	TotalBudget time.Duration `mapstructure:"total_budget"`
	// MinStepCost is the minimum remaining budget worth starting another
	// step with: one content extraction plus one model call.
	MinStepCost time.Duration `mapstructure:"min_step_cost"`
	MaxSteps    int           `mapstructure:"max_steps"`
}

// ExtractConfig tunes content extraction and the render escalation heuristic.
type ExtractConfig struct {
	StaticTimeout time.Duration `mapstructure:"static_timeout"`
	RenderTimeout time.Duration `mapstructure:"render_timeout"`
	// RenderFloor is the minimum remaining budget required before a
	// headless render is attempted at all.
	RenderFloor     time.Duration `mapstructure:"render_floor"`
	MinVisibleChars int           `mapstructure:"min_visible_chars"`
	MaxChars        int           `mapstructure:"max_chars"`
	UserAgent       string        `mapstructure:"user_agent"`
}

// IngestConfig bounds file ingestion.
type IngestConfig struct {
	PerFileTimeout time.Duration `mapstructure:"per_file_timeout"`
	MaxFileBytes   int64         `mapstructure:"max_file_bytes"`
	MaxFiles       int           `mapstructure:"max_files"`
	TesseractLang  string        `mapstructure:"tesseract_lang"`
}

// LLMConfig contains provider credentials and the fixed candidate chain.
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	// Chain is the ordered candidate list; the reasoning chain escalates
	// down the list on failure. Each entry is "provider/model".
	Chain       []string      `mapstructure:"chain"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type    string        `mapstructure:"type"` // openai, gemini
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	PeriodicLogs bool `mapstructure:"periodic_logs"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("quizchain")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("QUIZCHAIN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Config file is optional; defaults plus env cover a full setup.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.listen", ":8080")

	viper.SetDefault("solver.total_budget", "3m")
	viper.SetDefault("solver.min_step_cost", "10s")
	viper.SetDefault("solver.max_steps", 20)

	viper.SetDefault("extract.static_timeout", "15s")
	viper.SetDefault("extract.render_timeout", "30s")
	viper.SetDefault("extract.render_floor", "20s")
	viper.SetDefault("extract.min_visible_chars", 200)
	viper.SetDefault("extract.max_chars", 20000)
	viper.SetDefault("extract.user_agent", "quizchain/1.0 (+https://github.com/quizchain/quizchain)")

	viper.SetDefault("ingest.per_file_timeout", "20s")
	viper.SetDefault("ingest.max_file_bytes", 20*1024*1024)
	viper.SetDefault("ingest.max_files", 8)
	viper.SetDefault("ingest.tesseract_lang", "eng")

	// Cheap and fast first, smarter on escalation.
	viper.SetDefault("llm.chain", []string{
		"gemini/gemini-2.0-flash-lite",
		"gemini/gemini-2.0-flash",
		"gemini/gemini-2.5-pro",
		"openai/gpt-4o-mini",
	})
	viper.SetDefault("llm.call_timeout", "30s")
	viper.SetDefault("llm.max_tokens", 1024)
	viper.SetDefault("llm.temperature", 0.2)

	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.periodic_logs", false)
}

// overrideFromEnv overrides configuration with environment variables
// for sensitive data that should never live in a config file.
func overrideFromEnv() {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		viper.Set("llm.providers.openai.type", "openai")
		viper.Set("llm.providers.openai.api_key", apiKey)
	}
	if apiKey := os.Getenv("GOOGLE_API_KEY"); apiKey != "" {
		viper.Set("llm.providers.gemini.type", "gemini")
		viper.Set("llm.providers.gemini.api_key", apiKey)
	}
	if email := os.Getenv("STUDENT_EMAIL"); email != "" {
		viper.Set("auth.student_email", email)
	}
	if secret := os.Getenv("STUDENT_SECRET"); secret != "" {
		viper.Set("auth.student_secret", secret)
	}
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if len(config.LLM.Providers) == 0 {
		return fmt.Errorf("at least one LLM provider must be configured (set OPENAI_API_KEY or GOOGLE_API_KEY)")
	}
	if len(config.LLM.Chain) == 0 {
		return fmt.Errorf("llm.chain must list at least one candidate model")
	}
	// Chain entries naming unconfigured providers are skipped at runtime
	// so one config file works with either key present; require only
	// that at least one entry is servable.
	servable := 0
	for _, entry := range config.LLM.Chain {
		provider, _, ok := SplitChainEntry(entry)
		if !ok {
			return fmt.Errorf("llm.chain entry %q is not of the form provider/model", entry)
		}
		if _, exists := config.LLM.Providers[provider]; exists {
			servable++
		}
	}
	if servable == 0 {
		return fmt.Errorf("no llm.chain entry matches a configured provider")
	}
	if config.Solver.TotalBudget <= 0 {
		return fmt.Errorf("solver.total_budget must be positive")
	}
	if config.Solver.MinStepCost <= 0 || config.Solver.MinStepCost >= config.Solver.TotalBudget {
		return fmt.Errorf("solver.min_step_cost must be positive and below the total budget")
	}
	return nil
}

// SplitChainEntry splits a "provider/model" chain entry.
func SplitChainEntry(entry string) (provider, model string, ok bool) {
	i := strings.IndexByte(entry, '/')
	if i <= 0 || i == len(entry)-1 {
		return "", "", false
	}
	return entry[:i], entry[i+1:], true
}
