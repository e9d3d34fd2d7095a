// Package config loads service configuration from flags, environment and an
// optional config file through viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// VYAKHYA_EXPLAINER_MODEL for explainer.model.
const EnvPrefix = "VYAKHYA"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Explainer  ExplainerConfig  `mapstructure:"explainer"`
	Translator TranslatorConfig `mapstructure:"translator"`
	Inference  InferenceConfig  `mapstructure:"inference"`
	Validation ValidationConfig `mapstructure:"validation"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RequestTimeout bounds a single explain_translate call. Zero disables it.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ExplainerConfig struct {
	Provider      string  `mapstructure:"provider"`
	Model         string  `mapstructure:"model"`
	BaseURL       string  `mapstructure:"base_url"`
	APIKey        string  `mapstructure:"api_key"`
	Mode          string  `mapstructure:"mode"`
	Style         string  `mapstructure:"style"`
	Temperature   float64 `mapstructure:"temperature"`
	TopP          float64 `mapstructure:"top_p"`
	Seed          int     `mapstructure:"seed"`
	MaxTokens     int     `mapstructure:"max_tokens"`
	StripMarkdown bool    `mapstructure:"strip_markdown"`
	PullModel     bool    `mapstructure:"pull_model"`
}

type TranslatorConfig struct {
	Strategy   string `mapstructure:"strategy"`
	SourceLang string `mapstructure:"source_lang"`
	TargetLang string `mapstructure:"target_lang"`

	// Refine adds an LLM editing pass over nllb and google output.
	Refine bool         `mapstructure:"refine"`
	NLLB   NLLBConfig   `mapstructure:"nllb"`
	Google GoogleConfig `mapstructure:"google"`
}

type NLLBConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	SourceToken string        `mapstructure:"source_token"`
	TargetToken string        `mapstructure:"target_token"`
	MaxChars    int           `mapstructure:"max_chars"`
	MaxLength   int           `mapstructure:"max_length"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type GoogleConfig struct {
	Credentials string `mapstructure:"credentials"`
	ProjectID   string `mapstructure:"project_id"`
	APIKey      string `mapstructure:"api_key"`
}

type InferenceConfig struct {
	MaxConcurrent int64 `mapstructure:"max_concurrent"`
}

type ValidationConfig struct {
	TeluguScript bool `mapstructure:"telugu_script"`
}

// SetDefaults registers every key so that AutomaticEnv can resolve it during
// Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":6000")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 180*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.request_timeout", time.Duration(0))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("explainer.provider", "ollama")
	v.SetDefault("explainer.model", "llama3.2:1b")
	v.SetDefault("explainer.base_url", "")
	v.SetDefault("explainer.api_key", "")
	v.SetDefault("explainer.mode", "sample")
	v.SetDefault("explainer.style", "detailed")
	v.SetDefault("explainer.temperature", 0.7)
	v.SetDefault("explainer.top_p", 0.9)
	v.SetDefault("explainer.seed", 42)
	v.SetDefault("explainer.max_tokens", 0)
	v.SetDefault("explainer.strip_markdown", true)
	v.SetDefault("explainer.pull_model", false)

	v.SetDefault("translator.strategy", "nllb")
	v.SetDefault("translator.source_lang", "en")
	v.SetDefault("translator.target_lang", "te")
	v.SetDefault("translator.refine", false)
	v.SetDefault("translator.nllb.base_url", "http://localhost:8000")
	v.SetDefault("translator.nllb.model", "facebook/nllb-200-distilled-600M")
	v.SetDefault("translator.nllb.api_key", "")
	v.SetDefault("translator.nllb.source_token", "eng_Latn")
	v.SetDefault("translator.nllb.target_token", "tel_Telu")
	v.SetDefault("translator.nllb.max_chars", 400)
	v.SetDefault("translator.nllb.max_length", 400)
	v.SetDefault("translator.nllb.timeout", 120*time.Second)
	v.SetDefault("translator.google.credentials", "")
	v.SetDefault("translator.google.project_id", "")
	v.SetDefault("translator.google.api_key", "")

	v.SetDefault("inference.max_concurrent", 1)
	v.SetDefault("validation.telugu_script", true)
}

// BindEnv wires the VYAKHYA_ prefix plus the provider-native credential
// variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("env.openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("env.openrouter_api_key", "OPENROUTER_API_KEY")
	_ = v.BindEnv("env.google_api_key", "GOOGLE_API_KEY")
	_ = v.BindEnv("env.hf_token", "HF_TOKEN")
}

// Load unmarshals v into a Config, fills provider credentials from the
// well-known environment variables and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Explainer.APIKey == "" {
		switch cfg.Explainer.Provider {
		case "openai":
			cfg.Explainer.APIKey = v.GetString("env.openai_api_key")
			if cfg.Explainer.APIKey == "" {
				// Gemini through its OpenAI-compatible endpoint.
				cfg.Explainer.APIKey = v.GetString("env.google_api_key")
			}
		case "openrouter":
			cfg.Explainer.APIKey = v.GetString("env.openrouter_api_key")
		}
	}
	if cfg.Translator.Google.APIKey == "" && cfg.Translator.Google.Credentials == "" {
		cfg.Translator.Google.APIKey = v.GetString("env.google_api_key")
	}
	if cfg.Translator.NLLB.APIKey == "" {
		cfg.Translator.NLLB.APIKey = v.GetString("env.hf_token")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the service cannot start with.
func (c *Config) Validate() error {
	switch c.Explainer.Provider {
	case "ollama", "openrouter", "openai":
	default:
		return fmt.Errorf("unknown explainer provider %q", c.Explainer.Provider)
	}
	switch c.Explainer.Mode {
	case "sample", "greedy":
	default:
		return fmt.Errorf("unknown generation mode %q (want sample or greedy)", c.Explainer.Mode)
	}
	switch c.Explainer.Style {
	case "detailed", "brief":
	default:
		return fmt.Errorf("unknown explanation style %q (want detailed or brief)", c.Explainer.Style)
	}
	if c.Explainer.Model == "" {
		return fmt.Errorf("explainer.model is required")
	}
	if c.Explainer.Provider == "openrouter" && c.Explainer.APIKey == "" {
		return fmt.Errorf("explainer.api_key is required for openrouter")
	}

	switch c.Translator.Strategy {
	case "nllb":
		if c.Translator.NLLB.BaseURL == "" {
			return fmt.Errorf("translator.nllb.base_url is required")
		}
		if c.Translator.NLLB.TargetToken == "" {
			return fmt.Errorf("translator.nllb.target_token is required")
		}
	case "google", "llm":
	default:
		return fmt.Errorf("unknown translator strategy %q (want nllb, google or llm)", c.Translator.Strategy)
	}
	if c.Translator.TargetLang == "" {
		return fmt.Errorf("translator.target_lang is required")
	}

	if c.Inference.MaxConcurrent < 1 {
		return fmt.Errorf("inference.max_concurrent must be at least 1, got %d", c.Inference.MaxConcurrent)
	}
	return nil
}
