/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/valpere/vyakhya/internal/config"
	"github.com/valpere/vyakhya/internal/detector"
	"github.com/valpere/vyakhya/internal/explainer"
	"github.com/valpere/vyakhya/internal/llm"
	"github.com/valpere/vyakhya/internal/pipeline"
	"github.com/valpere/vyakhya/internal/refiner"
	"github.com/valpere/vyakhya/internal/server"
	"github.com/valpere/vyakhya/internal/translator"
	"github.com/valpere/vyakhya/internal/validator"
)

// loadConfig resolves flags, environment and config file into a Config.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cfg.Log), nil
}

// buildLLMClient constructs the explanation backend named by
// explainer.provider.
func buildLLMClient(cfg config.ExplainerConfig, logger *slog.Logger) (llm.Client, error) {
	switch cfg.Provider {
	case "ollama":
		return llm.NewOllamaClient(cfg.BaseURL, cfg.Model, cfg.PullModel, logger), nil
	case "openrouter":
		return llm.NewOpenRouterClient(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "openai":
		return llm.NewOpenAIClient(llm.OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}), nil
	default:
		return nil, fmt.Errorf("unknown explainer provider: %s", cfg.Provider)
	}
}

// buildTranslator constructs the strategy named by translator.strategy. The
// llm strategy and the refine pass share the explainer's client.
func buildTranslator(ctx context.Context, cfg config.TranslatorConfig, client llm.Client) (translator.TranslationService, error) {
	svc, err := buildStrategy(ctx, cfg, client)
	if err != nil {
		return nil, err
	}
	if cfg.Refine && cfg.Strategy != "llm" {
		return translator.NewRefinedService(svc, refiner.NewLLMRefiner(client)), nil
	}
	return svc, nil
}

func buildStrategy(ctx context.Context, cfg config.TranslatorConfig, client llm.Client) (translator.TranslationService, error) {
	switch cfg.Strategy {
	case "nllb":
		return translator.NewNLLBService(translator.NLLBConfig{
			BaseURL:     cfg.NLLB.BaseURL,
			Model:       cfg.NLLB.Model,
			APIKey:      cfg.NLLB.APIKey,
			SourceToken: cfg.NLLB.SourceToken,
			TargetToken: cfg.NLLB.TargetToken,
			MaxChars:    cfg.NLLB.MaxChars,
			MaxLength:   cfg.NLLB.MaxLength,
			Timeout:     cfg.NLLB.Timeout,
		}), nil
	case "google":
		return translator.NewGoogleService(ctx, translator.GoogleConfig{
			Credentials: cfg.Google.Credentials,
			APIKey:      cfg.Google.APIKey,
			ProjectID:   cfg.Google.ProjectID,
		})
	case "llm":
		return translator.NewLLMTranslator(client), nil
	default:
		return nil, fmt.Errorf("unknown translator strategy: %s", cfg.Strategy)
	}
}

// buildPipeline wires every backend once; the result is shared by all
// requests and must be closed by the caller.
func buildPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline.Pipeline, error) {
	client, err := buildLLMClient(cfg.Explainer, logger)
	if err != nil {
		return nil, err
	}

	gen := explainer.New(client, explainer.Config{
		Mode:          explainer.Mode(cfg.Explainer.Mode),
		Style:         explainer.Style(cfg.Explainer.Style),
		Temperature:   cfg.Explainer.Temperature,
		TopP:          cfg.Explainer.TopP,
		Seed:          cfg.Explainer.Seed,
		MaxTokens:     cfg.Explainer.MaxTokens,
		StripMarkdown: cfg.Explainer.StripMarkdown,
	})

	tr, err := buildTranslator(ctx, cfg.Translator, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create translator: %w", err)
	}

	var val pipeline.ScriptValidator
	if cfg.Validation.TeluguScript {
		val = validator.New(detector.New())
	}

	logger.Info("pipeline configured",
		"provider", cfg.Explainer.Provider,
		"model", cfg.Explainer.Model,
		"mode", cfg.Explainer.Mode,
		"style", cfg.Explainer.Style,
		"strategy", cfg.Translator.Strategy,
		"refine", cfg.Translator.Refine,
		"max_concurrent", cfg.Inference.MaxConcurrent)

	return pipeline.New(gen, tr, val, pipeline.Config{
		SourceLang:     cfg.Translator.SourceLang,
		TargetLang:     cfg.Translator.TargetLang,
		MaxConcurrent:  cfg.Inference.MaxConcurrent,
		ValidateScript: cfg.Validation.TeluguScript,
	}, logger), nil
}

func serverConfig(cfg config.ServerConfig) server.Config {
	return server.Config{
		Addr:            cfg.Addr,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		RequestTimeout:  cfg.RequestTimeout,
	}
}
