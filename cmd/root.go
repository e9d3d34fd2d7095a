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
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/vyakhya/internal/config"
)

var version = "0.1.0"

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "vyakhya",
	Short: "Contextual sentence explanation with Telugu translation",
	Long: `Vyakhya explains a sentence in the context of its paragraph using a
language model, then translates the explanation into Telugu.

Explanation backends: ollama, openrouter, openai (OpenAI-compatible, incl. Gemini)
Translation strategies: nllb, google, llm

Use "vyakhya serve" to start the HTTP service.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ./vyakhya.yaml if present)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("provider", "ollama", "explanation backend: ollama, openrouter, openai")
	pf.String("model", "llama3.2:1b", "explanation model")
	pf.String("mode", "sample", "generation mode: sample or greedy")
	pf.String("style", "detailed", "explanation style: detailed or brief")
	pf.String("strategy", "nllb", "translation strategy: nllb, google, llm")
	pf.Bool("refine", false, "polish nllb/google output with the explanation model")

	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = v.BindPFlag("log.format", pf.Lookup("log-format"))
	_ = v.BindPFlag("explainer.provider", pf.Lookup("provider"))
	_ = v.BindPFlag("explainer.model", pf.Lookup("model"))
	_ = v.BindPFlag("explainer.mode", pf.Lookup("mode"))
	_ = v.BindPFlag("explainer.style", pf.Lookup("style"))
	_ = v.BindPFlag("translator.strategy", pf.Lookup("strategy"))
	_ = v.BindPFlag("translator.refine", pf.Lookup("refine"))

	config.SetDefaults(v)
	config.BindEnv(v)
}

func initConfig() error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("vyakhya")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
