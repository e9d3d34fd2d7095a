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
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/valpere/vyakhya/internal"
	"github.com/valpere/vyakhya/internal/pipeline"
)

var (
	paragraph string
	sentence  string
	inputFile string
	timeout   time.Duration
)

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Explain and translate one sentence and print the JSON result",
	Long: `Run the explain-and-translate pipeline once without starting a server.

The paragraph can be given inline with --paragraph or read from a file with
--input. The result is printed to stdout in the same JSON shape the HTTP
service returns.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputFile != "" {
			data, err := os.ReadFile(inputFile)
			if err != nil {
				return fmt.Errorf("failed to read input file: %w", err)
			}
			paragraph = string(data)
		}

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		p, err := buildPipeline(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer p.Close()

		if err := p.Warmup(ctx); err != nil {
			return err
		}

		resp, err := p.Run(ctx, internal.ExplainRequest{
			ID:        uuid.NewString(),
			Paragraph: paragraph,
			Sentence:  sentence,
			})
		if err != nil {
			if !pipeline.IsInvalidRequest(err) {
				logger.Error("explain failed", "error", err)
			}
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	},
}

func init() {
	rootCmd.AddCommand(explainCmd)

	explainCmd.Flags().StringVarP(&paragraph, "paragraph", "p", "", "context paragraph")
	explainCmd.Flags().StringVarP(&sentence, "sentence", "s", "", "sentence or word to explain")
	explainCmd.Flags().StringVarP(&inputFile, "input", "i", "", "read the paragraph from a file")
	explainCmd.Flags().DurationVar(&timeout, "timeout", 0, "overall deadline (0 = none)")
	explainCmd.MarkFlagsMutuallyExclusive("paragraph", "input")
	_ = explainCmd.MarkFlagRequired("sentence")
}
