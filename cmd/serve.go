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
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/vyakhya/internal/pipeline"
	"github.com/valpere/vyakhya/internal/server"
)

// warmupRetryInterval spaces warm-up attempts while a backend is still
// starting or pulling its model.
const warmupRetryInterval = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP service",
	Long: `Start the HTTP service exposing:

  POST /explain_translate  {"paragraph": "...", "sentence": "..."}
  GET  /health             liveness, no dependency checks
  GET  /ready              200 once the models are warm, 503 before

Requests to /explain_translate return 503 until warm-up completes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer p.Close()

		go warmUntilReady(ctx, p, logger)

		return server.New(p, serverConfig(cfg.Server), logger).ListenAndServe(ctx)
	},
}

// warmUntilReady retries warm-up until it succeeds or ctx ends. The server
// answers 503 in the meantime.
func warmUntilReady(ctx context.Context, p *pipeline.Pipeline, logger *slog.Logger) {
	for attempt := 1; ; attempt++ {
		err := p.Warmup(ctx)
		if err == nil {
			return
		}
		logger.Warn("warm-up failed, retrying", "attempt", attempt, "error", err, "retry_in", warmupRetryInterval)

		select {
		case <-ctx.Done():
			return
		case <-time.After(warmupRetryInterval):
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.String("addr", ":6000", "listen address")
	f.Int64("max-concurrent", 1, "maximum concurrent model calls")
	f.Duration("request-timeout", 0, "per-request deadline (0 = none)")

	_ = v.BindPFlag("server.addr", f.Lookup("addr"))
	_ = v.BindPFlag("inference.max_concurrent", f.Lookup("max-concurrent"))
	_ = v.BindPFlag("server.request_timeout", f.Lookup("request-timeout"))
}

