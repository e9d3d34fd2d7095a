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
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	lambdasdk "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/spf13/cobra"

	"github.com/valpere/vyakhya/internal/server"
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Run as an AWS Lambda function behind API Gateway",
	Long: `Run under the AWS Lambda runtime. API Gateway HTTP API (payload v2) events
are served by the same routes as "vyakhya serve". Scheduled events of the form
{"source": "warmup", "concurrency": N} load the models and asynchronously
invoke N further instances.`,
	Hidden: os.Getenv("AWS_LAMBDA_FUNCTION_NAME") == "",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := context.Background()
		p, err := buildPipeline(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer p.Close()

		var invoker server.Invoker
		if awsCfg, err := awsconfig.LoadDefaultConfig(ctx); err != nil {
			logger.Warn("AWS config unavailable, warm-up fan-out disabled", "error", err)
		} else {
			invoker = lambdasdk.NewFromConfig(awsCfg)
		}

		srv := server.New(p, serverConfig(cfg.Server), logger)
		h := server.NewLambdaHandler(srv, p, invoker, os.Getenv("AWS_LAMBDA_FUNCTION_NAME"))
		lambda.Start(h.Handle)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lambdaCmd)
}
