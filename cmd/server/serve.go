package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/execbox/config"
	"github.com/isdmx/execbox/execution"
	"github.com/isdmx/execbox/httpserver"
	"github.com/isdmx/execbox/logger"
	"github.com/isdmx/execbox/mcpserver"
	"github.com/isdmx/execbox/metrics"
	"github.com/isdmx/execbox/sandbox"
	"github.com/isdmx/execbox/validator"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the execution API server",
	Long: `Start the HTTP server exposing POST /api/execute-code and GET /healthz.

Examples:
  execbox serve
  execbox serve --config /etc/execbox/config.yaml --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	app := fx.New(appOptions(configFlag, portFlag))
	app.Run()
	return app.Err()
}

func loadConfig(path string, port int) func() (*config.Config, error) {
	return func() (*config.Config, error) {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		if port > 0 {
			cfg.Server.HTTPPort = port
		}
		return cfg, nil
	}
}

func appOptions(configPath string, port int) fx.Option {
	return fx.Options(
		fx.Provide(
			loadConfig(configPath, port),
			logger.NewFromConfig,
			validator.New,
			sandbox.NewExecutor,
			metrics.NewProvider,
			metrics.New,
			execution.NewService,
			httpserver.New,
			mcpserver.New,
		),

		fx.Invoke(
			metrics.Register,
			httpserver.Register,
			mcpserver.Register,
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)
}
