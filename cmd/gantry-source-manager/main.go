// Package main provides the Gantry source manager service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gantryci/gantry/pkg/cmd"
	"github.com/gantryci/gantry/pkg/log"
	"github.com/gantryci/gantry/pkg/otelhelper"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "gantry-source-manager",
		Usage:                 "Start the Gantry source manager service",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewProvidersCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "manager-id",
				Aliases: []string{"id"},
				Usage:   "Custom source manager ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("SOURCE_MANAGER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus provider (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "plugins-path",
				Usage:    "Path to the directory containing source provider plugins",
				Value:    "./plugins",
				Required: false,
				Sources:  cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.StringFlag{
				Name:    "providers",
				Usage:   "Comma-separated list of source providers to run (e.g., 'webhook,scheduler'). If empty, runs all available providers.",
				Value:   "",
				Sources: cli.EnvVars("SOURCE_PROVIDERS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			tracerProvider, err := otelhelper.InitTracer(ctx, "gantry-source-manager")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}
			defer func() {
				if err := tracerProvider.Shutdown(ctx); err != nil {
					slog.Error("Failed to shutdown tracer provider", "error", err)
				}
			}()

			managerID := command.String("manager-id")
			if managerID == "" {
				managerID = fmt.Sprintf("source-manager-%s", uuid.New().String()[:8])
			}

			providerFilter := parseProviderFilter(command.String("providers"))

			logger := log.WithModule("source-manager").With("manager_id", managerID)

			logger.InfoContext(ctx, "Initializing Gantry Source Manager",
				"providers", providerFilter)

			registry := cmd.NewRegistry(ctx, logger, command.String("plugins-path"))

			sourceEventBus := cmd.NewSourceEventBus(command.String("event-bus"), "gantry-source-manager", logger)
			defer func() {
				if err := sourceEventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close source event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			NewSourceProviderManager(
				managerID,
				persistence,
				sourceEventBus,
				logger,
				registry,
				providerFilter,
			).Start(ctx)

			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func parseProviderFilter(providers string) []string {
	if providers == "" {
		return nil
	}

	filter := strings.Split(providers, ",")
	for i, provider := range filter {
		filter[i] = strings.TrimSpace(provider)
	}

	return filter
}
