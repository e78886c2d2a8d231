package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gantryci/gantry/pkg/cmd"
	"github.com/gantryci/gantry/pkg/services"
	"github.com/urfave/cli/v3"
)

func NewImportCommand() *cli.Command {
	return &cli.Command{
		Name:    "import",
		Aliases: []string{"i"},
		Usage:   "Import pipeline definition files into the store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "definitions-path",
				Usage:    "Path to the directory containing pipeline definition files",
				Value:    "./pipelines",
				Required: false,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := slog.With(
				"module", "gantry-dispatcher",
				"action", "import",
			)

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			result, err := services.NewDefinitions(persistence).ImportDir(ctx, command.String("definitions-path"))
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			for _, slug := range result.Created {
				fmt.Printf("created %s\n", slug)
			}

			for _, slug := range result.Updated {
				fmt.Printf("updated %s\n", slug)
			}

			fmt.Printf("\nImported %d pipeline definitions (%d created, %d updated)\n",
				len(result.Created)+len(result.Updated), len(result.Created), len(result.Updated))

			return nil
		},
	}
}
