package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/gantryci/gantry/pkg/cmd"
	"github.com/gantryci/gantry/pkg/log"
	cli "github.com/urfave/cli/v3"
)

// NewProvidersCommand lists the source providers this binary can host,
// including any loaded from plugins.
func NewProvidersCommand() *cli.Command {
	return &cli.Command{
		Name:    "providers",
		Aliases: []string{"p"},
		Usage:   "List available source providers and the events they emit",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "plugins-path",
				Usage:    "Path to the directory containing source provider plugins",
				Value:    "./plugins",
				Required: false,
				Sources:  cli.EnvVars("PLUGINS_PATH"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("source-manager")

			registry := cmd.NewRegistry(ctx, logger, command.String("plugins-path"))
			factories := registry.AvailableSourceProviders()

			fmt.Printf("Available source providers: %d\n", len(factories))

			for _, factory := range factories {
				fmt.Printf("\nProvider: %s (%s)\n", factory.Name(), factory.ID())
				fmt.Printf("  %s\n", factory.Description())

				if eventTypes := factory.EventTypes(); len(eventTypes) > 0 {
					fmt.Printf("  Events: %s\n", strings.Join(eventTypes, ", "))
				}
			}

			return nil
		},
	}
}
