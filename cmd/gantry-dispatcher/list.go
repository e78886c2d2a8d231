package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gantryci/gantry/pkg/defs"
	"github.com/urfave/cli/v3"
)

func NewListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List pipeline definitions and their triggers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "definitions-path",
				Usage:    "Path to the directory containing pipeline definition files",
				Value:    "./pipelines",
				Required: false,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			files, err := definitionFiles(command.String("definitions-path"))
			if err != nil {
				return err
			}

			fmt.Println("Available Pipeline Definitions:")
			fmt.Println("===============================")

			totalTriggers := 0

			for _, file := range files {
				fmt.Printf("\nFile: %s\n", filepath.Base(file))

				def, err := defs.Load(file)
				if err != nil {
					fmt.Printf("  Failed to load: %v\n", err)

					continue
				}

				pipeline, err := def.Pipeline()
				if err != nil {
					fmt.Printf("  Failed to convert: %v\n", err)

					continue
				}

				fmt.Printf("Pipeline: %s (%s)\n", pipeline.Name, pipeline.Slug)
				fmt.Printf("Repository: %s\n", pipeline.Repository.URL)
				fmt.Printf("Triggers:\n")

				for _, trigger := range pipeline.Triggers {
					fmt.Printf("  - Kind: %s\n", trigger.Kind)

					if len(trigger.Branches) > 0 {
						fmt.Printf("    Branches: %s\n", strings.Join(trigger.Branches, ", "))
					}

					if len(trigger.Actions) > 0 {
						fmt.Printf("    Actions: %s\n", strings.Join(trigger.Actions, ", "))
					}

					if trigger.Cron != "" {
						fmt.Printf("    Cron: %s\n", trigger.Cron)
					}

					totalTriggers++
				}

				fmt.Printf("Steps: %d\n", len(pipeline.Steps))
			}

			fmt.Printf("\nTotal triggers: %d\n", totalTriggers)

			return nil
		},
	}
}
