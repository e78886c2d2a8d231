package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gantryci/gantry/pkg/defs"
	"github.com/urfave/cli/v3"
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate pipeline definition files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "definitions-path",
				Usage:    "Path to the directory containing pipeline definition files",
				Value:    "./pipelines",
				Required: false,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			dir := command.String("definitions-path")

			files, err := definitionFiles(dir)
			if err != nil {
				return err
			}

			if len(files) == 0 {
				return fmt.Errorf("no pipeline definitions found in %s", dir)
			}

			fmt.Println("Pipeline Definition Validation Results:")
			fmt.Println("=======================================")

			valid := 0
			invalid := 0

			for _, file := range files {
				fmt.Printf("\nDefinition: %s\n", filepath.Base(file))

				def, err := defs.Load(file)
				if err != nil {
					fmt.Printf("    ❌ INVALID: %v\n", err)
					invalid++

					continue
				}

				if err := def.Validate(); err != nil {
					fmt.Printf("    ❌ INVALID: %v\n", err)
					invalid++

					continue
				}

				fmt.Printf("    ✅ VALID: %s\n", def.Name)
				valid++
			}

			fmt.Printf("\nValidation Summary:\n")
			fmt.Printf("  Total definitions: %d\n", valid+invalid)
			fmt.Printf("  Valid definitions: %d\n", valid)
			fmt.Printf("  Invalid definitions: %d\n", invalid)

			if invalid > 0 {
				return fmt.Errorf("found %d invalid pipeline definitions", invalid)
			}

			fmt.Println("All pipeline definitions are valid! ✅")

			return nil
		},
	}
}

// definitionFiles lists the .yaml/.yml files directly under dir, sorted by
// name.
func definitionFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions directory %s: %w", dir, err)
	}

	files := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		files = append(files, filepath.Join(dir, entry.Name()))
	}

	sort.Strings(files)

	return files, nil
}
