package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sundew-sh/sundew/internal/persona"
)

func newPersonaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "persona",
		Short: "Generate and inspect deployment personas",
	}

	var seed int64
	var out string
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a persona, optionally persisting it to a YAML file",
		RunE: func(_ *cobra.Command, _ []string) error {
			if seed == 0 {
				seed = persona.NewSeed()
			}
			p := persona.Generate(seed)
			if out != "" {
				if err := persona.SaveYAML(p, out); err != nil {
					return fmt.Errorf("failed to save persona: %w", err)
				}
				fmt.Printf("Persona for seed %d written to %s\n", p.Seed, out)
				return nil
			}
			return printYAML(p)
		},
	}
	generateCmd.Flags().Int64Var(&seed, "seed", 0, "Persona seed (0 picks a random seed)")
	generateCmd.Flags().StringVarP(&out, "out", "o", "", "Write the persona to this YAML file instead of stdout")

	showCmd := &cobra.Command{
		Use:   "show <persona.yaml>",
		Short: "Print a persisted persona",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := persona.LoadYAML(args[0])
			if err != nil {
				return fmt.Errorf("failed to load persona: %w", err)
			}
			return printYAML(p)
		},
	}

	cmd.AddCommand(generateCmd, showCmd)
	return cmd
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}
