package main

import (
	"fmt"
	"os"

	"counterfact/domain/scenario"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate [spec-file]",
		Short: "Validate a scenario document and print its normalized form",
		Long: `Validate a YAML or JSON scenario document without touching any data.

Example: counterfact validate scenarios/S1_top_uplift.yaml --strict`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read spec: %w", err)
			}
			spec, err := scenario.Parse(raw, scenario.ParseOptions{Strict: strict})
			if err != nil {
				return err
			}
			normalized, err := scenario.Marshal(spec)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s is valid\n%s", spec.ID, normalized)
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Reject unknown keys")
	return cmd
}
