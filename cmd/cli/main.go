package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is stamped at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "counterfact",
		Short:         "Counterfactual policy evaluation with quality-gated GO / CANARY / HOLD decisions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newValidateCmd(),
		newEvaluateCmd(),
		newGenerateCmd(),
	)
	return rootCmd
}
