package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/firasghr/GoChallengeEngine/fingerprint"
	"github.com/firasghr/GoChallengeEngine/jschallenge"
	"github.com/firasghr/GoChallengeEngine/provider"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the registered evaluators, proof providers and profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "evaluators: %s\n", strings.Join(jschallenge.Names(), ", "))
			fmt.Fprintf(out, "providers:  %s\n", strings.Join(provider.Names(), ", "))
			fmt.Fprintf(out, "profiles:   %s\n", strings.Join(fingerprint.Names(), ", "))
			return nil
		},
	}
}
