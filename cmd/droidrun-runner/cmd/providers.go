package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/droidrun-stack/droidrun-runner/internal/types"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List supported LLM providers and their default models",
	Args:  cobra.NoArgs,
	RunE:  runProviders,
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

func runProviders(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tDEFAULT MODEL\tENV")
	for _, p := range types.Providers() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p, p.DefaultModel(), p.CredentialEnv())
	}
	return w.Flush()
}
