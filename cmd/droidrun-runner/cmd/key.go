package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/droidrun-stack/droidrun-runner/internal/credentials"
	"github.com/droidrun-stack/droidrun-runner/internal/types"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage provider API keys",
	Long: `Manage the API keys passed to the droidrun CLI.

Keys are stored in apikeys.json in the data directory and handed to the
tool as <PROVIDER>_API_KEY when a task runs.`,
}

var keySetCmd = &cobra.Command{
	Use:   "set <provider> <key>",
	Short: "Store the API key for a provider",
	Args:  cobra.ExactArgs(2),
	RunE:  runKeySet,
}

var keyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored API keys (masked)",
	Args:  cobra.NoArgs,
	RunE:  runKeyList,
}

var keyDeleteCmd = &cobra.Command{
	Use:   "delete <provider>",
	Short: "Remove the API key for a provider",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeyDelete,
}

var keyDeleteYes bool

func init() {
	keyDeleteCmd.Flags().BoolVarP(&keyDeleteYes, "yes", "y", false, "do not ask for confirmation")
	keyCmd.AddCommand(keySetCmd, keyListCmd, keyDeleteCmd)
	rootCmd.AddCommand(keyCmd)
}

func keyStore() (*credentials.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return credentials.NewStore(cfg.CredentialsFile()), nil
}

func runKeySet(cmd *cobra.Command, args []string) error {
	provider, err := types.ParseProvider(args[0])
	if err != nil {
		return err
	}
	key := strings.TrimSpace(args[1])
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}

	store, err := keyStore()
	if err != nil {
		return err
	}
	if err := store.Set(context.Background(), string(provider), key); err != nil {
		return fmt.Errorf("saving key: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s key (%s)\n", provider, credentials.Mask(key))
	return nil
}

func runKeyList(cmd *cobra.Command, args []string) error {
	store, err := keyStore()
	if err != nil {
		return err
	}
	keys, err := store.All(context.Background())
	if err != nil {
		return fmt.Errorf("reading keys: %w", err)
	}

	// Known providers first, then anything else found in the file.
	known := make(map[string]bool)
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tENV\tKEY")
	for _, p := range types.Providers() {
		value := "(not set)"
		for name, key := range keys {
			if strings.EqualFold(name, string(p)) && key != "" {
				value = credentials.Mask(key)
				known[name] = true
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", p, p.CredentialEnv(), value)
	}

	var extra []string
	for name := range keys {
		if !known[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		fmt.Fprintf(w, "%s\t-\t%s\n", strings.ToLower(name), credentials.Mask(keys[name]))
	}
	return w.Flush()
}

func runKeyDelete(cmd *cobra.Command, args []string) error {
	provider, err := types.ParseProvider(args[0])
	if err != nil {
		return err
	}
	store, err := keyStore()
	if err != nil {
		return err
	}
	ok, err := confirmed(cmd, fmt.Sprintf("Delete the %s key?", provider), keyDeleteYes)
	if err != nil || !ok {
		return err
	}
	if err := store.Delete(context.Background(), string(provider)); err != nil {
		return fmt.Errorf("deleting key: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s key\n", provider)
	return nil
}
