package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/droidrun-stack/droidrun-runner/internal/ledger"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Inspect per-device setup state",
	Long: `Inspect whether the portal app has been installed on a device.

Setup runs automatically before the first task on a device; a marker file
in the data directory records success.`,
}

var setupStatusCmd = &cobra.Command{
	Use:   "status <device>",
	Short: "Show whether a device has been set up",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetupStatus,
}

func init() {
	setupCmd.AddCommand(setupStatusCmd)
	rootCmd.AddCommand(setupCmd)
}

func runSetupStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := ledger.NewFileStore(cfg.DataDir())
	if err != nil {
		return err
	}

	device := args[0]
	ok, err := ledger.New(store, nil).IsProvisioned(context.Background(), device)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if ok {
		fmt.Fprintf(out, "%s: set up (%s)\n", device, store.Path(device))
	} else {
		fmt.Fprintf(out, "%s: not set up; the next task will install the portal\n", device)
	}
	return nil
}
