package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/droidrun-stack/droidrun-runner/internal/templates"
	"github.com/droidrun-stack/droidrun-runner/internal/types"
)

var templateCmd = &cobra.Command{
	Use:     "template",
	Aliases: []string{"templates"},
	Short:   "Manage saved task templates",
	Long: `Manage reusable task descriptions grouped by category.

Run a template with 'droidrun-runner run --template <category>/<name>'.
Templates in the common category can be referenced by name alone.`,
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates",
	Args:  cobra.NoArgs,
	RunE:  runTemplateList,
}

var templateAddCmd = &cobra.Command{
	Use:   "add <category> <name> <description>",
	Short: "Add a template",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runTemplateAdd,
}

var templateRemoveCmd = &cobra.Command{
	Use:   "remove <category> <name>",
	Short: "Remove a template",
	Args:  cobra.ExactArgs(2),
	RunE:  runTemplateRemove,
}

func init() {
	templateCmd.AddCommand(templateListCmd, templateAddCmd, templateRemoveCmd)
	rootCmd.AddCommand(templateCmd)
}

func templateStore() (*templates.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return templates.NewStore(cfg.TemplatesFile()), nil
}

func runTemplateList(cmd *cobra.Command, args []string) error {
	store, err := templateStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	all, err := store.All(ctx)
	if err != nil {
		return err
	}
	categories, err := store.Categories(ctx)
	if err != nil {
		return err
	}

	if len(categories) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No templates")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tNAME\tDESCRIPTION")
	for _, category := range categories {
		for _, t := range all[category] {
			fmt.Fprintf(w, "%s\t%s\t%s\n", category, t.Name, t.Description)
		}
	}
	return w.Flush()
}

func runTemplateAdd(cmd *cobra.Command, args []string) error {
	store, err := templateStore()
	if err != nil {
		return err
	}
	t := types.Template{
		Name:        args[1],
		Description: strings.Join(args[2:], " "),
	}
	if err := store.Add(context.Background(), args[0], t); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added template %s/%s\n", args[0], t.Name)
	return nil
}

func runTemplateRemove(cmd *cobra.Command, args []string) error {
	store, err := templateStore()
	if err != nil {
		return err
	}
	removed, err := store.Remove(context.Background(), args[0], args[1])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("template not found: %s/%s", args[0], args[1])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed template %s/%s\n", args[0], args[1])
	return nil
}
