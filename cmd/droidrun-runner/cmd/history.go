package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/rivo/uniseg"
	"github.com/spf13/cobra"

	"github.com/droidrun-stack/droidrun-runner/internal/history"
	"github.com/droidrun-stack/droidrun-runner/internal/status"
	"github.com/droidrun-stack/droidrun-runner/internal/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent task runs",
	Long: `Show recent task runs, newest first.

At most the last 100 runs are kept. Use --stats for per-device totals.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all run history",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClear,
}

var (
	historyLimit int
	historyStats bool
	historyYes   bool
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show (0 for all)")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "show totals instead of individual runs")
	historyClearCmd.Flags().BoolVarP(&historyYes, "yes", "y", false, "do not ask for confirmation")
	historyCmd.AddCommand(historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	entries, err := history.NewStore(cfg.HistoryFile()).List(context.Background())
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}

	out := cmd.OutOrStdout()
	opts := formatOptions(out)
	if historyStats {
		fmt.Fprint(out, status.FormatHistorySummary(status.NewHistorySummary(entries), opts))
		return nil
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No task history")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tDEVICE\tMODEL\tRESULT\tSTEPS\tTASK")
	shown := 0
	for i := len(entries) - 1; i >= 0; i-- {
		if historyLimit > 0 && shown == historyLimit {
			break
		}
		e := entries[i]
		state := status.EntryState(e)
		result := status.FormatState(state, opts) + " " + string(state)
		if state == types.RunStateFailed {
			result += ": " + truncate(e.Message, 40)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.Device, e.Model, result, e.StepsUsed, truncate(e.Task, 60))
		shown++
	}
	return w.Flush()
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ok, err := confirmed(cmd, "Delete all task history?", historyYes)
	if err != nil || !ok {
		return err
	}
	if err := history.NewStore(cfg.HistoryFile()).Clear(context.Background()); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
	return nil
}

// truncate flattens s onto one line and shortens it to at most width
// terminal cells without splitting a grapheme cluster.
func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if uniseg.StringWidth(s) <= width {
		return s
	}

	var b strings.Builder
	used := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		w := g.Width()
		if used+w > width-3 {
			break
		}
		b.WriteString(g.Str())
		used += w
	}
	return b.String() + "..."
}
