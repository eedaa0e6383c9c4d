package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/wspiernik/internal/metrics"
)

var usageDetailed bool

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show server statistics",
	Long: `Show the running server's health, runtime statistics and token usage.

Examples:
  wspiernik usage
  wspiernik usage --detailed
  wspiernik usage --server http://care-box:8080`,
	Args: cobra.NoArgs,
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().BoolVar(&usageDetailed, "detailed", false, "show token min/max and all counters")
}

func runUsage(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	c := newClient()

	health, err := c.Health(ctx)
	if err != nil {
		return fmt.Errorf("get health: %w", err)
	}
	stats, err := c.Stats(ctx)
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Server %s (%s), version %s\n", c.BaseURL(), health.Status, health.Version)
	fmt.Fprintf(w, "Active sessions: %d, connections: %d\n\n", health.Sessions, health.Connections)
	printServerStats(w, stats)
	return nil
}

// printServerStats displays server runtime statistics.
func printServerStats(w io.Writer, stats *metrics.Snapshot) {
	fmt.Fprintf(w, "Server Statistics (in-memory, since restart)\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════\n")
	fmt.Fprintf(w, "Uptime: %.1f seconds\n", stats.UptimeSeconds)

	if stats.LLMGenerate != nil {
		fmt.Fprintf(w, "\nLLM Generate:\n")
		printOpStats(w, stats.LLMGenerate)
		printTokenStats(w, stats.LLMGenerate)
	}

	if stats.Distill != nil {
		fmt.Fprintf(w, "\nFact Distillation:\n")
		printOpStats(w, stats.Distill)
	}

	if stats.DBQuery != nil {
		fmt.Fprintf(w, "\nDB Query:\n")
		printOpStats(w, stats.DBQuery)
	}

	if stats.DBWrite != nil {
		fmt.Fprintf(w, "\nDB Write:\n")
		printOpStats(w, stats.DBWrite)
	}

	if len(stats.Counters) > 0 {
		fmt.Fprintf(w, "\nCounters:\n")
		names := make([]string, 0, len(stats.Counters))
		for name := range stats.Counters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if stats.Counters[name] == 0 && !usageDetailed {
				continue
			}
			fmt.Fprintf(w, "  %-20s %d\n", name, stats.Counters[name])
		}
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(w io.Writer, op *metrics.OperationSnapshot) {
	fmt.Fprintf(w, "  Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	fmt.Fprintf(w, "  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(w io.Writer, op *metrics.OperationSnapshot) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Fprintf(w, "  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Fprintf(w, ", avg %.0f", *op.AvgInputTokens)
	}
	if usageDetailed && op.MinInputTokens != nil && op.MaxInputTokens != nil {
		fmt.Fprintf(w, ", min %d, max %d", *op.MinInputTokens, *op.MaxInputTokens)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Fprintf(w, ", avg %.0f", *op.AvgOutputTokens)
	}
	if usageDetailed && op.MinOutputTokens != nil && op.MaxOutputTokens != nil {
		fmt.Fprintf(w, ", min %d, max %d", *op.MinOutputTokens, *op.MaxOutputTokens)
	}
	fmt.Fprintln(w)
}
