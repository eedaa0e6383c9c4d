package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/wspiernik/internal/app"
	"github.com/raphaelgruber/wspiernik/internal/metrics"
	"github.com/raphaelgruber/wspiernik/internal/protocol"
)

var (
	listLimit int
	listLocal bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List facts or scenarios",
	Long: `List what wspiernik knows.

Subcommands:
  facts      List facts about the person cared for (default)
  scenarios  List the crisis scenarios

Examples:
  wspiernik list
  wspiernik list facts --limit 10
  wspiernik list facts --local
  wspiernik list scenarios`,
	RunE: runList,
}

var listFactsCmd = &cobra.Command{
	Use:   "facts",
	Short: "List stored facts",
	Args:  cobra.NoArgs,
	RunE:  runListFacts,
}

var listScenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List the crisis scenarios",
	Args:  cobra.NoArgs,
	RunE:  runListScenarios,
}

func init() {
	for _, c := range []*cobra.Command{listCmd, listFactsCmd} {
		c.Flags().IntVarP(&listLimit, "limit", "n", 0, "show only the newest n facts (0 = all)")
		c.Flags().BoolVar(&listLocal, "local", false, "read the configured store directly instead of a running server")
	}

	listCmd.AddCommand(listFactsCmd)
	listCmd.AddCommand(listScenariosCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	// If no subcommand, run facts
	return runListFacts(cmd, args)
}

func runListFacts(cmd *cobra.Command, args []string) error {
	if listLimit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	ctx := commandContext(cmd)

	var list *protocol.FactsListPayload
	if listLocal {
		st, err := app.OpenStore(ctx, cfg, cliLogger(cmd.ErrOrStderr()), metrics.NewCollector())
		if err != nil {
			return err
		}
		defer st.Close()

		total, err := st.CountFacts(ctx)
		if err != nil {
			return fmt.Errorf("count facts: %w", err)
		}
		facts, err := st.ListFacts(ctx, listLimit)
		if err != nil {
			return fmt.Errorf("list facts: %w", err)
		}
		list = &protocol.FactsListPayload{Facts: protocol.NewFactDTOs(facts), TotalCount: total}
	} else {
		var err error
		list, err = newClient().Facts(ctx, listLimit)
		if err != nil {
			return fmt.Errorf("list facts: %w", err)
		}
	}

	printFacts(cmd.OutOrStdout(), list)
	return nil
}

func printFacts(w io.Writer, list *protocol.FactsListPayload) {
	if len(list.Facts) == 0 {
		fmt.Fprintln(w, "No facts found.")
		return
	}

	fmt.Fprintf(w, "Facts (%d of %d):\n\n", len(list.Facts), list.TotalCount)
	for _, f := range list.Facts {
		fmt.Fprintf(w, "- [%s] %s", strings.Join(f.Tags, ", "), f.Value)
		if f.Severity != nil {
			fmt.Fprintf(w, " (severity %d)", *f.Severity)
		}
		fmt.Fprintln(w)
		if verbose {
			fmt.Fprintf(w, "  ID: %s, extracted %s\n", f.ID, f.ExtractedAt.Format("2006-01-02 15:04"))
			if f.ConversationID != "" {
				fmt.Fprintf(w, "  Conversation: %s\n", f.ConversationID)
			}
		}
	}
}

func runListScenarios(cmd *cobra.Command, args []string) error {
	catalog, err := app.LoadCatalog(cfg.ScenarioDir)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	defs := catalog.All()
	fmt.Fprintf(w, "Scenarios (%d):\n\n", len(defs))
	for _, d := range defs {
		fmt.Fprintf(w, "- %s: %s (%d questions)\n", d.Key, d.Name, len(d.Questions))
		if verbose {
			fmt.Fprintf(w, "  Keywords: %s\n", strings.Join(d.Keywords, ", "))
			for i, q := range d.Questions {
				fmt.Fprintf(w, "  %d. %s\n", i+1, q)
			}
		}
	}
	return nil
}
