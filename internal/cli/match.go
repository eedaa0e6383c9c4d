package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/wspiernik/internal/app"
	"github.com/raphaelgruber/wspiernik/internal/scenario"
)

var matchCmd = &cobra.Command{
	Use:   "match <description>",
	Short: "Show which crisis scenario a description matches",
	Long: `Classify a crisis description against the scenario catalog the same
way an intervention does, without starting a conversation.

Examples:
  wspiernik match "mama upadła w kuchni"
  wspiernik match tata nie wie gdzie jest`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMatch,
}

func runMatch(cmd *cobra.Command, args []string) error {
	catalog, err := app.LoadCatalog(cfg.ScenarioDir)
	if err != nil {
		return err
	}

	m := scenario.NewMatcher(catalog).Match(strings.Join(args, " "))
	w := cmd.OutOrStdout()
	if !m.Matched {
		fmt.Fprintln(w, "No scenario matched.")
		return nil
	}
	fmt.Fprintf(w, "%s: %s (confidence %.2f, keyword %q)\n", m.Scenario.Key, m.Scenario.Name, m.Confidence, m.Keyword)
	return nil
}
