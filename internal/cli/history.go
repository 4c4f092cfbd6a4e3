package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/irts/internal/ir"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <source> <id> <field>",
		Short: "Show every value a field of a record has held",
		Long: `Show the value history of one field of a record, oldest first,
including superseded and retired rows.`,
		Example: `  irts history crossref 10.1000/xyz123 dc.title`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, id, field := args[0], args[1], args[2]

			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			st, err := rootOpts.openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			rows, err := st.HistoryFor(cmd.Context(), source, id, field)
			if err != nil {
				return err
			}

			f := rootOpts.formatter(cmd)
			if f.Format == "json" {
				if rows == nil {
					rows = []ir.ValueRecord{}
				}
				return f.Success(rows)
			}
			if len(rows) == 0 {
				return f.Success(fmt.Sprintf("No history for %s:%s %s.", source, id, field))
			}
			return f.Success(formatHistory(rows))
		},
	}
}

// formatHistory renders one line per row: added time, state and value.
func formatHistory(rows []ir.ValueRecord) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		value := "(none)"
		if r.Value != nil {
			value = fmt.Sprintf("%q", *r.Value)
		}

		state := "active"
		switch {
		case r.Active():
		case r.ReplacedByRowID != nil:
			state = fmt.Sprintf("replaced by #%d %s", *r.ReplacedByRowID, r.Deleted.UTC().Format(time.RFC3339))
		default:
			state = "retired " + r.Deleted.UTC().Format(time.RFC3339)
		}

		lines = append(lines, fmt.Sprintf("#%d [%d] %s %s (%s)",
			r.RowID, r.Place, r.Added.UTC().Format(time.RFC3339), value, state))
	}
	return strings.Join(lines, "\n")
}
