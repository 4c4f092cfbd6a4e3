package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/irts/internal/ir"
)

// NewTreeCommand creates the tree command.
func NewTreeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tree <source> <id>",
		Short: "Show the active values of a record",
		Long: `Show the active value tree of a record: one line per value with its
field, place and row ID, children indented under their parent.`,
		Example: `  irts tree crossref 10.1000/xyz123
  irts tree arxiv 2401.01234 --format json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, id := args[0], args[1]

			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			st, err := rootOpts.openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			nodes, err := st.ActiveTreeFor(cmd.Context(), source, id)
			if err != nil {
				return err
			}
			if len(nodes) == 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("no active values for %s:%s", source, id))
			}

			f := rootOpts.formatter(cmd)
			if f.Format == "json" {
				return f.Success(nodes)
			}
			return f.Success(formatTree(source, id, nodes))
		},
	}
}

func formatTree(source, id string, nodes []*ir.StoredNode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%s", source, id)
	writeNodes(&b, nodes, 1)
	return b.String()
}

func writeNodes(b *strings.Builder, nodes []*ir.StoredNode, depth int) {
	for _, n := range nodes {
		fmt.Fprintf(b, "\n%s%s[%d]", strings.Repeat("  ", depth), n.Field, n.Place)
		if n.Value != nil {
			fmt.Fprintf(b, " = %q", *n.Value)
		}
		fmt.Fprintf(b, "  #%d", n.RowID)
		writeNodes(b, n.Children, depth+1)
	}
}
