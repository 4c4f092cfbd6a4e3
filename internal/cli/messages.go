package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/irts/internal/ir"
)

// MessagesOptions holds flags for the messages command.
type MessagesOptions struct {
	*RootOptions
	Process string
	Limit   int
}

// NewMessagesCommand creates the messages command.
func NewMessagesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MessagesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Show the harvest message log",
		Long: `Show the append-only message log: harvest reports, mapper
configuration errors and per-record failures, oldest first.`,
		Example: `  irts messages --process mapper
  irts messages --limit 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			st, err := opts.openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			msgs, err := st.Messages(cmd.Context(), opts.Process, opts.Limit)
			if err != nil {
				return err
			}

			f := opts.formatter(cmd)
			if f.Format == "json" {
				if msgs == nil {
					msgs = []ir.HarvestMessage{}
				}
				return f.Success(msgs)
			}
			if len(msgs) == 0 {
				return f.Success("No messages.")
			}
			return f.Success(formatMessages(msgs))
		},
	}

	cmd.Flags().StringVar(&opts.Process, "process", "", "only show messages of this process")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "show only the most recent N messages")

	return cmd
}

func formatMessages(msgs []ir.HarvestMessage) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s %s/%s: %s", m.Added.UTC().Format(time.RFC3339), m.Process, m.Type, m.Message)
	}
	return b.String()
}
