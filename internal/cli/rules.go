package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/irts/internal/ir"
	"github.com/roach88/irts/internal/rules"
)

// RulesListOptions holds flags for the rules list command.
type RulesListOptions struct {
	*RootOptions
	Source string
}

// NewRulesCommand creates the rules command group.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage field mappings and transformations",
		Long: `Rule files (.cue, .yaml, or a directory holding a CUE package) declare
per-source mappings from source field names to standard fields, and the
value transformations applied to each source field.`,
	}
	cmd.AddCommand(newRulesCheckCommand(rootOpts))
	cmd.AddCommand(newRulesLoadCommand(rootOpts))
	cmd.AddCommand(newRulesListCommand(rootOpts))
	return cmd
}

func newRulesCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <path>",
		Short: "Validate a rule file without touching the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := rules.LoadPath(args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "invalid rules", err)
			}
			return outputRuleSet(rootOpts.formatter(cmd), "valid", rs)
		},
	}
}

func newRulesLoadCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load <path>",
		Short: "Seed a rule file into the store",
		Long: `Seed a rule file into the store. Mappings are upserted; the
transformations of every source named in the file replace the stored ones.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := rules.LoadPath(args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "invalid rules", err)
			}

			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			st, err := rootOpts.openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := rules.Seed(cmd.Context(), st, rs)
			if err != nil {
				return err
			}

			f := rootOpts.formatter(cmd)
			if f.Format == "json" {
				return f.Success(stats)
			}
			return f.Success(fmt.Sprintf("Seeded %d sources: %d mappings, %d transformations",
				stats.Sources, stats.Mappings, stats.Transformations))
		},
	}
}

func newRulesListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RulesListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the stored rules",
		Args:  cobra.NoArgs,
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

			mappings, err := st.ListMappings(cmd.Context(), opts.Source)
			if err != nil {
				return err
			}
			transformations, err := st.ListTransformations(cmd.Context(), opts.Source)
			if err != nil {
				return err
			}
			return outputRuleSet(opts.formatter(cmd), "", &rules.RuleSet{
				Mappings:        mappings,
				Transformations: transformations,
			})
		},
	}
	cmd.Flags().StringVar(&opts.Source, "source", "", "only list rules of this source")
	return cmd
}

type ruleSetOutput struct {
	Mappings        []ir.MappingRule        `json:"mappings"`
	Transformations []ir.TransformationRule `json:"transformations"`
}

func outputRuleSet(f *OutputFormatter, header string, rs *rules.RuleSet) error {
	if f.Format == "json" {
		out := ruleSetOutput{
			Mappings:        rs.Mappings,
			Transformations: rs.Transformations,
		}
		if out.Mappings == nil {
			out.Mappings = []ir.MappingRule{}
		}
		if out.Transformations == nil {
			out.Transformations = []ir.TransformationRule{}
		}
		return f.Success(out)
	}
	return f.Success(formatRuleSet(header, rs))
}

// formatRuleSet renders mappings as "source: parent/field -> standard" and
// transformations in application order.
func formatRuleSet(header string, rs *rules.RuleSet) string {
	var b strings.Builder
	if header != "" {
		fmt.Fprintf(&b, "%s: %d mappings, %d transformations\n", header, len(rs.Mappings), len(rs.Transformations))
	}
	fmt.Fprintf(&b, "Mappings (%d):\n", len(rs.Mappings))
	for _, m := range rs.Mappings {
		field := m.SourceField
		if m.ParentFieldInSource != "" {
			field = m.ParentFieldInSource + "/" + m.SourceField
		}
		fmt.Fprintf(&b, "  %s: %s -> %s\n", m.Source, field, m.StandardField)
	}
	fmt.Fprintf(&b, "Transformations (%d):", len(rs.Transformations))
	for _, t := range rs.Transformations {
		fmt.Fprintf(&b, "\n  %s: %s %d %s", t.Source, t.Field, t.Priority, t.Type)
		if t.Parameter != "" {
			fmt.Fprintf(&b, " %q", t.Parameter)
		}
		if t.Value != "" {
			fmt.Fprintf(&b, " -> %q", t.Value)
		}
	}
	return b.String()
}
