package mapper

import (
	"context"
	"strings"

	"github.com/roach88/irts/internal/ir"
)

// MapStats counts what BuildTree did with the raw fields of one record.
type MapStats struct {
	Mapped  int `json:"mapped"`
	Skipped int `json:"skipped"`
	Empty   int `json:"empty"`
}

// BuildTree maps and transforms the raw fields of one payload into an
// incoming tree. Places follow input order per (parent, field). Unmapped
// fields follow the unmapped policy; a dropped field drops its children.
// Values that are empty or blank after transformation are left out unless
// the node still has children, in which case it is kept as a container.
func (m *Mapper) BuildTree(ctx context.Context, source string, raw []ir.RawField) (ir.Tree, MapStats, error) {
	var (
		tree  ir.Tree
		stats MapStats
	)
	if err := m.buildLevel(ctx, source, "", raw, &tree, &stats); err != nil {
		return nil, stats, err
	}
	return tree, stats, nil
}

func (m *Mapper) buildLevel(ctx context.Context, source, enclosing string, raw []ir.RawField, out *ir.Tree, stats *MapStats) error {
	for _, f := range raw {
		parent := f.Parent
		if parent == "" {
			parent = enclosing
		}

		standard, ok, err := m.MapField(ctx, source, f.Name, parent)
		if err != nil {
			return err
		}
		if !ok {
			stats.Skipped++
			continue
		}

		value, err := m.ApplyTransforms(ctx, source, standard, f.Value)
		if err != nil {
			return err
		}

		var children ir.Tree
		if err := m.buildLevel(ctx, source, f.Name, f.Children, &children, stats); err != nil {
			return err
		}

		var node *ir.Node
		switch {
		case strings.TrimSpace(value) != "":
			node = out.Add(standard, value)
		case len(children) > 0:
			node = out.AddContainer(standard)
		default:
			stats.Empty++
			continue
		}
		node.Children = children
		stats.Mapped++
	}
	return nil
}
