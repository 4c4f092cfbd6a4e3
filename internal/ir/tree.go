package ir

import "sort"

// Node is one element of an incoming (already mapped and transformed) record.
type Node struct {
	Field    string  `json:"field" yaml:"field"`
	Place    int     `json:"place" yaml:"place"`
	Value    *string `json:"value,omitempty" yaml:"value,omitempty"`
	Children Tree    `json:"children,omitempty" yaml:"children,omitempty"`
}

// Key identifies a node among its siblings.
type Key struct {
	Field string
	Place int
}

// Key returns the (field, place) key of the node.
func (n *Node) Key() Key {
	return Key{Field: n.Field, Place: n.Place}
}

// ValueString returns the value or "" for container-only nodes.
func (n *Node) ValueString() string {
	if n.Value == nil {
		return ""
	}
	return *n.Value
}

// AddChild appends a child value. Place is assigned by input order among
// children with the same field.
func (n *Node) AddChild(field, value string) *Node {
	return n.Children.Add(field, value)
}

// Tree is an ordered forest of nodes for one logical record (or the
// children of one node).
type Tree []*Node

// Add appends a value for field, assigning place by input order among the
// siblings that share the field.
func (t *Tree) Add(field, value string) *Node {
	v := value
	return t.add(field, &v)
}

// AddContainer appends a value-less node that only groups children.
func (t *Tree) AddContainer(field string) *Node {
	return t.add(field, nil)
}

func (t *Tree) add(field string, value *string) *Node {
	place := 0
	for _, n := range *t {
		if n.Field == field && n.Place >= place {
			place = n.Place + 1
		}
	}
	n := &Node{Field: field, Place: place, Value: value}
	*t = append(*t, n)
	return n
}

// Find returns the node with the given key, or nil.
func (t Tree) Find(field string, place int) *Node {
	for _, n := range t {
		if n.Field == field && n.Place == place {
			return n
		}
	}
	return nil
}

// First returns the value of the first node carrying field, or "".
func (t Tree) First(field string) string {
	var best *Node
	for _, n := range t {
		if n.Field == field && (best == nil || n.Place < best.Place) {
			best = n
		}
	}
	if best == nil {
		return ""
	}
	return best.ValueString()
}

// Size returns the number of nodes in the tree, descendants included.
func (t Tree) Size() int {
	total := 0
	for _, n := range t {
		total += 1 + n.Children.Size()
	}
	return total
}

// StoredNode is an active ValueRecord together with its active children,
// ordered by field then place.
type StoredNode struct {
	ValueRecord
	Children []*StoredNode `json:"children,omitempty"`
}

// Key returns the (field, place) key of the stored node.
func (n *StoredNode) Key() Key {
	return Key{Field: n.Field, Place: n.Place}
}

// ToTree converts a stored forest back into an incoming-shaped tree. It is
// used for round-trip checks and for rendering.
func ToTree(nodes []*StoredNode) Tree {
	if len(nodes) == 0 {
		return nil
	}
	out := make(Tree, 0, len(nodes))
	for _, n := range nodes {
		var value *string
		if n.Value != nil {
			v := *n.Value
			value = &v
		}
		out = append(out, &Node{
			Field:    n.Field,
			Place:    n.Place,
			Value:    value,
			Children: ToTree(n.Children),
		})
	}
	return out
}

// SortNodes orders stored siblings by field then place.
func SortNodes(nodes []*StoredNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Field != nodes[j].Field {
			return nodes[i].Field < nodes[j].Field
		}
		return nodes[i].Place < nodes[j].Place
	})
}

// RawField is a field as it appears in a source payload, before mapping.
// Parent is the source name of the enclosing field ("" at top level).
type RawField struct {
	Name     string
	Parent   string
	Value    string
	Children []RawField
}
