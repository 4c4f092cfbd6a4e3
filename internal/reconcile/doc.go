// Package reconcile diffs an incoming record tree against the active tree
// in the store and issues the minimal set of writes.
//
// The walk is depth-first and keyed by (field, place) among siblings:
//   - equal value: no write; the row is re-linked when its parent changed
//   - different value: supersede, then reconcile children under the new row
//   - incoming only: append the node and all its descendants
//   - stored only: retire the whole subtree, descendants first
//
// A parent is always written before its children, so every child write
// references a row that is active in the same transaction. Values are
// compared by exact string equality; a container (nil value) differs from
// an empty string.
package reconcile
