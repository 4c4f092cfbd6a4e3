// Package harness runs reconciliation scenarios written in YAML.
//
// A scenario seeds the rule tables, then runs steps against a fresh
// in-memory store. A step either reconciles one logical record (from raw
// source fields, which go through the mapper, or from an already mapped
// tree) or runs the identity resolver for a candidate. Assertions then
// inspect the final store.
//
// # Scenario Format
//
//	name: title_superseded
//	description: "A changed title supersedes the stored one"
//	steps:
//	  - name: first harvest
//	    source: arxiv
//	    id: "1234"
//	    fields:
//	      - {name: title, value: Old Title}
//	    expect: {record: new, created: 1}
//	  - name: second harvest
//	    source: arxiv
//	    id: "1234"
//	    tree:
//	      - {field: dc.title, value: New Title}
//	    expect: {record: modified, superseded: 1}
//	assertions:
//	  - type: history
//	    source: arxiv
//	    id: "1234"
//	    field: dc.title
//	    values: [Old Title, New Title]
//
// # Assertion Types
//
//   - active_value: an active row of the field holds the value (or, with
//     absent, no active row holds the field)
//   - history: the field's value history, oldest first, and/or its length
//   - active_count: number of active rows of a record
//   - no_dangling: no active row has a closed parent
//   - message_count: number of message log lines for a process and type
//
// # Deterministic Testing
//
// The store runs on testutil.StepClock, so row IDs, timestamps and the
// rendered write plans are identical across runs. The trace is compared
// against testdata/golden/<name>.golden as canonical JSON.
package harness
