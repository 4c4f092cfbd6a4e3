// Package rules loads mapping and transformation rule files and seeds them
// into the store.
//
// Rule files come in two encodings with the same shape:
//
//	source: arxiv: {
//		mappings: [
//			{field: "title", standard: "dc.title"},
//			{field: "affiliation", parent: "author", standard: "dc.contributor.affiliation"},
//		]
//		transformations: [
//			{field: "dc.title", type: "regex", parameter: "\\s+", value: " ", priority: 1},
//		]
//	}
//
// CUE files (.cue, or a directory holding a CUE package) are unified with
// the #Source schema before decoding. YAML files (.yaml, .yml) use the same
// keys and are checked by Validate only.
package rules
