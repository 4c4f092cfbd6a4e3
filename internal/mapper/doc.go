// Package mapper turns source-vocabulary fields into standardized fields.
//
// Two rule sets drive it, both operator-managed configuration read from the
// store and cached for the lifetime of a Mapper:
//   - mappings: (source, sourceField, parentFieldInSource) -> standardField
//   - transformations: ordered value rewrite steps per (source, field)
//
// Caches include negative results and are invalidated only by ClearCache.
// A transformation rule that cannot be applied never fails a harvest: it is
// logged as a configuration error and skipped.
package mapper
