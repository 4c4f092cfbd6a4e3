// Package harvest drives sources through the pipeline.
//
// A run discovers items for each source, fetches and parses their payloads,
// maps the raw fields into a record tree, resolves the record's identity
// and reconciles it into the fact store. Items resolved as new to the
// institution are queued as "irts" records for processing. Each source run
// ends with a Report that is also written to the message log.
//
// Records are processed concurrently up to the configured worker count.
// A failing record is counted and logged; the run continues. A failing
// discovery aborts the run for that source and is returned to the caller.
package harvest
