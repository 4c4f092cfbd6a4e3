// Package store provides SQLite-backed durable storage for harvested facts.
//
// The store is append-only:
//   - metadata: normalized values forming one tree per logical record
//   - sourceData: raw payloads, versioned independently of the tree
//   - mappings / transformations: operator configuration, replaced in place
//   - messages: write-only harvest log
//
// # Versioning
//
// A row is active while deleted IS NULL. Superseding a row sets deleted and
// replacedByRowID and inserts the replacement; retiring a row sets deleted
// only. A partial unique index keeps at most one active row per slot
// (source, idInSource, parentRowID, field, place).
//
// # Transactions
//
// All writes for one logical record happen inside Store.WithTx. Either the
// whole set of appends, supersessions and retirements commits or none does.
// Every write in a transaction shares one timestamp taken from the Clock.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce parent and replacement references
//   - One open connection: SQLite allows a single writer
package store
