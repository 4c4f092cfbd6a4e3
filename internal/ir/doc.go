// Package ir provides the shared record types for the harvest system.
//
// This package contains type definitions and small pure helpers only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Rows are never physically deleted; Deleted and ReplacedByRowID carry history
//   - Place is zero-based and unique per (parent, field) among active rows
//   - Values are plain strings; nil marks a container-only node
//   - All JSON tags use snake_case
package ir
