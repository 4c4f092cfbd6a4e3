package ir

// Version constants for the store schema and tool.
const (
	// SchemaVersion is the store schema version recorded in PRAGMA user_version.
	SchemaVersion = 1

	// ToolVersion is the irts release version.
	ToolVersion = "0.1.0"
)
