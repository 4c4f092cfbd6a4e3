package harvest

import (
	"context"
	"io"
	"log/slog"
)

// Message log process and type names.
const (
	ProcessHarvest = "harvest"

	MessageReport = "report"
	MessageError  = "error"
	MessageInfo   = "info"
)

// MessageSink persists message lines. *store.Store satisfies it.
type MessageSink interface {
	AppendMessage(ctx context.Context, process, msgType, message string) error
}

// MessageLog writes to the messages table without failing the caller.
// Write errors are logged and dropped.
//
// Must not be called while the caller holds a store transaction: the store
// has a single connection.
type MessageLog struct {
	sink   MessageSink
	logger *slog.Logger
}

// NewMessageLog creates a MessageLog. A nil sink makes Log a no-op.
func NewMessageLog(sink MessageSink, logger *slog.Logger) *MessageLog {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &MessageLog{sink: sink, logger: logger}
}

// Log appends one line.
func (l *MessageLog) Log(ctx context.Context, process, msgType, message string) {
	if l == nil || l.sink == nil {
		return
	}
	if err := l.sink.AppendMessage(ctx, process, msgType, message); err != nil {
		l.logger.Warn("message log write failed",
			"process", process,
			"type", msgType,
			"error", err)
	}
}
