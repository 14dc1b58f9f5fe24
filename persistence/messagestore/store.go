// Package messagestore persists a thread's message history and its
// per-run execution trace, reconciled after each run completes (spec.md
// §4.7, §5 hybrid persistence). It is separate from persistence/checkpoint
// because the two have different write patterns: checkpoints are
// written once per turn as an opaque blob, while messages/trace events
// are appended incrementally (often from concurrent fan-out branches)
// and need a dense, gap-free ordering index.
package messagestore

import "context"

// Message is one persisted conversation turn. MessageID is a dense
// composite key ("<thread_id>#<message_index>") assigned by the store
// at append time — stable, derivable from ThreadID+MessageIndex alone,
// and exactly what TraceEvent.MessageID references (spec.md line 34:
// "TraceEvent. Belongs to one assistant message.").
type Message struct {
	ThreadID     string
	MessageID    string
	MessageIndex int // dense, 0-based, assigned by the store
	Role         string
	Content      string
	CreatedAtMS  int64
}

// TraceEvent is one persisted execution-trace entry, belonging to
// exactly one assistant message (spec.md §3). ThreadID/RunID are kept
// for display/debugging; MessageID is the actual foreign key used to
// look up, replace, and join a message's trace.
type TraceEvent struct {
	ThreadID    string
	RunID       string
	MessageID   string
	EventIndex  int
	Kind        string
	Payload     []byte // JSON-encoded map[string]any
	TimestampMS int64
}

// ThreadSummary is one row of ListThreads: enough to render a thread
// picker without loading every message.
type ThreadSummary struct {
	ID          string
	Name        string
	CreatedAtMS int64
}

// MessageWithTrace pairs a persisted message with the trace events
// belonging to it (empty for user messages, which never carry a
// trace), the shape GetHistory returns (spec.md line 192's
// "get_history(thread) -> [messages with traces]").
type MessageWithTrace struct {
	Message
	Trace []TraceEvent
}

// Store persists thread metadata, messages, and per-message trace
// events. Method names mirror spec.md line 191-192's driver interface
// (create_thread/append_message/set_trace/get_trace_count/
// delete_thread/list_threads/get_history) while keeping the Go-idiomatic
// names (EnsureThread, ReconcileTrace, ...) already established by the
// reducer/event vocabulary elsewhere in this package.
type Store interface {
	// EnsureThread creates threadID with name if it does not already
	// exist; it is a no-op (not an overwrite) if the thread exists.
	// Go equivalent of spec.md's create_thread.
	EnsureThread(ctx context.Context, threadID, name string, createdAtMS int64) error
	// AppendMessage assigns the next dense message_index for the thread
	// and inserts msg, within a transaction that computes the index
	// from the current max (spec.md §5 concurrency note), returning the
	// assigned (message_id, index) per spec.md's append_message.
	AppendMessage(ctx context.Context, msg Message) (messageID string, index int, err error)
	// Messages returns a thread's messages in message_index order.
	Messages(ctx context.Context, threadID string) ([]Message, error)

	// ReconcileTrace replaces messageID's stored trace with events only
	// if len(events) is strictly greater than what is currently stored,
	// per the "replace-when-longer" resolution of spec.md §9's open
	// question on partial-vs-complete trace reconciliation: a retried
	// or resumed run may re-submit a trace that duplicates a prefix of
	// what is already stored, and a shorter resubmission must never
	// regress a longer one already persisted. Go equivalent of spec.md's
	// set_trace(message_id, events).
	ReconcileTrace(ctx context.Context, messageID string, events []TraceEvent) error
	// Trace returns messageID's persisted trace events in event_index order.
	Trace(ctx context.Context, messageID string) ([]TraceEvent, error)
	// TraceCount returns the number of trace events stored for
	// messageID, without loading their payloads. Go equivalent of
	// spec.md's get_trace_count(message_id).
	TraceCount(ctx context.Context, messageID string) (int, error)

	// DeleteThread removes a thread and every message/trace event
	// belonging to it.
	DeleteThread(ctx context.Context, threadID string) error
	// ListThreads returns every thread, oldest first.
	ListThreads(ctx context.Context) ([]ThreadSummary, error)
	// GetHistory returns threadID's messages in message_index order,
	// each paired with its persisted trace events (spec.md line 192).
	GetHistory(ctx context.Context, threadID string) ([]MessageWithTrace, error)

	Close() error
}
