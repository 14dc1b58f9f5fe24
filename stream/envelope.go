// Package stream implements the research agent's event streaming
// pipeline (spec.md §5): a closed Envelope vocabulary, a Bus that also
// satisfies graph/emit.Emitter so it can be handed straight to
// graph.New as a run's emitter, and a bridge that forwards a subgraph
// run's custom events onto its parent's bus in order.
package stream

// Type is the closed envelope-type vocabulary (spec.md §5).
type Type string

const (
	TypeTrace       Type = "trace"
	TypeCustom      Type = "custom"
	TypeStateUpdate Type = "state_update"
	TypeSystem      Type = "system"
	TypeError       Type = "error"
	TypeComplete    Type = "complete"
)

// Envelope is the wire-level unit every consumer of a run's event
// stream receives (spec.md §5, the 5-field Envelope).
type Envelope struct {
	Type        Type           `json:"type"`
	TimestampMS int64          `json:"timestamp_ms"`
	Node        string         `json:"node"`
	Event       string         `json:"event"`
	Payload     map[string]any `json:"payload"`
}
