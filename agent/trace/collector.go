// Package trace collects a run's trace-type bus events into an ordered
// list and reconciles that list against persistence once the run
// terminates (spec.md §4.7).
package trace

import (
	"encoding/json"
	"sync"

	"github.com/dshills/deepgraph/agent/state"
	"github.com/dshills/deepgraph/persistence/messagestore"
	"github.com/dshills/deepgraph/stream"
)

// Collector subscribes to a run's Bus and accumulates trace-type
// envelopes in observation order. It also accepts any execution_trace
// entries a terminal node's own reducer merge produced directly
// (spec.md §4.7: "captures any execution_trace array emitted in
// updates from terminal nodes"), appended after whatever the bus
// already delivered for that node so per-node order is preserved.
type Collector struct {
	threadID string
	runID    string

	mu        sync.Mutex
	events    []messagestore.TraceEvent
	next      int
	messageID string
}

// NewCollector subscribes bus and returns a Collector that stops
// collecting once unsub is called (caller's responsibility, typically
// deferred alongside the run).
func NewCollector(bus *stream.Bus, threadID, runID string) (*Collector, func()) {
	c := &Collector{threadID: threadID, runID: runID}
	ch, unsub := bus.Subscribe()

	go func() {
		for env := range ch {
			if env.Type != stream.TypeTrace {
				continue
			}
			c.add(env.Event, env.Payload, env.TimestampMS)
		}
	}()

	return c, unsub
}

func (c *Collector) add(kind string, payload map[string]any, timestampMS int64) {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, messagestore.TraceEvent{
		ThreadID:    c.threadID,
		RunID:       c.runID,
		EventIndex:  c.next,
		Kind:        kind,
		Payload:     raw,
		TimestampMS: timestampMS,
	})
	c.next++
}

// AppendTerminalTrace folds a terminal node's own ExecutionTrace delta
// (state.Supervisor.ExecutionTrace) in after whatever the bus already
// delivered — these are events the node created just before returning,
// which the bus subscription may not have drained yet when the run
// returns.
func (c *Collector) AppendTerminalTrace(events []state.TraceEvent) {
	for _, e := range events {
		c.add(e.Kind, e.Payload, e.Timestamp)
	}
}

// SetMessageID records the message this run's trace belongs to. It is
// only known once Runtime.finalize has persisted the run's assistant
// message and received its assigned id back, which happens after every
// event in this Collector has already been captured — so the id is
// stamped onto events at read time (Events, MessageID) rather than at
// collection time.
func (c *Collector) SetMessageID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messageID = id
}

// MessageID returns the message id set by SetMessageID, or "" if none
// has been set yet.
func (c *Collector) MessageID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messageID
}

// Events returns the collected trace in observation order, with dense
// event indices already assigned and MessageID stamped from the most
// recent SetMessageID call.
func (c *Collector) Events() []messagestore.TraceEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]messagestore.TraceEvent, len(c.events))
	copy(out, c.events)
	for i := range out {
		out[i].MessageID = c.messageID
	}
	return out
}
