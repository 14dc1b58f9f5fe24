package stream

import (
	"context"
	"sync"
	"time"

	"github.com/dshills/deepgraph/graph/emit"
)

// Bus fans an in-flight run's Envelopes out to every active subscriber
// (an SSE handler, the CLI's stdout sink, a test collector) and also
// implements emit.Emitter so it can be passed straight to graph.New as
// the engine's emitter for a run.
//
// Unlike the drop-oldest ring buffer a bounded event bus would use,
// Publish never discards an envelope: a slow subscriber applies
// backpressure to the publisher rather than losing events (spec.md §5
// explicitly forbids silently dropping stream events). Subscribers
// each get their own buffered channel; a full channel blocks Publish
// until the subscriber drains it or its context is done.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Envelope
	nextID int
	runID  string
}

// NewBus creates a Bus for a single run. runID is attached to every
// emit.Event translated through Emit/EmitBatch so downstream consumers
// of the raw graph event stream (if any) can still correlate by run.
func NewBus(runID string) *Bus {
	return &Bus{subs: make(map[int]chan Envelope), runID: runID}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe func. The channel is closed once unsubscribe is called;
// callers must keep draining it until then to avoid blocking Publish.
func (b *Bus) Subscribe() (<-chan Envelope, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Envelope, 64)
	b.subs[id] = ch
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
	return ch, unsub
}

// Publish delivers env to every current subscriber, blocking on a full
// subscriber channel until it drains or ctx is done. A subscriber that
// unsubscribes mid-publish is simply skipped.
func (b *Bus) Publish(ctx context.Context, env Envelope) error {
	b.mu.RLock()
	chans := make([]chan Envelope, 0, len(b.subs))
	for _, ch := range b.subs {
		chans = append(chans, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chans {
		select {
		case ch <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Emit implements emit.Emitter, translating a graph-level Event into a
// trace or error Envelope and publishing it with a background
// context. Node-start/complete and retry/backoff events map to
// TypeTrace; anything carrying a Meta["error"] maps to TypeError.
//
// node_end additionally auto-derives a state_update envelope (spec.md
// §4.9, "the engine inserts at most one state_update envelope per node
// per step, auto-derived from the reducer result"): every node_end
// event already carries the node's reducer delta in Meta["delta"]
// (graph.Engine.emitNodeEnd), so no engine change is needed to observe
// it here. Emitted only when the delta actually changed a field,
// keeping the "at most one" guarantee honest for routing-only nodes.
func (b *Bus) Emit(event emit.Event) {
	ctx := context.Background()
	_ = b.Publish(ctx, envelopeFromEmit(event))
	b.emitDerivedStateUpdate(ctx, event)
}

// EmitBatch implements emit.Emitter.
func (b *Bus) EmitBatch(ctx context.Context, events []emit.Event) error {
	for _, e := range events {
		if err := b.Publish(ctx, envelopeFromEmit(e)); err != nil {
			return err
		}
		b.emitDerivedStateUpdate(ctx, e)
	}
	return nil
}

func (b *Bus) emitDerivedStateUpdate(ctx context.Context, event emit.Event) {
	if event.Msg != "node_end" {
		return
	}
	delta, ok := event.Meta["delta"]
	if !ok {
		return
	}
	fields := stateUpdateFields(delta)
	if fields == nil {
		return
	}
	_ = b.PublishStateUpdate(ctx, event.NodeID, fields)
}

// Flush implements emit.Emitter; the Bus has no internal buffer to
// drain, so Flush always succeeds immediately.
func (b *Bus) Flush(ctx context.Context) error { return nil }

// PublishTrace streams one node_call/reasoning/search/custom-echo trace
// entry (spec.md §6 vocabulary: trace/node_call|reasoning|search|state_update|custom).
// The trace collector (agent/trace.Collector) subscribes for exactly
// these envelopes to build a run's execution_trace.
func (b *Bus) PublishTrace(ctx context.Context, node, kind string, payload map[string]any) error {
	return b.Publish(ctx, Envelope{
		Type:        TypeTrace,
		TimestampMS: nowMS(),
		Node:        node,
		Event:       kind,
		Payload:     payload,
	})
}

// PublishSystem emits a system envelope, used once per run for
// system/thread_id (spec.md §6).
func (b *Bus) PublishSystem(ctx context.Context, event string, payload map[string]any) error {
	return b.Publish(ctx, Envelope{
		Type:        TypeSystem,
		TimestampMS: nowMS(),
		Event:       event,
		Payload:     payload,
	})
}

// PublishCustom is the entry point node implementations use to stream
// domain-level progress (spec.md §5 "custom" envelopes): search hit
// counts, market candidate counts, clarification prompts.
func (b *Bus) PublishCustom(ctx context.Context, node, event string, payload map[string]any) error {
	return b.Publish(ctx, Envelope{
		Type:        TypeCustom,
		TimestampMS: nowMS(),
		Node:        node,
		Event:       event,
		Payload:     payload,
	})
}

// PublishStateUpdate streams a post-reduce state snapshot. Called
// automatically from Emit for every node_end event that changed a
// field (see emitDerivedStateUpdate); exported so a node can also
// publish one directly for a delta the engine never sees as a node_end
// (spec.md §4.9: subgraph state_update envelopes are not forwarded to
// the parent bus, by stream.Bridge).
func (b *Bus) PublishStateUpdate(ctx context.Context, node string, payload map[string]any) error {
	return b.Publish(ctx, Envelope{
		Type:        TypeStateUpdate,
		TimestampMS: nowMS(),
		Node:        node,
		Event:       "state_update",
		Payload:     payload,
	})
}

// PublishComplete emits the terminal envelope for a run.
func (b *Bus) PublishComplete(ctx context.Context, payload map[string]any) error {
	return b.Publish(ctx, Envelope{
		Type:        TypeComplete,
		TimestampMS: nowMS(),
		Event:       "complete",
		Payload:     payload,
	})
}

// PublishError emits the terminal error envelope for a failed run
// (spec.md §4.9: "{type: error, event: error, payload: {error:
// <message>}} is appended before propagation").
func (b *Bus) PublishError(ctx context.Context, message string) error {
	return b.Publish(ctx, Envelope{
		Type:        TypeError,
		TimestampMS: nowMS(),
		Event:       "error",
		Payload:     map[string]any{"error": message},
	})
}

func envelopeFromEmit(event emit.Event) Envelope {
	typ := TypeTrace
	if event.Meta != nil {
		if _, hasErr := event.Meta["error"]; hasErr {
			typ = TypeError
		}
	}
	return Envelope{
		Type:        typ,
		TimestampMS: nowMS(),
		Node:        event.NodeID,
		Event:       event.Msg,
		Payload:     event.Meta,
	}
}

func nowMS() int64 { return time.Now().UnixMilli() }
