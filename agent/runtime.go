// Package agent assembles the supervisor graph, its drivers, and both
// persistence stores into the single `run(user_message, thread_id?)`
// entry point spec.md §6 describes, and streams the run's envelopes
// to any caller-supplied sink while it executes.
package agent

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/deepgraph/agent/graphs"
	"github.com/dshills/deepgraph/agent/state"
	"github.com/dshills/deepgraph/agent/trace"
	"github.com/dshills/deepgraph/graph"
	"github.com/dshills/deepgraph/llm"
	"github.com/dshills/deepgraph/persistence/checkpoint"
	"github.com/dshills/deepgraph/persistence/messagestore"
	"github.com/dshills/deepgraph/stream"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Runtime owns the supervisor graph's dependencies and both
// persistence stores for the lifetime of the process; one Runtime
// serves every thread.
type Runtime struct {
	cfg Config

	checkpoints checkpoint.Store
	messages    messagestore.Store

	deps            graphs.SupervisorDeps
	metricsRegistry *prometheus.Registry
}

// NewRuntime wires a Runtime from cfg: builds the LLM/search/market
// drivers, opens both SQLite stores, and assembles the supervisor
// graph's dependency bundle. Callers own the returned Runtime's
// lifetime and must call Close when done.
func NewRuntime(cfg Config) (*Runtime, error) {
	cfg.Apply()

	chatModel, err := llm.New(cfg.LLM)
	if err != nil {
		return nil, err
	}

	checkpoints, err := checkpoint.NewSQLiteStore(cfg.CheckpointDBPath)
	if err != nil {
		return nil, err
	}
	messages, err := messagestore.NewSQLiteStore(cfg.MessageStoreDBPath)
	if err != nil {
		_ = checkpoints.Close()
		return nil, err
	}

	// One registry, one PrometheusMetrics instance for the process
	// lifetime: run_id is a label on every metric (graph/metrics.go),
	// not something the metrics object itself is scoped to, so every
	// run's engine shares it (examples/prometheus_monitoring's
	// registry-then-NewPrometheusMetrics construction, mirrored here).
	registry := prometheus.NewRegistry()
	metrics := graph.NewPrometheusMetrics(registry)

	return &Runtime{
		cfg:             cfg,
		checkpoints:     checkpoints,
		messages:        messages,
		metricsRegistry: registry,
		deps: graphs.SupervisorDeps{
			Model:              chatModel,
			NamerModel:         chatModel,
			Search:             cfg.NewSearchDriver(),
			Market:             cfg.NewMarketDriver(),
			IterationCap:       cfg.IterationCap,
			MaxQueryBreadth:    cfg.MaxQueryBreadth,
			MaxResultsPerQuery: cfg.MaxResultsPerQuery,
			MarketFetchLimit:   cfg.MarketFetchLimit,
			FallbackCandidates: cfg.MarketFallbackSize,
			Metrics:            metrics,
		},
	}, nil
}

// MetricsRegistry exposes the Prometheus registry backing this
// Runtime's engines, so a caller can mount a /metrics endpoint the way
// examples/prometheus_monitoring's main() does with promhttp.HandlerFor.
func (r *Runtime) MetricsRegistry() *prometheus.Registry { return r.metricsRegistry }

// Close releases both persistence stores.
func (r *Runtime) Close() error {
	err1 := r.checkpoints.Close()
	err2 := r.messages.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Run executes one turn of thread threadID (a fresh thread if empty)
// for userMessage, publishing every envelope onto bus as it runs
// (spec.md §6's `run(user_message, thread_id?) -> iterator<(mode,
// envelope)>`, adapted to a push model: callers subscribe to bus
// themselves via bus.Subscribe to get the iterator shape). It returns
// once the run and its finalize phase (persistence + trace
// reconciliation) complete.
func (r *Runtime) Run(ctx context.Context, bus *stream.Bus, userMessage, threadID string) error {
	isNewThread := threadID == ""
	if isNewThread {
		threadID = uuid.NewString()
	}
	_ = bus.PublishSystem(ctx, "thread_id", map[string]any{"thread_id": threadID})

	initial, err := r.initialState(ctx, threadID, userMessage)
	if err != nil {
		_ = bus.PublishError(ctx, err.Error())
		return err
	}
	if isNewThread {
		if err := r.messages.EnsureThread(ctx, threadID, "", time.Now().UnixMilli()); err != nil {
			return err
		}
	}

	runID := uuid.NewString()
	collector, unsub := trace.NewCollector(bus, threadID, runID)
	defer unsub()

	// CostTracker is scoped to one RunID (graph.NewCostTracker), unlike
	// Metrics, so it is built fresh per run rather than held on r.deps.
	deps := r.deps
	deps.CostTracker = graph.NewCostTracker(runID, "USD")

	eng, err := graphs.NewSupervisor(deps, bus)
	if err != nil {
		return err
	}

	final, err := eng.Run(ctx, runID, initial)
	if err != nil {
		var nodeErr *graph.NodeError
		msg := err.Error()
		if errors.As(err, &nodeErr) {
			msg = nodeErr.Error()
		}
		_ = bus.PublishError(ctx, msg)
		return err
	}

	if err := r.finalize(ctx, threadID, runID, final, collector); err != nil {
		return err
	}

	_ = bus.PublishComplete(ctx, map[string]any{"response": final.FinalReport})
	return nil
}

// initialState builds the run's starting state. On resume it is
// exactly {user_request, conversation_summary, conversation_history,
// current_report_version: prior+1} and nothing else — research_notes,
// execution_trace, and prediction_markets are never pre-populated from
// the prior checkpoint, since they are concat-reduced fields and
// copying them forward would double-append through the reducer
// (spec.md §6 entry-point note).
func (r *Runtime) initialState(ctx context.Context, threadID, userMessage string) (state.Supervisor, error) {
	cp, err := r.checkpoints.Latest(ctx, threadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return state.Supervisor{UserRequest: userMessage, ThreadID: threadID}, nil
	}
	if err != nil {
		return state.Supervisor{}, err
	}

	prior, err := checkpoint.DecodeState[state.Supervisor](cp)
	if err != nil {
		return state.Supervisor{}, err
	}

	return state.Supervisor{
		UserRequest:          userMessage,
		ConversationSummary:  prior.ConversationSummary,
		ConversationHistory:  prior.ConversationHistory,
		CurrentReportVersion: prior.CurrentReportVersion + 1,
		ThreadID:             threadID,
		ThreadName:           prior.ThreadName,
	}, nil
}

// finalize persists the turn's checkpoint, its queued user/assistant
// messages, and reconciles the run's collected trace onto the
// assistant message's persisted record (spec.md §4.6, §4.7).
func (r *Runtime) finalize(ctx context.Context, threadID, runID string, final state.Supervisor, collector *trace.Collector) error {
	now := time.Now().UnixMilli()

	cpID := uuid.NewString()
	parentID := ""
	if prior, err := r.checkpoints.Latest(ctx, threadID); err == nil {
		parentID = prior.ID
	}
	cp, err := checkpoint.EncodeState(cpID, threadID, parentID, final, now)
	if err != nil {
		return err
	}
	if err := r.checkpoints.Save(ctx, cp); err != nil {
		return err
	}

	if final.Pending != nil {
		if _, _, err := r.messages.AppendMessage(ctx, messagestore.Message{
			ThreadID: threadID, Role: "user", Content: final.Pending.UserContent, CreatedAtMS: now,
		}); err != nil {
			return err
		}
		assistantID, _, err := r.messages.AppendMessage(ctx, messagestore.Message{
			ThreadID: threadID, Role: "assistant", Content: final.Pending.AssistantContent, CreatedAtMS: now,
		})
		if err != nil {
			return err
		}
		collector.SetMessageID(assistantID)
	}

	collector.AppendTerminalTrace(final.ExecutionTrace)
	return trace.Reconcile(ctx, r.messages, collector)
}
