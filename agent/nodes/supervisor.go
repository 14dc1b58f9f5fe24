package nodes

import (
	"context"
	"time"

	"github.com/dshills/deepgraph/agent/errs"
	"github.com/dshills/deepgraph/agent/state"
	"github.com/dshills/deepgraph/graph"
	"github.com/dshills/deepgraph/graph/model"
	"github.com/dshills/deepgraph/llm"
	"github.com/dshills/deepgraph/stream"
)

// Supervisor decides the next step from the accumulated state: dispatch
// research on a topic, finish to a terminal node, or ask a clarifying
// question (spec.md §4.4).
type Supervisor struct {
	Model        model.ChatModel
	NamerModel   model.ChatModel // low-temperature model used once for thread naming
	Bus          *stream.Bus
	IterationCap int
}

type supervisorDecision struct {
	NextTopic    string `json:"next_topic"` // "FINISH" | "CLARIFY:<q>" | a research topic
	Reasoning    string `json:"reasoning"`
	AnswerFormat string `json:"answer_format"` // "concise" | "report"
}

// Policy implements the optional graph node-policy interface: the
// structured-output decision call gets bounded retries against
// transient driver failures (spec.md §4.4, default 3 attempts).
func (n *Supervisor) Policy() graph.NodePolicy {
	return graph.NodePolicy{
		RetryPolicy: &graph.RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			Retryable:   errs.Retryable,
		},
	}
}

func (n *Supervisor) Run(ctx context.Context, s state.Supervisor) graph.NodeResult[state.Supervisor] {
	_ = n.Bus.PublishTrace(ctx, "supervisor", "node_call", map[string]any{"iteration": s.Iterations})

	iterations := s.Iterations + 1
	cap := n.IterationCap
	if cap <= 0 {
		cap = 10
	}

	var threadName string
	if s.Iterations == 0 && n.NamerModel != nil {
		out, err := n.NamerModel.Chat(ctx, []model.Message{
			{Role: model.RoleSystem, Content: "Produce a short (3-6 word) thread title for this conversation, no punctuation."},
			{Role: model.RoleUser, Content: s.UserRequest},
		}, nil)
		if err == nil {
			threadName = out.Text
			_ = n.Bus.PublishCustom(ctx, "supervisor", "thread_name", map[string]any{"thread_id": s.ThreadID, "name": threadName})
		}
	}

	if iterations > cap {
		// Invariant: at the iteration cap, force FINISH without calling
		// the LLM (spec.md §4.4 invariant, §7 "no error on cap hit").
		return graph.NodeResult[state.Supervisor]{
			Delta: state.Supervisor{Iterations: iterations, NextTopic: "FINISH", ThreadName: threadName},
			Route: graph.Goto(finishTarget(s)),
		}
	}

	decision, err := llm.InvokeStructured[supervisorDecision](ctx, n.Model, []model.Message{
		{Role: model.RoleSystem, Content: supervisorSystemPrompt},
		{Role: model.RoleUser, Content: supervisorUserPrompt(s)},
	}, llm.StructuredSpec{
		Name:        "emit_decision",
		Description: "Emit the next-step decision.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"next_topic":    map[string]interface{}{"type": "string"},
				"reasoning":     map[string]interface{}{"type": "string"},
				"answer_format": map[string]interface{}{"type": "string", "enum": []string{"concise", "report"}},
			},
			"required": []string{"next_topic", "reasoning", "answer_format"},
		},
	})
	if err != nil {
		_ = n.Bus.PublishCustom(ctx, "supervisor", "error", map[string]any{"error": err.Error()})
		return graph.NodeResult[state.Supervisor]{Err: err}
	}

	kind, _, question := state.ParseRouting(decision.NextTopic)
	if kind == state.RoutingClarify && question == "" {
		err := errs.StatePrecondition("supervisor emitted CLARIFY with an empty question")
		_ = n.Bus.PublishCustom(ctx, "supervisor", "error", map[string]any{"error": err.Error()})
		return graph.NodeResult[state.Supervisor]{Err: err}
	}

	_ = n.Bus.PublishTrace(ctx, "supervisor", "reasoning", map[string]any{"reasoning": decision.Reasoning})
	_ = n.Bus.PublishCustom(ctx, "supervisor", "supervisor_decision", map[string]any{
		"decision": decision.NextTopic, "reasoning": decision.Reasoning, "topic": decision.NextTopic,
	})

	format := state.AnswerFormat(decision.AnswerFormat)
	if format == "" {
		format = state.AnswerConcise
	}

	next := s
	next.NextTopic = decision.NextTopic
	next.AnswerFormat = format

	var target string
	switch kind {
	case state.RoutingClarify:
		target = "clarification"
	case state.RoutingFinish:
		target = finishTarget(next)
	default:
		target = "call_researcher"
	}

	return graph.NodeResult[state.Supervisor]{
		Delta: state.Supervisor{
			Iterations:   iterations,
			NextTopic:    decision.NextTopic,
			AnswerFormat: format,
			ThreadName:   threadName,
		},
		Route: graph.Goto(target),
	}
}

// finishTarget implements the routing policy's FINISH rule (spec.md
// §4.1): final_report when there is research to report on or the user
// asked for the long-form format, direct_answer otherwise.
func finishTarget(s state.Supervisor) string {
	if len(s.ResearchNotes) > 0 || s.AnswerFormat == state.AnswerReport {
		return "final_report"
	}
	return "direct_answer"
}

const supervisorSystemPrompt = `You are the supervisor of a research agent. Decide the next step.
Reply with next_topic = "FINISH" when enough research has been gathered to answer,
next_topic = "CLARIFY:<question>" when the user's request is ambiguous,
or next_topic = "<a specific research topic>" to dispatch another research pass.`

func supervisorUserPrompt(s state.Supervisor) string {
	out := "User request: " + s.UserRequest + "\n"
	if s.ConversationSummary != "" {
		out += "Conversation so far: " + s.ConversationSummary + "\n"
	}
	if len(s.ResearchNotes) > 0 {
		out += "Research notes gathered so far:\n"
		for _, note := range s.ResearchNotes {
			out += "- " + note + "\n"
		}
	}
	return out
}
