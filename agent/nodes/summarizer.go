package nodes

import (
	"context"
	"strings"

	"github.com/dshills/deepgraph/agent/state"
	"github.com/dshills/deepgraph/graph"
	"github.com/dshills/deepgraph/graph/model"
	"github.com/dshills/deepgraph/stream"
)

// SummarizeConversation always runs at the end of every terminal path
// (spec.md §4.1: after call_market_research/rewrite_polymarket_response,
// or directly after direct_answer/clarification). It folds
// conversation_history into conversation_summary and signals the
// history reducer to reset (spec.md §4.8).
type SummarizeConversation struct {
	Model model.ChatModel
	Bus   *stream.Bus
}

func (n *SummarizeConversation) Run(ctx context.Context, s state.Supervisor) graph.NodeResult[state.Supervisor] {
	_ = n.Bus.PublishTrace(ctx, "summarize_conversation", "node_call", nil)

	if len(s.ConversationHistory) == 0 {
		return graph.NodeResult[state.Supervisor]{Route: graph.Stop()}
	}

	var turns strings.Builder
	for _, m := range s.ConversationHistory {
		turns.WriteString(m.Role)
		turns.WriteString(": ")
		turns.WriteString(m.Content)
		turns.WriteString("\n\n")
	}

	user := "New turns to fold in:\n" + turns.String()
	if s.ConversationSummary != "" {
		user = "Existing summary: " + s.ConversationSummary + "\n\n" + user
	}

	out, err := n.Model.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: "Maintain a running summary of this conversation. Fold the new turns into the existing summary, keeping it concise but preserving facts the user may refer back to."},
		{Role: model.RoleUser, Content: user},
	}, nil)
	if err != nil {
		return graph.NodeResult[state.Supervisor]{Err: err}
	}

	return graph.NodeResult[state.Supervisor]{
		Delta: state.NewSummaryReset(out.Text),
		Route: graph.Stop(),
	}
}
