package nodes

import (
	"context"
	"strings"

	"github.com/dshills/deepgraph/agent/state"
	"github.com/dshills/deepgraph/graph"
	"github.com/dshills/deepgraph/graph/model"
	"github.com/dshills/deepgraph/stream"
)

const defaultClarifyingQuestion = "Could you clarify what you'd like me to look into?"

// FinalReport composes a markdown report from research_notes,
// user_request, and conversation_summary (spec.md §4.6). It picks a
// refinement prompt when current_report_version >= 1 (the thread
// already has a report this turn is updating) and a concise vs report
// format instruction from answer_format.
type FinalReport struct {
	Model model.ChatModel
	Bus   *stream.Bus
}

func (n *FinalReport) Run(ctx context.Context, s state.Supervisor) graph.NodeResult[state.Supervisor] {
	_ = n.Bus.PublishTrace(ctx, "final_report", "node_call", nil)
	_ = n.Bus.PublishCustom(ctx, "final_report", "writing_report", nil)

	system := "Write a thorough, well-organized markdown report answering the user's request using only the research notes provided."
	if s.CurrentReportVersion >= 1 {
		system = "Revise the existing markdown report to incorporate the new research notes, keeping what is still accurate."
	}
	if s.AnswerFormat == state.AnswerConcise {
		system += " Keep the report brief: a few short paragraphs, no section headers."
	} else {
		system += " Use section headers and cover every research note."
	}

	user := "User request: " + s.UserRequest + "\n\n"
	if s.ConversationSummary != "" {
		user += "Conversation so far: " + s.ConversationSummary + "\n\n"
	}
	user += "Research notes:\n" + strings.Join(s.ResearchNotes, "\n\n")

	out, err := n.Model.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: system},
		{Role: model.RoleUser, Content: user},
	}, nil)
	if err != nil {
		return graph.NodeResult[state.Supervisor]{Err: err}
	}

	_ = n.Bus.PublishCustom(ctx, "final_report", "final_report_complete", map[string]any{"report": out.Text})

	return graph.NodeResult[state.Supervisor]{
		Delta: state.Supervisor{
			FinalReport:          out.Text,
			CurrentReportVersion: s.CurrentReportVersion + 1,
			ConversationHistory: []state.Message{
				{Role: model.RoleUser, Content: s.UserRequest},
				{Role: model.RoleAssistant, Content: out.Text},
			},
			Pending: &state.PendingPersist{UserContent: s.UserRequest, AssistantContent: out.Text},
		},
		Route: graph.Goto("call_market_research"),
	}
}

// DirectAnswer answers from conversation_summary alone, with no
// research notes to draw on (spec.md §4.6).
type DirectAnswer struct {
	Model model.ChatModel
	Bus   *stream.Bus
}

func (n *DirectAnswer) Run(ctx context.Context, s state.Supervisor) graph.NodeResult[state.Supervisor] {
	_ = n.Bus.PublishTrace(ctx, "direct_answer", "node_call", nil)

	out, err := n.Model.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: "Answer the user's request directly and concisely, using the conversation summary for context if relevant."},
		{Role: model.RoleUser, Content: "Conversation so far: " + s.ConversationSummary + "\n\nUser request: " + s.UserRequest},
	}, nil)
	if err != nil {
		return graph.NodeResult[state.Supervisor]{Err: err}
	}

	return graph.NodeResult[state.Supervisor]{
		Delta: state.Supervisor{
			FinalReport: out.Text,
			ConversationHistory: []state.Message{
				{Role: model.RoleUser, Content: s.UserRequest},
				{Role: model.RoleAssistant, Content: out.Text},
			},
			Pending: &state.PendingPersist{UserContent: s.UserRequest, AssistantContent: out.Text},
		},
		Route: graph.Goto("summarize_conversation"),
	}
}

// Clarification emits the question parsed out of next_topic (spec.md §4.6).
type Clarification struct {
	Bus *stream.Bus
}

func (n *Clarification) Run(ctx context.Context, s state.Supervisor) graph.NodeResult[state.Supervisor] {
	_ = n.Bus.PublishTrace(ctx, "clarification", "node_call", nil)

	_, _, question := state.ParseRouting(s.NextTopic)
	if question == "" {
		question = defaultClarifyingQuestion
	}

	return graph.NodeResult[state.Supervisor]{
		Delta: state.Supervisor{
			FinalReport: question,
			ConversationHistory: []state.Message{
				{Role: model.RoleUser, Content: s.UserRequest},
				{Role: model.RoleAssistant, Content: question},
			},
			Pending: &state.PendingPersist{UserContent: s.UserRequest, AssistantContent: question},
		},
		Route: graph.Goto("summarize_conversation"),
	}
}
