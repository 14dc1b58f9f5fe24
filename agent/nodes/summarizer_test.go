package nodes

import (
	"context"
	"testing"

	"github.com/dshills/deepgraph/agent/state"
	"github.com/dshills/deepgraph/graph/model"
	"github.com/dshills/deepgraph/stream"
	"github.com/stretchr/testify/require"
)

func TestSummarizeConversation_FoldsHistoryAndResets(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.ChatOut{{Text: "updated summary"}}}
	bus := stream.NewBus("run-1")
	n := &SummarizeConversation{Model: mock, Bus: bus}

	result := n.Run(context.Background(), state.Supervisor{
		ConversationSummary: "prior summary",
		ConversationHistory: []state.Message{
			{Role: "user", Content: "2+2"},
			{Role: "assistant", Content: "4"},
		},
	})

	require.NoError(t, result.Err)
	require.True(t, result.Route.Terminal)

	merged := state.ReduceSupervisor(state.Supervisor{
		ConversationSummary: "prior summary",
		ConversationHistory: []state.Message{{Role: "user", Content: "2+2"}, {Role: "assistant", Content: "4"}},
	}, result.Delta)
	require.Equal(t, "updated summary", merged.ConversationSummary)
	require.Empty(t, merged.ConversationHistory)
}

func TestSummarizeConversation_NoopWhenHistoryEmpty(t *testing.T) {
	mock := &model.MockChatModel{}
	bus := stream.NewBus("run-1")
	n := &SummarizeConversation{Model: mock, Bus: bus}

	result := n.Run(context.Background(), state.Supervisor{ConversationSummary: "unchanged"})

	require.True(t, result.Route.Terminal)
	require.Zero(t, mock.CallCount())
}
