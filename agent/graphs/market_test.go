package graphs

import (
	"context"
	"testing"

	"github.com/dshills/deepgraph/agent/state"
	"github.com/dshills/deepgraph/graph/model"
	"github.com/dshills/deepgraph/market"
	"github.com/dshills/deepgraph/stream"
	"github.com/stretchr/testify/require"
)

func TestMarket_RunsFullChainToApprovedMarkets(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{
		{ToolCalls: []model.ToolCall{{Name: "select_tags", Input: map[string]interface{}{
			"selected_names": []interface{}{"Elections"}, "continue_search": false,
		}}}},
		{ToolCalls: []model.ToolCall{{Name: "rank_markets", Input: map[string]interface{}{
			"ranked_slugs": []interface{}{"will-x-win"}, "reasoning": "most on-topic",
		}}}},
		{ToolCalls: []model.ToolCall{{Name: "approve_markets", Input: map[string]interface{}{
			"approved_slugs": []interface{}{"will-x-win"}, "reasoning": "directly relevant",
		}}}},
	}}
	driver := &market.Mock{
		Tags: []market.Tag{{ID: "tag-1", Name: "Elections"}},
		Events: []market.Object{
			{Slug: "will-x-win", Question: "Will X win?", EventTitle: "2026 Midterms"},
		},
	}

	bus := stream.NewBus("run-1")
	eng, err := NewMarket(MarketDeps{Model: chat, Market: driver, FetchLimit: 50, FallbackCandidates: 3}, bus)
	require.NoError(t, err)

	final, err := eng.Run(context.Background(), "run-1", state.Market{OriginalTopic: "midterm elections", AIResponse: "report text"})
	require.NoError(t, err)
	require.Len(t, final.ApprovedMarkets, 1)
	require.Equal(t, "will-x-win", final.ApprovedMarkets[0].Slug)
	require.Equal(t, "Will X win?", final.ApprovedMarkets[0].Question)
}

func TestMarket_NoMatchingTagsStopsEarly(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{
		{ToolCalls: []model.ToolCall{{Name: "select_tags", Input: map[string]interface{}{
			"selected_names": []interface{}{}, "continue_search": false,
		}}}},
	}}
	driver := &market.Mock{Tags: []market.Tag{{ID: "tag-1", Name: "Sports"}}}

	bus := stream.NewBus("run-1")
	eng, err := NewMarket(MarketDeps{Model: chat, Market: driver}, bus)
	require.NoError(t, err)

	final, err := eng.Run(context.Background(), "run-1", state.Market{OriginalTopic: "midterm elections"})
	require.NoError(t, err)
	require.Empty(t, final.ApprovedMarkets)
	require.Equal(t, 1, chat.CallCount())
}
