package graphs

import (
	"context"
	"testing"

	"github.com/dshills/deepgraph/agent/state"
	"github.com/dshills/deepgraph/graph/model"
	"github.com/dshills/deepgraph/search"
	"github.com/dshills/deepgraph/stream"
	"github.com/stretchr/testify/require"
)

func TestResearcherSearch_FansOutAndMergesResults(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{
		{ToolCalls: []model.ToolCall{{Name: "emit_query_plan", Input: map[string]interface{}{
			"queries": []interface{}{"election polling 2026", "senate race odds"},
		}}}},
	}}
	searchDriver := &search.Mock{Responses: map[string][]search.Result{
		"election polling 2026": {{URL: "http://a", Title: "Poll A", Markdown: "poll content"}},
		"senate race odds":      {{URL: "http://b", Title: "Odds B", Markdown: "odds content"}},
	}}

	bus := stream.NewBus("run-1")
	eng, err := NewResearcherSearch(ResearcherDeps{Model: chat, Search: searchDriver, MaxQueryBreadth: 4, MaxResultsPerQuery: 5}, bus)
	require.NoError(t, err)

	final, err := eng.Run(context.Background(), "run-1", state.Researcher{Topic: "midterm elections"})
	require.NoError(t, err)
	require.Len(t, final.Queries, 2)
	require.Len(t, final.SearchResults, 2)
}

func TestResearcherSearch_PreservesQueryOrderAcrossBreadthFour(t *testing.T) {
	queries := []string{"query zero", "query one", "query two", "query three"}
	chat := &model.MockChatModel{Responses: []model.ChatOut{
		{ToolCalls: []model.ToolCall{{Name: "emit_query_plan", Input: map[string]interface{}{
			"queries": []interface{}{queries[0], queries[1], queries[2], queries[3]},
		}}}},
	}}
	searchDriver := &search.Mock{Responses: map[string][]search.Result{
		queries[0]: {{URL: "http://zero"}},
		queries[1]: {{URL: "http://one"}},
		queries[2]: {{URL: "http://two"}},
		queries[3]: {{URL: "http://three"}},
	}}

	bus := stream.NewBus("run-1")
	eng, err := NewResearcherSearch(ResearcherDeps{Model: chat, Search: searchDriver, MaxQueryBreadth: 4, MaxResultsPerQuery: 5}, bus)
	require.NoError(t, err)

	final, err := eng.Run(context.Background(), "run-1", state.Researcher{Topic: "midterm elections"})
	require.NoError(t, err)
	require.Len(t, final.SearchResults, 4)

	// The engine's fan-out merge order is a hash of the branch index, not
	// the index itself (graph/scheduler.go's orderKey) — this asserts the
	// reducer's QueryIndex sort restores branch-index order regardless.
	for i, r := range final.SearchResults {
		require.Equal(t, i, r.QueryIndex, "result %d out of order: %+v", i, r)
		require.Equal(t, queries[i], r.Query)
	}
}

func TestResearcherSynthesize_SummarizesMergedResults(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: "concise research summary"}}}
	bus := stream.NewBus("run-1")
	eng, err := NewResearcherSynthesize(ResearcherDeps{Model: chat}, bus)
	require.NoError(t, err)

	final, err := eng.Run(context.Background(), "run-1", state.Researcher{
		Topic:         "midterm elections",
		SearchResults: []state.SearchResult{{Query: "q", URL: "http://a", Title: "t", Markdown: "m"}},
	})
	require.NoError(t, err)
	require.Equal(t, "concise research summary", final.ResearchSummary)
}

func TestResearcherSynthesize_NoResultsSkipsModelCall(t *testing.T) {
	chat := &model.MockChatModel{}
	bus := stream.NewBus("run-1")
	eng, err := NewResearcherSynthesize(ResearcherDeps{Model: chat}, bus)
	require.NoError(t, err)

	final, err := eng.Run(context.Background(), "run-1", state.Researcher{Topic: "empty topic"})
	require.NoError(t, err)
	require.Contains(t, final.ResearchSummary, "No search results")
	require.Zero(t, chat.CallCount())
}
