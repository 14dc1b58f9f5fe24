// Package nodes implements every graph.Node used by the research
// agent's three typed graphs (spec.md §4: supervisor, researcher,
// market-research), grounded on examples/ai_research_assistant's
// node-struct-with-Run-method pattern.
package nodes

import (
	"context"
	"fmt"

	"github.com/dshills/deepgraph/agent/errs"
	"github.com/dshills/deepgraph/agent/state"
	"github.com/dshills/deepgraph/graph"
	"github.com/dshills/deepgraph/graph/model"
	"github.com/dshills/deepgraph/llm"
	"github.com/dshills/deepgraph/search"
	"github.com/dshills/deepgraph/stream"
)

// GenerateQueries drafts up to maxBreadth search queries for the
// researcher subgraph's topic and fans out a perform_search branch per
// query (spec.md §4.2).
//
// The engine has no way to hand a branch its own index: a Next.Many
// fan-out replays the full upstream state into every branch, so "query
// N" can only be distinguished by which *node ID* a branch targets.
// GenerateQueries therefore routes to the fixed slots perform_search_0
// .. perform_search_{maxBreadth-1} (registered once by NewResearcherSearch),
// each closed over its own index, rather than one shared perform_search node.
type GenerateQueries struct {
	Model      model.ChatModel
	MaxBreadth int
	Bus        *stream.Bus
}

type queryPlan struct {
	Queries []string `json:"queries"`
}

func (n *GenerateQueries) Run(ctx context.Context, s state.Researcher) graph.NodeResult[state.Researcher] {
	plan, err := llm.InvokeStructured[queryPlan](ctx, n.Model, []model.Message{
		{Role: model.RoleSystem, Content: "You plan web search queries for a research topic. Call emit_query_plan with 1 to " + fmt.Sprint(n.MaxBreadth) + " distinct, specific queries."},
		{Role: model.RoleUser, Content: s.Topic},
	}, llm.StructuredSpec{
		Name:        "emit_query_plan",
		Description: "Emit the list of search queries to run for this topic.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"queries": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"type": "string"},
				},
			},
			"required": []string{"queries"},
		},
	})
	if err != nil {
		return graph.NodeResult[state.Researcher]{Err: err}
	}

	queries := plan.Queries
	if len(queries) > n.MaxBreadth {
		queries = queries[:n.MaxBreadth]
	}
	delta := state.Researcher{Topic: s.Topic, Queries: queries, QueryBreadth: len(queries)}

	_ = n.Bus.PublishCustom(ctx, "generate_queries", "generated_queries", map[string]any{"queries": queries})

	if len(queries) == 0 {
		return graph.NodeResult[state.Researcher]{Delta: delta, Route: graph.Stop()}
	}

	branches := make([]string, len(queries))
	for i := range queries {
		branches[i] = perform_search_node_id(i)
	}
	return graph.NodeResult[state.Researcher]{Delta: delta, Route: graph.Next{Many: branches}}
}

func perform_search_node_id(i int) string {
	return fmt.Sprintf("perform_search_%d", i)
}

// PerformSearchNodeID exports perform_search_node_id for agent/graphs to
// register the fixed fan-out slots under the same naming scheme.
func PerformSearchNodeID(i int) string { return perform_search_node_id(i) }

// PerformSearch runs query Index against Driver and returns its hits as
// an append-only SearchResults delta (spec.md §4.2 fan-out rule).
type PerformSearch struct {
	Driver     search.Driver
	Index      int
	MaxResults int
	Bus        *stream.Bus
}

func (n *PerformSearch) Run(ctx context.Context, s state.Researcher) graph.NodeResult[state.Researcher] {
	if n.Index >= len(s.Queries) {
		// generate_queries produced fewer queries than MaxBreadth slots
		// exist; unused slots are never routed to by Next.Many, but a
		// defensive no-op keeps this node safe to invoke directly in tests.
		return graph.NodeResult[state.Researcher]{Route: graph.Stop()}
	}
	query := s.Queries[n.Index]
	_ = n.Bus.PublishCustom(ctx, "perform_search", "search_start", map[string]any{"query": query})

	hits, err := n.Driver.Search(ctx, query, n.MaxResults)
	if err != nil {
		if errs.Classify(err) == errs.ClassTransientDriver {
			return graph.NodeResult[state.Researcher]{Err: err}
		}
		// A permanent driver failure for one query shouldn't fail the
		// whole research pass; contribute zero results and move on.
		return graph.NodeResult[state.Researcher]{Route: graph.Stop()}
	}

	results := make([]state.SearchResult, len(hits))
	for i, h := range hits {
		results[i] = state.SearchResult{Query: query, QueryIndex: n.Index, URL: h.URL, Title: h.Title, Snippet: h.Snippet, Markdown: h.Markdown}
		_ = n.Bus.PublishCustom(ctx, "perform_search", "web_search_url", map[string]any{"url": h.URL, "markdown": h.Markdown})
	}
	return graph.NodeResult[state.Researcher]{
		Delta: state.Researcher{SearchResults: results},
		Route: graph.Stop(),
	}
}

// SynthesizeResearch condenses a topic's collected search results into
// one summary (spec.md §4.2). It runs as its own single-node engine
// phase after the search phase's fan-out has fully merged (see
// agent/graphs.NewResearcherSynthesize) rather than being reached via
// routing from perform_search, since the engine has no barrier
// primitive that waits for every fan-out branch before continuing
// (DESIGN.md, "Researcher subgraph: two-phase execution").
type SynthesizeResearch struct {
	Model model.ChatModel
	Bus   *stream.Bus
}

func (n *SynthesizeResearch) Run(ctx context.Context, s state.Researcher) graph.NodeResult[state.Researcher] {
	if len(s.SearchResults) == 0 {
		summary := "No search results were found for " + s.Topic + "."
		_ = n.Bus.PublishCustom(ctx, "synthesize_research", "research_synthesis_done", map[string]any{"summary": summary})
		return graph.NodeResult[state.Researcher]{
			Delta: state.Researcher{ResearchSummary: summary},
			Route: graph.Stop(),
		}
	}

	messages := []model.Message{
		{Role: model.RoleSystem, Content: "Summarize the following search results into a concise research note for the given topic."},
		{Role: model.RoleUser, Content: renderSearchResults(s.Topic, s.SearchResults)},
	}
	out, err := n.Model.Chat(ctx, messages, nil)
	if err != nil {
		return graph.NodeResult[state.Researcher]{Err: errs.TransientDriver("synthesize_research chat failed", err)}
	}

	_ = n.Bus.PublishCustom(ctx, "synthesize_research", "research_synthesis_done", map[string]any{"summary": out.Text})
	return graph.NodeResult[state.Researcher]{
		Delta: state.Researcher{ResearchSummary: out.Text},
		Route: graph.Stop(),
	}
}

func renderSearchResults(topic string, results []state.SearchResult) string {
	out := "Topic: " + topic + "\n\n"
	for _, r := range results {
		out += "Query: " + r.Query + "\nURL: " + r.URL + "\nTitle: " + r.Title + "\n" + r.Markdown + "\n\n"
	}
	return out
}
