package graphs

import (
	"context"
	"time"

	"github.com/dshills/deepgraph/agent/nodes"
	"github.com/dshills/deepgraph/agent/state"
	"github.com/dshills/deepgraph/graph"
	"github.com/dshills/deepgraph/graph/model"
	"github.com/dshills/deepgraph/graph/store"
	"github.com/dshills/deepgraph/market"
	"github.com/dshills/deepgraph/search"
	"github.com/dshills/deepgraph/stream"
)

// SupervisorDeps collects every external dependency the main graph and
// its two subgraphs need.
type SupervisorDeps struct {
	Model      model.ChatModel // decisions, report writing, summarization
	NamerModel model.ChatModel // thread naming; may equal Model

	Search search.Driver
	Market market.Driver

	IterationCap       int
	MaxQueryBreadth    int
	MaxResultsPerQuery int
	MarketFetchLimit   int
	FallbackCandidates int

	Metrics     *graph.PrometheusMetrics
	CostTracker *graph.CostTracker
}

// NewSupervisor builds the main graph (spec.md §4.1): supervisor,
// call_researcher, call_market_research, rewrite_polymarket_response,
// final_report, direct_answer, clarification, summarize_conversation.
//
// call_researcher and call_market_research invoke their subgraphs via
// runner closures rather than this package's own New* constructors
// being imported from agent/nodes (agent/nodes cannot import
// agent/graphs — see ResearcherRunner/MarketRunner); this function is
// where those closures are built and handed to the node structs.
func NewSupervisor(deps SupervisorDeps, bus *stream.Bus) (*graph.Engine[state.Supervisor], error) {
	researcherDeps := ResearcherDeps{
		Model:              deps.Model,
		Search:             deps.Search,
		MaxQueryBreadth:    deps.MaxQueryBreadth,
		MaxResultsPerQuery: deps.MaxResultsPerQuery,
	}
	marketDeps := MarketDeps{
		Model:              deps.Model,
		Market:             deps.Market,
		FetchLimit:         deps.MarketFetchLimit,
		FallbackCandidates: deps.FallbackCandidates,
	}

	runResearch := func(ctx context.Context, childBus *stream.Bus, topic string, queryBreadth int) (state.Researcher, error) {
		rd := researcherDeps
		rd.MaxQueryBreadth = queryBreadth

		searchEng, err := NewResearcherSearch(rd, childBus)
		if err != nil {
			return state.Researcher{}, err
		}
		searched, err := searchEng.Run(ctx, topic, state.Researcher{Topic: topic})
		if err != nil {
			return state.Researcher{}, err
		}

		synth, err := NewResearcherSynthesize(rd, childBus)
		if err != nil {
			return state.Researcher{}, err
		}
		return synth.Run(ctx, topic, searched)
	}

	runMarket := func(ctx context.Context, childBus *stream.Bus, originalTopic, aiResponse string) (state.Market, error) {
		eng, err := NewMarket(marketDeps, childBus)
		if err != nil {
			return state.Market{}, err
		}
		return eng.Run(ctx, originalTopic, state.Market{OriginalTopic: originalTopic, AIResponse: aiResponse})
	}

	opts := []interface{}{
		graph.WithMaxConcurrent(1),
		graph.WithDefaultNodeTimeout(60 * time.Second),
	}
	if deps.Metrics != nil {
		opts = append(opts, graph.WithMetrics(deps.Metrics))
	}
	if deps.CostTracker != nil {
		opts = append(opts, graph.WithCostTracker(deps.CostTracker))
	}

	eng := graph.New[state.Supervisor](
		state.ReduceSupervisor,
		store.NewMemStore[state.Supervisor](),
		bus,
		opts...,
	)

	steps := []struct {
		id   string
		node graph.Node[state.Supervisor]
	}{
		{"supervisor", &nodes.Supervisor{Model: deps.Model, NamerModel: deps.NamerModel, Bus: bus, IterationCap: deps.IterationCap}},
		{"call_researcher", &nodes.CallResearcher{RunResearch: runResearch, Bus: bus}},
		{"call_market_research", &nodes.CallMarketResearch{RunMarket: runMarket, Bus: bus}},
		{"rewrite_polymarket_response", &nodes.RewritePolymarketResponse{}},
		{"final_report", &nodes.FinalReport{Model: deps.Model, Bus: bus}},
		{"direct_answer", &nodes.DirectAnswer{Model: deps.Model, Bus: bus}},
		{"clarification", &nodes.Clarification{Bus: bus}},
		{"summarize_conversation", &nodes.SummarizeConversation{Model: deps.Model, Bus: bus}},
	}
	for _, step := range steps {
		if err := eng.Add(step.id, step.node); err != nil {
			return nil, err
		}
	}
	if err := eng.StartAt("supervisor"); err != nil {
		return nil, err
	}

	return eng, nil
}
