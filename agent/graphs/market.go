package graphs

import (
	"time"

	"github.com/dshills/deepgraph/agent/nodes"
	"github.com/dshills/deepgraph/agent/state"
	"github.com/dshills/deepgraph/graph"
	"github.com/dshills/deepgraph/graph/model"
	"github.com/dshills/deepgraph/graph/store"
	"github.com/dshills/deepgraph/market"
	"github.com/dshills/deepgraph/stream"
)

// MarketDeps collects the market-research subgraph's external dependencies.
type MarketDeps struct {
	Model              model.ChatModel
	Market             market.Driver
	FetchLimit         int
	FallbackCandidates int
}

// NewMarket builds the market-research subgraph: a linear chain of
// generate_market_queries -> fetch_markets -> process_and_rank_markets
// -> evaluate_markets (spec.md §4.3). None of its steps fan out, so
// unlike the researcher subgraph it needs only a single engine. bus
// doubles as the engine's emitter and as the sink for the subgraph's
// own custom envelopes (tag_selected, market_approved, ...).
func NewMarket(deps MarketDeps, bus *stream.Bus) (*graph.Engine[state.Market], error) {
	eng := graph.New[state.Market](
		state.ReduceMarket,
		store.NewMemStore[state.Market](),
		bus,
		graph.WithMaxConcurrent(1),
		graph.WithDefaultNodeTimeout(30*time.Second),
	)

	steps := []struct {
		id   string
		node graph.Node[state.Market]
	}{
		{"generate_market_queries", &nodes.GenerateMarketQueries{Model: deps.Model, Market: deps.Market, Bus: bus}},
		{"fetch_markets", &nodes.FetchMarkets{Market: deps.Market, FetchLimit: deps.FetchLimit}},
		{"process_and_rank_markets", &nodes.ProcessAndRankMarkets{Model: deps.Model, FallbackCandidates: deps.FallbackCandidates}},
		{"evaluate_markets", &nodes.EvaluateMarkets{Model: deps.Model, Bus: bus, FallbackCandidates: deps.FallbackCandidates}},
	}
	for _, step := range steps {
		if err := eng.Add(step.id, step.node); err != nil {
			return nil, err
		}
	}
	if err := eng.StartAt("generate_market_queries"); err != nil {
		return nil, err
	}

	return eng, nil
}
