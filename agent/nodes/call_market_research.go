package nodes

import (
	"context"
	"strings"

	"github.com/dshills/deepgraph/agent/state"
	"github.com/dshills/deepgraph/graph"
	"github.com/dshills/deepgraph/stream"
)

// MarketRunner runs the market-research subgraph to completion and
// returns its final state (see ResearcherRunner for why this is a
// function value rather than a direct agent/graphs import).
type MarketRunner func(ctx context.Context, bus *stream.Bus, originalTopic, aiResponse string) (state.Market, error)

// CallMarketResearch runs after final_report (spec.md §4.1 routing:
// final_report -> call_market_research -> rewrite_polymarket_response
// -> summarize_conversation -> END), surfacing prediction markets
// relevant to the final report.
type CallMarketResearch struct {
	RunMarket MarketRunner
	Bus       *stream.Bus
}

func (n *CallMarketResearch) Run(ctx context.Context, s state.Supervisor) graph.NodeResult[state.Supervisor] {
	_ = n.Bus.PublishTrace(ctx, "call_market_research", "node_call", nil)

	childBus := stream.NewBus(s.ThreadID)
	bridge := stream.NewBridgeFiltered(n.Bus, "call_market_research", childBus, nil)
	defer bridge.Close()

	result, err := n.RunMarket(ctx, childBus, s.UserRequest, s.FinalReport)
	if err != nil {
		return graph.NodeResult[state.Supervisor]{Err: err}
	}

	markets := make([]state.PredictionMarket, len(result.ApprovedMarkets))
	copy(markets, result.ApprovedMarkets)

	return graph.NodeResult[state.Supervisor]{
		Delta: state.Supervisor{PredictionMarkets: markets},
		Route: graph.Goto("rewrite_polymarket_response"),
	}
}

// RewritePolymarketResponse composes the short blurb a client shows
// alongside the surfaced prediction markets. It is deliberately
// template-based rather than another LLM round trip: evaluate_markets
// already produced the reasoning (state.Supervisor.PredictionMarkets
// entries plus the market subgraph's own market_research_complete
// event carry it), this step only needs to join the markets' titles
// (their Question text) for display.
type RewritePolymarketResponse struct{}

func (n *RewritePolymarketResponse) Run(ctx context.Context, s state.Supervisor) graph.NodeResult[state.Supervisor] {
	if len(s.PredictionMarkets) == 0 {
		return graph.NodeResult[state.Supervisor]{Route: graph.Goto("summarize_conversation")}
	}

	titles := make([]string, len(s.PredictionMarkets))
	for i, m := range s.PredictionMarkets {
		titles[i] = m.Question
	}
	blurb := "Related prediction markets: " + strings.Join(titles, "; ")

	return graph.NodeResult[state.Supervisor]{
		Delta: state.Supervisor{PolymarketBlurb: blurb},
		Route: graph.Goto("summarize_conversation"),
	}
}
