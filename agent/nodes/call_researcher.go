package nodes

import (
	"context"
	"sync"

	"github.com/dshills/deepgraph/agent/state"
	"github.com/dshills/deepgraph/graph"
	"github.com/dshills/deepgraph/stream"
)

// ResearcherRunner runs the researcher subgraph to completion for one
// topic and returns its final state. It exists so CallResearcher (in
// this package) never has to import agent/graphs, which itself imports
// agent/nodes to construct node instances — graphs depending on nodes
// is the one-way layering spec.md §9 calls for (reducers/state are
// leaves; nodes depend on them; graphs depend on nodes). agent/graphs
// supplies the concrete implementation when it wires the supervisor
// engine's call_researcher node.
type ResearcherRunner func(ctx context.Context, bus *stream.Bus, topic string, queryBreadth int) (state.Researcher, error)

// CallResearcher invokes the researcher subgraph with topic =
// next_topic and a breadth chosen from answer_format (spec.md §4.5).
type CallResearcher struct {
	RunResearch ResearcherRunner
	Bus         *stream.Bus

	mu       sync.Mutex
	seenURLs map[string]bool // per-run dedup set (spec.md §4.5)
}

func (n *CallResearcher) Run(ctx context.Context, s state.Supervisor) graph.NodeResult[state.Supervisor] {
	_ = n.Bus.PublishTrace(ctx, "call_researcher", "node_call", map[string]any{"topic": s.NextTopic})

	breadth := 3
	if s.AnswerFormat == state.AnswerReport {
		breadth = 5
	}

	childBus := stream.NewBus(s.ThreadID)
	bridge := stream.NewBridgeFiltered(n.Bus, "call_researcher", childBus, n.keepEnvelope)
	defer bridge.Close()

	result, err := n.RunResearch(ctx, childBus, s.NextTopic, breadth)
	if err != nil {
		return graph.NodeResult[state.Supervisor]{Err: err}
	}

	note := "## " + s.NextTopic + "\n\n" + result.ResearchSummary

	return graph.NodeResult[state.Supervisor]{
		Delta: state.Supervisor{ResearchNotes: []string{note}},
		Route: graph.Goto("supervisor"),
	}
}

// keepEnvelope implements the per-run web_search_url dedup rule: the
// first occurrence of a URL this run is forwarded, later repeats
// (e.g. the same page turning up for two different queries) are not.
func (n *CallResearcher) keepEnvelope(env stream.Envelope) bool {
	if env.Event != "web_search_url" {
		return true
	}
	url, _ := env.Payload["url"].(string)
	if url == "" {
		return true
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.seenURLs == nil {
		n.seenURLs = make(map[string]bool)
	}
	if n.seenURLs[url] {
		return false
	}
	n.seenURLs[url] = true
	return true
}
