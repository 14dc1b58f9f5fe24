// Package graphs builds the three typed graph.Engine instances that
// make up the research agent (spec.md §4): supervisor, researcher, and
// market-research. Node implementations live in agent/nodes; this
// package only wires node IDs, routing edges, and engine options.
package graphs

import (
	"time"

	"github.com/dshills/deepgraph/agent/nodes"
	"github.com/dshills/deepgraph/agent/state"
	"github.com/dshills/deepgraph/graph"
	"github.com/dshills/deepgraph/graph/model"
	"github.com/dshills/deepgraph/graph/store"
	"github.com/dshills/deepgraph/search"
	"github.com/dshills/deepgraph/stream"
)

// ResearcherDeps collects the researcher subgraph's external dependencies.
type ResearcherDeps struct {
	Model              model.ChatModel
	Search             search.Driver
	MaxQueryBreadth    int
	MaxResultsPerQuery int
}

// NewResearcherSearch builds the fan-out phase of the researcher
// subgraph: generate_queries routes Next.Many across a fixed set of
// perform_search_N slots (one per registered breadth slot), each
// contributing its hits as an append-only SearchResults delta.
//
// This phase is deliberately its own engine rather than continuing on
// into synthesize_research: the engine merges fan-out branch deltas
// only once the whole run's frontier drains (runConcurrent has no
// barrier node that waits for N siblings before firing once), so a
// downstream summarization step can only safely start after this run
// returns (see NewResearcherSynthesize).
// bus doubles as the engine's emitter and as the sink for the nodes'
// own custom envelopes (generated_queries, search_start, web_search_url).
func NewResearcherSearch(deps ResearcherDeps, bus *stream.Bus) (*graph.Engine[state.Researcher], error) {
	if deps.MaxQueryBreadth <= 0 {
		deps.MaxQueryBreadth = 4
	}
	if deps.MaxResultsPerQuery <= 0 {
		deps.MaxResultsPerQuery = 5
	}

	eng := graph.New[state.Researcher](
		state.ReduceResearcher,
		store.NewMemStore[state.Researcher](),
		bus,
		graph.WithMaxConcurrent(deps.MaxQueryBreadth),
		graph.WithDefaultNodeTimeout(30*time.Second),
	)

	if err := eng.Add("generate_queries", &nodes.GenerateQueries{Model: deps.Model, MaxBreadth: deps.MaxQueryBreadth, Bus: bus}); err != nil {
		return nil, err
	}
	for i := 0; i < deps.MaxQueryBreadth; i++ {
		if err := eng.Add(nodes.PerformSearchNodeID(i), &nodes.PerformSearch{
			Driver:     deps.Search,
			Index:      i,
			MaxResults: deps.MaxResultsPerQuery,
			Bus:        bus,
		}); err != nil {
			return nil, err
		}
	}
	if err := eng.StartAt("generate_queries"); err != nil {
		return nil, err
	}

	return eng, nil
}

// NewResearcherSynthesize builds the single-node engine that turns a
// completed search phase's merged state into ResearchSummary.
func NewResearcherSynthesize(deps ResearcherDeps, bus *stream.Bus) (*graph.Engine[state.Researcher], error) {
	eng := graph.New[state.Researcher](
		state.ReduceResearcher,
		store.NewMemStore[state.Researcher](),
		bus,
		graph.WithMaxConcurrent(1),
		graph.WithDefaultNodeTimeout(30*time.Second),
	)
	if err := eng.Add("synthesize_research", &nodes.SynthesizeResearch{Model: deps.Model, Bus: bus}); err != nil {
		return nil, err
	}
	if err := eng.StartAt("synthesize_research"); err != nil {
		return nil, err
	}
	return eng, nil
}
