package state

import "sort"

// historyCap is the hard cap on conversation_history entries (spec.md
// §5/§6, "Conversation-history hard cap (default 50)"). Exposed as a
// var, not a const, so agent.Config can override it at startup.
var historyCap = 50

// SetHistoryCap overrides the conversation-history cap. Intended to be
// called once at process startup from agent.Config.
func SetHistoryCap(n int) {
	if n > 0 {
		historyCap = n
	}
}

// ReduceSupervisor merges a node's partial Supervisor update into the
// accumulated state. Each field below corresponds to one row of the
// reducer table described in spec.md §4.1: replace is the default,
// append-only fields concat, and conversation_history uses the custom
// reset+cap reducer (spec.md §5, invariant #3 in §8).
//
// Nodes must only ever return *new* items in a concat-reduced field
// (ResearchNotes, ExecutionTrace, PredictionMarkets) — this function
// has no way to detect a violation, it simply appends what it is given.
func ReduceSupervisor(prev, delta Supervisor) Supervisor {
	next := prev

	if delta.UserRequest != "" {
		next.UserRequest = delta.UserRequest
	}
	if delta.ConversationSummary != "" {
		next.ConversationSummary = delta.ConversationSummary
	}
	next.ConversationHistory = reduceHistory(prev.ConversationHistory, delta.ConversationHistory, delta.historyReset)

	next.ResearchNotes = append(append([]string{}, prev.ResearchNotes...), delta.ResearchNotes...)
	next.ExecutionTrace = append(append([]TraceEvent{}, prev.ExecutionTrace...), delta.ExecutionTrace...)
	next.PredictionMarkets = append(append([]PredictionMarket{}, prev.PredictionMarkets...), delta.PredictionMarkets...)

	if delta.NextTopic != "" {
		next.NextTopic = delta.NextTopic
	}
	if delta.FinalReport != "" {
		next.FinalReport = delta.FinalReport
	}
	// Iterations is monotonically non-decreasing within a run (spec.md
	// §3 invariant, §8 property #2): take the larger of the two rather
	// than blindly replacing, so an out-of-order merge can never regress it.
	if delta.Iterations > next.Iterations {
		next.Iterations = delta.Iterations
	}
	if delta.AnswerFormat != "" {
		next.AnswerFormat = delta.AnswerFormat
	}
	if delta.CurrentReportVersion != 0 {
		next.CurrentReportVersion = delta.CurrentReportVersion
	}
	if delta.PolymarketBlurb != "" {
		next.PolymarketBlurb = delta.PolymarketBlurb
	}
	if delta.ThreadID != "" {
		next.ThreadID = delta.ThreadID
	}
	if delta.ThreadName != "" {
		next.ThreadName = delta.ThreadName
	}
	if delta.Pending != nil {
		next.Pending = delta.Pending
	}

	return next
}

// NewHistoryReset returns a Supervisor delta that carries the given
// new history entries (typically none) plus the reset signal, for use
// as the summarizer node's returned Delta (spec.md §4.8).
func NewHistoryReset(newHistory ...Message) Supervisor {
	return Supervisor{ConversationHistory: newHistory, historyReset: true}
}

// NewSummaryReset is NewHistoryReset plus the updated
// conversation_summary, for summarize_conversation's return value:
// after this node runs conversation_history is empty and
// conversation_summary reflects everything to date (spec.md §4.8).
func NewSummaryReset(summary string) Supervisor {
	return Supervisor{ConversationSummary: summary, historyReset: true}
}

func reduceHistory(prev, delta []Message, reset bool) []Message {
	base := prev
	if reset {
		base = nil
	}
	merged := make([]Message, 0, len(base)+len(delta))
	merged = append(merged, base...)
	merged = append(merged, delta...)
	if len(merged) > historyCap {
		merged = merged[len(merged)-historyCap:]
	}
	return merged
}

// ReduceResearcher merges a researcher-subgraph node's delta (spec.md §4.2).
func ReduceResearcher(prev, delta Researcher) Researcher {
	next := prev
	if delta.Topic != "" {
		next.Topic = delta.Topic
	}
	if len(delta.Queries) > 0 {
		next.Queries = delta.Queries
	}
	if delta.QueryBreadth != 0 {
		next.QueryBreadth = delta.QueryBreadth
	}
	// search_results is append-only: perform_search fan-out branches
	// each return only their own hits (spec.md §4.2 fan-out rule). The
	// engine's fan-out merge order is not branch-index order (its
	// orderKey hashes the index rather than preserving it), so results
	// are re-sorted by QueryIndex here to restore the order spec.md §5
	// requires; sort.SliceStable keeps same-query hits in the order
	// perform_search produced them.
	next.SearchResults = append(append([]SearchResult{}, prev.SearchResults...), delta.SearchResults...)
	sort.SliceStable(next.SearchResults, func(i, j int) bool {
		return next.SearchResults[i].QueryIndex < next.SearchResults[j].QueryIndex
	})
	if delta.ResearchSummary != "" {
		next.ResearchSummary = delta.ResearchSummary
	}
	return next
}

// ReduceMarket merges a market-research-subgraph node's delta (spec.md §4.3).
func ReduceMarket(prev, delta Market) Market {
	next := prev
	if delta.OriginalTopic != "" {
		next.OriginalTopic = delta.OriginalTopic
	}
	if delta.AIResponse != "" {
		next.AIResponse = delta.AIResponse
	}
	if len(delta.SelectedTags) > 0 {
		next.SelectedTags = delta.SelectedTags
	}
	if len(delta.RawEvents) > 0 {
		next.RawEvents = delta.RawEvents
	}
	if len(delta.CandidateMarkets) > 0 {
		next.CandidateMarkets = delta.CandidateMarkets
	}
	if len(delta.ApprovedMarkets) > 0 {
		next.ApprovedMarkets = delta.ApprovedMarkets
	}
	// reasoning_trace is append-only (spec.md §3).
	next.ReasoningTrace = append(append([]string{}, prev.ReasoningTrace...), delta.ReasoningTrace...)
	return next
}
