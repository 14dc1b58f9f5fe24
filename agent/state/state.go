// Package state defines the typed graph states for the research agent
// and the reducer table that governs how nodes' partial updates are
// merged into accumulated state.
package state

// Message is a single role-tagged conversation turn. Roles mirror
// graph/model's Role constants (user/assistant) plus "system" for
// internal bookkeeping entries.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RoutingKind is the closed set of supervisor routing decisions.
// It replaces the source's bare "FINISH" / "CLARIFY:<question>"
// string sentinel with a tagged sum (spec.md §9 re-architecture note),
// while NextTopic still carries the wire-compatible string form for
// persistence and for display in trace payloads.
type RoutingKind int

const (
	// RoutingResearch means next_topic names a research topic to dispatch.
	RoutingResearch RoutingKind = iota
	// RoutingFinish means the supervisor is done; proceed to final_report
	// or direct_answer depending on research_notes/answer_format.
	RoutingFinish
	// RoutingClarify means the supervisor needs a clarifying question answered.
	RoutingClarify
)

// ParseRouting decodes the wire-form next_topic string into a Routing value.
func ParseRouting(nextTopic string) (kind RoutingKind, topic string, question string) {
	const clarifyPrefix = "CLARIFY:"
	switch {
	case nextTopic == "FINISH":
		return RoutingFinish, "", ""
	case len(nextTopic) >= len(clarifyPrefix) && nextTopic[:len(clarifyPrefix)] == clarifyPrefix:
		return RoutingClarify, "", nextTopic[len(clarifyPrefix):]
	default:
		return RoutingResearch, nextTopic, ""
	}
}

// AnswerFormat selects the terseness of the final answer.
type AnswerFormat string

const (
	AnswerConcise AnswerFormat = "concise"
	AnswerReport  AnswerFormat = "report"
)

// PredictionMarket is a single ranked/approved market carried in the
// supervisor's prediction_markets field, mirroring the fields a client
// needs to render a market card (spec.md §6 market_approved payload).
type PredictionMarket struct {
	Slug          string   `json:"slug"`
	Question      string   `json:"question"`
	Description   string   `json:"description"`
	Rules         string   `json:"rules"`
	ClobTokenIDs  []string `json:"clob_token_ids"`
	EventTitle    string   `json:"event_title"`
	EventSlug     string   `json:"event_slug"`
	EventImageURL string   `json:"event_image_url"`
}

// PendingPersist queues the side effects a terminal node wants applied
// during the orchestrator's finalize phase (spec.md §4.6): append the
// user+assistant messages and link the run's collected trace. Nodes
// never call the message store directly; this is consumed once by
// agent.Runtime after the engine returns.
type PendingPersist struct {
	UserContent      string
	AssistantContent string
}

// Supervisor is the typed state driving the main graph (spec.md §3,
// "Typed state — supervisor").
type Supervisor struct {
	UserRequest           string             `json:"user_request"`
	ConversationSummary    string             `json:"conversation_summary"`
	ConversationHistory    []Message          `json:"conversation_history"`
	ResearchNotes          []string           `json:"research_notes"`
	ExecutionTrace         []TraceEvent       `json:"execution_trace"`
	NextTopic              string             `json:"next_topic"`
	FinalReport            string             `json:"final_report"`
	Iterations             int                `json:"iterations"`
	AnswerFormat           AnswerFormat       `json:"answer_format"`
	CurrentReportVersion   int                `json:"current_report_version"`
	PredictionMarkets      []PredictionMarket `json:"prediction_markets"`
	PolymarketBlurb        string             `json:"polymarket_blurb"`

	// ThreadID/ThreadName are carried on state so nodes that need them
	// (the supervisor, for first-turn thread naming) don't need a side
	// channel. Neither is a concat-reduced field; both replace.
	ThreadID   string `json:"thread_id"`
	ThreadName string `json:"thread_name"`

	// Pending is the side-effect queue described on PendingPersist. It
	// is never persisted to a checkpoint (json:"-").
	Pending *PendingPersist `json:"-"`

	// historyReset is a one-shot signal set only via NewHistoryReset or
	// NewSummaryReset,
	// consumed by ReduceSupervisor to drop prior conversation_history
	// entries (spec.md §4.8). Unexported: nodes cannot set it directly.
	historyReset bool
}

// TraceEvent is the typed form of a spec.md §3 TraceEvent prior to
// persistence; EventIndex is assigned by the collector when it stores
// the event (agent/trace.Collector), not by the node, and Timestamp is
// copied from the observed envelope.
type TraceEvent struct {
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload"`
	Timestamp int64          `json:"timestamp_ms"`
}

// Researcher is the typed state for the researcher subgraph (spec.md §3).
type Researcher struct {
	Topic          string         `json:"topic"`
	Queries        []string       `json:"queries"`
	QueryBreadth   int            `json:"query_breadth"`
	SearchResults  []SearchResult `json:"search_results"`
	ResearchSummary string        `json:"research_summary"`
}

// SearchResult is one (url, title, snippet) hit formatted by perform_search.
//
// QueryIndex is the originating perform_search_N slot (spec.md §5's
// "branch-index-ordered updates"): the engine's fan-out merge order is
// keyed on a hash of the branch index (graph/scheduler.go's orderKey),
// not the index itself, so ReduceResearcher sorts on this field rather
// than trusting merge arrival order.
type SearchResult struct {
	Query      string `json:"query"`
	QueryIndex int    `json:"query_index"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
	Markdown   string `json:"markdown"`
}

// Market is the typed state for the market-research subgraph (spec.md §3).
type Market struct {
	OriginalTopic    string             `json:"original_topic"`
	AIResponse       string             `json:"ai_response"`
	SelectedTags     []Tag              `json:"selected_tags"`
	RawEvents        []MarketObject     `json:"raw_events"`
	CandidateMarkets []MarketObject     `json:"candidate_markets"`
	ApprovedMarkets  []PredictionMarket `json:"approved_markets"`
	ReasoningTrace   []string           `json:"reasoning_trace"`
}

// Tag is a market-catalog tag (id + display name).
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MarketObject is a flattened market carrying its parent event's
// display context, as fetch_markets assembles it (spec.md §4.3).
type MarketObject struct {
	Slug          string   `json:"slug"`
	Question      string   `json:"question"`
	Description   string   `json:"description"`
	Rules         string   `json:"rules"`
	ClobTokenIDs  []string `json:"clob_token_ids"`
	EventTitle    string   `json:"event_title"`
	EventSlug     string   `json:"event_slug"`
	EventImageURL string   `json:"event_image_url"`
}
