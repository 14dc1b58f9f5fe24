package nodes

import (
	"context"
	"strings"

	"github.com/dshills/deepgraph/agent/errs"
	"github.com/dshills/deepgraph/agent/state"
	"github.com/dshills/deepgraph/graph"
	"github.com/dshills/deepgraph/graph/model"
	"github.com/dshills/deepgraph/llm"
	"github.com/dshills/deepgraph/market"
	"github.com/dshills/deepgraph/stream"
)

const tagsPerPage = 20
const maxSelectedTags = 10

// GenerateMarketQueries iteratively pulls paginated tag batches from
// the catalog driver and asks the model to pick relevant ones out of
// each batch, until the model signals it has enough or the catalog is
// exhausted (spec.md §4.3).
type GenerateMarketQueries struct {
	Model  model.ChatModel
	Market market.Driver
	Bus    *stream.Bus
}

type tagBatchSelection struct {
	SelectedNames []string `json:"selected_names"`
	ContinueSearch bool    `json:"continue_search"`
}

func (n *GenerateMarketQueries) Run(ctx context.Context, s state.Market) graph.NodeResult[state.Market] {
	var selected []state.Tag
	seen := make(map[string]bool)

	for offset := 0; ; offset += tagsPerPage {
		batch, err := n.Market.FetchTags(ctx, offset, tagsPerPage)
		if err != nil {
			return graph.NodeResult[state.Market]{Err: err}
		}
		if len(batch) == 0 {
			break
		}

		byLowerName := make(map[string]market.Tag, len(batch))
		listing := ""
		for _, t := range batch {
			byLowerName[strings.ToLower(t.Name)] = t
			listing += t.Name + "\n"
		}

		pick, err := llm.InvokeStructured[tagBatchSelection](ctx, n.Model, []model.Message{
			{Role: model.RoleSystem, Content: "Given a batch of prediction-market catalog tag names and a topic, call select_tags with the names relevant to the topic (exact names from the batch) and whether to keep scanning further batches."},
			{Role: model.RoleUser, Content: "Topic: " + s.OriginalTopic + "\n\nTag batch:\n" + listing},
		}, llm.StructuredSpec{
			Name:        "select_tags",
			Description: "Select relevant tag names from this batch.",
			Schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"selected_names":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"continue_search": map[string]interface{}{"type": "boolean"},
				},
				"required": []string{"selected_names", "continue_search"},
			},
		})
		if err != nil {
			return graph.NodeResult[state.Market]{Err: err}
		}

		for _, name := range pick.SelectedNames {
			t, ok := byLowerName[strings.ToLower(name)]
			if !ok || seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			selected = append(selected, state.Tag{ID: t.ID, Name: t.Name})
			if len(selected) >= maxSelectedTags {
				break
			}
		}

		if len(selected) >= maxSelectedTags || !pick.ContinueSearch || len(batch) < tagsPerPage {
			break
		}
	}

	_ = n.Bus.PublishCustom(ctx, "generate_market_queries", "tag_selected", map[string]any{"tags": selected})

	if len(selected) == 0 {
		return graph.NodeResult[state.Market]{
			Delta: state.Market{ReasoningTrace: []string{"no catalog tags matched the topic; skipping market research"}},
			Route: graph.Stop(),
		}
	}

	return graph.NodeResult[state.Market]{
		Delta: state.Market{SelectedTags: selected},
		Route: graph.Goto("fetch_markets"),
	}
}

// FetchMarkets pulls candidate events for the selected tags, flattens
// markets, and dedups by slug (spec.md §4.3).
type FetchMarkets struct {
	Market     market.Driver
	FetchLimit int
}

func (n *FetchMarkets) Run(ctx context.Context, s state.Market) graph.NodeResult[state.Market] {
	limit := n.FetchLimit
	if limit <= 0 {
		limit = 50
	}
	ids := make([]string, len(s.SelectedTags))
	for i, t := range s.SelectedTags {
		ids[i] = t.ID
	}

	events, err := n.Market.EventsForTags(ctx, ids, limit)
	if err != nil {
		if errs.Classify(err) == errs.ClassTransientDriver {
			return graph.NodeResult[state.Market]{Err: err}
		}
		return graph.NodeResult[state.Market]{
			Delta: state.Market{ReasoningTrace: []string{"market catalog fetch failed permanently: " + err.Error()}},
			Route: graph.Stop(),
		}
	}

	seen := make(map[string]bool, len(events))
	raw := make([]state.MarketObject, 0, len(events))
	for _, e := range events {
		if seen[e.Slug] {
			continue
		}
		seen[e.Slug] = true
		raw = append(raw, state.MarketObject{
			Slug: e.Slug, Question: e.Question, Description: e.Description, Rules: e.Rules,
			ClobTokenIDs: e.ClobTokenIDs, EventTitle: e.EventTitle, EventSlug: e.EventSlug, EventImageURL: e.EventImageURL,
		})
	}

	return graph.NodeResult[state.Market]{
		Delta: state.Market{RawEvents: raw},
		Route: graph.Goto("process_and_rank_markets"),
	}
}

// ProcessAndRankMarkets sends the model slugs+questions only and
// rehydrates full objects from raw_events by slug, so the LLM never
// handles (and cannot corrupt) fields like clob_token_ids (spec.md §4.3).
type ProcessAndRankMarkets struct {
	Model              model.ChatModel
	FallbackCandidates int
}

type marketRanking struct {
	RankedSlugs []string `json:"ranked_slugs"`
	Reasoning   string   `json:"reasoning"`
}

func (n *ProcessAndRankMarkets) Run(ctx context.Context, s state.Market) graph.NodeResult[state.Market] {
	if len(s.RawEvents) == 0 {
		return graph.NodeResult[state.Market]{Route: graph.Stop()}
	}

	bySlug := make(map[string]state.MarketObject, len(s.RawEvents))
	listing := ""
	for _, e := range s.RawEvents {
		bySlug[e.Slug] = e
		listing += e.Slug + ": " + e.Question + "\n"
	}

	ranking, err := llm.InvokeStructured[marketRanking](ctx, n.Model, []model.Message{
		{Role: model.RoleSystem, Content: "Rank the following candidate prediction markets by relevance to the topic. Call rank_markets with the slugs ordered best-first and your reasoning."},
		{Role: model.RoleUser, Content: "Topic: " + s.OriginalTopic + "\n\nMarkets:\n" + listing},
	}, llm.StructuredSpec{
		Name:        "rank_markets",
		Description: "Rank candidate markets by slug.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"ranked_slugs": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"reasoning":    map[string]interface{}{"type": "string"},
			},
			"required": []string{"ranked_slugs"},
		},
	})
	if err != nil {
		return graph.NodeResult[state.Market]{Err: err}
	}

	candidates := rehydrate(bySlug, ranking.RankedSlugs)
	if len(candidates) == 0 {
		// Fallback rule (spec.md §4.3): empty ranking substitutes the
		// first N raw candidates so downstream stages have inputs.
		candidates = firstN(s.RawEvents, n.fallbackCount())
	}

	return graph.NodeResult[state.Market]{
		Delta: state.Market{CandidateMarkets: candidates, ReasoningTrace: []string{ranking.Reasoning}},
		Route: graph.Goto("evaluate_markets"),
	}
}

func (n *ProcessAndRankMarkets) fallbackCount() int {
	if n.FallbackCandidates > 0 {
		return n.FallbackCandidates
	}
	return 3
}

// EvaluateMarkets asks the model which ranked candidates are worth
// surfacing to the user (spec.md §4.3).
type EvaluateMarkets struct {
	Model              model.ChatModel
	Bus                *stream.Bus
	FallbackCandidates int
}

type marketApproval struct {
	ApprovedSlugs []string `json:"approved_slugs"`
	Reasoning     string   `json:"reasoning"`
}

func (n *EvaluateMarkets) Run(ctx context.Context, s state.Market) graph.NodeResult[state.Market] {
	if len(s.CandidateMarkets) == 0 {
		return graph.NodeResult[state.Market]{Route: graph.Stop()}
	}

	bySlug := make(map[string]state.MarketObject, len(s.CandidateMarkets))
	listing := ""
	for _, c := range s.CandidateMarkets {
		bySlug[c.Slug] = c
		listing += c.Slug + ": " + c.Question + "\n"
	}

	approval, err := llm.InvokeStructured[marketApproval](ctx, n.Model, []model.Message{
		{Role: model.RoleSystem, Content: "Given ranked candidate prediction markets and the original topic, call approve_markets with the slugs genuinely relevant enough to show the user and your reasoning. Approve none if nothing fits."},
		{Role: model.RoleUser, Content: "Topic: " + s.OriginalTopic + "\n\nCandidates:\n" + listing},
	}, llm.StructuredSpec{
		Name:        "approve_markets",
		Description: "Approve relevant candidate markets.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"approved_slugs": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"reasoning":      map[string]interface{}{"type": "string"},
			},
			"required": []string{"approved_slugs"},
		},
	})
	if err != nil {
		return graph.NodeResult[state.Market]{Err: err}
	}

	approvedObjects := rehydrate(bySlug, approval.ApprovedSlugs)
	if len(approvedObjects) == 0 {
		fallback := n.FallbackCandidates
		if fallback <= 0 {
			fallback = 3
		}
		approvedObjects = firstN(s.CandidateMarkets, fallback)
	}

	approved := make([]state.PredictionMarket, len(approvedObjects))
	for i, c := range approvedObjects {
		approved[i] = state.PredictionMarket{
			Slug: c.Slug, Question: c.Question, Description: c.Description, Rules: c.Rules,
			ClobTokenIDs: c.ClobTokenIDs, EventTitle: c.EventTitle, EventSlug: c.EventSlug, EventImageURL: c.EventImageURL,
		}
		_ = n.Bus.PublishCustom(ctx, "evaluate_markets", "market_approved", map[string]any{
			"slug": c.Slug, "clobTokenIds": c.ClobTokenIDs, "question": c.Question, "description": c.Description, "rules": c.Rules,
		})
	}
	_ = n.Bus.PublishCustom(ctx, "evaluate_markets", "market_research_complete", map[string]any{"reasoning": approval.Reasoning})

	return graph.NodeResult[state.Market]{
		Delta: state.Market{ApprovedMarkets: approved, ReasoningTrace: []string{approval.Reasoning}},
		Route: graph.Stop(),
	}
}

func rehydrate(bySlug map[string]state.MarketObject, slugs []string) []state.MarketObject {
	out := make([]state.MarketObject, 0, len(slugs))
	for _, slug := range slugs {
		if obj, ok := bySlug[slug]; ok {
			out = append(out, obj)
		}
	}
	return out
}

func firstN(objs []state.MarketObject, n int) []state.MarketObject {
	if n > len(objs) {
		n = len(objs)
	}
	return append([]state.MarketObject{}, objs[:n]...)
}
