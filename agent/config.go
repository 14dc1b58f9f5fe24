package agent

import (
	"os"
	"strconv"

	"github.com/dshills/deepgraph/agent/state"
	"github.com/dshills/deepgraph/llm"
	"github.com/dshills/deepgraph/market"
	"github.com/dshills/deepgraph/search"
)

// Config assembles every knob the research agent's runtime needs:
// the LLM/search/market drivers to build, persistence paths, and the
// tunables spec.md leaves as "default N, configurable" (iteration cap,
// query breadth, market fallback size, history cap).
type Config struct {
	LLM llm.Config

	SearchEndpoint string
	SearchAPIKey   string
	MarketBaseURL  string

	CheckpointDBPath   string
	MessageStoreDBPath string

	IterationCap       int
	MaxQueryBreadth    int
	MaxResultsPerQuery int
	MarketFetchLimit   int
	MarketFallbackSize int
	HistoryCap         int
}

// ConfigFromEnv builds a Config from environment variables, the way
// llm.ConfigFromEnv already does for the model provider (RESEARCH_*
// prefix, sensible defaults when unset).
func ConfigFromEnv() Config {
	cfg := Config{
		LLM:                llm.ConfigFromEnv(),
		SearchEndpoint:     os.Getenv("RESEARCH_SEARCH_ENDPOINT"),
		SearchAPIKey:       os.Getenv("RESEARCH_SEARCH_API_KEY"),
		MarketBaseURL:      os.Getenv("RESEARCH_MARKET_BASE_URL"),
		CheckpointDBPath:   envOrDefault("RESEARCH_CHECKPOINT_DB", "checkpoints.sqlite"),
		MessageStoreDBPath: envOrDefault("RESEARCH_MESSAGES_DB", "messages.sqlite"),
		IterationCap:       envIntOrDefault("RESEARCH_ITERATION_CAP", 10),
		MaxQueryBreadth:    envIntOrDefault("RESEARCH_MAX_QUERY_BREADTH", 5),
		MaxResultsPerQuery: envIntOrDefault("RESEARCH_MAX_RESULTS_PER_QUERY", 5),
		MarketFetchLimit:   envIntOrDefault("RESEARCH_MARKET_FETCH_LIMIT", 50),
		MarketFallbackSize: envIntOrDefault("RESEARCH_MARKET_FALLBACK_SIZE", 3),
		HistoryCap:         envIntOrDefault("RESEARCH_HISTORY_CAP", 50),
	}
	return cfg
}

// Apply pushes the config's process-wide overrides (just the history
// cap today) into the packages that hold them as package-level state.
func (c Config) Apply() {
	if c.HistoryCap > 0 {
		state.SetHistoryCap(c.HistoryCap)
	}
}

// NewSearchDriver builds the search.Driver named by c, or search.Mock
// (with no canned results) if no endpoint is configured.
func (c Config) NewSearchDriver() search.Driver {
	if c.SearchEndpoint == "" {
		return &search.Mock{}
	}
	return search.NewHTTPDriver(c.SearchEndpoint, c.SearchAPIKey)
}

// NewMarketDriver builds the market.Driver named by c, or market.Mock
// if no base URL is configured.
func (c Config) NewMarketDriver() market.Driver {
	if c.MarketBaseURL == "" {
		return &market.Mock{}
	}
	return market.NewHTTPDriver(c.MarketBaseURL)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
