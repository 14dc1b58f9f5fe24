// Package llm selects and wraps the graph/model.ChatModel provider used
// by the research agent's nodes, and adds forced-structured-output on
// top of the provider-agnostic tool-calling interface (spec.md §6,
// "LLM driver").
package llm

import (
	"fmt"
	"os"

	"github.com/dshills/deepgraph/graph/model"
	"github.com/dshills/deepgraph/graph/model/anthropic"
	"github.com/dshills/deepgraph/graph/model/google"
	"github.com/dshills/deepgraph/graph/model/openai"
	"github.com/joho/godotenv"
)

// Provider selects which ChatModel backend New constructs.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
	ProviderMock      Provider = "mock"
)

// Config selects and configures an LLM provider (spec.md §1 "ambient
// stack additions — config").
type Config struct {
	Provider  Provider
	APIKey    string
	ModelName string
}

// New constructs the ChatModel for cfg.Provider. ProviderMock returns a
// fresh, empty *model.MockChatModel the caller configures directly;
// it exists so tests, or RESEARCH_LLM_PROVIDER=mock, can substitute a driver
// without a second code path.
func New(cfg Config) (model.ChatModel, error) {
	switch cfg.Provider {
	case ProviderAnthropic:
		return anthropic.NewChatModel(cfg.APIKey, cfg.ModelName), nil
	case ProviderOpenAI:
		return openai.NewChatModel(cfg.APIKey, cfg.ModelName), nil
	case ProviderGoogle:
		return google.NewChatModel(cfg.APIKey, cfg.ModelName), nil
	case ProviderMock:
		return &model.MockChatModel{}, nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// ConfigFromEnv loads a .env file if present (godotenv, silently
// ignoring a missing file the way a local-dev overlay should) and
// builds a Config from RESEARCH_LLM_PROVIDER / RESEARCH_LLM_API_KEY /
// RESEARCH_LLM_MODEL, defaulting to ProviderAnthropic.
func ConfigFromEnv() Config {
	_ = godotenv.Load()

	provider := Provider(os.Getenv("RESEARCH_LLM_PROVIDER"))
	if provider == "" {
		provider = ProviderAnthropic
	}
	return Config{
		Provider:  provider,
		APIKey:    os.Getenv("RESEARCH_LLM_API_KEY"),
		ModelName: os.Getenv("RESEARCH_LLM_MODEL"),
	}
}
