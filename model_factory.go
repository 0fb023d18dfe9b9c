package opsagent

import (
	"fmt"
	"os"
	"strings"

	"github.com/Desarso/opsagent/models"
	"github.com/Desarso/opsagent/models/anthropic"
	"github.com/Desarso/opsagent/models/gemini"
	"github.com/Desarso/opsagent/models/openai"
)

const (
	DefaultModel         = "gpt-4o"
	DefaultAnalysisModel = "gpt-4o-mini"
)

// Create_Model resolves a model name to a provider adapter by prefix:
// claude* -> Anthropic, grok* -> xAI, ollama/* -> local Ollama,
// gemini* -> Gemini, openrouter/*, groq/* and cerebras/* -> their
// OpenAI-compatible endpoints, anything else -> OpenAI.
func Create_Model(name string, temperature *float64) (models.Model, error) {
	if temperature != nil && (*temperature < 0 || *temperature > 2) {
		return nil, fmt.Errorf("temperature must be between 0 and 2, got %v", *temperature)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultModel
	}
	lower := strings.ToLower(name)

	switch {
	case strings.HasPrefix(lower, "claude"):
		return &anthropic.Anthropic_Model{Model: name, Temperature: temperature}, nil
	case strings.HasPrefix(lower, "grok"):
		return &openai.OpenAI_Model{Model: name, Temperature: temperature, BaseURL: openai.XAIBaseURL, APIKeyEnv: "XAI_API_KEY"}, nil
	case strings.HasPrefix(lower, "ollama/"):
		base := os.Getenv("OLLAMA_BASE_URL")
		if base == "" {
			base = openai.OllamaBaseURL
		} else if !strings.HasSuffix(base, "/chat/completions") {
			base = strings.TrimRight(base, "/") + "/v1/chat/completions"
		}
		return &openai.OpenAI_Model{Model: name[len("ollama/"):], Temperature: temperature, BaseURL: base, APIKeyEnv: "OLLAMA_API_KEY"}, nil
	case strings.HasPrefix(lower, "gemini"):
		return &gemini.Gemini_Model{Model: name, Temperature: temperature}, nil
	case strings.HasPrefix(lower, "openrouter/"):
		return &openai.OpenAI_Model{Model: name[len("openrouter/"):], Temperature: temperature, BaseURL: openai.OpenRouterBaseURL, APIKeyEnv: "OPENROUTER_API_KEY"}, nil
	case strings.HasPrefix(lower, "groq/"):
		return &openai.OpenAI_Model{Model: name[len("groq/"):], Temperature: temperature, BaseURL: openai.GroqBaseURL, APIKeyEnv: "GROQ_API_KEY"}, nil
	case strings.HasPrefix(lower, "cerebras/"):
		return &openai.OpenAI_Model{Model: name[len("cerebras/"):], Temperature: temperature, BaseURL: openai.CerebrasBaseURL, APIKeyEnv: "CEREBRAS_API_KEY"}, nil
	}
	return &openai.OpenAI_Model{Model: name, Temperature: temperature}, nil
}

// Models lists the models advertised by GET /models.
func Models() []models.ModelInfo {
	return []models.ModelInfo{
		{ID: "gpt-4o", Name: "GPT-4o", Provider: "openai", RecommendedFor: []string{"general", "docs", "sheet", "multi"}},
		{ID: "gpt-4o-mini", Name: "GPT-4o mini", Provider: "openai", RecommendedFor: []string{"analysis"}},
		{ID: "grok-3-fast", Name: "Grok 3 Fast", Provider: "xai", RecommendedFor: []string{"email"}},
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", Provider: "anthropic", RecommendedFor: []string{"general", "docs"}},
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", Provider: "google", RecommendedFor: []string{"general"}},
		{ID: "ollama/llama3.2", Name: "Llama 3.2 (local)", Provider: "ollama", RecommendedFor: []string{"general"}},
	}
}
