package opsagent

import (
	"testing"

	"github.com/Desarso/opsagent/models/anthropic"
	"github.com/Desarso/opsagent/models/gemini"
	"github.com/Desarso/opsagent/models/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateModelByPrefix(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "")
	temp := 0.5

	m, err := Create_Model("claude-sonnet-4-20250514", &temp)
	require.NoError(t, err)
	claude, ok := m.(*anthropic.Anthropic_Model)
	require.True(t, ok)
	assert.Equal(t, &temp, claude.Temperature)

	m, err = Create_Model("grok-3-fast", nil)
	require.NoError(t, err)
	grok := m.(*openai.OpenAI_Model)
	assert.Equal(t, openai.XAIBaseURL, grok.BaseURL)
	assert.Equal(t, "XAI_API_KEY", grok.APIKeyEnv)

	m, err = Create_Model("ollama/llama3.2", nil)
	require.NoError(t, err)
	local := m.(*openai.OpenAI_Model)
	assert.Equal(t, "llama3.2", local.Model)
	assert.Equal(t, openai.OllamaBaseURL, local.BaseURL)

	m, err = Create_Model("gemini-2.0-flash", nil)
	require.NoError(t, err)
	assert.IsType(t, &gemini.Gemini_Model{}, m)

	for prefix, base := range map[string]string{
		"openrouter/": openai.OpenRouterBaseURL,
		"groq/":       openai.GroqBaseURL,
		"cerebras/":   openai.CerebrasBaseURL,
	} {
		m, err = Create_Model(prefix+"some-model", nil)
		require.NoError(t, err)
		assert.Equal(t, base, m.(*openai.OpenAI_Model).BaseURL)
		assert.Equal(t, "some-model", m.(*openai.OpenAI_Model).Model)
	}

	m, err = Create_Model("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, m.(*openai.OpenAI_Model).Model)
	assert.Empty(t, m.(*openai.OpenAI_Model).BaseURL)
}

func TestCreateModelOllamaBaseURL(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://gpu-box:11434/")
	m, err := Create_Model("ollama/qwen", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:11434/v1/chat/completions", m.(*openai.OpenAI_Model).BaseURL)
}

func TestCreateModelRejectsTemperature(t *testing.T) {
	temp := 3.0
	_, err := Create_Model("gpt-4o", &temp)
	assert.Error(t, err)
}
