package proxy

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSessionID(t *testing.T) {
	r, _ := http.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	r.Header.Set("X-Session-ID", "my-session")
	assert.Equal(t, "my-session", extractSessionID(r))

	r, _ = http.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	r.Header.Set("Authorization", "Bearer sk-test")
	sid := extractSessionID(r)
	assert.Contains(t, sid, "auth_")

	// The same key always hashes to the same session.
	r2, _ := http.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	r2.Header.Set("Authorization", "Bearer sk-test")
	assert.Equal(t, sid, extractSessionID(r2))

	r3, _ := http.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	assert.Equal(t, "anonymous", extractSessionID(r3))
}

func TestExtractPromptTextString(t *testing.T) {
	body := []byte(`{"messages":[{"role":"system","content":"be brief"},{"role":"user","content":"what is 2+2"}]}`)
	assert.Equal(t, "what is 2+2", extractPromptText(body))
}

func TestExtractPromptTextLastUserWins(t *testing.T) {
	body := []byte(`{"messages":[{"role":"user","content":"first"},{"role":"assistant","content":"ok"},{"role":"user","content":"second"}]}`)
	assert.Equal(t, "second", extractPromptText(body))
}

func TestExtractPromptTextParts(t *testing.T) {
	body := []byte(`{"messages":[{"role":"user","content":[{"type":"image_url","image_url":{"url":"http://x"}},{"type":"text","text":"describe this"}]}]}`)
	assert.Equal(t, "describe this", extractPromptText(body))
}

func TestExtractPromptTextEmpty(t *testing.T) {
	assert.Empty(t, extractPromptText([]byte(`{"messages":[]}`)))
	assert.Empty(t, extractPromptText([]byte(`{}`)))
	assert.Empty(t, extractPromptText([]byte(`{"messages":[{"role":"assistant","content":"hi"}]}`)))
}

func TestExtractToolNames(t *testing.T) {
	body := []byte(`{"tools":[{"type":"function","function":{"name":"web_search"}},{"type":"function","function":{"name":"code_interpreter"}}]}`)
	assert.Equal(t, []string{"web_search", "code_interpreter"}, extractToolNames(body))

	assert.Nil(t, extractToolNames([]byte(`{}`)))
}

func TestExtractTokens(t *testing.T) {
	body := []byte(`{"usage":{"prompt_tokens":12,"completion_tokens":34,"total_tokens":46}}`)
	tokens := extractTokens(body)
	assert.Equal(t, 12, tokens.Prompt)
	assert.Equal(t, 34, tokens.Completion)
	assert.Equal(t, 46, tokens.Total)

	assert.Zero(t, extractTokens([]byte(`{}`)).Total)
}

func TestExtractStreamTokens(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}],\"usage\":null}\n\n" +
		"data: {\"choices\":[],\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":7,\"total_tokens\":12}}\n\n" +
		"data: [DONE]\n\n"

	tokens := extractStreamTokens([]byte(stream))
	assert.Equal(t, 5, tokens.Prompt)
	assert.Equal(t, 7, tokens.Completion)
	assert.Equal(t, 12, tokens.Total)
}

func TestExtractStreamTokensNoUsage(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\ndata: [DONE]\n\n"
	assert.Zero(t, extractStreamTokens([]byte(stream)).Total)
}

func TestInferProvider(t *testing.T) {
	tests := []struct {
		model    string
		url      string
		expected string
	}{
		{"gpt-4o", "", "openai"},
		{"gpt-4o-mini", "", "openai"},
		{"o1-preview", "", "openai"},
		{"o3-mini", "", "openai"},
		{"chatgpt-4o-latest", "", "openai"},
		{"dall-e-3", "", "openai"},
		{"claude-sonnet-4-20250514", "", "anthropic"},
		{"gemini-1.5-pro", "", "google"},
		{"mistral-large", "", "mistral"},
		{"mixtral-8x7b", "", "mistral"},
		{"codestral-latest", "", "mistral"},
		{"llama-3.1-70b", "", "meta"},
		{"meta-llama/Llama-3-8b", "", "meta"},
		{"deepseek-chat", "", "deepseek"},
		{"grok-2", "", "xai"},
		{"command-r-plus", "", "cohere"},
		{"embed-english-v3.0", "", "cohere"},
		{"qwen-max", "", "alibaba"},
		{"custom-model", "https://api.openai.com", "openai"},
		{"custom-model", "https://api.anthropic.com", "anthropic"},
		{"custom-model", "https://api.groq.com/openai", "groq"},
		{"custom-model", "https://api.together.xyz", "together"},
		{"custom-model", "https://api.fireworks.ai/inference", "fireworks"},
		{"custom-model", "https://example.com", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.model+"_"+tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, inferProvider(tt.model, tt.url))
		})
	}
}
