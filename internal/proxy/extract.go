package proxy

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/airblackbox/gateway/internal/recorder"
)

// extractSessionID derives a session identifier for guardrail tracking.
// X-Session-ID wins; otherwise a hash of the Authorization header groups
// requests from the same caller.
func extractSessionID(r *http.Request) string {
	if sid := r.Header.Get("X-Session-ID"); sid != "" {
		return sid
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		h := sha256.Sum256([]byte(auth))
		return fmt.Sprintf("auth_%x", h[:8])
	}
	return "anonymous"
}

// extractPromptText pulls the last user message content from the request
// body. Content can be a plain string or an array of typed parts.
func extractPromptText(body []byte) string {
	messages := gjson.GetBytes(body, "messages").Array()
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Get("role").String() != "user" {
			continue
		}
		content := msg.Get("content")
		if content.Type == gjson.String {
			return content.String()
		}
		if content.IsArray() {
			for _, part := range content.Array() {
				if part.Get("type").String() == "text" {
					return part.Get("text").String()
				}
			}
		}
	}
	return ""
}

// extractToolNames pulls tool function names from the request body.
func extractToolNames(body []byte) []string {
	var names []string
	for _, name := range gjson.GetBytes(body, "tools.#.function.name").Array() {
		if name.String() != "" {
			names = append(names, name.String())
		}
	}
	return names
}

// extractTokens reads the usage block of an OpenAI-compatible response.
func extractTokens(body []byte) recorder.Tokens {
	usage := gjson.GetBytes(body, "usage")
	if !usage.Exists() {
		return recorder.Tokens{}
	}
	return recorder.Tokens{
		Prompt:     int(usage.Get("prompt_tokens").Int()),
		Completion: int(usage.Get("completion_tokens").Int()),
		Total:      int(usage.Get("total_tokens").Int()),
	}
}

// extractStreamTokens scans SSE data chunks backwards for a usage block.
// Providers include usage in the final chunk when the request sets
// stream_options.include_usage.
func extractStreamTokens(data []byte) recorder.Tokens {
	lines := strings.Split(string(data), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			continue
		}
		if usage := gjson.Get(payload, "usage"); usage.Exists() && usage.Type != gjson.Null {
			return recorder.Tokens{
				Prompt:     int(usage.Get("prompt_tokens").Int()),
				Completion: int(usage.Get("completion_tokens").Int()),
				Total:      int(usage.Get("total_tokens").Int()),
			}
		}
	}
	return recorder.Tokens{}
}

// inferProvider guesses the provider from the model name, falling back to
// the upstream URL.
func inferProvider(model, providerURL string) string {
	model = strings.ToLower(model)
	switch {
	case strings.HasPrefix(model, "gpt"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "chatgpt"), strings.HasPrefix(model, "dall-e"):
		return "openai"
	case strings.HasPrefix(model, "claude"):
		return "anthropic"
	case strings.HasPrefix(model, "gemini"):
		return "google"
	case strings.HasPrefix(model, "mistral"), strings.HasPrefix(model, "mixtral"),
		strings.HasPrefix(model, "codestral"), strings.HasPrefix(model, "pixtral"):
		return "mistral"
	case strings.HasPrefix(model, "llama"), strings.HasPrefix(model, "meta-llama"):
		return "meta"
	case strings.HasPrefix(model, "deepseek"):
		return "deepseek"
	case strings.HasPrefix(model, "grok"):
		return "xai"
	case strings.HasPrefix(model, "command"), strings.HasPrefix(model, "embed-"),
		strings.HasPrefix(model, "rerank-"):
		return "cohere"
	case strings.HasPrefix(model, "qwen"):
		return "alibaba"
	case strings.Contains(providerURL, "openai.com"):
		return "openai"
	case strings.Contains(providerURL, "anthropic.com"):
		return "anthropic"
	case strings.Contains(providerURL, "groq.com"):
		return "groq"
	case strings.Contains(providerURL, "together.xyz"), strings.Contains(providerURL, "together.ai"):
		return "together"
	case strings.Contains(providerURL, "fireworks.ai"):
		return "fireworks"
	default:
		return "unknown"
	}
}
