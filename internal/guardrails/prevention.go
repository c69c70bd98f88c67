package guardrails

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/airblackbox/gateway/internal/pkg/logger"
)

// PreventionResult describes the outcome of evaluating prevention policies
// against one request.
type PreventionResult struct {
	// Blocked means the request must be rejected before leaving the gateway.
	Blocked     bool
	BlockReason string

	// ModifiedBody is the rewritten JSON request to send upstream.
	// nil means forward the original body unchanged.
	ModifiedBody []byte

	ModelDowngraded string // original model name if downgraded
	PIIRedacted     bool
	ToolsFiltered   bool
}

// EvaluatePrevention runs the prevention policies in order: PII, tool
// filtering, model downgrade. The first blocking policy returns immediately;
// otherwise modifications accumulate into a single body rewrite.
func EvaluatePrevention(cfg *Config, reqBody []byte, promptText string, toolNames []string, model string, sessionTokens int) *PreventionResult {
	result := &PreventionResult{}

	if cfg == nil {
		return result
	}
	prev := cfg.Prevention

	needsRewrite := false
	newPrompt := promptText
	newTools := toolNames
	newModel := model

	if prev.PII.Enabled {
		blocked, redacted := checkPII(prev.PII, promptText)
		if blocked {
			result.Blocked = true
			result.BlockReason = "PII detected in request (policy: block)"
			return result
		}
		if redacted != promptText {
			newPrompt = redacted
			result.PIIRedacted = true
			needsRewrite = true
			logger.Info("pii redacted from prompt")
		}
	}

	if prev.Tools.Enabled && len(toolNames) > 0 {
		filtered := filterTools(prev.Tools, toolNames)
		if len(filtered) == 0 {
			result.Blocked = true
			result.BlockReason = "all requested tools are blocked by policy"
			return result
		}
		if len(filtered) != len(toolNames) {
			newTools = filtered
			result.ToolsFiltered = true
			needsRewrite = true
			logger.Info("tools filtered by policy",
				zap.Int("requested", len(toolNames)),
				zap.Int("allowed", len(filtered)))
		}
	}

	if prev.ModelLimits.Enabled {
		downgraded := checkModelDowngrade(prev.ModelLimits, model, sessionTokens)
		if downgraded != model {
			result.ModelDowngraded = model
			newModel = downgraded
			needsRewrite = true
			logger.Info("model downgraded by cost policy",
				zap.String("from", model),
				zap.String("to", downgraded))
		}
	}

	if needsRewrite {
		modified, err := modifyRequestBody(reqBody, newPrompt, newTools, newModel, promptText)
		if err != nil {
			// Forward the original body rather than blocking on a rewrite bug.
			logger.Warn("failed to rewrite request body", zap.Error(err))
			return result
		}
		result.ModifiedBody = modified
	}

	return result
}

// modifyRequestBody rewrites model, messages, and tools in the raw request
// JSON while preserving every other field untouched.
func modifyRequestBody(body []byte, newPrompt string, newTools []string, newModel string, originalPrompt string) ([]byte, error) {
	var req map[string]json.RawMessage
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	if newModel != "" {
		modelJSON, _ := json.Marshal(newModel)
		req["model"] = modelJSON
	}

	if newPrompt != originalPrompt {
		if messagesRaw, ok := req["messages"]; ok {
			req["messages"] = redactMessagesJSON(messagesRaw, originalPrompt, newPrompt)
		}
	}

	if newTools != nil {
		if toolsRaw, ok := req["tools"]; ok {
			req["tools"] = filterToolsJSON(toolsRaw, newTools)
		}
	}

	return json.Marshal(req)
}

// redactMessagesJSON replaces the original user prompt with its redacted form
// in the messages array. Handles both string content and array-of-parts.
func redactMessagesJSON(messagesRaw json.RawMessage, original, redacted string) json.RawMessage {
	var messages []map[string]json.RawMessage
	if err := json.Unmarshal(messagesRaw, &messages); err != nil {
		return messagesRaw
	}

	for i, msg := range messages {
		roleRaw, ok := msg["role"]
		if !ok {
			continue
		}
		var role string
		if err := json.Unmarshal(roleRaw, &role); err != nil || role != "user" {
			continue
		}

		contentRaw, ok := msg["content"]
		if !ok {
			continue
		}

		var text string
		if err := json.Unmarshal(contentRaw, &text); err == nil {
			if text == original {
				newContent, _ := json.Marshal(redacted)
				messages[i]["content"] = newContent
			}
			continue
		}

		var parts []map[string]json.RawMessage
		if err := json.Unmarshal(contentRaw, &parts); err == nil {
			for j, part := range parts {
				typeRaw, ok := part["type"]
				if !ok {
					continue
				}
				var partType string
				if err := json.Unmarshal(typeRaw, &partType); err != nil || partType != "text" {
					continue
				}
				textRaw, ok := part["text"]
				if !ok {
					continue
				}
				var partText string
				if err := json.Unmarshal(textRaw, &partText); err == nil && partText == original {
					newText, _ := json.Marshal(redacted)
					parts[j]["text"] = newText
				}
			}
			newParts, _ := json.Marshal(parts)
			messages[i]["content"] = newParts
		}
	}

	result, _ := json.Marshal(messages)
	return result
}

// filterToolsJSON keeps only tool definitions whose function.name survived
// the policy filter.
func filterToolsJSON(toolsRaw json.RawMessage, allowed []string) json.RawMessage {
	allowSet := make(map[string]bool, len(allowed))
	for _, t := range allowed {
		allowSet[t] = true
	}

	var tools []json.RawMessage
	if err := json.Unmarshal(toolsRaw, &tools); err != nil {
		return toolsRaw
	}

	var filtered []json.RawMessage
	for _, toolRaw := range tools {
		var tool struct {
			Function struct {
				Name string `json:"name"`
			} `json:"function"`
		}
		if err := json.Unmarshal(toolRaw, &tool); err != nil {
			continue
		}
		if allowSet[tool.Function.Name] {
			filtered = append(filtered, toolRaw)
		}
	}

	result, _ := json.Marshal(filtered)
	return result
}
