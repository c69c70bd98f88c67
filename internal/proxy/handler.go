package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/airblackbox/gateway/internal/guardrails"
)

func (s *Service) handleProxyFor(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.handleProxy(c, endpoint)
	}
}

func (s *Service) handleProxy(c *gin.Context, endpoint string) {
	start := time.Now()
	runID := uuid.New().String()

	ctx, span := tracer.Start(c.Request.Context(), "llm.call",
		trace.WithAttributes(
			attribute.String("gen_ai.run.id", runID),
			attribute.String("gen_ai.request.endpoint", endpoint),
		),
	)
	defer span.End()

	reqBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request"})
		return
	}
	c.Request.Body.Close()

	model := gjson.GetBytes(reqBody, "model").String()
	isStream := gjson.GetBytes(reqBody, "stream").Bool()
	span.SetAttributes(attribute.String("gen_ai.request.model", model))

	provider := inferProvider(model, s.cfg.ProviderURL)
	span.SetAttributes(attribute.String("gen_ai.system", provider))

	sessionID := extractSessionID(c.Request)
	promptText := extractPromptText(reqBody)
	toolNames := extractToolNames(reqBody)

	// Prevention layer. Runs before detection; may rewrite the body (PII
	// redaction, tool filtering, model downgrade) or block with 403.
	if s.gcfg != nil {
		sessionTokens := 0
		if s.sessions != nil {
			sessionTokens = s.sessions.SessionTokens(sessionID)
		}

		prevResult := guardrails.EvaluatePrevention(s.gcfg, reqBody, promptText, toolNames, model, sessionTokens)
		if prevResult.Blocked {
			s.log.Warn("request blocked by prevention policy",
				zap.String("reason", prevResult.BlockReason),
				zap.String("session_id", sessionID))
			c.JSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"type":    "prevention_policy_blocked",
					"message": prevResult.BlockReason,
				},
			})
			if s.alerter != nil {
				s.alerter.Notify(&guardrails.Violation{
					Rule:      "prevention",
					Message:   prevResult.BlockReason,
					SessionID: sessionID,
				})
			}
			return
		}
		if prevResult.ModifiedBody != nil {
			reqBody = prevResult.ModifiedBody
			model = gjson.GetBytes(reqBody, "model").String()
			promptText = extractPromptText(reqBody)
			toolNames = extractToolNames(reqBody)
			s.log.Info("request modified by prevention policy",
				zap.Bool("pii_redacted", prevResult.PIIRedacted),
				zap.Bool("tools_filtered", prevResult.ToolsFiltered),
				zap.String("model_downgraded_from", prevResult.ModelDowngraded))
		}
	}

	// Detection layer. Catches runaway agents and blocks with 429 unless the
	// approval webhook overrides.
	if s.gcfg != nil && s.sessions != nil {
		s.sessions.GetOrCreate(sessionID)
		s.sessions.RecordRequest(sessionID, promptText, toolNames)

		evalReq := &guardrails.EvalRequest{
			PromptText: promptText,
			ToolNames:  toolNames,
			Model:      model,
		}
		if v := guardrails.Evaluate(s.gcfg, s.sessions, sessionID, evalReq); v != nil {
			approved, _ := guardrails.RequestApproval(c.Request.Context(), s.gcfg.Prevention.Approval, v)
			if approved {
				s.log.Info("guardrail violation approved via webhook",
					zap.String("rule", v.Rule),
					zap.String("session_id", sessionID))
			} else {
				c.JSON(http.StatusTooManyRequests, gin.H{
					"error": gin.H{
						"type":       "agent_guardrail_triggered",
						"rule":       v.Rule,
						"message":    v.Message,
						"session_id": v.SessionID,
						"details":    v.Details,
					},
				})
				if s.alerter != nil {
					s.alerter.Notify(v)
				}
				s.sessions.Remove(sessionID)
				return
			}
		}
	}

	// Analytics-driven model routing. Swaps degraded models based on tracked
	// error rates and latency.
	if s.gcfg != nil && s.tracker != nil && s.gcfg.Optimization.Router.Enabled {
		decision := guardrails.EvaluateRouting(s.gcfg.Optimization, s.tracker, model)
		if decision.RoutedModel != model {
			s.log.Info("model rerouted",
				zap.String("from", decision.OriginalModel),
				zap.String("to", decision.RoutedModel),
				zap.String("reason", decision.Reason))
			if rewritten, err := rewriteModel(reqBody, decision.RoutedModel); err == nil {
				reqBody = rewritten
				model = decision.RoutedModel
			}
		}
	}

	// Forward upstream.
	upstream := s.cfg.ProviderURL + endpoint
	proxyReq, err := http.NewRequestWithContext(ctx, http.MethodPost, upstream, bytes.NewReader(reqBody))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create upstream request"})
		return
	}
	proxyReq.Header.Set("Content-Type", "application/json")
	if auth := c.GetHeader("Authorization"); auth != "" {
		proxyReq.Header.Set("Authorization", auth)
	}

	resp, err := s.upstream.Do(proxyReq)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream: " + err.Error()})
		s.submitRecord(recordJob{
			runID: runID, span: span, model: model, provider: provider,
			endpoint: endpoint, reqBody: reqBody, start: start,
			status: "error", errMsg: err.Error(), sessionID: sessionID,
		})
		return
	}
	defer resp.Body.Close()

	// The run ID goes out before the body so streaming clients see it too.
	c.Header("x-run-id", runID)
	for _, h := range []string{"x-request-id", "openai-organization"} {
		if v := resp.Header.Get(h); v != "" {
			c.Header(h, v)
		}
	}

	if isStream && resp.Header.Get("Content-Type") == "text/event-stream" {
		s.streamResponse(c, resp, runID, span, model, provider, endpoint, reqBody, sessionID, start)
	} else {
		s.bufferResponse(c, resp, runID, span, model, provider, endpoint, reqBody, sessionID, start)
	}
}

// streamResponse forwards SSE chunks as they arrive while buffering the full
// stream for vaulting and recording.
func (s *Service) streamResponse(c *gin.Context, resp *http.Response,
	runID string, span trace.Span, model, provider, endpoint string,
	reqBody []byte, sessionID string, start time.Time) {

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(resp.StatusCode)

	flusher, canFlush := c.Writer.(http.Flusher)

	var fullResponse bytes.Buffer
	buf := make([]byte, 4096)

	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			fullResponse.Write(buf[:n])
			c.Writer.Write(buf[:n])
			if canFlush {
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF {
				s.log.Warn("stream read error",
					zap.String("run_id", runID), zap.Error(err))
			}
			break
		}
	}

	duration := time.Since(start)
	span.SetAttributes(
		attribute.Int64("gen_ai.duration_ms", duration.Milliseconds()),
		attribute.Bool("gen_ai.stream", true),
	)

	respBytes := fullResponse.Bytes()
	tokens := extractStreamTokens(respBytes)
	if tokens.Total > 0 {
		span.SetAttributes(
			attribute.Int("gen_ai.usage.prompt_tokens", tokens.Prompt),
			attribute.Int("gen_ai.usage.completion_tokens", tokens.Completion),
		)
	}

	status := "success"
	if resp.StatusCode >= 400 {
		status = "error"
	}

	s.log.Info("proxied streaming call",
		zap.String("run_id", runID),
		zap.String("endpoint", endpoint),
		zap.String("model", model),
		zap.Int("tokens", tokens.Total),
		zap.Int64("duration_ms", duration.Milliseconds()),
		zap.String("status", status))

	s.finishSession(sessionID, tokens.Total, respBytes, resp.StatusCode)
	s.submitRecord(recordJob{
		runID: runID, span: span, model: model, provider: provider,
		endpoint: endpoint, reqBody: reqBody, respBody: respBytes,
		start: start, status: status, statusCode: resp.StatusCode,
		sessionID: sessionID,
	})
}

// bufferResponse handles non-streaming responses.
func (s *Service) bufferResponse(c *gin.Context, resp *http.Response,
	runID string, span trace.Span, model, provider, endpoint string,
	reqBody []byte, sessionID string, start time.Time) {

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to read upstream response"})
		return
	}

	tokens := extractTokens(respBody)
	if tokens.Total > 0 {
		span.SetAttributes(
			attribute.Int("gen_ai.usage.prompt_tokens", tokens.Prompt),
			attribute.Int("gen_ai.usage.completion_tokens", tokens.Completion),
			attribute.String("gen_ai.response.model", gjson.GetBytes(respBody, "model").String()),
		)
	}

	duration := time.Since(start)
	span.SetAttributes(attribute.Int64("gen_ai.duration_ms", duration.Milliseconds()))

	status := "success"
	if resp.StatusCode >= 400 {
		status = "error"
	}

	c.Data(resp.StatusCode, "application/json", respBody)

	s.log.Info("proxied call",
		zap.String("run_id", runID),
		zap.String("endpoint", endpoint),
		zap.String("model", model),
		zap.Int("tokens", tokens.Total),
		zap.Int64("duration_ms", duration.Milliseconds()),
		zap.String("status", status))

	s.finishSession(sessionID, tokens.Total, respBody, resp.StatusCode)
	s.submitRecord(recordJob{
		runID: runID, span: span, model: model, provider: provider,
		endpoint: endpoint, reqBody: reqBody, respBody: respBody,
		start: start, status: status, statusCode: resp.StatusCode,
		sessionID: sessionID,
	})
}

// finishSession accrues token usage and error streaks for the detection
// layer. Falls back to a tiktoken estimate when the provider omits usage.
func (s *Service) finishSession(sessionID string, totalTokens int, respBody []byte, statusCode int) {
	if s.sessions == nil {
		return
	}
	if totalTokens == 0 && len(respBody) > 0 {
		if content := gjson.GetBytes(respBody, "choices.0.message.content"); content.Exists() {
			totalTokens = guardrails.EstimateTokens(content.String())
		}
	}
	s.sessions.RecordResponse(sessionID, totalTokens, statusCode >= 400)
}

// rewriteModel swaps the model field in the raw request JSON.
func rewriteModel(body []byte, model string) ([]byte, error) {
	var req map[string]json.RawMessage
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	modelJSON, _ := json.Marshal(model)
	req["model"] = modelJSON
	return json.Marshal(req)
}
