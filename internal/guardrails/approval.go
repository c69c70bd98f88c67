package guardrails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/airblackbox/gateway/internal/pkg/logger"
)

// ApprovalRequest is the payload sent to the approval webhook.
type ApprovalRequest struct {
	SessionID   string                 `json:"session_id"`
	ViolationID string                 `json:"violation_id"`
	Rule        string                 `json:"rule"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details"`
	Timestamp   time.Time              `json:"timestamp"`
}

// ApprovalResponse is the decision expected back from the webhook.
type ApprovalResponse struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// RequestApproval sends a violation to the approval webhook and waits for a
// human decision. Without an enabled webhook every violation blocks. When the
// webhook fails or times out the configured fallback applies. Only rules
// listed in cfg.Rules enter the approval flow; other rules block.
func RequestApproval(ctx context.Context, cfg ApprovalConfig, v *Violation) (bool, error) {
	if !cfg.Enabled || cfg.WebhookURL == "" {
		return false, nil
	}

	if len(cfg.Rules) > 0 {
		needsApproval := false
		for _, rule := range cfg.Rules {
			if rule == v.Rule {
				needsApproval = true
				break
			}
		}
		if !needsApproval {
			return false, nil
		}
	}

	req := ApprovalRequest{
		SessionID:   v.SessionID,
		ViolationID: fmt.Sprintf("%s-%d", v.Rule, time.Now().UnixNano()),
		Rule:        v.Rule,
		Message:     v.Message,
		Details:     v.Details,
		Timestamp:   time.Now().UTC(),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return cfg.FallbackAllow, err
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return cfg.FallbackAllow, nil
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		logger.Warn("approval webhook unreachable",
			zap.Error(err),
			zap.Bool("fallback_allow", cfg.FallbackAllow))
		return cfg.FallbackAllow, nil
	}
	defer resp.Body.Close()

	var approval ApprovalResponse
	if err := json.NewDecoder(resp.Body).Decode(&approval); err != nil {
		logger.Warn("approval response decode failed",
			zap.Error(err),
			zap.Bool("fallback_allow", cfg.FallbackAllow))
		return cfg.FallbackAllow, nil
	}

	logger.Info("approval decision received",
		zap.String("session_id", v.SessionID),
		zap.String("rule", v.Rule),
		zap.Bool("approved", approval.Approved),
		zap.String("reason", approval.Reason))

	return approval.Approved, nil
}
