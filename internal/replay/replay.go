// Package replay fetches a recorded run from the vault, replays it against
// the LLM provider, and reports behavioral drift.
package replay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	apperrors "github.com/airblackbox/gateway/internal/pkg/errors"
	"github.com/airblackbox/gateway/internal/recorder"
	"github.com/airblackbox/gateway/internal/vault"
)

// DriftThreshold is the similarity below which a replay counts as drifted.
const DriftThreshold = 0.8

// Result holds the outcome of a replay.
type Result struct {
	RunID          string  `json:"run_id"`
	OriginalModel  string  `json:"original_model"`
	ReplayModel    string  `json:"replay_model"`
	Drift          bool    `json:"drift"`
	DriftSummary   string  `json:"drift_summary,omitempty"`
	OriginalTokens int     `json:"original_tokens"`
	ReplayTokens   int     `json:"replay_tokens"`
	Similarity     float64 `json:"similarity"` // word-overlap Jaccard, 0.0 to 1.0
}

// Options configures a replay.
type Options struct {
	ProviderURL string        // upstream provider, defaults to api.openai.com
	VaultClient *vault.Client // fetches the original request/response
	APIKey      string        // provider API key for the replay call
	HTTPClient  *http.Client  // optional, defaults to http.DefaultClient
}

// Run loads the original request from the vault, verifies its checksum,
// sends it to the provider again, and compares the new response against the
// recorded one.
func Run(ctx context.Context, rec recorder.Record, opts Options) (Result, error) {
	result := Result{
		RunID:          rec.RunID,
		OriginalModel:  rec.Model,
		OriginalTokens: rec.Tokens.Total,
	}

	reqKey := vault.KeyFromURI(rec.RequestVaultRef)
	if reqKey == "" {
		return result, fmt.Errorf("replay: no request vault ref in record")
	}

	reqData, err := opts.VaultClient.Fetch(ctx, reqKey)
	if err != nil {
		return result, fmt.Errorf("replay: fetch request: %w", err)
	}
	if rec.RequestChecksum != "" && !vault.VerifyChecksum(reqData, rec.RequestChecksum) {
		return result, apperrors.New(apperrors.ErrChecksumMismatch, "request content for run "+rec.RunID)
	}

	var originalResp []byte
	if respKey := vault.KeyFromURI(rec.ResponseVaultRef); respKey != "" {
		originalResp, err = opts.VaultClient.Fetch(ctx, respKey)
		if err != nil {
			return result, fmt.Errorf("replay: fetch response: %w", err)
		}
		if rec.ResponseChecksum != "" && !vault.VerifyChecksum(originalResp, rec.ResponseChecksum) {
			return result, apperrors.New(apperrors.ErrChecksumMismatch, "response content for run "+rec.RunID)
		}
	}

	providerURL := opts.ProviderURL
	if providerURL == "" {
		providerURL = "https://api.openai.com"
	}

	replayReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		providerURL+rec.Endpoint, bytes.NewReader(reqData))
	if err != nil {
		return result, fmt.Errorf("replay: create request: %w", err)
	}
	replayReq.Header.Set("Content-Type", "application/json")
	if opts.APIKey != "" {
		replayReq.Header.Set("Authorization", "Bearer "+opts.APIKey)
	}

	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(replayReq)
	if err != nil {
		return result, fmt.Errorf("replay: upstream: %w", err)
	}
	defer resp.Body.Close()

	replayBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, fmt.Errorf("replay: read response: %w", err)
	}

	result.ReplayModel = gjson.GetBytes(replayBody, "model").String()
	result.ReplayTokens = int(gjson.GetBytes(replayBody, "usage.total_tokens").Int())

	originalContent := extractContent(originalResp)
	replayContent := extractContent(replayBody)

	result.Similarity = tokenSimilarity(originalContent, replayContent)
	result.Drift = result.Similarity < DriftThreshold

	if result.Drift {
		result.DriftSummary = fmt.Sprintf(
			"similarity=%.2f (threshold=%.2f); original=%d chars, replay=%d chars",
			result.Similarity, DriftThreshold, len(originalContent), len(replayContent))
	}

	return result, nil
}

// extractContent pulls the assistant message content out of an
// OpenAI-compatible response, falling back to the raw body.
func extractContent(data []byte) string {
	if content := gjson.GetBytes(data, "choices.0.message.content"); content.Exists() {
		return content.String()
	}
	return string(data)
}

// tokenSimilarity computes word-overlap Jaccard similarity.
func tokenSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	setA := tokenSet(a)
	setB := tokenSet(b)

	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}

	union := len(setA)
	for w := range setB {
		if !setA[w] {
			union++
		}
	}

	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
