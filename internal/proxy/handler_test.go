package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/airblackbox/gateway/internal/guardrails"
	"github.com/airblackbox/gateway/internal/pkg/logger"
	"github.com/airblackbox/gateway/internal/recorder"
	"github.com/airblackbox/gateway/internal/trust"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	cfg := logger.DefaultConfig()
	cfg.Level = "error"
	log, err := logger.New(cfg)
	require.NoError(t, err)
	return log
}

type testGateway struct {
	router    *gin.Engine
	svc       *Service
	recordDir string
	sessions  *guardrails.Manager
	chain     *trust.AuditChain
}

func newTestGateway(t *testing.T, providerURL string, cfg Config, gcfg *guardrails.Config) *testGateway {
	t.Helper()

	dir := t.TempDir()
	writer, err := recorder.NewWriter(dir)
	require.NoError(t, err)

	cfg.ProviderURL = providerURL
	chain := trust.NewAuditChain("test-chain-secret")

	deps := Deps{Writer: writer, Chain: chain, GCfg: gcfg}
	if gcfg != nil {
		sessions := guardrails.NewManager(5 * time.Minute)
		t.Cleanup(sessions.Stop)
		deps.Sessions = sessions
	}

	svc := NewService(cfg, deps, testLogger(t))

	router := gin.New()
	svc.RegisterRoutes(router)

	return &testGateway{
		router:    router,
		svc:       svc,
		recordDir: dir,
		sessions:  deps.Sessions,
		chain:     chain,
	}
}

// waitForRecord polls for the asynchronously written AIR file.
func waitForRecord(t *testing.T, dir, runID string) recorder.Record {
	t.Helper()

	path := filepath.Join(dir, runID+".air.json")
	var rec recorder.Record
	require.Eventually(t, func() bool {
		if _, err := os.Stat(path); err != nil {
			return false
		}
		loaded, err := recorder.Load(path)
		if err != nil {
			return false
		}
		rec = loaded
		return true
	}, 3*time.Second, 10*time.Millisecond, "record for %s never appeared", runID)

	return rec
}

func upstreamStub(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const chatRequest = `{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hello"}]}`

const chatResponse = `{"id":"chatcmpl-1","model":"gpt-4o-mini","choices":[{"message":{"role":"assistant","content":"hi there"}}],"usage":{"prompt_tokens":9,"completion_tokens":3,"total_tokens":12}}`

func TestHealthEndpoint(t *testing.T) {
	gw := newTestGateway(t, "http://unused", Config{}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	gw.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", gjson.Get(w.Body.String(), "status").String())
}

func TestProxySuccessRecordsRun(t *testing.T) {
	upstream := upstreamStub(t, http.StatusOK, chatResponse)
	gw := newTestGateway(t, upstream.URL, Config{}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(chatRequest))
	gw.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, chatResponse, w.Body.String())

	runID := w.Header().Get("x-run-id")
	require.NotEmpty(t, runID)

	rec := waitForRecord(t, gw.recordDir, runID)
	assert.Equal(t, "gpt-4o-mini", rec.Model)
	assert.Equal(t, "openai", rec.Provider)
	assert.Equal(t, "/v1/chat/completions", rec.Endpoint)
	assert.Equal(t, "success", rec.Status)
	assert.Equal(t, 12, rec.Tokens.Total)
	assert.Equal(t, recorder.Version, rec.Version)

	// The run lands in the audit chain too.
	require.Eventually(t, func() bool { return gw.chain.Len() == 1 },
		time.Second, 10*time.Millisecond)
	assert.Equal(t, runID, gw.chain.Entries()[0].RunID)
}

func TestProxyUpstreamErrorPassthrough(t *testing.T) {
	upstream := upstreamStub(t, http.StatusInternalServerError, `{"error":{"message":"boom"}}`)
	gw := newTestGateway(t, upstream.URL, Config{}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(chatRequest))
	gw.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "boom")

	runID := w.Header().Get("x-run-id")
	require.NotEmpty(t, runID)

	rec := waitForRecord(t, gw.recordDir, runID)
	assert.Equal(t, "error", rec.Status)
}

func TestProxyUpstreamUnreachable(t *testing.T) {
	gw := newTestGateway(t, "http://127.0.0.1:1", Config{Timeout: time.Second}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(chatRequest))
	gw.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGatewayAuth(t *testing.T) {
	upstream := upstreamStub(t, http.StatusOK, chatResponse)
	gw := newTestGateway(t, upstream.URL, Config{GatewayKey: "secret-key"}, nil)

	// Missing key.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(chatRequest))
	gw.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Wrong key.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(chatRequest))
	req.Header.Set("X-Gateway-Key", "wrong")
	gw.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Correct key.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(chatRequest))
	req.Header.Set("X-Gateway-Key", "secret-key")
	gw.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// X-Api-Key works as an alias.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(chatRequest))
	req.Header.Set("X-Api-Key", "secret-key")
	gw.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Health stays open.
	w = httptest.NewRecorder()
	gw.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPreventionBlocksPII(t *testing.T) {
	upstream := upstreamStub(t, http.StatusOK, chatResponse)
	gcfg := &guardrails.Config{
		Prevention: guardrails.PreventionConfig{
			PII: guardrails.PIIConfig{
				Enabled:    true,
				BlockSSN:   true,
				RedactMode: "block",
			},
		},
	}
	gw := newTestGateway(t, upstream.URL, Config{}, gcfg)

	body := `{"model":"gpt-4o-mini","messages":[{"role":"user","content":"my ssn is 123-45-6789"}]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	gw.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "prevention_policy_blocked", gjson.Get(w.Body.String(), "error.type").String())
}

func TestPreventionRedactsBeforeForwarding(t *testing.T) {
	var forwarded string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		forwarded = string(buf)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatResponse))
	}))
	t.Cleanup(upstream.Close)

	gcfg := &guardrails.Config{
		Prevention: guardrails.PreventionConfig{
			PII: guardrails.PIIConfig{
				Enabled:    true,
				BlockSSN:   true,
				RedactMode: "redact",
			},
		},
	}
	gw := newTestGateway(t, upstream.URL, Config{}, gcfg)

	body := `{"model":"gpt-4o-mini","messages":[{"role":"user","content":"my ssn is 123-45-6789"}]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	gw.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, forwarded, "[SSN]")
	assert.NotContains(t, forwarded, "123-45-6789")
}

func TestDetectionBlocksTokenBudget(t *testing.T) {
	upstream := upstreamStub(t, http.StatusOK, chatResponse)
	gcfg := &guardrails.Config{
		Budgets: guardrails.BudgetConfig{MaxSessionTokens: 100},
	}
	gw := newTestGateway(t, upstream.URL, Config{}, gcfg)

	// Prime the session over its budget.
	gw.sessions.GetOrCreate("over-budget")
	gw.sessions.RecordResponse("over-budget", 500, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(chatRequest))
	req.Header.Set("X-Session-ID", "over-budget")
	gw.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "agent_guardrail_triggered", gjson.Get(w.Body.String(), "error.type").String())
	assert.Equal(t, guardrails.RuleTokenBudget, gjson.Get(w.Body.String(), "error.rule").String())
}

func TestDetectionWebhookOverrideForwards(t *testing.T) {
	upstream := upstreamStub(t, http.StatusOK, chatResponse)
	approver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"approved":true,"reason":"on-call reviewed"}`))
	}))
	t.Cleanup(approver.Close)

	gcfg := &guardrails.Config{
		Budgets: guardrails.BudgetConfig{MaxSessionTokens: 100},
		Prevention: guardrails.PreventionConfig{
			Approval: guardrails.ApprovalConfig{
				Enabled:    true,
				WebhookURL: approver.URL,
				Rules:      []string{guardrails.RuleTokenBudget},
			},
		},
	}
	gw := newTestGateway(t, upstream.URL, Config{}, gcfg)

	gw.sessions.GetOrCreate("over-budget")
	gw.sessions.RecordResponse("over-budget", 500, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(chatRequest))
	req.Header.Set("X-Session-ID", "over-budget")
	gw.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDetectionAccruesSessionTokens(t *testing.T) {
	upstream := upstreamStub(t, http.StatusOK, chatResponse)
	gcfg := &guardrails.Config{
		Budgets: guardrails.BudgetConfig{MaxSessionTokens: 80000},
	}
	gw := newTestGateway(t, upstream.URL, Config{}, gcfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(chatRequest))
	req.Header.Set("X-Session-ID", "accrual")
	gw.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 12, gw.sessions.SessionTokens("accrual"))
}

func TestStreamingPassthrough(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n" +
		"data: {\"choices\":[],\"usage\":{\"prompt_tokens\":4,\"completion_tokens\":2,\"total_tokens\":6}}\n\n" +
		"data: [DONE]\n\n"

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(stream))
	}))
	t.Cleanup(upstream.Close)

	gw := newTestGateway(t, upstream.URL, Config{}, nil)

	body := `{"model":"gpt-4o-mini","stream":true,"messages":[{"role":"user","content":"hello"}]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	gw.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, stream, w.Body.String())

	runID := w.Header().Get("x-run-id")
	require.NotEmpty(t, runID)

	rec := waitForRecord(t, gw.recordDir, runID)
	assert.Equal(t, 6, rec.Tokens.Total)
	assert.Equal(t, "success", rec.Status)
}

func TestRoutingSwapsDegradedModel(t *testing.T) {
	var forwarded string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		forwarded = string(buf)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatResponse))
	}))
	t.Cleanup(upstream.Close)

	gcfg := &guardrails.Config{
		Optimization: guardrails.OptimizationConfig{
			Router: guardrails.RouterConfig{
				Enabled: true,
				Rules: []guardrails.RoutingRule{
					{FromModel: "gpt-4o", ToModel: "gpt-4o-mini", Condition: "error_rate", Threshold: 0.2, Enabled: true},
				},
			},
		},
	}
	gw := newTestGateway(t, upstream.URL, Config{}, gcfg)

	tracker := guardrails.NewPerformanceTracker()
	for i := 0; i < 10; i++ {
		tracker.RecordCall("gpt-4o", 100, 0, 0, 0, "error", guardrails.FailureServerError)
	}
	gw.svc.tracker = tracker

	body := `{"model":"gpt-4o","messages":[{"role":"user","content":"hello"}]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	gw.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gpt-4o-mini", gjson.Get(forwarded, "model").String())
}
