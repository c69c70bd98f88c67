package guardrails

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mgr := NewManager(5 * time.Minute)
	t.Cleanup(mgr.Stop)
	return mgr
}

func TestTokenBudgetExceeded(t *testing.T) {
	cfg := &Config{Budgets: BudgetConfig{MaxSessionTokens: 1000}}
	mgr := newTestManager(t)
	sid := "test-token-budget"

	mgr.GetOrCreate(sid)
	mgr.RecordResponse(sid, 1200, false)

	v := Evaluate(cfg, mgr, sid, &EvalRequest{PromptText: "hello"})
	require.NotNil(t, v)
	assert.Equal(t, RuleTokenBudget, v.Rule)
	assert.Equal(t, sid, v.SessionID)
}

func TestTokenBudgetNotExceeded(t *testing.T) {
	cfg := &Config{Budgets: BudgetConfig{MaxSessionTokens: 5000}}
	mgr := newTestManager(t)
	sid := "test-token-ok"

	mgr.GetOrCreate(sid)
	mgr.RecordResponse(sid, 500, false)

	v := Evaluate(cfg, mgr, sid, &EvalRequest{PromptText: "hello"})
	assert.Nil(t, v)
}

func TestPromptLoopDetected(t *testing.T) {
	cfg := &Config{
		LoopDetection: LoopConfig{
			SimilarPromptThreshold: 0.80,
			MaxSimilarPrompts:      3,
			WindowSeconds:          60,
		},
	}
	mgr := newTestManager(t)
	sid := "test-prompt-loop"

	mgr.GetOrCreate(sid)
	for i := 0; i < 3; i++ {
		mgr.RecordRequest(sid, "please help me fix the authentication error in my code", nil)
	}

	v := Evaluate(cfg, mgr, sid, &EvalRequest{
		PromptText: "please help me fix the authentication error in my code",
	})
	require.NotNil(t, v)
	assert.Equal(t, RulePromptLoop, v.Rule)
}

func TestPromptLoopNotTriggeredWithDifferentPrompts(t *testing.T) {
	cfg := &Config{
		LoopDetection: LoopConfig{
			SimilarPromptThreshold: 0.80,
			MaxSimilarPrompts:      3,
			WindowSeconds:          60,
		},
	}
	mgr := newTestManager(t)
	sid := "test-no-loop"

	mgr.GetOrCreate(sid)
	mgr.RecordRequest(sid, "help me with authentication", nil)
	mgr.RecordRequest(sid, "now work on the database layer", nil)
	mgr.RecordRequest(sid, "create a new REST endpoint for users", nil)

	v := Evaluate(cfg, mgr, sid, &EvalRequest{
		PromptText: "write unit tests for the handler",
	})
	assert.Nil(t, v)
}

func TestToolRetryStorm(t *testing.T) {
	cfg := &Config{
		ToolProtection: ToolConfig{
			MaxRepeatCalls:      3,
			RepeatWindowSeconds: 30,
		},
	}
	mgr := newTestManager(t)
	sid := "test-tool-storm"

	mgr.GetOrCreate(sid)
	for i := 0; i < 3; i++ {
		mgr.RecordRequest(sid, "", []string{"code_interpreter"})
	}

	v := Evaluate(cfg, mgr, sid, &EvalRequest{
		ToolNames: []string{"code_interpreter"},
	})
	require.NotNil(t, v)
	assert.Equal(t, RuleToolRetryStorm, v.Rule)
	assert.Equal(t, "code_interpreter", v.Details["tool_name"])
}

func TestToolRetryStormDifferentTools(t *testing.T) {
	cfg := &Config{
		ToolProtection: ToolConfig{
			MaxRepeatCalls:      3,
			RepeatWindowSeconds: 30,
		},
	}
	mgr := newTestManager(t)
	sid := "test-tool-variety"

	mgr.GetOrCreate(sid)
	mgr.RecordRequest(sid, "", []string{"web_search"})
	mgr.RecordRequest(sid, "", []string{"code_interpreter"})
	mgr.RecordRequest(sid, "", []string{"file_reader"})

	v := Evaluate(cfg, mgr, sid, &EvalRequest{
		ToolNames: []string{"web_search"},
	})
	assert.Nil(t, v)
}

func TestErrorSpiral(t *testing.T) {
	cfg := &Config{
		RetryProtection: RetryConfig{MaxConsecutiveErrors: 3},
	}
	mgr := newTestManager(t)
	sid := "test-error-spiral"

	mgr.GetOrCreate(sid)
	for i := 0; i < 3; i++ {
		mgr.RecordResponse(sid, 100, true)
	}

	v := Evaluate(cfg, mgr, sid, &EvalRequest{PromptText: "retry"})
	require.NotNil(t, v)
	assert.Equal(t, RuleErrorSpiral, v.Rule)
}

func TestErrorSpiralResetsOnSuccess(t *testing.T) {
	cfg := &Config{
		RetryProtection: RetryConfig{MaxConsecutiveErrors: 3},
	}
	mgr := newTestManager(t)
	sid := "test-error-reset"

	mgr.GetOrCreate(sid)
	mgr.RecordResponse(sid, 100, true)
	mgr.RecordResponse(sid, 100, true)
	mgr.RecordResponse(sid, 100, false)
	mgr.RecordResponse(sid, 100, true)

	v := Evaluate(cfg, mgr, sid, &EvalRequest{PromptText: "retry"})
	assert.Nil(t, v)
}

func TestEvaluateNilConfig(t *testing.T) {
	mgr := newTestManager(t)
	mgr.GetOrCreate("sid")
	assert.Nil(t, Evaluate(nil, mgr, "sid", &EvalRequest{}))
}

func TestEvaluateUnknownSession(t *testing.T) {
	cfg := &Config{Budgets: BudgetConfig{MaxSessionTokens: 1}}
	mgr := newTestManager(t)
	assert.Nil(t, Evaluate(cfg, mgr, "never-created", &EvalRequest{}))
}

func TestSessionExpiry(t *testing.T) {
	mgr := newTestManager(t)
	mgr.GetOrCreate("a")
	mgr.RecordResponse("a", 42, false)

	assert.Equal(t, 42, mgr.SessionTokens("a"))

	mgr.Remove("a")
	assert.Equal(t, 0, mgr.SessionTokens("a"))
}

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "hello world foo bar", "hello world foo bar", 1.0},
		{"disjoint", "hello world", "foo bar baz", 0.0},
		{"both empty", "", "", 1.0},
		{"case insensitive", "Hello World", "hello world", 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, jaccardSimilarity(tt.a, tt.b), 0.001)
		})
	}

	// Partial overlap: 2 shared words out of a 6-word union.
	got := jaccardSimilarity("the quick brown fox", "the slow brown dog")
	assert.InDelta(t, 2.0/6.0, got, 0.01)
}
