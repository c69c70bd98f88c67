// Package proxy implements the OpenAI-compatible reverse proxy that
// intercepts LLM calls, enforces guardrails, vaults content, emits OTel
// spans, and records runs.
package proxy

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/airblackbox/gateway/internal/guardrails"
	"github.com/airblackbox/gateway/internal/pkg/logger"
	"github.com/airblackbox/gateway/internal/pkg/workerpool"
	"github.com/airblackbox/gateway/internal/recorder"
	"github.com/airblackbox/gateway/internal/trust"
	"github.com/airblackbox/gateway/internal/vault"
)

var tracer = otel.Tracer("air-blackbox-gateway")

// Config holds the proxy's own settings. Optional collaborators are nil when
// the corresponding layer is disabled.
type Config struct {
	ProviderURL string // e.g. https://api.openai.com
	GatewayKey  string // optional key required in X-Gateway-Key
	Timeout     time.Duration
}

// Service wires the proxy handlers to their collaborators.
type Service struct {
	cfg      Config
	log      *logger.Logger
	vault    *vault.Client
	writer   *recorder.Writer
	index    *recorder.Index
	chain    *trust.AuditChain
	gcfg     *guardrails.Config
	sessions *guardrails.Manager
	alerter  *guardrails.Alerter
	tracker  *guardrails.PerformanceTracker
	pool     *workerpool.Pool

	// Dedicated upstream client. The zero-value http.Client never times out,
	// which would leak goroutines on a hung provider.
	upstream *http.Client
}

// Deps collects the optional collaborators for NewService.
type Deps struct {
	Vault    *vault.Client
	Writer   *recorder.Writer
	Index    *recorder.Index
	Chain    *trust.AuditChain
	GCfg     *guardrails.Config
	Sessions *guardrails.Manager
	Alerter  *guardrails.Alerter
	Tracker  *guardrails.PerformanceTracker
	Pool     *workerpool.Pool
}

// NewService creates the proxy service.
func NewService(cfg Config, deps Deps, log *logger.Logger) *Service {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Service{
		cfg:      cfg,
		log:      log,
		vault:    deps.Vault,
		writer:   deps.Writer,
		index:    deps.Index,
		chain:    deps.Chain,
		gcfg:     deps.GCfg,
		sessions: deps.Sessions,
		alerter:  deps.Alerter,
		tracker:  deps.Tracker,
		pool:     deps.Pool,
		upstream: &http.Client{Timeout: timeout},
	}
}

// RegisterRoutes mounts the proxy endpoints on the engine.
func (s *Service) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.handleHealth)

	v1 := r.Group("/v1", s.gatewayAuth())
	v1.POST("/chat/completions", s.handleProxyFor("/v1/chat/completions"))
	v1.POST("/responses", s.handleProxyFor("/v1/responses"))
}

func (s *Service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// gatewayAuth rejects requests without the configured gateway key. With no
// key configured everything passes.
func (s *Service) gatewayAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.GatewayKey == "" {
			c.Next()
			return
		}
		provided := c.GetHeader("X-Gateway-Key")
		if provided == "" {
			provided = c.GetHeader("X-Api-Key")
		}
		if provided != s.cfg.GatewayKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized: invalid or missing gateway key",
			})
			return
		}
		c.Next()
	}
}
