// Package admin exposes the operator API: run queries, model stats,
// compliance reports, evidence export, and chain verification.
package admin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/airblackbox/gateway/internal/guardrails"
	"github.com/airblackbox/gateway/internal/middleware"
	apperrors "github.com/airblackbox/gateway/internal/pkg/errors"
	"github.com/airblackbox/gateway/internal/pkg/logger"
	"github.com/airblackbox/gateway/internal/recorder"
	"github.com/airblackbox/gateway/internal/trust"
)

// abortError renders a coded error response.
func abortError(c *gin.Context, err *apperrors.AppError) {
	c.JSON(err.HTTPStatus(), gin.H{
		"code":    err.Code,
		"error":   err.Message,
		"details": err.Details,
	})
}

// Config holds admin API settings.
type Config struct {
	JWTSecret   string
	GatewayID   string
	ChainSecret string
	Frameworks  []string
}

// Service answers admin API requests.
type Service struct {
	cfg     Config
	log     *logger.Logger
	index   *recorder.Index
	writer  *recorder.Writer
	chain   *trust.AuditChain
	tracker *guardrails.PerformanceTracker

	hasVault      bool
	hasGuardrails bool
}

// Deps collects the collaborators for NewService. Index may be nil when the
// database is disabled; run lookups then fall back to the record directory.
type Deps struct {
	Index         *recorder.Index
	Writer        *recorder.Writer
	Chain         *trust.AuditChain
	Tracker       *guardrails.PerformanceTracker
	HasVault      bool
	HasGuardrails bool
}

// NewService creates the admin service.
func NewService(cfg Config, deps Deps, log *logger.Logger) *Service {
	return &Service{
		cfg:           cfg,
		log:           log,
		index:         deps.Index,
		writer:        deps.Writer,
		chain:         deps.Chain,
		tracker:       deps.Tracker,
		hasVault:      deps.HasVault,
		hasGuardrails: deps.HasGuardrails,
	}
}

// RegisterRoutes mounts the admin API behind JWT auth.
func (s *Service) RegisterRoutes(r *gin.Engine) {
	grp := r.Group("/admin", middleware.AdminAuth(s.cfg.JWTSecret, s.log))
	grp.GET("/runs", s.listRuns)
	grp.GET("/runs/:id", s.getRun)
	grp.GET("/stats", s.getStats)
	grp.GET("/compliance", s.getCompliance)
	grp.GET("/evidence", s.getEvidence)
	grp.GET("/chain/verify", s.verifyChain)
}

func (s *Service) listRuns(c *gin.Context) {
	if s.index == nil {
		abortError(c, apperrors.New(apperrors.ErrServiceUnavail, "run index not configured"))
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	records, err := s.index.List(c.Request.Context(), recorder.ListOptions{
		Model:  c.Query("model"),
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		abortError(c, apperrors.Wrap(err, apperrors.ErrInternalServer, "failed to list runs"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": records, "count": len(records)})
}

func (s *Service) getRun(c *gin.Context) {
	runID := c.Param("id")

	if s.index != nil {
		rec, err := s.index.Get(c.Request.Context(), runID)
		if err == nil {
			c.JSON(http.StatusOK, rec)
			return
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			abortError(c, apperrors.Wrap(err, apperrors.ErrInternalServer, "failed to load run"))
			return
		}
	}

	// Fall back to the record directory.
	if s.writer != nil {
		if rec, err := s.writer.Load(runID); err == nil {
			c.JSON(http.StatusOK, rec)
			return
		}
	}

	abortError(c, apperrors.New(apperrors.ErrRecordNotFound, runID))
}

type modelStatsView struct {
	*guardrails.ModelStats
	Latency   guardrails.LatencyStats `json:"latency"`
	ErrorRate float64                 `json:"error_rate"`
}

func (s *Service) getStats(c *gin.Context) {
	if s.tracker == nil {
		abortError(c, apperrors.New(apperrors.ErrServiceUnavail, "analytics not enabled"))
		return
	}

	all := s.tracker.GetAllStats()
	views := make([]modelStatsView, 0, len(all))
	for _, ms := range all {
		views = append(views, modelStatsView{
			ModelStats: ms,
			Latency:    ms.ComputeLatency(),
			ErrorRate:  ms.ComputeErrorRate(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"models": views})
}

func (s *Service) getCompliance(c *gin.Context) {
	report := s.complianceReport()
	c.JSON(http.StatusOK, report)
}

func (s *Service) getEvidence(c *gin.Context) {
	if s.chain == nil {
		abortError(c, apperrors.New(apperrors.ErrServiceUnavail, "audit chain not configured"))
		return
	}

	pkg := trust.GenerateEvidencePackage(s.chain, s.complianceReport(), s.cfg.GatewayID, s.cfg.ChainSecret)
	c.JSON(http.StatusOK, pkg)
}

func (s *Service) verifyChain(c *gin.Context) {
	if s.chain == nil {
		abortError(c, apperrors.New(apperrors.ErrServiceUnavail, "audit chain not configured"))
		return
	}

	valid, brokenAt, err := s.chain.Verify()
	resp := gin.H{
		"valid":  valid,
		"length": s.chain.Len(),
	}
	if !valid {
		resp["broken_at"] = brokenAt
		resp["detail"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Service) complianceReport() *trust.ComplianceReport {
	var chainLen int64
	if s.chain != nil {
		chainLen = s.chain.Len()
	}
	return trust.EvaluateCompliance(
		trust.ComplianceConfig{Frameworks: s.cfg.Frameworks},
		trust.Capabilities{
			ChainLen:      chainLen,
			HasVault:      s.hasVault,
			HasGuardrails: s.hasGuardrails,
			HasAnalytics:  s.tracker != nil,
		},
	)
}
