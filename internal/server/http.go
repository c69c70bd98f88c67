package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/airblackbox/gateway/internal/admin"
	"github.com/airblackbox/gateway/internal/conf"
	"github.com/airblackbox/gateway/internal/middleware"
	"github.com/airblackbox/gateway/internal/pkg/logger"
	"github.com/airblackbox/gateway/internal/pkg/redis"
	"github.com/airblackbox/gateway/internal/proxy"
)

// HTTPServer hosts the proxy and admin surfaces on one listener.
type HTTPServer struct {
	server *http.Server
	logger *logger.Logger
}

// NewHTTPServer builds the gin engine and wires up middleware and routes.
// adminSvc may be nil when the admin API is disabled; redisClient may be nil
// when rate limiting is off.
func NewHTTPServer(
	config *conf.Config,
	log *logger.Logger,
	proxySvc *proxy.Service,
	adminSvc *admin.Service,
	redisClient *redis.Client,
) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.GinLogger(log))

	if config.Server.RateLimit.Enabled && redisClient != nil {
		router.Use(middleware.RateLimiter(redisClient, middleware.RateLimiterConfig{
			MaxRequests:   config.Server.RateLimit.MaxRequests,
			WindowSeconds: config.Server.RateLimit.WindowSeconds,
			Strategy:      config.Server.RateLimit.Strategy,
		}, log))
	}

	proxySvc.RegisterRoutes(router)
	if adminSvc != nil {
		adminSvc.RegisterRoutes(router)
	}

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)

	return &HTTPServer{
		server: &http.Server{
			Addr:    addr,
			Handler: router,
		},
		logger: log,
	}
}

func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}
