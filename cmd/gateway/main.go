package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/airblackbox/gateway/internal/admin"
	"github.com/airblackbox/gateway/internal/conf"
	"github.com/airblackbox/gateway/internal/data"
	"github.com/airblackbox/gateway/internal/guardrails"
	"github.com/airblackbox/gateway/internal/pkg/logger"
	"github.com/airblackbox/gateway/internal/pkg/telemetry"
	"github.com/airblackbox/gateway/internal/pkg/workerpool"
	"github.com/airblackbox/gateway/internal/proxy"
	"github.com/airblackbox/gateway/internal/recorder"
	"github.com/airblackbox/gateway/internal/server"
	"github.com/airblackbox/gateway/internal/trust"
)

var configFile = flag.String("config", "config.yaml", "config file path")

func main() {
	flag.Parse()

	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logConfig := &logger.Config{
		Level:            config.Log.Level,
		Format:           config.Log.Format,
		Output:           config.Log.Output,
		EnableCaller:     config.Log.EnableCaller,
		EnableStacktrace: config.Log.EnableStacktrace,
		File: logger.FileConfig{
			Filename:   config.Log.File.Filename,
			MaxSize:    config.Log.File.MaxSize,
			MaxAge:     config.Log.File.MaxAge,
			MaxBackups: config.Log.File.MaxBackups,
			Compress:   config.Log.File.Compress,
		},
	}

	log, err := logger.New(logConfig)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	if err := logger.InitGlobal(logConfig); err != nil {
		log.Fatal("failed to initialize global logger", zap.Error(err))
	}

	log.Info("config loaded successfully")

	// Tracing.
	shutdownTracing, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName:    config.Telemetry.ServiceName,
		ServiceVersion: config.Telemetry.ServiceVersion,
		Disable:        config.Telemetry.Disable,
	}, log)
	if err != nil {
		log.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Error("tracing shutdown failed", zap.Error(err))
		}
	}()

	// Storage backends.
	d, cleanup, err := data.NewData(config, log)
	if err != nil {
		log.Fatal("failed to initialize data layer", zap.Error(err))
	}
	defer cleanup()

	// Recording.
	writer, err := recorder.NewWriter(config.Recorder.Dir)
	if err != nil {
		log.Fatal("failed to initialize record writer", zap.Error(err))
	}

	// Guardrails.
	gcfg, err := guardrails.LoadConfig(config.Guardrails.ConfigFile)
	if err != nil {
		log.Fatal("failed to load guardrails config", zap.Error(err))
	}

	var sessions *guardrails.Manager
	var alerter *guardrails.Alerter
	var tracker *guardrails.PerformanceTracker
	if gcfg != nil {
		ttl := time.Duration(config.Guardrails.SessionTTL) * time.Minute
		sessions = guardrails.NewManager(ttl)
		defer sessions.Stop()

		alerter = guardrails.NewAlerter(config.Alerts.WebhookURL, guardrails.MailSettings{
			Enabled:  config.Alerts.Email.Enabled,
			Host:     config.Alerts.Email.Host,
			Port:     config.Alerts.Email.Port,
			Username: config.Alerts.Email.Username,
			Password: config.Alerts.Email.Password,
			From:     config.Alerts.Email.From,
			To:       config.Alerts.Email.To,
		}, log)

		if gcfg.Optimization.Analytics.Enabled || gcfg.Optimization.Router.Enabled {
			tracker = guardrails.NewPerformanceTracker()
		}

		log.Info("guardrails enabled",
			zap.Int("max_session_tokens", gcfg.Budgets.MaxSessionTokens),
			zap.Bool("analytics", tracker != nil))
	}

	// Trust layer.
	chain := trust.NewAuditChain(config.Trust.ChainSecret)

	// Background recording pool.
	pool, err := workerpool.New(32, log.Logger)
	if err != nil {
		log.Fatal("failed to create worker pool", zap.Error(err))
	}
	defer pool.Close()

	// Proxy.
	proxySvc := proxy.NewService(proxy.Config{
		ProviderURL: config.Provider.URL,
		GatewayKey:  config.Server.GatewayKey,
		Timeout:     time.Duration(config.Provider.TimeoutSeconds) * time.Second,
	}, proxy.Deps{
		Vault:    d.Vault,
		Writer:   writer,
		Index:    d.Index,
		Chain:    chain,
		GCfg:     gcfg,
		Sessions: sessions,
		Alerter:  alerter,
		Tracker:  tracker,
		Pool:     pool,
	}, log)

	// Admin API.
	var adminSvc *admin.Service
	if config.Admin.Enabled {
		adminSvc = admin.NewService(admin.Config{
			JWTSecret:   config.Admin.JWTSecret,
			GatewayID:   config.Trust.GatewayID,
			ChainSecret: config.Trust.ChainSecret,
			Frameworks:  config.Trust.Frameworks,
		}, admin.Deps{
			Index:         d.Index,
			Writer:        writer,
			Chain:         chain,
			Tracker:       tracker,
			HasVault:      d.Vault != nil,
			HasGuardrails: gcfg != nil,
		}, log)
	}

	httpServer := server.NewHTTPServer(config, log, proxySvc, adminSvc, d.Redis)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	log.Info("gateway started",
		zap.String("provider", config.Provider.URL),
		zap.Bool("admin", adminSvc != nil))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("gateway exited")
}
