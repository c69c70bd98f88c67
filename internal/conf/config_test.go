package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  host: 0.0.0.0\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://api.openai.com", cfg.Provider.URL)
	assert.Equal(t, 120, cfg.Provider.TimeoutSeconds)
	assert.Equal(t, "./runs", cfg.Recorder.Dir)
	assert.Equal(t, "air-blackbox-gateway", cfg.Trust.GatewayID)
	assert.Equal(t, []string{"SOC2", "ISO27001"}, cfg.Trust.Frameworks)
	assert.Equal(t, 30, cfg.Guardrails.SessionTTL)
	assert.Equal(t, "air-blackbox-gateway", cfg.Telemetry.ServiceName)
}

func TestLoadConfigFull(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9090
  gateway_key: gw-secret
  rate_limit:
    enabled: true
    max_requests: 50
    window_seconds: 30
    strategy: session
provider:
  url: https://api.groq.com/openai
  timeout_seconds: 60
recorder:
  dir: /tmp/runs
database:
  enabled: true
  host: db.internal
  port: 5432
  user: gateway
  password: pw
  dbname: runs
  sslmode: disable
redis:
  enabled: true
  host: cache.internal
  port: 6379
vault:
  endpoint: minio.internal:9000
  access_key: ak
  secret_key: sk
  bucket: air-runs
guardrails:
  config_file: guardrails.yaml
  session_ttl_minutes: 15
trust:
  chain_secret: chain-key
  gateway_id: gw-prod-1
  frameworks: [SOC2]
admin:
  enabled: true
  jwt_secret: admin-key
telemetry:
  service_name: gw-staging
alerts:
  webhook_url: https://hooks.slack.com/services/T/B/X
  email:
    enabled: true
    host: smtp.internal
    port: 587
    from: alerts@example.com
    to: oncall@example.com
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "gw-secret", cfg.Server.GatewayKey)
	assert.True(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, 50, cfg.Server.RateLimit.MaxRequests)
	assert.Equal(t, "session", cfg.Server.RateLimit.Strategy)

	assert.Equal(t, "https://api.groq.com/openai", cfg.Provider.URL)
	assert.Equal(t, 60, cfg.Provider.TimeoutSeconds)
	assert.Equal(t, "/tmp/runs", cfg.Recorder.Dir)

	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "minio.internal:9000", cfg.Vault.Endpoint)

	assert.Equal(t, "guardrails.yaml", cfg.Guardrails.ConfigFile)
	assert.Equal(t, 15, cfg.Guardrails.SessionTTL)

	assert.Equal(t, "chain-key", cfg.Trust.ChainSecret)
	assert.Equal(t, "gw-prod-1", cfg.Trust.GatewayID)
	assert.Equal(t, []string{"SOC2"}, cfg.Trust.Frameworks)

	assert.True(t, cfg.Admin.Enabled)
	assert.Equal(t, "admin-key", cfg.Admin.JWTSecret)
	assert.Equal(t, "gw-staging", cfg.Telemetry.ServiceName)

	assert.Equal(t, "https://hooks.slack.com/services/T/B/X", cfg.Alerts.WebhookURL)
	assert.True(t, cfg.Alerts.Email.Enabled)
	assert.Equal(t, "oncall@example.com", cfg.Alerts.Email.To)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	db := DatabaseConfig{
		Host: "localhost", Port: 5432, User: "gw",
		Password: "pw", DBName: "runs", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=gw password=pw dbname=runs sslmode=disable",
		db.DSN())
}
