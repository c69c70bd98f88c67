package conf

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Provider   ProviderConfig
	Recorder   RecorderConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Vault      VaultConfig
	Log        LogConfig
	Guardrails GuardrailsConfig
	Trust      TrustConfig
	Admin      AdminConfig
	Telemetry  TelemetryConfig
	Alerts     AlertsConfig
}

type ServerConfig struct {
	Host       string          `mapstructure:"host"`
	Port       int             `mapstructure:"port"`
	GatewayKey string          `mapstructure:"gateway_key"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	MaxRequests   int    `mapstructure:"max_requests"`
	WindowSeconds int    `mapstructure:"window_seconds"`
	Strategy      string `mapstructure:"strategy"`
}

type ProviderConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type RecorderConfig struct {
	Dir string `mapstructure:"dir"`
}

type DatabaseConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Host     string
	Port     int
	Password string
	DB       int
}

type VaultConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type LogConfig struct {
	Level            string        `mapstructure:"level"`
	Format           string        `mapstructure:"format"`
	Output           string        `mapstructure:"output"`
	File             FileLogConfig `mapstructure:"file"`
	EnableCaller     bool          `mapstructure:"enablecaller"`
	EnableStacktrace bool          `mapstructure:"enablestacktrace"`
}

type FileLogConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"maxsize"`
	MaxAge     int    `mapstructure:"maxage"`
	MaxBackups int    `mapstructure:"maxbackups"`
	Compress   bool   `mapstructure:"compress"`
}

type GuardrailsConfig struct {
	ConfigFile string `mapstructure:"config_file"`
	SessionTTL int    `mapstructure:"session_ttl_minutes"`
}

type TrustConfig struct {
	ChainSecret string   `mapstructure:"chain_secret"`
	GatewayID   string   `mapstructure:"gateway_id"`
	Frameworks  []string `mapstructure:"frameworks"`
}

type AdminConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type TelemetryConfig struct {
	Disable        bool   `mapstructure:"disable"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
}

type AlertsConfig struct {
	WebhookURL string     `mapstructure:"webhook_url"`
	Email      MailConfig `mapstructure:"email"`
}

type MailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&config)

	return &config, nil
}

func applyDefaults(c *Config) {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Provider.URL == "" {
		c.Provider.URL = "https://api.openai.com"
	}
	if c.Provider.TimeoutSeconds == 0 {
		c.Provider.TimeoutSeconds = 120
	}
	if c.Recorder.Dir == "" {
		c.Recorder.Dir = "./runs"
	}
	if c.Trust.GatewayID == "" {
		c.Trust.GatewayID = "air-blackbox-gateway"
	}
	if len(c.Trust.Frameworks) == 0 {
		c.Trust.Frameworks = []string{"SOC2", "ISO27001"}
	}
	if c.Guardrails.SessionTTL == 0 {
		c.Guardrails.SessionTTL = 30
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "air-blackbox-gateway"
	}
	if c.Telemetry.ServiceVersion == "" {
		c.Telemetry.ServiceVersion = "0.7.0"
	}
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
