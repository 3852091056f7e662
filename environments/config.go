package environments

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Gateway    GatewayConfig
	Analyzer   AnalyzerConfig
	Dispatch   DispatchConfig
	Correlator CorrelatorConfig
	Cooldown   CooldownConfig
	Alert      AlertConfig
	Auth       AuthConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// GatewayConfig points at the WhatsApp HTTP gateway used for outbound text messages.
type GatewayConfig struct {
	BaseURL  string
	Instance string
	APIKey   string
	Timeout  time.Duration

	// Client-side pacing and protection.
	RequestsPerSecond float64
	Burst             int
	RetryCount        int
	BreakerFailures   int
	BreakerCooldown   time.Duration
}

// AnalyzerConfig configures the reply classification service. When URL is empty
// the keyword analyzer is used instead.
type AnalyzerConfig struct {
	URL          string
	APIKey       string
	Timeout      time.Duration
	StopKeywords []string
}

type DispatchConfig struct {
	BatchSize    int
	Concurrency  int
	SendTimeout  time.Duration
	LeaseTimeout time.Duration
	Interval     time.Duration
	AutoStart    bool
}

// CorrelatorConfig drives reply correlation. LookupTimeout bounds the work
// done on the webhook request, Timeout bounds each queued analysis job.
type CorrelatorConfig struct {
	Workers       int
	QueueSize     int
	Timeout       time.Duration
	LookupTimeout time.Duration
	CancelOnStop  bool
	DedupeTTL     time.Duration
}

// CooldownConfig drives the manual resend guard. Scope is "followup" (one
// cool-down per follow-up) or "recipient" (shared by every follow-up of a phone).
type CooldownConfig struct {
	Window time.Duration
	Scope  string
}

type AlertConfig struct {
	WebhookURL     string
	IterationCount int
}

type AuthConfig struct {
	FollowUpsAPIKey string
	SchedulerAPIKey string
	CronSecret      string
	WebhookToken    string
}

type LogConfig struct {
	Format string
	Level  string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: GetEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     GetEnv("DB_HOST", "localhost"),
			Port:     GetEnv("DB_PORT", "3306"),
			User:     GetEnv("DB_USER", "clinic"),
			Password: GetEnv("DB_PASSWORD", "clinic123"),
			DBName:   GetEnv("DB_NAME", "clinic_followups"),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvAsInt("REDIS_DB", 0),
		},
		Gateway: GatewayConfig{
			BaseURL:           GetEnv("GATEWAY_BASE_URL", "http://localhost:8081"),
			Instance:          GetEnv("GATEWAY_INSTANCE", "clinic"),
			APIKey:            GetEnv("GATEWAY_API_KEY", ""),
			Timeout:           GetEnvAsDuration("GATEWAY_TIMEOUT", 15*time.Second),
			RequestsPerSecond: GetEnvAsFloat("GATEWAY_RPS", 5),
			Burst:             GetEnvAsInt("GATEWAY_BURST", 10),
			RetryCount:        GetEnvAsInt("GATEWAY_RETRY_COUNT", 0),
			BreakerFailures:   GetEnvAsInt("GATEWAY_BREAKER_FAILURES", 10),
			BreakerCooldown:   GetEnvAsDuration("GATEWAY_BREAKER_COOLDOWN", 30*time.Second),
		},
		Analyzer: AnalyzerConfig{
			URL:     GetEnv("ANALYZER_URL", ""),
			APIKey:  GetEnv("ANALYZER_API_KEY", ""),
			Timeout: GetEnvAsDuration("ANALYZER_TIMEOUT", 20*time.Second),
			StopKeywords: GetEnvAsList("ANALYZER_STOP_KEYWORDS", []string{
				"parar", "pare", "sair", "stop", "cancelar", "descadastrar", "nao quero",
			}),
		},
		Dispatch: DispatchConfig{
			BatchSize:    GetEnvAsInt("DISPATCH_BATCH_SIZE", 100),
			Concurrency:  GetEnvAsInt("DISPATCH_CONCURRENCY", 8),
			SendTimeout:  GetEnvAsDuration("DISPATCH_SEND_TIMEOUT", 20*time.Second),
			LeaseTimeout: GetEnvAsDuration("DISPATCH_LEASE_TIMEOUT", 5*time.Minute),
			Interval:     GetEnvAsDuration("DISPATCH_INTERVAL", time.Minute),
			AutoStart:    GetEnvAsBool("AUTO_START_SCHEDULER", false),
		},
		Correlator: CorrelatorConfig{
			Workers:       GetEnvAsInt("CORRELATOR_WORKERS", 4),
			QueueSize:     GetEnvAsInt("CORRELATOR_QUEUE_SIZE", 256),
			Timeout:       GetEnvAsDuration("CORRELATOR_TIMEOUT", 30*time.Second),
			LookupTimeout: GetEnvAsDuration("CORRELATOR_LOOKUP_TIMEOUT", 5*time.Second),
			CancelOnStop:  GetEnvAsBool("CORRELATOR_CANCEL_ON_STOP", true),
			DedupeTTL:     GetEnvAsDuration("CORRELATOR_DEDUPE_TTL", 24*time.Hour),
		},
		Cooldown: CooldownConfig{
			Window: GetEnvAsDuration("COOLDOWN_WINDOW", 60*time.Second),
			Scope:  GetEnv("COOLDOWN_SCOPE", "recipient"),
		},
		Alert: AlertConfig{
			WebhookURL:     GetEnv("ALERT_WEBHOOK_URL", ""),
			IterationCount: GetEnvAsInt("ALERT_ITERATION_COUNT", 0),
		},
		Auth: AuthConfig{
			FollowUpsAPIKey: GetEnv("FOLLOWUPS_API_KEY", ""),
			SchedulerAPIKey: GetEnv("SCHEDULER_API_KEY", ""),
			CronSecret:      GetEnv("CRON_SECRET", ""),
			WebhookToken:    GetEnv("WEBHOOK_TOKEN", ""),
		},
		Log: LogConfig{
			Format: GetEnv("LOG_FORMAT", "json"),
			Level:  GetEnv("LOG_LEVEL", "info"),
		},
	}
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetEnvAsList splits a comma separated value, dropping empty items.
func GetEnvAsList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
