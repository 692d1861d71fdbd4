package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "conductor.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "CONDUCTOR_PORT")
	setString(&cfg.Server.CORSOrigin, "CONDUCTOR_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "CONDUCTOR_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "CONDUCTOR_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "CONDUCTOR_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "CONDUCTOR_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "CONDUCTOR_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "CONDUCTOR_NATS_STREAM")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setString(&cfg.LiteLLM.Model, "CONDUCTOR_LLM_MODEL")
	setInt(&cfg.LiteLLM.MaxTokens, "CONDUCTOR_LLM_MAX_TOKENS")
	setDuration(&cfg.LiteLLM.Timeout, "CONDUCTOR_LLM_TIMEOUT")
	setString(&cfg.Logging.Level, "CONDUCTOR_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CONDUCTOR_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CONDUCTOR_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "CONDUCTOR_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "CONDUCTOR_BREAKER_TIMEOUT")

	// Telemetry
	setString(&cfg.OTel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.OTel.ServiceName, "OTEL_SERVICE_NAME")
	setBool(&cfg.OTel.Insecure, "CONDUCTOR_OTEL_INSECURE")
	setFloat64(&cfg.OTel.SampleRate, "CONDUCTOR_OTEL_SAMPLE_RATE")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "CONDUCTOR_CACHE_L1_SIZE_MB")

	// Worker
	setString(&cfg.Worker.ID, "CONDUCTOR_WORKER_ID")
	setStrings(&cfg.Worker.Agents, "CONDUCTOR_WORKER_AGENTS")
	setInt(&cfg.Worker.BatchSize, "CONDUCTOR_WORKER_BATCH_SIZE")
	setDuration(&cfg.Worker.PollInterval, "CONDUCTOR_WORKER_POLL_INTERVAL")
	setDuration(&cfg.Sweeper.StaleInterval, "CONDUCTOR_SWEEP_STALE_INTERVAL")
	setDuration(&cfg.Sweeper.NegotiationInterval, "CONDUCTOR_SWEEP_NEGOTIATION_INTERVAL")

	// Budgets
	setInt(&cfg.Budgets.Global.MaxDailyLLMCalls, "CONDUCTOR_MAX_DAILY_LLM_CALLS")
	setInt(&cfg.Budgets.Global.MaxDailyProactiveAlerts, "CONDUCTOR_MAX_DAILY_PROACTIVE_ALERTS")
	setInt(&cfg.Budgets.Global.CooldownBetweenProactiveScansMinutes, "CONDUCTOR_PROACTIVE_COOLDOWN_MINUTES")

	// Negotiation
	setInt(&cfg.Negotiation.MaxRoundsPerNegotiation, "CONDUCTOR_NEGOTIATION_MAX_ROUNDS")
	setInt(&cfg.Negotiation.MaxActiveNegotiationsPerAgent, "CONDUCTOR_NEGOTIATION_MAX_ACTIVE")
	setInt(&cfg.Negotiation.NegotiationTimeoutMinutes, "CONDUCTOR_NEGOTIATION_TIMEOUT_MINUTES")

	// Proactive
	setBool(&cfg.Proactive.Enabled, "CONDUCTOR_PROACTIVE_ENABLED")
	setDuration(&cfg.Proactive.ScanInterval, "CONDUCTOR_PROACTIVE_SCAN_INTERVAL")
	setString(&cfg.Proactive.AssessorRole, "CONDUCTOR_PROACTIVE_ASSESSOR")
	setString(&cfg.Proactive.AlertRole, "CONDUCTOR_PROACTIVE_ALERT_ROLE")

	// Selection
	setString(&cfg.Selection.Role, "CONDUCTOR_SELECTION_ROLE")
	setString(&cfg.Selection.Schedule, "CONDUCTOR_SELECTION_SCHEDULE")

	// Notify
	setStrings(&cfg.Notify.Providers, "CONDUCTOR_NOTIFY_PROVIDERS")
	setString(&cfg.Notify.Slack.WebhookURL, "CONDUCTOR_SLACK_WEBHOOK_URL")
	setString(&cfg.Notify.Discord.WebhookURL, "CONDUCTOR_DISCORD_WEBHOOK_URL")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Worker.BatchSize < 1 {
		return errors.New("worker.batch_size must be >= 1")
	}
	if cfg.Worker.PollInterval <= 0 {
		return errors.New("worker.poll_interval must be > 0")
	}
	if err := cfg.Budgets.validate(); err != nil {
		return err
	}
	if cfg.Negotiation.MaxRoundsPerNegotiation < 1 {
		return errors.New("negotiation.max_rounds_per_negotiation must be >= 1")
	}
	if cfg.Negotiation.MaxActiveNegotiationsPerAgent < 1 {
		return errors.New("negotiation.max_active_negotiations_per_agent must be >= 1")
	}
	if cfg.Negotiation.NegotiationTimeoutMinutes < 1 {
		return errors.New("negotiation.negotiation_timeout_minutes must be >= 1")
	}
	if cfg.Proactive.Enabled && cfg.Proactive.AssessorRole == "" {
		return errors.New("proactive.assessor_role is required when proactive scanning is enabled")
	}
	for _, p := range cfg.Notify.Providers {
		if cfg.Notify.Settings(p) == nil {
			return fmt.Errorf("notify.providers: %q is not supported", p)
		}
	}
	for i := range cfg.Schedules {
		s := &cfg.Schedules[i]
		if s.Spec == "" || s.TaskType == "" || s.AssignedTo == "" {
			return fmt.Errorf("schedules[%d]: spec, task_type and assigned_to are required", i)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// setStrings parses a comma-separated list.
func setStrings(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = splitList(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
