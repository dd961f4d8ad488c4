package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config adds service-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds           int
	ShutdownBudgetSeconds  int
	APIPort                int
	AdvisoryAPIKey         string
	AdvisoryModel          string
	AdvisoryTimeoutSeconds int
	AdvisoryRetries        int
	DatabaseURL            string
	RedisAddr              string
	RedisCacheTTLHours     int
	KafkaBrokers           string
	KafkaTopic             string
	SlackWebhookURL        string
	AdminAPIToken          string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.AdvisoryAPIKey, "advisory-api-key", "", "API key for the Groq advisory model provider")
	fs.StringVar(&c.AdvisoryModel, "advisory-model", "llama-3.3-70b-versatile", "advisory model to use")
	fs.IntVar(&c.AdvisoryTimeoutSeconds, "advisory-timeout-seconds", 10, "per-attempt advisory call timeout (1..60)")
	fs.IntVar(&c.AdvisoryRetries, "advisory-retries", 3, "advisory call attempts before falling back (1..10)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory stores)")
	fs.StringVar(&c.RedisAddr, "redis-addr", "", "Redis address for the advisory cache (empty = in-process cache)")
	fs.IntVar(&c.RedisCacheTTLHours, "redis-cache-ttl-hours", 24, "Redis advisory cache entry TTL in hours (0 = no expiry)")
	fs.StringVar(&c.KafkaBrokers, "kafka-brokers", "", "comma-separated Kafka brokers for the outbreak event feed (empty = disabled)")
	fs.StringVar(&c.KafkaTopic, "kafka-topic", "sahay.outbreak.events", "Kafka topic for the outbreak event feed")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for outbreak notifications")
	fs.StringVar(&c.AdminAPIToken, "admin-api-token", "", "static token guarding aggregate reporting endpoints (empty = open)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Advisory key is required; without it every assessment would be
	// a rule-based fallback
	if c.AdvisoryAPIKey == "" {
		errs = append(errs, errors.New("ADVISORY_API_KEY is required"))
	}
	if c.AdvisoryModel == "" {
		errs = append(errs, errors.New("ADVISORY_MODEL is required"))
	}
	if c.AdvisoryTimeoutSeconds <= 0 || c.AdvisoryTimeoutSeconds > 60 {
		errs = append(errs, fmt.Errorf("invalid ADVISORY_TIMEOUT_SECONDS %d (must be 1..60)", c.AdvisoryTimeoutSeconds))
	}
	if c.AdvisoryRetries <= 0 || c.AdvisoryRetries > 10 {
		errs = append(errs, fmt.Errorf("invalid ADVISORY_RETRIES %d (must be 1..10)", c.AdvisoryRetries))
	}

	if c.RedisCacheTTLHours < 0 {
		errs = append(errs, fmt.Errorf("invalid REDIS_CACHE_TTL_HOURS %d (must be >= 0)", c.RedisCacheTTLHours))
	}
	if c.KafkaBrokers != "" && c.KafkaTopic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
