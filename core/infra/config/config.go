package config

import "os"

const (
	defaultHTTPAddr    = ":8080"
	defaultMetricsAddr = ":9090"
	defaultNATSURL     = "nats://localhost:4222"
	defaultRedisURL    = "redis://localhost:6379"
	defaultRuleSet     = "config/ruleset.yaml"
	envHTTPAddr        = "GATE_HTTP_ADDR"
	envMetricsAddr     = "GATE_METRICS_ADDR"
	envNATSURL         = "NATS_URL"
	envRedisURL        = "REDIS_URL"
	envRuleSetPath     = "GATE_RULESET_PATH"
	envBusEnabled      = "GATE_BUS_ENABLED"
)

// Config holds runtime configuration for the gateway and CLI.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	NatsURL     string
	RedisURL    string
	RuleSetPath string
	BusEnabled  bool
}

// Load returns configuration using environment variables with sane defaults.
func Load() *Config {
	httpAddr := os.Getenv(envHTTPAddr)
	if httpAddr == "" {
		httpAddr = defaultHTTPAddr
	}

	metricsAddr := os.Getenv(envMetricsAddr)
	if metricsAddr == "" {
		metricsAddr = defaultMetricsAddr
	}

	natsURL := os.Getenv(envNATSURL)
	if natsURL == "" {
		natsURL = defaultNATSURL
	}

	redisURL := os.Getenv(envRedisURL)
	if redisURL == "" {
		redisURL = defaultRedisURL
	}

	ruleSetPath := os.Getenv(envRuleSetPath)
	if ruleSetPath == "" {
		ruleSetPath = defaultRuleSet
	}

	busEnabled := os.Getenv(envBusEnabled) != "false"

	return &Config{
		HTTPAddr:    httpAddr,
		MetricsAddr: metricsAddr,
		NatsURL:     natsURL,
		RedisURL:    redisURL,
		RuleSetPath: ruleSetPath,
		BusEnabled:  busEnabled,
	}
}
