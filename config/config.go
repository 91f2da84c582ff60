package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yml"

type Config struct {
	App          AppConfig          `yaml:"app"`
	Feed         FeedConfig         `yaml:"feed"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Status       StatusConfig       `yaml:"status"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// FeedConfig describes the quote feed endpoint. The connection URL is
// scheme://host?token_param=access_token.
type FeedConfig struct {
	Scheme      string        `yaml:"scheme"`
	Host        string        `yaml:"host"`
	TokenParam  string        `yaml:"token_param"`
	AccessToken string        `yaml:"access_token"`
	Symbols     []string      `yaml:"symbols"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// SubscriptionConfig controls how subscription requests are rendered and paced
// after every (re)connect.
type SubscriptionConfig struct {
	Template          string  `yaml:"template"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	CloudWatch     CloudWatchConfig `yaml:"cloudwatch"`
	ReportInterval time.Duration    `yaml:"report_interval"`
}

// StatusConfig controls the HTTP status server.
type StatusConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Address        string        `yaml:"address"`
	LogHistory     int           `yaml:"log_history"`
	SampleInterval time.Duration `yaml:"sample_interval"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, DefaultPath, envConfigPaths(DefaultPath))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Feed: FeedConfig{
			Scheme:     "wss",
			TokenParam: "token",
		},
		Subscription: SubscriptionConfig{
			RequestsPerSecond: 5,
			Burst:             1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			ReportInterval: 30 * time.Second,
		},
		Status: StatusConfig{
			Address:        ":8080",
			LogHistory:     200,
			SampleInterval: 5 * time.Second,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Secrets and endpoints may come from the environment instead of the file
	if v := os.Getenv("FEED_ACCESS_TOKEN"); v != "" {
		config.Feed.AccessToken = strings.TrimSpace(v)
	}
	if v := os.Getenv("FEED_HOST"); v != "" {
		config.Feed.Host = strings.TrimSpace(v)
	}
	if config.Metrics.CloudWatch.Enabled {
		if v := os.Getenv("AWS_REGION"); v != "" && config.Metrics.CloudWatch.Region == "" {
			config.Metrics.CloudWatch.Region = strings.TrimSpace(v)
		}
	}

	config.Feed.Host = strings.TrimSpace(config.Feed.Host)
	config.Feed.Symbols = normalizeSymbols(config.Feed.Symbols)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if cfg.Feed.Scheme != "ws" && cfg.Feed.Scheme != "wss" {
		return fmt.Errorf("feed.scheme must be ws or wss, got '%s'", cfg.Feed.Scheme)
	}
	if cfg.Feed.Host == "" {
		return fmt.Errorf("feed.host is required")
	}
	if cfg.Feed.TokenParam == "" {
		return fmt.Errorf("feed.token_param is required")
	}
	if cfg.Feed.AccessToken == "" {
		return fmt.Errorf("feed.access_token is required (or set FEED_ACCESS_TOKEN)")
	}
	if cfg.Feed.IdleTimeout < 0 {
		return fmt.Errorf("feed.idle_timeout must not be negative")
	}
	if cfg.Subscription.RequestsPerSecond <= 0 {
		return fmt.Errorf("subscription.requests_per_second must be greater than 0")
	}
	if cfg.Subscription.Burst <= 0 {
		return fmt.Errorf("subscription.burst must be greater than 0")
	}
	if len(cfg.Feed.Symbols) > 0 && cfg.Subscription.Template == "" {
		return fmt.Errorf("subscription.template is required when feed.symbols is set")
	}
	if cfg.Metrics.CloudWatch.Enabled && cfg.Metrics.CloudWatch.Namespace == "" {
		return fmt.Errorf("metrics.cloudwatch.namespace is required when CloudWatch is enabled")
	}
	if cfg.Status.Enabled && cfg.Status.SampleInterval <= 0 {
		return fmt.Errorf("status.sample_interval must be greater than 0 when the status server is enabled")
	}
	return nil
}

// normalizeSymbols trims whitespace and drops empty and repeated symbols while
// keeping their configured order. Case is preserved, symbols are sent as given.
func normalizeSymbols(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
