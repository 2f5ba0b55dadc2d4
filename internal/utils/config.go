package utils

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"traffic-guard/internal/model"
)

// Config is the full traffic-guard configuration loaded from YAML.
type Config struct {
	Application ApplicationConfig `yaml:"application"`
	Categories  []CategoryProfile `yaml:"categories"`
	Detection   DetectionConfig   `yaml:"detection"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Alerting    AlertingConfig    `yaml:"alerting"`
	Store       StoreConfig       `yaml:"store"`
	Prometheus  PrometheusConfig  `yaml:"prometheus"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ApplicationConfig struct {
	MetricsPort string `yaml:"metrics_port"`
	APIPort     string `yaml:"api_port"`
	// Source selects where feature records are fetched from: "sqlite" or "prometheus".
	Source string `yaml:"source"`
}

// CategoryProfile configures one traffic category pipeline.
type CategoryProfile struct {
	Name           string `yaml:"name"`
	ScorerEndpoint string `yaml:"scorer_endpoint"`
	StoreTable     string `yaml:"store_table"`
	Enabled        bool   `yaml:"enabled"`
}

func (p CategoryProfile) Category() model.Category {
	return model.Category(p.Name)
}

type DetectionConfig struct {
	// Threshold is a pointer so an explicit 0 is distinguishable from unset.
	Threshold            *float64 `yaml:"threshold"`
	Window               string   `yaml:"window"`
	HistoryCap           int      `yaml:"history_cap"`
	CheckIntervalSeconds int      `yaml:"check_interval_seconds"`
	FetchLimit           int      `yaml:"fetch_limit"`
}

type ScoringConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type AlertingConfig struct {
	Enabled  bool               `yaml:"enabled"`
	Severity string             `yaml:"severity"`
	Channels AlertChannelConfig `yaml:"channels"`
	Webhook  WebhookConfig      `yaml:"webhook"`
}

type AlertChannelConfig struct {
	Log     bool `yaml:"log"`
	Webhook bool `yaml:"webhook"`
}

type WebhookConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type PrometheusConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	StepSeconds    int    `yaml:"step_seconds"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		filename = "configs/traffic_guard.yaml"
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %v", filename, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file %s: %v", filename, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %v", err)
	}

	return &config, nil
}

// Validate substitutes defaults for unset fields and rejects values
// that no default can repair.
func (c *Config) Validate() error {
	if c.Application.MetricsPort == "" {
		c.Application.MetricsPort = "8080"
	}
	if c.Application.APIPort == "" {
		c.Application.APIPort = "8081"
	}
	if c.Application.Source == "" {
		c.Application.Source = "sqlite"
	}
	if c.Application.Source != "sqlite" && c.Application.Source != "prometheus" {
		return fmt.Errorf("unknown record source %q (want sqlite or prometheus)", c.Application.Source)
	}

	if len(c.Categories) == 0 {
		c.Categories = []CategoryProfile{
			{Name: "dns", ScorerEndpoint: "http://localhost:8000/predict/dns", Enabled: true},
			{Name: "dos", ScorerEndpoint: "http://localhost:8000/predict/dos", Enabled: true},
		}
	}
	for _, profile := range c.Categories {
		if !profile.Category().Valid() {
			return fmt.Errorf("unknown traffic category %q", profile.Name)
		}
		if profile.Enabled && profile.ScorerEndpoint == "" {
			return fmt.Errorf("category %s is enabled but has no scorer_endpoint", profile.Name)
		}
	}

	if c.Detection.Threshold == nil {
		defaultThreshold := 0.1
		c.Detection.Threshold = &defaultThreshold
	}
	if *c.Detection.Threshold < 0 || *c.Detection.Threshold > 1 {
		return fmt.Errorf("detection threshold %.4f out of range [0, 1]", *c.Detection.Threshold)
	}
	if c.Detection.Window == "" {
		c.Detection.Window = "-24h"
	}
	if c.Detection.HistoryCap <= 0 {
		c.Detection.HistoryCap = 1000
	}
	if c.Detection.CheckIntervalSeconds <= 0 {
		c.Detection.CheckIntervalSeconds = 10
	}
	if c.Detection.FetchLimit <= 0 {
		c.Detection.FetchLimit = 100
	}

	if c.Scoring.TimeoutSeconds <= 0 {
		c.Scoring.TimeoutSeconds = 20
	}

	if c.Alerting.Severity == "" {
		c.Alerting.Severity = "HIGH"
	}
	if c.Alerting.Webhook.TimeoutSeconds <= 0 {
		c.Alerting.Webhook.TimeoutSeconds = 10
	}
	if c.Alerting.Enabled && c.Alerting.Channels.Webhook && c.Alerting.Webhook.URL == "" {
		return fmt.Errorf("webhook alert channel enabled but webhook URL is empty")
	}

	if c.Store.Path == "" {
		c.Store.Path = "traffic_guard.db"
	}

	if c.Prometheus.TimeoutSeconds <= 0 {
		c.Prometheus.TimeoutSeconds = 10
	}
	if c.Prometheus.StepSeconds <= 0 {
		c.Prometheus.StepSeconds = 60
	}
	if c.Application.Source == "prometheus" && c.Prometheus.URL == "" {
		return fmt.Errorf("prometheus URL cannot be empty when source is prometheus")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	return nil
}

// EnabledCategories returns the profiles whose pipelines should run.
func (c *Config) EnabledCategories() []CategoryProfile {
	var enabled []CategoryProfile
	for _, profile := range c.Categories {
		if profile.Enabled {
			enabled = append(enabled, profile)
		}
	}
	return enabled
}

// ScorerEndpoints maps each enabled category to its scoring service URL.
func (c *Config) ScorerEndpoints() map[model.Category]string {
	endpoints := make(map[model.Category]string)
	for _, profile := range c.EnabledCategories() {
		endpoints[profile.Category()] = profile.ScorerEndpoint
	}
	return endpoints
}

// StoreTables maps categories to custom prediction table names, where set.
func (c *Config) StoreTables() map[model.Category]string {
	tables := make(map[model.Category]string)
	for _, profile := range c.Categories {
		if profile.StoreTable != "" {
			tables[profile.Category()] = profile.StoreTable
		}
	}
	return tables
}

// GetDefaultConfig returns a configuration with every default applied.
func GetDefaultConfig() *Config {
	config := &Config{}
	// Validate never fails on the zero value.
	_ = config.Validate()
	return config
}
