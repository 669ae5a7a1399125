package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, PONTE_CONFIG env, ./config.yaml, /etc/ponte/config.yaml)
//  3. Environment variable overrides
//  4. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. PONTE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/ponte/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("PONTE_CONFIG"); envPath != "" {
		return envPath
	}
	for _, path := range []string{"config.yaml", "/etc/ponte/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables to config fields.
// APP_PATH is kept for compatibility with existing deployments.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("APP_PATH"); v != "" {
		cfg.Models.Path = v
	}
	if v := os.Getenv("PONTE_MODELS_PATH"); v != "" {
		cfg.Models.Path = v
	}
	if v := os.Getenv("PONTE_ENGINE"); v != "" {
		cfg.Models.Engine = v
	}
	if v := os.Getenv("PONTE_MT_URL"); v != "" {
		cfg.Models.LibreTranslateURL = v
	}
	if v := os.Getenv("PONTE_BACKPRESSURE"); v != "" {
		cfg.Models.Backpressure = v
	}
	if v := os.Getenv("PONTE_WORKER_COMMAND"); v != "" {
		cfg.Models.WorkerCommand = strings.Fields(v)
	}
	if v := os.Getenv("PONTE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PONTE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"PONTE_HTTP_PORT", &cfg.Server.HTTPPort},
		{"PONTE_GRPC_PORT", &cfg.Server.GRPCPort},
		{"PONTE_QUEUE_SIZE", &cfg.Models.QueueSize},
	}
	for _, o := range ints {
		v := os.Getenv(o.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", o.env, err)
		}
		*o.dst = n
	}

	return nil
}
