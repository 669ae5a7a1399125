// Package config provides configuration for the ponte translation server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (APP_PATH and the PONTE_ prefix)
//  4. Validation
//
// The loaded value is passed explicitly to the components that need it;
// there is no process-wide settings singleton.
package config

import "time"

// Config holds all configuration for the ponte server.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Models  ModelsConfig  `yaml:"models"`
	Jobs    JobsConfig    `yaml:"jobs"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP and gRPC listener settings.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port"`        // default: 8080
	GRPCPort        int           `yaml:"grpc_port"`        // default: 50051, 0 disables gRPC
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 5m
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
}

// ModelsConfig holds translation model and actor settings.
type ModelsConfig struct {
	Path              string        `yaml:"path"`               // base path holding opus-mt-* folders
	Engine            string        `yaml:"engine"`             // "argos", "libretranslate" or "loopback", default: "argos"
	QueueSize         int           `yaml:"queue_size"`         // default: 100
	Backpressure      string        `yaml:"backpressure"`       // "block" or "reject", default: "block"
	LibreTranslateURL string        `yaml:"libretranslate_url"` // default: http://localhost:5000
	WorkerCommand     []string      `yaml:"worker_command"`     // argos worker process
	WorkerEnv         []string      `yaml:"worker_env"`         // extra KEY=VALUE for the worker process
	RequestTimeout    time.Duration `yaml:"request_timeout"`    // default: 5m
	ReadyTimeout      time.Duration `yaml:"ready_timeout"`      // how long startup waits for models, default: 5m
}

// JobsConfig holds asynchronous document job settings.
type JobsConfig struct {
	ChunkSize       int           `yaml:"chunk_size"`       // bytes per chunk, default: 10240
	Timeout         time.Duration `yaml:"timeout"`          // per job, default: 10m
	MaxAge          time.Duration `yaml:"max_age"`          // finished jobs are kept this long, default: 1h
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // default: 5m
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error; default: info
	Format string `yaml:"format"` // "text" or "json", default: "text"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			GRPCPort:        50051,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Models: ModelsConfig{
			Path:              "/models",
			Engine:            "argos",
			QueueSize:         100,
			Backpressure:      "block",
			LibreTranslateURL: "http://localhost:5000",
			RequestTimeout:    5 * time.Minute,
			ReadyTimeout:      5 * time.Minute,
		},
		Jobs: JobsConfig{
			ChunkSize:       10 * 1024,
			Timeout:         10 * time.Minute,
			MaxAge:          time.Hour,
			CleanupInterval: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
