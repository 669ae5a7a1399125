package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.HTTPPort <= 0 {
		errs = append(errs, fmt.Errorf("server.http_port must be > 0, got %d", c.Server.HTTPPort))
	}
	if c.Server.GRPCPort < 0 {
		errs = append(errs, fmt.Errorf("server.grpc_port must be >= 0, got %d", c.Server.GRPCPort))
	}
	if c.Server.GRPCPort != 0 && c.Server.GRPCPort == c.Server.HTTPPort {
		errs = append(errs, fmt.Errorf("server.grpc_port and server.http_port must differ, both are %d", c.Server.HTTPPort))
	}

	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must be > 0, got %s", c.Server.ShutdownTimeout))
	}

	switch c.Models.Engine {
	case "argos", "libretranslate", "loopback":
	default:
		errs = append(errs, fmt.Errorf("models.engine must be \"argos\", \"libretranslate\" or \"loopback\", got %q", c.Models.Engine))
	}

	// The argos worker loads from disk, so it needs a base path.
	if c.Models.Engine == "argos" && c.Models.Path == "" {
		errs = append(errs, fmt.Errorf("models.path is required when models.engine is \"argos\""))
	}
	if c.Models.Engine == "libretranslate" && c.Models.LibreTranslateURL == "" {
		errs = append(errs, fmt.Errorf("models.libretranslate_url is required when models.engine is \"libretranslate\""))
	}

	if c.Models.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("models.queue_size must be > 0, got %d", c.Models.QueueSize))
	}

	switch c.Models.Backpressure {
	case "block", "reject":
	default:
		errs = append(errs, fmt.Errorf("models.backpressure must be \"block\" or \"reject\", got %q", c.Models.Backpressure))
	}

	if c.Models.ReadyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("models.ready_timeout must be > 0, got %s", c.Models.ReadyTimeout))
	}

	if c.Jobs.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("jobs.chunk_size must be > 0, got %d", c.Jobs.ChunkSize))
	}

	if c.Jobs.CleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("jobs.cleanup_interval must be > 0, got %s", c.Jobs.CleanupInterval))
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
