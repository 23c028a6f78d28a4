package cliconfig

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Environment variable names
const (
	EnvPort            = "PORT"
	EnvPath            = "SNSD_PATH"
	EnvMaxLogEntries   = "SNSD_MAX_LOG_ENTRIES"
	EnvLogLevel        = "SNSD_LOG_LEVEL"
	EnvLogFormat       = "SNSD_LOG_FORMAT"
	EnvShutdownTimeout = "SNSD_SHUTDOWN_TIMEOUT"
)

// LoadEnv applies configuration from environment variables.
// It only sets values that are present in the environment; SNSD_PATH set to
// the empty string disables the path check.
func LoadEnv(cfg *Config) error {
	var o overrides
	if err := envconfig.Process("", &o); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}
	o.apply(cfg, SourceEnv)
	return nil
}
