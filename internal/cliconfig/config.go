package cliconfig

import (
	"fmt"
	"time"
)

// Default values.
const (
	DefaultPort            = 3000
	DefaultPath            = "/amazon-sns"
	DefaultMaxLogEntries   = 20
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultShutdownTimeout = 30
)

// Sources of configuration values.
const (
	SourceDefault = "default"
	SourceFile    = "file"
	SourceEnv     = "env"
	SourceFlag    = "flag"
)

// Config is the complete server configuration.
type Config struct {
	// Port is the TCP port the server listens on.
	Port int `yaml:"port" json:"port"`

	// Path is the request path SNS messages are accepted on.
	// Empty accepts SNS messages on any path.
	Path string `yaml:"path" json:"path"`

	// MaxLogEntries caps the request log.
	MaxLogEntries int `yaml:"maxLogEntries" json:"maxLogEntries"`

	// LogLevel is the operational log level (debug, info, warn, error).
	LogLevel string `yaml:"logLevel" json:"logLevel"`

	// LogFormat is the operational log format (text, json).
	LogFormat string `yaml:"logFormat" json:"logFormat"`

	// ShutdownTimeout is the graceful shutdown limit in seconds.
	ShutdownTimeout int `yaml:"shutdownTimeout" json:"shutdownTimeout"`

	// Sources maps each field's key to the source it was last set from.
	Sources map[string]string `yaml:"-" json:"sources,omitempty"`
}

// NewDefault returns a Config populated with default values.
func NewDefault() *Config {
	return &Config{
		Port:            DefaultPort,
		Path:            DefaultPath,
		MaxLogEntries:   DefaultMaxLogEntries,
		LogLevel:        DefaultLogLevel,
		LogFormat:       DefaultLogFormat,
		ShutdownTimeout: DefaultShutdownTimeout,
		Sources: map[string]string{
			"port":            SourceDefault,
			"path":            SourceDefault,
			"maxLogEntries":   SourceDefault,
			"logLevel":        SourceDefault,
			"logFormat":       SourceDefault,
			"shutdownTimeout": SourceDefault,
		},
	}
}

// Addr returns the listen address for Port.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// ShutdownDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownDuration() time.Duration {
	return time.Duration(c.ShutdownTimeout) * time.Second
}

// Validate checks that the values are usable.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 0 and 65535", c.Port)
	}
	if c.MaxLogEntries <= 0 {
		return fmt.Errorf("invalid maxLogEntries %d: must be positive", c.MaxLogEntries)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdownTimeout %d: must not be negative", c.ShutdownTimeout)
	}
	if c.Path != "" && c.Path[0] != '/' {
		return fmt.Errorf("invalid path %q: must start with /", c.Path)
	}
	return nil
}

// overrides holds optionally-set values from a single source.
type overrides struct {
	Port            *int    `yaml:"port" envconfig:"PORT"`
	Path            *string `yaml:"path" envconfig:"SNSD_PATH"`
	MaxLogEntries   *int    `yaml:"maxLogEntries" envconfig:"SNSD_MAX_LOG_ENTRIES"`
	LogLevel        *string `yaml:"logLevel" envconfig:"SNSD_LOG_LEVEL"`
	LogFormat       *string `yaml:"logFormat" envconfig:"SNSD_LOG_FORMAT"`
	ShutdownTimeout *int    `yaml:"shutdownTimeout" envconfig:"SNSD_SHUTDOWN_TIMEOUT"`
}

// apply copies every set value of o into cfg, recording source.
func (o *overrides) apply(cfg *Config, source string) {
	if cfg.Sources == nil {
		cfg.Sources = make(map[string]string)
	}
	if o.Port != nil {
		cfg.Port = *o.Port
		cfg.Sources["port"] = source
	}
	if o.Path != nil {
		cfg.Path = *o.Path
		cfg.Sources["path"] = source
	}
	if o.MaxLogEntries != nil {
		cfg.MaxLogEntries = *o.MaxLogEntries
		cfg.Sources["maxLogEntries"] = source
	}
	if o.LogLevel != nil {
		cfg.LogLevel = *o.LogLevel
		cfg.Sources["logLevel"] = source
	}
	if o.LogFormat != nil {
		cfg.LogFormat = *o.LogFormat
		cfg.Sources["logFormat"] = source
	}
	if o.ShutdownTimeout != nil {
		cfg.ShutdownTimeout = *o.ShutdownTimeout
		cfg.Sources["shutdownTimeout"] = source
	}
}
