package cliconfig

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigError represents a configuration file error with location info.
type ConfigError struct {
	Path    string
	Line    int
	Message string
}

func (e *ConfigError) Error() string {
	if e.Line > 0 {
		return e.Path + " (line " + strconv.Itoa(e.Line) + "): " + e.Message
	}
	return e.Path + ": " + e.Message
}

// LoadFile reads the YAML config file at path and applies it to cfg.
// Unknown keys are rejected.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigError{Path: path, Message: err.Error()}
	}

	var o overrides
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&o); err != nil && !errors.Is(err, io.EOF) {
		return &ConfigError{Path: path, Line: yamlErrorLine(err), Message: err.Error()}
	}

	o.apply(cfg, SourceFile)
	return nil
}

// Load builds the effective configuration.
// Precedence: env > config file > defaults. Flags are applied by the caller.
func Load(path string) (*Config, error) {
	cfg := NewDefault()

	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := LoadEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// yamlErrorLine extracts the line number from a yaml.v3 syntax error
// ("yaml: line N: ..."). Returns 0 when there is none.
func yamlErrorLine(err error) int {
	const prefix = "yaml: line "
	msg := err.Error()
	if len(msg) <= len(prefix) || msg[:len(prefix)] != prefix {
		return 0
	}
	end := len(prefix)
	for end < len(msg) && msg[end] >= '0' && msg[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(msg[len(prefix):end])
	return n
}
