// Package cliconfig provides configuration types and loading for the snsd CLI.
//
// It implements a layered configuration system with the following precedence
// (highest to lowest):
//
//  1. Command-line flags
//  2. Environment variables (PORT and the SNSD_* prefix)
//  3. Config file (YAML, given with --config)
//  4. Default values
//
// It tracks the source of each configuration value for debugging purposes.
//
// Key types:
//
//   - Config: Complete configuration structure for the server
//   - Source constants: identify where config values originated
//
// Key functions:
//
//   - Load: Loads and merges the file and the environment over the defaults
//   - LoadFile: Reads a YAML config file
//   - LoadEnv: Applies environment variable overrides
package cliconfig
