// Package config loads and validates deliberation session configuration.
//
// Configuration is read from a YAML file with environment variable
// substitution for secrets (API keys reference ${VAR} placeholders rather
// than holding literal values). DefaultConfig returns a runnable baseline so
// a zero-config session works against a mock or local backend.
package config
