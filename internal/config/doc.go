// Package config provides RailState configuration.
//
// This package defines the configuration structure and validation:
//
//   - spec.go: Config struct definition
//   - default.go: Default configuration values
//   - verify.go: Business validation (TLS scheme, bounds, ordering)
//   - sanitize.go: Log sanitization (hide credentials)
//
// Configuration is loaded via internal/infra/confloader from defaults,
// a YAML file and RAILSTATE_* environment variables. The resulting value
// is immutable and passed explicitly to every component.
package config
