// Package main provides the entry point for railstate-server.
//
// The server owns one State Store for the process lifetime and exposes:
//
//   - /metrics in Prometheus format
//   - /healthz with the store routing state as JSON
//   - /stats with the store counters as JSON
//
// Usage:
//
//	railstate-server [flags]
//	railstate-server --config /path/to/config.yaml
//	railstate-server check --config /path/to/config.yaml
//
// Configuration is read from defaults, the YAML file and RAILSTATE_*
// environment variables. Changing log.level in the file applies without a
// restart.
package main
