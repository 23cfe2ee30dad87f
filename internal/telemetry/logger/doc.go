// Package logger builds the structured logger used across RailState.
//
// It configures log/slog with a JSON or text handler, a process-wide level
// that can be changed at runtime, and redaction of sensitive attributes:
//
//   - values of attributes named like password, secret, token or credential
//   - the password part of redis:// and rediss:// URLs in any string value
package logger
