package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// MinPayloadBytes is the smallest accepted codec.max_payload_bytes.
const MinPayloadBytes = 1024

// Verify validates the configuration and reports every problem found.
func Verify(cfg *Config) error {
	var errs []error
	errs = append(errs, verifyStore(&cfg.Store)...)
	errs = append(errs, verifyFallback(&cfg.Fallback)...)

	if cfg.TTL.ApprovalRetention <= 0 {
		errs = append(errs, errors.New("ttl.approval_retention must be positive"))
	}
	if cfg.TTL.Metric <= 0 {
		errs = append(errs, errors.New("ttl.metric must be positive"))
	}
	if cfg.Lock.Wait <= 0 || cfg.Lock.RetryInterval <= 0 {
		errs = append(errs, errors.New("lock.wait and lock.retry_interval must be positive"))
	}
	if cfg.Codec.MaxPayloadBytes < MinPayloadBytes {
		errs = append(errs, fmt.Errorf("codec.max_payload_bytes must be at least %d", MinPayloadBytes))
	}
	if !cfg.Store.Enabled && !cfg.Fallback.Enabled {
		errs = append(errs, errors.New("at least one of store.enabled and fallback.enabled must be true"))
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", cfg.Log.Format))
	}

	return errors.Join(errs...)
}

func verifyStore(cfg *StoreSection) []error {
	if !cfg.Enabled {
		return nil
	}
	var errs []error

	u, err := url.Parse(cfg.URL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("store.url: %w", err))
	case u.Scheme != "rediss":
		errs = append(errs, fmt.Errorf("store.url scheme %q is not allowed, TLS (rediss) is required", u.Scheme))
	case u.Host == "":
		errs = append(errs, errors.New("store.url has no host"))
	}

	if cfg.PoolSize < 1 {
		errs = append(errs, errors.New("store.pool_size must be at least 1"))
	}
	if cfg.ConnectTimeout <= 0 || cfg.SocketTimeout <= 0 || cfg.AcquireTimeout <= 0 {
		errs = append(errs, errors.New("store timeouts must be positive"))
	}
	if cfg.HealthInterval <= 0 {
		errs = append(errs, errors.New("store.health_interval must be positive"))
	}
	if cfg.FailureThreshold < 1 {
		errs = append(errs, errors.New("store.failure_threshold must be at least 1"))
	}
	if cfg.ReconnectMin <= 0 || cfg.ReconnectMin > cfg.ReconnectMax {
		errs = append(errs, errors.New("store.reconnect_min must be positive and not exceed store.reconnect_max"))
	}
	if cfg.RetryAttempts < 1 {
		errs = append(errs, errors.New("store.retry_attempts must be at least 1"))
	}
	return errs
}

func verifyFallback(cfg *FallbackSection) []error {
	var errs []error
	if cfg.Enabled && cfg.SweepInterval <= 0 {
		errs = append(errs, errors.New("fallback.sweep_interval must be positive"))
	}
	if cfg.MaxEntries < 0 || cfg.MaxBytes < 0 {
		errs = append(errs, errors.New("fallback limits must not be negative"))
	}
	if cfg.MemoryPressurePercent < 0 || cfg.MemoryPressurePercent > 100 {
		errs = append(errs, errors.New("fallback.memory_pressure_percent must be within [0,100]"))
	}
	return errs
}
