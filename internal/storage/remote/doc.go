// Package remote connects RailState to the networked backing store.
//
// The store speaks RESP over TLS (rediss:// URLs only). Connections come
// from a bounded pool; every command has a socket deadline and is retried
// on transient faults a configured number of times. Manager wraps the
// client in a circuit breaker that routes the state layer to the fallback
// store while the backing store is unhealthy.
package remote
