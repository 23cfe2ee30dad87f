// Package storage defines the key-value contract implemented by the
// RailState backends.
//
// Implementations:
//
//   - remote: RESP over TLS to the networked store, pooled connections
//   - memory: in-process fallback store with lazy expiry and sweeping
//
// Both honour the same TTL, conditional-write and cursor semantics so the
// state layer can switch between them without changing behaviour.
package storage
