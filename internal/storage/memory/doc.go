// Package memory provides the in-process fallback store for RailState.
//
// It implements storage.Backend on a sharded concurrent map so that the
// state layer keeps working while the networked store is unreachable.
//
// Features:
//
//   - Lazy Expiry: every read checks stored time + ttl and drops lapsed keys
//   - Sweeping: a background loop reclaims expired keys nobody reads
//   - Exhaustion Limits: entry count, byte size and host memory pressure
//   - Atomic Conditionals: SetNX and CompareAndDelete run under the shard lock
//
// Non-goals: persistence across restarts and visibility across processes.
package memory
