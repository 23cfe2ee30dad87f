// Package state is the RailState persistence API.
//
// A Store saves, reads, updates, deletes and lists workflow states,
// approval requests and test results. Every write is validated and
// size-checked by the codec, given a lifetime by the TTL policy and
// written to the networked store while it is healthy. Connectivity
// faults reroute the operation to the in-process fallback store and are
// counted as degraded operations. Save only creates; an existing record
// changes through Update, which runs under a per-record lease so
// concurrent mutators of one record never lose an update.
package state
