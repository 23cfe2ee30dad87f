// Package cmap provides the sharded string-keyed map behind the fallback
// store.
//
// Keys are spread over a power-of-two number of shards by their murmur3
// hash. Each shard has its own RWMutex, so writers to different shards
// never contend. Compute gives atomic read-modify-write on one key, which
// is what conditional writes and compare-and-delete are built on.
//
//	m := cmap.New[entry]()
//	m.Compute(key, func(old entry, ok bool) (entry, cmap.Action) {
//		if ok {
//			return old, cmap.Keep
//		}
//		return fresh, cmap.Store
//	})
package cmap
