package cmap

// Action tells Compute what to do with the key after the callback returns.
type Action int

const (
	// Keep leaves the stored value untouched.
	Keep Action = iota
	// Store writes the returned value.
	Store
	// Remove deletes the key.
	Remove
)

// Compute runs fn under the key's shard lock and applies the returned
// action. fn must not call back into m.
func (m *Map[V]) Compute(key string, fn func(value V, exists bool) (V, Action)) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.items[key]
	next, action := fn(cur, ok)
	switch action {
	case Store:
		s.items[key] = next
	case Remove:
		delete(s.items, key)
	}
}

// Range calls fn for every entry until fn returns false. Each shard is
// read-locked while it is visited, so the view is not a snapshot.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	for _, s := range m.shards {
		if !s.visit(fn) {
			return
		}
	}
}

func (s *shard[V]) visit(fn func(string, V) bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.items {
		if !fn(k, v) {
			return false
		}
	}
	return true
}

// DeleteIf removes every entry matching pred and returns how many it
// removed.
func (m *Map[V]) DeleteIf(pred func(key string, value V) bool) int {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for k, v := range s.items {
			if pred(k, v) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
