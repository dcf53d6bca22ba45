package svchub

// Reload re-reads auth and indexer state and broadcasts a reload to
// every broker worker (spec §4.4). Concurrent calls while a reload is
// already in flight return immediately without side effects (spec §8
// "Reload atomicity"). Unlike the original's fire-and-forget Daemon,
// this runs synchronously — simpler to reason about and still
// satisfies the same atomicity guarantee since `reloading` is held for
// the whole critical section.
func (h *Hub) Reload() string {
	h.mu.Lock()
	if h.reloading {
		h.mu.Unlock()
		return "cannot reload; already in progress"
	}
	h.reloading = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.reloading = false
		h.mu.Unlock()
	}()

	h.log("root", "reload scheduled", nil)

	var authErr error
	if h.deps.Auth != nil {
		authErr = h.deps.Auth.Reload()
	}
	if h.deps.Idx != nil {
		h.deps.Idx.Reload()
	}
	h.broker.Reload()

	if authErr != nil {
		h.log("root", "reload: auth reload failed: "+authErr.Error(), 3)
		return "reload completed with errors"
	}
	return "reload initiated"
}
