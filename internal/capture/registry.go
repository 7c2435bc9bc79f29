package capture

import "sync"

// Registry tracks the most recently finalized capture file. Publish happens
// strictly after the writer is closed, so readers holding a path from
// Current never observe a file mid-write.
type Registry struct {
	mu   sync.RWMutex
	path string
	set  bool
}

// NewRegistry creates an empty registry; Current reports no capture until
// the first run finalizes.
func NewRegistry() *Registry {
	return &Registry{}
}

// Publish atomically replaces the current pointer with a finalized path.
func (r *Registry) Publish(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = path
	r.set = true
}

// Current returns the latest finalized capture path, if any run has ever
// finalized one.
func (r *Registry) Current() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.path, r.set
}
