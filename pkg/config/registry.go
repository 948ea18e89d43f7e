package config

import "sync"

// DLQRegistry holds per-stream dead-letter configuration, keyed by stream
// name. Reads vastly outnumber writes, so the map is replaced wholesale on
// every update and read without copying.
type DLQRegistry struct {
	mu       sync.Mutex
	defaults DLQConfig
	byStream map[string]DLQConfig
}

// NewDLQRegistry creates a registry seeded with the given defaults.
func NewDLQRegistry(defaults DLQConfig) *DLQRegistry {
	return &DLQRegistry{
		defaults: defaults,
		byStream: map[string]DLQConfig{},
	}
}

// Get returns the configuration for a stream, falling back to the defaults
// (with the stream name filled in) when no override exists.
func (r *DLQRegistry) Get(stream string) DLQConfig {
	r.mu.Lock()
	cfg, ok := r.byStream[stream]
	r.mu.Unlock()
	if ok {
		return cfg
	}
	cfg = r.defaults
	cfg.Stream = stream
	return cfg
}

// Set stores an override for cfg.Stream. The map is copied so concurrent
// readers never observe a partially-applied update.
func (r *DLQRegistry) Set(cfg DLQConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make(map[string]DLQConfig, len(r.byStream)+1)
	for k, v := range r.byStream {
		next[k] = v
	}
	next[cfg.Stream] = cfg
	r.byStream = next
}

// Streams returns the stream names with explicit overrides.
func (r *DLQRegistry) Streams() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.byStream))
	for name := range r.byStream {
		names = append(names, name)
	}
	return names
}
