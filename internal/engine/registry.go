package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registration describes one engine variant offered to the registry.
// Instances built by Build are pre-initialized handles: one per worker slot
// for non-reentrant backends, a single shared handle for reentrant ones.
type Registration struct {
	Name      string
	Class     Class
	Priority  int
	Reentrant bool
	// Build constructs the instance arena. workers is the process-wide
	// worker pool size. A build error marks the engine unavailable; it is
	// never retried mid-request.
	Build func(workers int) ([]Engine, error)
}

type entry struct {
	desc      Descriptor
	instances []Engine
}

// Registry holds the static engine set. It is populated once during process
// start behind an explicit Init/Close lifecycle and is read-only at request
// time, so lookups need no locking after Init completes. The mutex only
// guards the build phase itself.
type Registry struct {
	mu      sync.Mutex
	workers int
	entries map[string]*entry
	order   []string
}

// NewRegistry creates an empty registry for a pool of the given size.
func NewRegistry(workers int) *Registry {
	if workers <= 0 {
		workers = 1
	}
	return &Registry{
		workers: workers,
		entries: make(map[string]*entry),
	}
}

// Register builds and adds one engine variant. Build failures are recorded
// on the descriptor rather than returned: an engine that cannot initialize
// is registered as unavailable so selection can report it precisely.
func (r *Registry) Register(reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	desc := Descriptor{
		Name:      reg.Name,
		Class:     reg.Class,
		ClassName: reg.Class.String(),
		Priority:  reg.Priority,
		Reentrant: reg.Reentrant,
	}

	var instances []Engine
	if reg.Build != nil {
		slots := 1
		if !reg.Reentrant {
			slots = r.workers
		}
		built, err := reg.Build(slots)
		switch {
		case err != nil:
			desc.Detail = err.Error()
		case len(built) == 0:
			desc.Detail = "engine build returned no instances"
		default:
			instances = built
			desc.Available = true
		}
	} else {
		desc.Detail = "no builder configured"
	}

	r.entries[reg.Name] = &entry{desc: desc, instances: instances}
	r.order = append(r.order, reg.Name)
}

// Lookup returns the descriptor for name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	e, ok := r.entries[name]
	if !ok {
		return Descriptor{}, false
	}
	return e.desc, true
}

// Instance returns the engine handle for the given worker slot. Reentrant
// engines hand out their single shared instance; non-reentrant engines map
// each worker id to its dedicated handle.
func (r *Registry) Instance(name string, worker int) (Engine, error) {
	e, ok := r.entries[name]
	if !ok || !e.desc.Available {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, name)
	}
	if worker < 0 {
		worker = 0
	}
	return e.instances[worker%len(e.instances)], nil
}

// Descriptors returns all registered descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].desc)
	}
	return out
}

// Available returns the descriptors of usable engines sorted by priority
// (ascending) with registration order as the final tie-break, keeping
// selection reproducible for identical configuration.
func (r *Registry) Available() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		if d := r.entries[name].desc; d.Available {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// Close releases every initialized engine instance. The registry must not
// be used afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, name := range r.order {
		e := r.entries[name]
		for _, inst := range e.instances {
			if err := inst.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("close engine %s: %w", name, err)
			}
		}
		e.instances = nil
		e.desc.Available = false
	}
	return firstErr
}

// ErrNoEngines is returned at start-up when not a single engine variant
// initialized successfully; this is the only fatal configuration state.
var ErrNoEngines = errors.New("no OCR engine available")

// CheckStartup verifies at least one engine is usable.
func (r *Registry) CheckStartup() error {
	if len(r.Available()) == 0 {
		return ErrNoEngines
	}
	return nil
}
