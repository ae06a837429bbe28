package sdata

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// snapshot is the immutable, fully-indexed view of all loaded datasets.
// A Registry swaps this atomically on reload; in-flight requests keep
// using the snapshot they captured at the start of the request, so a
// reload never invalidates memory a handler is still reading from.
type snapshot struct {
	datasets map[string]*Dataset
}

// Registry is the process-wide, read-mostly schema catalog. The zero
// value is not usable; construct with NewRegistry.
type Registry struct {
	cur       atomic.Value // holds *snapshot
	reloadMu  sync.Mutex
	source    Loader
}

// Loader fetches the raw dataset documents this registry will index.
// FSLoader reads them from a local directory; tests supply in-memory
// fixtures.
type Loader interface {
	Load() ([]*Dataset, error)
}

// NewRegistry builds a Registry and performs the first load. Startup
// fails if the initial load errors; a gateway with no schemas serves
// nothing useful.
func NewRegistry(source Loader) (*Registry, error) {
	r := &Registry{source: source}
	if err := r.Reload(); err != nil {
		return nil, fmt.Errorf("sdata: initial schema load: %w", err)
	}
	return r, nil
}

// Reload re-fetches datasets from the Loader and, on success, atomically
// publishes a new snapshot. On failure the previous snapshot remains
// active and the error is returned for the caller to log.
func (r *Registry) Reload() error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	datasets, err := r.source.Load()
	if err != nil {
		return err
	}

	snap := &snapshot{datasets: make(map[string]*Dataset, len(datasets))}
	for _, d := range datasets {
		if d.Status != "" && d.Status != StatusBeschikbaar {
			// unavailable/inactive datasets are not registered
			continue
		}
		d.index()
		snap.datasets[d.ID] = d
	}
	r.cur.Store(snap)
	return nil
}

func (r *Registry) snap() *snapshot {
	v, _ := r.cur.Load().(*snapshot)
	return v
}

// GetDataset returns the named dataset from the currently published
// snapshot, or false if it does not exist (or is not beschikbaar).
func (r *Registry) GetDataset(id string) (*Dataset, bool) {
	s := r.snap()
	if s == nil {
		return nil, false
	}
	d, ok := s.datasets[id]
	return d, ok
}

// GetTable returns the named table within the named dataset.
func (r *Registry) GetTable(datasetID, tableID string) (*Table, bool) {
	d, ok := r.GetDataset(datasetID)
	if !ok {
		return nil, false
	}
	return d.Table(tableID)
}

func (r *Registry) getTableByRef(ref TableRef) (*Table, bool) {
	if ref.Dataset == "" {
		// Unqualified refs are resolved against every loaded dataset;
		// Amsterdam Schema relations are almost always intra-dataset but
		// a handful cross dataset boundaries without naming it explicitly
		// when the target id is globally unique.
		s := r.snap()
		if s == nil {
			return nil, false
		}
		for _, d := range s.datasets {
			if t, ok := d.Table(ref.Table); ok {
				return t, true
			}
		}
		return nil, false
	}
	return r.GetTable(ref.Dataset, ref.Table)
}

// Datasets returns all currently registered datasets, sorted by ID by
// the caller if order matters (deterministic ordering is not promised).
func (r *Registry) Datasets() []*Dataset {
	s := r.snap()
	if s == nil {
		return nil
	}
	out := make([]*Dataset, 0, len(s.datasets))
	for _, d := range s.datasets {
		out = append(out, d)
	}
	return out
}
