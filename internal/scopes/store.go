package scopes

import "sync/atomic"

// ProfileLoader fetches the raw profile documents a ProfileStore
// indexes, mirroring internal/sdata.Loader's shape (a local directory,
// or an in-memory test fixture).
type ProfileLoader interface {
	Load() ([]*Profile, error)
}

// ProfileStore is the copy-on-write, hot-reloadable catalog of Profile
// policy objects, published and swapped the same way
// internal/sdata.Registry publishes dataset snapshots: a reload that
// fails leaves the previous snapshot active, and in-flight requests
// never observe a partial update.
type ProfileStore struct {
	cur    atomic.Value // []*Profile
	source ProfileLoader
}

// NewProfileStore builds a ProfileStore and performs the first load.
func NewProfileStore(source ProfileLoader) (*ProfileStore, error) {
	s := &ProfileStore{source: source}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-fetches profiles and atomically publishes them on success.
func (s *ProfileStore) Reload() error {
	profiles, err := s.source.Load()
	if err != nil {
		return err
	}
	s.cur.Store(profiles)
	return nil
}

// All returns every currently loaded profile.
func (s *ProfileStore) All() []*Profile {
	v, _ := s.cur.Load().([]*Profile)
	return v
}
