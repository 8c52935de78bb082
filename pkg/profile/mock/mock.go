// Package mock provides a test double for the profile.Store interface.
//
// Use Store to serve canned profiles without touching a filesystem or
// database and to verify which mutations a component performed.
package mock

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/MrWong99/voiceprint/pkg/profile"
)

// Ensure Store implements profile.Store at compile time.
var _ profile.Store = (*Store)(nil)

// Store is a mock implementation of profile.Store backed by an in-memory map.
// The zero value is ready to use. Thread-safe.
type Store struct {
	mu sync.Mutex

	// Profiles holds the current store contents keyed by profile id.
	// Pre-populate it to simulate enrolled profiles.
	Profiles map[string]profile.Profile

	// CreateErr, LoadAllErr, ListErr, DeleteErr and ResolveErr, when non-nil,
	// are returned by the corresponding method instead of touching Profiles.
	CreateErr  error
	LoadAllErr error
	ListErr    error
	DeleteErr  error
	ResolveErr error

	// CreatedIDs records the profile ids passed to successful Create calls.
	CreatedIDs []string

	// DeletedIDs records the profile ids passed to successful Delete calls.
	DeletedIDs []string

	// RebuildIndexCalls counts RebuildIndex invocations.
	RebuildIndexCalls int
}

// Create stores p, or returns profile.ErrExists for a duplicate id.
func (s *Store) Create(ctx context.Context, p profile.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return s.CreateErr
	}
	if s.Profiles == nil {
		s.Profiles = make(map[string]profile.Profile)
	}
	if _, ok := s.Profiles[p.ProfileID]; ok {
		return profile.ErrExists
	}
	s.Profiles[p.ProfileID] = p
	s.CreatedIDs = append(s.CreatedIDs, p.ProfileID)
	return nil
}

// Exists reports whether id is present in Profiles.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.Profiles[id]
	return ok, nil
}

// LoadAll returns a copy of the current profile map.
func (s *Store) LoadAll(ctx context.Context) (map[string]profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadAllErr != nil {
		return nil, s.LoadAllErr
	}
	out := make(map[string]profile.Profile, len(s.Profiles))
	for id, p := range s.Profiles {
		out[id] = p
	}
	return out, nil
}

// List returns the metadata of all stored profiles, ordered by id.
func (s *Store) List(ctx context.Context) ([]profile.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	var metas []profile.Metadata
	for _, p := range s.Profiles {
		metas = append(metas, p.Metadata)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].ProfileID < metas[j].ProfileID })
	return metas, nil
}

// Delete removes the profile with the given id, or returns profile.ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	if _, ok := s.Profiles[id]; !ok {
		return profile.ErrNotFound
	}
	delete(s.Profiles, id)
	s.DeletedIDs = append(s.DeletedIDs, id)
	return nil
}

// Resolve maps name to a stored profile id using the same derivation and
// case-insensitive fallback as the real stores.
func (s *Store) Resolve(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ResolveErr != nil {
		return "", s.ResolveErr
	}
	id := profile.ID(name)
	if _, ok := s.Profiles[id]; ok {
		return id, nil
	}
	for pid, p := range s.Profiles {
		if strings.EqualFold(p.Name, name) || strings.EqualFold(p.DisplayName, name) {
			return pid, nil
		}
	}
	return "", profile.ErrNotFound
}

// RebuildIndex counts the call and returns nil.
func (s *Store) RebuildIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RebuildIndexCalls++
	return nil
}
