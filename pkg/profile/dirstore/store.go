// Package dirstore implements [profile.Store] on the local filesystem.
//
// Each profile occupies one directory named by its profile id and holding two
// files: embedding.f32 (the raw embedding vector, see [ReadEmbedding] for the
// format) and metadata.json. A sibling index.json aggregates per-profile
// summaries and is fully regenerated after every create and delete.
//
// The store offers no cross-process locking. Create uses the filesystem's
// exclusive directory creation as its create-if-absent primitive, so two
// racing enrollments for the same id cannot both succeed, but a delete racing
// a load can still observe a half-removed profile. Reads therefore skip any
// profile that fails to parse instead of failing the whole operation.
package dirstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voiceprint/pkg/profile"
)

const (
	embeddingFile = "embedding.f32"
	metadataFile  = "metadata.json"
	indexFile     = "index.json"

	// loadParallelism bounds the number of profile directories parsed
	// concurrently by LoadAll.
	loadParallelism = 8

	// maxEmbeddingLen rejects absurd element counts before allocating.
	maxEmbeddingLen = 1 << 20
)

// Compile-time interface checks.
var (
	_ profile.Store     = (*Store)(nil)
	_ profile.PathStore = (*Store)(nil)
)

// Store is a filesystem-backed profile store rooted at a single directory.
type Store struct {
	dir    string
	onSkip func(profileID string)
}

// Option is a functional option for [New].
type Option func(*Store)

// WithSkipObserver registers fn to be called once for every profile skipped
// as unreadable during LoadAll or List, in addition to the logged warning.
// Callers use it to feed skip counters without the store depending on a
// metrics implementation. LoadAll parses profiles in parallel, so fn must be
// safe for concurrent use.
func WithSkipObserver(fn func(profileID string)) Option {
	return func(s *Store) { s.onSkip = fn }
}

// New returns a Store rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("dirstore: profiles directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("dirstore: create profiles dir %q: %w", dir, err)
	}
	s := &Store{dir: dir}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Dir returns the root directory of the store.
func (s *Store) Dir() string { return s.dir }

// ProfilePath returns the directory that holds (or would hold) the profile
// with the given id.
func (s *Store) ProfilePath(id string) string {
	return filepath.Join(s.dir, id)
}

// Create implements [profile.Store]. The profile directory is created with
// an exclusive mkdir so that concurrent creates for the same id cannot both
// proceed; on any later failure, including the index rebuild, the directory
// is removed again before the error is returned.
func (s *Store) Create(ctx context.Context, p profile.Profile) error {
	if p.ProfileID == "" {
		return fmt.Errorf("dirstore: profile id must not be empty")
	}
	dir := s.ProfilePath(p.ProfileID)

	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("dirstore: create %q: %w", p.ProfileID, profile.ErrExists)
		}
		return fmt.Errorf("dirstore: create %q: %w", p.ProfileID, err)
	}

	if err := s.writeProfile(dir, p); err != nil {
		s.cleanup(dir, p.ProfileID)
		return err
	}

	if err := s.RebuildIndex(ctx); err != nil {
		s.cleanup(dir, p.ProfileID)
		return err
	}
	return nil
}

// cleanup removes a profile directory left behind by a failed create.
func (s *Store) cleanup(dir, id string) {
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("failed to clean up partial profile", "profile_id", id, "err", err)
	}
}

func (s *Store) writeProfile(dir string, p profile.Profile) error {
	if err := WriteEmbedding(filepath.Join(dir, embeddingFile), p.Embedding); err != nil {
		return fmt.Errorf("dirstore: write embedding for %q: %w", p.ProfileID, err)
	}

	meta, err := json.MarshalIndent(p.Metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("dirstore: marshal metadata for %q: %w", p.ProfileID, err)
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFile), meta, 0o644); err != nil {
		return fmt.Errorf("dirstore: write metadata for %q: %w", p.ProfileID, err)
	}
	return nil
}

// Exists implements [profile.Store].
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	_, err := os.Stat(s.ProfilePath(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("dirstore: stat %q: %w", id, err)
}

// LoadAll implements [profile.Store]. Profile directories are parsed in
// parallel; a directory whose embedding or metadata is missing or corrupt is
// skipped with a warning so that one damaged profile never blocks resolution
// against the rest.
func (s *Store) LoadAll(ctx context.Context) (map[string]profile.Profile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]profile.Profile{}, nil
		}
		return nil, fmt.Errorf("dirstore: read profiles dir: %w", err)
	}

	var (
		mu       sync.Mutex
		profiles = make(map[string]profile.Profile)
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(loadParallelism)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := s.loadProfile(id)
			if err != nil {
				slog.Warn("skipping unreadable profile", "profile_id", id, "err", err)
				s.skipped(id)
				return nil
			}
			mu.Lock()
			profiles[id] = p
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dirstore: load profiles: %w", err)
	}
	return profiles, nil
}

// skipped notifies the registered observer of one skipped profile.
func (s *Store) skipped(id string) {
	if s.onSkip != nil {
		s.onSkip(id)
	}
}

func (s *Store) loadProfile(id string) (profile.Profile, error) {
	dir := s.ProfilePath(id)

	embedding, err := ReadEmbedding(filepath.Join(dir, embeddingFile))
	if err != nil {
		return profile.Profile{}, fmt.Errorf("read embedding: %w", err)
	}

	meta, err := readMetadata(filepath.Join(dir, metadataFile))
	if err != nil {
		return profile.Profile{}, fmt.Errorf("read metadata: %w", err)
	}

	return profile.Profile{Metadata: meta, Embedding: embedding}, nil
}

// List implements [profile.Store]. Only metadata files are read.
func (s *Store) List(ctx context.Context) ([]profile.Metadata, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("dirstore: read profiles dir: %w", err)
	}

	var metas []profile.Metadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := readMetadata(filepath.Join(s.ProfilePath(entry.Name()), metadataFile))
		if err != nil {
			slog.Warn("skipping unreadable profile metadata", "profile_id", entry.Name(), "err", err)
			s.skipped(entry.Name())
			continue
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool { return metas[i].ProfileID < metas[j].ProfileID })
	return metas, nil
}

// Delete implements [profile.Store].
func (s *Store) Delete(ctx context.Context, id string) error {
	dir := s.ProfilePath(id)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("dirstore: delete %q: %w", id, profile.ErrNotFound)
		}
		return fmt.Errorf("dirstore: delete %q: %w", id, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("dirstore: delete %q: %w", id, err)
	}
	return s.RebuildIndex(ctx)
}

// Resolve implements [profile.Store]. The derived id is tried first; when no
// directory matches, every profile's stored name and display name is compared
// case-insensitively. A miss returns [profile.ErrNotFound], annotated with the
// closest enrolled display name when one is reasonably similar.
func (s *Store) Resolve(ctx context.Context, name string) (string, error) {
	id := profile.ID(name)
	if _, err := os.Stat(s.ProfilePath(id)); err == nil {
		return id, nil
	}

	metas, err := s.List(ctx)
	if err != nil {
		return "", err
	}

	lower := strings.ToLower(name)
	names := make([]string, 0, len(metas))
	for _, meta := range metas {
		if strings.ToLower(meta.Name) == lower || strings.ToLower(meta.DisplayName) == lower {
			return meta.ProfileID, nil
		}
		names = append(names, meta.DisplayName)
	}

	if closest, _, ok := profile.ClosestName(name, names); ok {
		return "", fmt.Errorf("dirstore: resolve %q (closest enrolled name: %q): %w", name, closest, profile.ErrNotFound)
	}
	return "", fmt.Errorf("dirstore: resolve %q: %w", name, profile.ErrNotFound)
}

// RebuildIndex implements [profile.Store]. It recomputes index.json from a
// full scan of the profile directories. Profiles whose metadata cannot be
// read are indexed by directory name with zero metadata, matching what a
// subsequent LoadAll would skip.
func (s *Store) RebuildIndex(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("dirstore: rebuild index: %w", err)
	}

	idx := profile.Index{Version: profile.IndexVersion, Profiles: []profile.Summary{}}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := readMetadata(filepath.Join(s.ProfilePath(entry.Name()), metadataFile))
		if err != nil {
			continue
		}
		id := meta.ProfileID
		if id == "" {
			id = entry.Name()
		}
		idx.Profiles = append(idx.Profiles, profile.Summary{
			ID:          id,
			DisplayName: meta.DisplayName,
			Path:        entry.Name() + "/",
			CreatedAt:   meta.CreatedAt,
		})
	}
	sort.Slice(idx.Profiles, func(i, j int) bool { return idx.Profiles[i].ID < idx.Profiles[j].ID })

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("dirstore: marshal index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, indexFile), data, 0o644); err != nil {
		return fmt.Errorf("dirstore: write index: %w", err)
	}
	return nil
}

// ReadIndex parses the store's index.json. Missing index is not an error; an
// empty index is returned instead.
func (s *Store) ReadIndex() (profile.Index, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return profile.Index{Version: profile.IndexVersion, Profiles: []profile.Summary{}}, nil
		}
		return profile.Index{}, fmt.Errorf("dirstore: read index: %w", err)
	}
	var idx profile.Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return profile.Index{}, fmt.Errorf("dirstore: parse index: %w", err)
	}
	return idx, nil
}

func readMetadata(path string) (profile.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return profile.Metadata{}, err
	}
	var meta profile.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return profile.Metadata{}, err
	}
	return meta, nil
}

// WriteEmbedding writes vec to path as a little-endian binary array: a uint64
// element count followed by the float32 elements.
func WriteEmbedding(path string, vec []float32) error {
	buf := make([]byte, 8+4*len(vec))
	binary.LittleEndian.PutUint64(buf, uint64(len(vec)))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[8+4*i:], math.Float32bits(v))
	}
	return os.WriteFile(path, buf, 0o644)
}

// ReadEmbedding reads a vector previously written by [WriteEmbedding].
func ReadEmbedding(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("embedding file too short: %d bytes", len(data))
	}
	n := binary.LittleEndian.Uint64(data)
	if n > maxEmbeddingLen {
		return nil, fmt.Errorf("embedding length %d exceeds limit", n)
	}
	if uint64(len(data)-8) != 4*n {
		return nil, fmt.Errorf("embedding file size mismatch: header says %d elements, body has %d bytes", n, len(data)-8)
	}
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[8+4*i:]))
	}
	return vec, nil
}
