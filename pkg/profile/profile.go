// Package profile defines the voice profile data model and the Store
// interface that enrollment and speaker resolution are built on.
//
// A profile is an enrolled identity: a display name, a fixed-dimension voice
// embedding produced by an embedding provider, and metadata describing how
// and when the embedding was captured. Profiles are immutable after creation;
// the only mutations a store supports are create and delete.
//
// Two store implementations exist: [github.com/MrWong99/voiceprint/pkg/profile/dirstore]
// (directory-per-profile on the local filesystem, the default) and
// [github.com/MrWong99/voiceprint/pkg/profile/pgstore] (PostgreSQL with pgvector).
package profile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
)

// IndexVersion is the schema version written to a store's profile index.
const IndexVersion = "1.0"

// ErrExists is returned by Store.Create when a profile with the same id is
// already enrolled.
var ErrExists = errors.New("profile: already exists")

// ErrNotFound is returned when a lookup or delete does not match any
// enrolled profile.
var ErrNotFound = errors.New("profile: not found")

// Metadata describes an enrolled profile without its embedding vector.
// It is persisted verbatim as the profile's metadata document.
type Metadata struct {
	// Name is the identity name exactly as provided at enrollment.
	Name string `json:"name"`

	// DisplayName is the human-readable name reported in listings and
	// resolution results. Currently always equal to Name.
	DisplayName string `json:"display_name"`

	// ProfileID is the stable identifier derived from Name via [ID].
	ProfileID string `json:"profile_id"`

	// CreatedAt is the UTC enrollment time.
	CreatedAt time.Time `json:"created_at"`

	// SampleDurationSeconds is the duration of the enrollment audio, or nil
	// when the duration could not be determined.
	SampleDurationSeconds *float64 `json:"sample_duration_seconds"`

	// EmbeddingVersion tags the embedding model that produced the vector.
	// Vectors from different versions are not guaranteed to be comparable.
	EmbeddingVersion string `json:"embedding_version"`

	// SourceFile references the original enrollment audio, for audit only.
	// It is never re-read at match time.
	SourceFile string `json:"source_file"`
}

// Profile is a fully loaded enrolled identity: metadata plus embedding.
type Profile struct {
	Metadata

	// Embedding is the voice embedding vector. Its dimension is fixed by the
	// provider that produced it and it is immutable after enrollment.
	Embedding []float32 `json:"-"`
}

// Summary is the denormalized per-profile entry kept in a store's index for
// fast listing. The index is a derived cache: it must always equal a fresh
// recomputation from the stored profiles and is never the source of truth.
type Summary struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Path        string    `json:"path"`
	CreatedAt   time.Time `json:"created_at"`
}

// Index is the aggregate listing document a store maintains alongside its
// profiles. It is fully regenerated after every create and delete.
type Index struct {
	Version  string    `json:"version"`
	Profiles []Summary `json:"profiles"`
}

// Store is the durable repository of enrolled voice profiles.
//
// Implementations are not required to serialize concurrent mutations against
// the same profile id; callers that may race must coordinate externally.
// Read operations tolerate a concurrently mutating store by skipping
// profiles that fail to load rather than failing the whole read.
type Store interface {
	// Create persists p as a new profile. The write is create-if-absent:
	// it returns [ErrExists] without touching anything when a profile with
	// p.ProfileID is already enrolled. On a partial write the implementation
	// removes what it wrote before returning the error, so the store always
	// holds zero or one complete profile per id.
	Create(ctx context.Context, p Profile) error

	// Exists reports whether a profile with the given id is enrolled. It is
	// advisory: Create remains the authoritative duplicate gate, Exists only
	// lets callers fail fast before expensive work.
	Exists(ctx context.Context, id string) (bool, error)

	// LoadAll returns every fully loadable profile keyed by profile id.
	// Profiles that exist but fail to load are skipped with a logged warning;
	// corruption in one profile must not block resolution against the others.
	LoadAll(ctx context.Context) (map[string]Profile, error)

	// List returns the metadata of every enrolled profile whose metadata
	// loads successfully, without reading embedding vectors. Unreadable
	// profiles are skipped.
	List(ctx context.Context) ([]Metadata, error)

	// Delete removes the profile with the given id and everything persisted
	// for it, then rebuilds the index. Returns [ErrNotFound] if absent.
	Delete(ctx context.Context, id string) error

	// Resolve maps a human-provided name to an enrolled profile id. It first
	// tries the derived id ([ID]) and falls back to a case-insensitive scan
	// over stored names and display names. Returns [ErrNotFound] when nothing
	// matches; the error may carry a closest-name suggestion.
	Resolve(ctx context.Context, name string) (string, error)

	// RebuildIndex recomputes the index from the stored profiles.
	RebuildIndex(ctx context.Context) error
}

// PathStore is implemented by stores that persist each profile at a
// filesystem location. Callers assert it to report profile paths in
// responses; SQL-backed stores do not implement it.
type PathStore interface {
	// ProfilePath returns the location that holds (or would hold) the
	// profile with the given id.
	ProfilePath(id string) string
}

// ID derives the stable profile identifier for a display name: lowercased,
// spaces replaced by underscores, every character outside [a-z0-9_] stripped.
// The derivation is deterministic, so all names normalizing to the same slug
// share one id.
func ID(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, " ", "_")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ClosestName returns the candidate most similar to name by Jaro-Winkler
// distance, together with its score in [0, 1]. Used to attach a "did you
// mean" suggestion to not-found errors. Returns ok=false when candidates is
// empty or no candidate scores above the suggestion floor.
func ClosestName(name string, candidates []string) (best string, score float64, ok bool) {
	const floor = 0.75

	lower := strings.ToLower(name)
	for _, c := range candidates {
		s := matchr.JaroWinkler(lower, strings.ToLower(c), false)
		if s > score {
			best, score = c, s
		}
	}
	if score < floor {
		return "", 0, false
	}
	return best, score, true
}
