// Package pgstore provides a PostgreSQL-backed implementation of
// [profile.Store] using pgvector for embedding storage.
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it automatically via CREATE EXTENSION IF NOT EXISTS. All profiles
// live in a single voice_profiles table; the SQL table doubles as the listing
// index, so RebuildIndex is a no-op.
//
// Usage:
//
//	store, err := pgstore.New(ctx, dsn, 512)
//	if err != nil { … }
//	defer store.Close()
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/voiceprint/pkg/profile"
)

// Compile-time interface check.
var _ profile.Store = (*Store)(nil)

const ddlProfiles = `
CREATE TABLE IF NOT EXISTS voice_profiles (
    profile_id          TEXT         PRIMARY KEY,
    name                TEXT         NOT NULL,
    display_name        TEXT         NOT NULL,
    embedding           vector(%d)   NOT NULL,
    created_at          TIMESTAMPTZ  NOT NULL DEFAULT now(),
    sample_duration_s   DOUBLE PRECISION,
    embedding_version   TEXT         NOT NULL DEFAULT '',
    source_file         TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_voice_profiles_display_name
    ON voice_profiles (lower(display_name));
`

// Store is a PostgreSQL-backed profile store sharing one [pgxpool.Pool].
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store, establishes a connection pool to the database at dsn,
// registers pgvector types on every connection, and runs [Migrate].
//
// embeddingDimensions must match the output dimension of the embedding
// provider used for enrollment. Changing it after the first migration
// requires a manual schema change.
func New(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate ensures the pgvector extension and the voice_profiles table exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		return fmt.Errorf("pgstore: embedding dimensions must be positive, got %d", embeddingDimensions)
	}
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("pgstore: create extension: %w", err)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(ddlProfiles, embeddingDimensions)); err != nil {
		return fmt.Errorf("pgstore: create table: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Create implements [profile.Store]. The insert is conditional on the key
// being absent, so the row count distinguishes success from an existing
// profile without a separate existence check.
func (s *Store) Create(ctx context.Context, p profile.Profile) error {
	if p.ProfileID == "" {
		return fmt.Errorf("pgstore: profile id must not be empty")
	}

	const q = `
		INSERT INTO voice_profiles
		    (profile_id, name, display_name, embedding, created_at,
		     sample_duration_s, embedding_version, source_file)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (profile_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, q,
		p.ProfileID,
		p.Name,
		p.DisplayName,
		pgvector.NewVector(p.Embedding),
		p.CreatedAt,
		p.SampleDurationSeconds,
		p.EmbeddingVersion,
		p.SourceFile,
	)
	if err != nil {
		return fmt.Errorf("pgstore: create %q: %w", p.ProfileID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pgstore: create %q: %w", p.ProfileID, profile.ErrExists)
	}
	return nil
}

// Exists implements [profile.Store].
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var found bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM voice_profiles WHERE profile_id = $1)`, id).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("pgstore: exists %q: %w", id, err)
	}
	return found, nil
}

// LoadAll implements [profile.Store].
func (s *Store) LoadAll(ctx context.Context) (map[string]profile.Profile, error) {
	const q = `
		SELECT profile_id, name, display_name, embedding, created_at,
		       sample_duration_s, embedding_version, source_file
		FROM   voice_profiles`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("pgstore: load profiles: %w", err)
	}
	defer rows.Close()

	profiles := make(map[string]profile.Profile)
	for rows.Next() {
		var (
			p   profile.Profile
			vec pgvector.Vector
		)
		if err := rows.Scan(&p.ProfileID, &p.Name, &p.DisplayName, &vec,
			&p.CreatedAt, &p.SampleDurationSeconds, &p.EmbeddingVersion, &p.SourceFile); err != nil {
			return nil, fmt.Errorf("pgstore: scan profile: %w", err)
		}
		p.Embedding = vec.Slice()
		profiles[p.ProfileID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: load profiles: %w", err)
	}
	return profiles, nil
}

// List implements [profile.Store].
func (s *Store) List(ctx context.Context) ([]profile.Metadata, error) {
	const q = `
		SELECT profile_id, name, display_name, created_at,
		       sample_duration_s, embedding_version, source_file
		FROM   voice_profiles
		ORDER  BY profile_id`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list profiles: %w", err)
	}
	defer rows.Close()

	var metas []profile.Metadata
	for rows.Next() {
		var m profile.Metadata
		if err := rows.Scan(&m.ProfileID, &m.Name, &m.DisplayName, &m.CreatedAt,
			&m.SampleDurationSeconds, &m.EmbeddingVersion, &m.SourceFile); err != nil {
			return nil, fmt.Errorf("pgstore: scan metadata: %w", err)
		}
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: list profiles: %w", err)
	}
	return metas, nil
}

// Delete implements [profile.Store].
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM voice_profiles WHERE profile_id = $1`, id)
	if err != nil {
		return fmt.Errorf("pgstore: delete %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pgstore: delete %q: %w", id, profile.ErrNotFound)
	}
	return nil
}

// Resolve implements [profile.Store].
func (s *Store) Resolve(ctx context.Context, name string) (string, error) {
	id := profile.ID(name)

	var found string
	err := s.pool.QueryRow(ctx, `
		SELECT profile_id FROM voice_profiles
		WHERE  profile_id = $1 OR lower(name) = $2 OR lower(display_name) = $2
		LIMIT  1`, id, strings.ToLower(name)).Scan(&found)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("pgstore: resolve %q: %w", name, err)
	}

	metas, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(metas))
	for _, m := range metas {
		names = append(names, m.DisplayName)
	}
	if closest, _, ok := profile.ClosestName(name, names); ok {
		return "", fmt.Errorf("pgstore: resolve %q (closest enrolled name: %q): %w", name, closest, profile.ErrNotFound)
	}
	return "", fmt.Errorf("pgstore: resolve %q: %w", name, profile.ErrNotFound)
}

// RebuildIndex implements [profile.Store]. The table is its own index, so
// there is nothing to rebuild.
func (s *Store) RebuildIndex(ctx context.Context) error { return nil }
