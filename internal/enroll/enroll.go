// Package enroll implements voice profile enrollment: validating the
// request, extracting one embedding over the entire enrollment sample, and
// persisting the profile atomically.
//
// Enrollment is all-or-nothing. The profile is written through the store's
// create-if-absent primitive as the final step, and any failure after the
// write starts triggers compensating cleanup inside the store, so a failed
// enrollment leaves no trace.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/MrWong99/voiceprint/internal/observe"
	"github.com/MrWong99/voiceprint/pkg/audioinfo"
	"github.com/MrWong99/voiceprint/pkg/profile"
	"github.com/MrWong99/voiceprint/pkg/provider/voiceembed"
)

// ErrNameRequired is returned when the enrollment name is empty.
var ErrNameRequired = errors.New("enroll: name is required")

// ErrAudioRequired is returned when the enrollment audio path is empty.
var ErrAudioRequired = errors.New("enroll: audio path is required")

// ProviderFactory constructs the embedding provider on demand. Construction
// is deferred until request validation has passed so that a missing
// credential is only reported for requests that would otherwise proceed.
type ProviderFactory func() (voiceembed.Provider, error)

// Result describes a completed enrollment.
type Result struct {
	ProfileID string
	Name      string

	// ProfilePath is the storage location of the new profile, when the
	// backing store implements [profile.PathStore] (the filesystem store
	// does; SQL stores leave it empty).
	ProfilePath string

	// SampleDurationSeconds is the probed duration of the enrollment audio,
	// or nil when probing failed or no prober is configured.
	SampleDurationSeconds *float64
}

// Option is a functional option for [New].
type Option func(*Manager)

// WithProber attaches an audio duration prober. Probing is best-effort: a
// probe failure is logged and the profile is enrolled with unknown duration.
func WithProber(p audioinfo.Prober) Option {
	return func(m *Manager) { m.prober = p }
}

// WithMetrics attaches a metrics instance; nil disables metric recording.
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Manager) { m.metrics = met }
}

// WithClock overrides the time source used for CreatedAt stamps. For tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager validates and executes enrollment requests against a profile store.
type Manager struct {
	store   profile.Store
	newProv ProviderFactory
	prober  audioinfo.Prober
	metrics *observe.Metrics
	now     func() time.Time
}

// New returns a Manager persisting to store and building its embedding
// provider via factory.
func New(store profile.Store, factory ProviderFactory, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		newProv: factory,
		now:     time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Enroll registers a new named identity from the audio sample at audioPath.
//
// The sequence is: validate inputs, verify the audio file exists, fail fast
// on an already-enrolled id, construct the provider, embed the whole file,
// probe the duration (best-effort), then persist through the store's
// create-if-absent primitive. Errors wrap [ErrNameRequired],
// [ErrAudioRequired], [fs.ErrNotExist], [profile.ErrExists], or a provider
// failure; callers can classify with errors.Is.
func (m *Manager) Enroll(ctx context.Context, name, audioPath string) (Result, error) {
	start := m.now()

	if name == "" {
		return Result{}, ErrNameRequired
	}
	if audioPath == "" {
		return Result{}, ErrAudioRequired
	}
	if _, err := os.Stat(audioPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{}, fmt.Errorf("enroll: audio file %q: %w", audioPath, fs.ErrNotExist)
		}
		return Result{}, fmt.Errorf("enroll: stat audio file %q: %w", audioPath, err)
	}

	id := profile.ID(name)
	if exists, err := m.store.Exists(ctx, id); err != nil {
		return Result{}, fmt.Errorf("enroll: check existing profile: %w", err)
	} else if exists {
		return Result{}, fmt.Errorf("enroll: profile %q: %w", name, profile.ErrExists)
	}

	provider, err := m.newProv()
	if err != nil {
		return Result{}, fmt.Errorf("enroll: embedding provider: %w", err)
	}

	embedding, err := provider.Embed(ctx, audioPath)
	if err != nil {
		m.recordMutation(ctx, "create", "error")
		return Result{}, fmt.Errorf("enroll: extract embedding: %w", err)
	}

	duration := m.probeDuration(audioPath)

	p := profile.Profile{
		Metadata: profile.Metadata{
			Name:                  name,
			DisplayName:           name,
			ProfileID:             id,
			CreatedAt:             m.now().UTC().Truncate(time.Second),
			SampleDurationSeconds: duration,
			EmbeddingVersion:      provider.ModelID(),
			SourceFile:            audioPath,
		},
		Embedding: embedding,
	}

	if err := m.store.Create(ctx, p); err != nil {
		m.recordMutation(ctx, "create", "error")
		if errors.Is(err, profile.ErrExists) {
			return Result{}, fmt.Errorf("enroll: profile %q: %w", name, profile.ErrExists)
		}
		return Result{}, fmt.Errorf("enroll: persist profile: %w", err)
	}

	m.recordMutation(ctx, "create", "ok")
	if m.metrics != nil {
		m.metrics.EnrollDuration.Record(ctx, m.now().Sub(start).Seconds())
	}

	res := Result{
		ProfileID:             id,
		Name:                  name,
		SampleDurationSeconds: duration,
	}
	if pathed, ok := m.store.(profile.PathStore); ok {
		res.ProfilePath = pathed.ProfilePath(id)
	}
	return res, nil
}

// probeDuration asks the configured prober for the sample duration. Absence
// of a prober or a probe failure yields unknown duration, never an error.
func (m *Manager) probeDuration(audioPath string) *float64 {
	if m.prober == nil {
		return nil
	}
	seconds, err := m.prober.Duration(audioPath)
	if err != nil {
		slog.Warn("could not determine enrollment sample duration", "audio_path", audioPath, "err", err)
		return nil
	}
	return &seconds
}

func (m *Manager) recordMutation(ctx context.Context, op, status string) {
	if m.metrics != nil {
		m.metrics.RecordProfileMutation(ctx, op, status)
	}
}
