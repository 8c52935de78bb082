// Package resolver implements the speaker resolution algorithm: matching
// diarized transcript segments against enrolled voice profiles by embedding
// similarity.
//
// For each local speaker label the resolver selects the longest segments as
// probes, extracts an embedding per probe over its exact time range, scores
// it against every enrolled profile by cosine similarity, and keeps the
// single best (profile, score) pair seen across all probes. A speaker
// resolves to the best profile's display name when that score reaches the
// threshold, and stays unresolved otherwise.
//
// Failures extracting or comparing a single probe are logged and skipped;
// they never abort the whole identification request.
package resolver

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/MrWong99/voiceprint/internal/observe"
	"github.com/MrWong99/voiceprint/pkg/profile"
	"github.com/MrWong99/voiceprint/pkg/provider/voiceembed"
	"github.com/MrWong99/voiceprint/pkg/types"
)

const (
	// DefaultThreshold is the minimum similarity score required to accept a
	// profile match.
	DefaultThreshold = 0.70

	// DefaultProbeLimit bounds how many segments are probed per speaker.
	DefaultProbeLimit = 3

	// DefaultMinProbeDuration is the minimum probe length in seconds; shorter
	// segments are too brief for a reliable embedding.
	DefaultMinProbeDuration = 1.0
)

// Option is a functional option for [New].
type Option func(*Resolver)

// WithThreshold overrides the acceptance threshold. A best score exactly
// equal to the threshold resolves.
func WithThreshold(t float64) Option {
	return func(r *Resolver) { r.threshold = t }
}

// WithProbeLimit overrides how many of a speaker's longest segments are
// tried as probes.
func WithProbeLimit(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.probeLimit = n
		}
	}
}

// WithMinProbeDuration overrides the minimum probe duration in seconds.
func WithMinProbeDuration(seconds float64) Option {
	return func(r *Resolver) { r.minProbeDuration = seconds }
}

// WithMetrics attaches a metrics instance; nil disables metric recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// Resolver matches diarized speakers against enrolled profiles using a
// voiceembed provider. The provider is reused for every probe within a
// request, so a Resolver performs at most one model initialization per
// invocation. Probes and comparisons run sequentially.
type Resolver struct {
	provider voiceembed.Provider
	metrics  *observe.Metrics

	threshold        float64
	probeLimit       int
	minProbeDuration float64
}

// New returns a Resolver using the given embedding provider and the default
// threshold, probe limit, and minimum probe duration unless overridden.
func New(provider voiceembed.Provider, opts ...Option) *Resolver {
	r := &Resolver{
		provider:         provider,
		threshold:        DefaultThreshold,
		probeLimit:       DefaultProbeLimit,
		minProbeDuration: DefaultMinProbeDuration,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Identify resolves every speaker label found in segments against profiles.
//
// The returned Resolution has exactly one mapping entry and one confidence
// entry per speaker label: the resolved display name and the best score
// rounded to three decimals, or a nil name with the best (sub-threshold)
// score — 0 when no probe produced any score at all.
//
// With no enrolled profiles the result is empty and the embedding provider
// is never invoked.
func (r *Resolver) Identify(ctx context.Context, audioPath string, segments []types.Segment, profiles map[string]profile.Profile) (types.Resolution, error) {
	res := types.Resolution{
		SpeakerMapping:   make(map[string]*string),
		ConfidenceScores: make(map[string]float64),
	}
	if len(profiles) == 0 {
		return res, nil
	}

	r.warnVersionSkew(profiles)

	for speakerID, group := range groupBySpeaker(segments) {
		name, score := r.resolveSpeaker(ctx, audioPath, speakerID, group, profiles)

		if name != "" && score >= r.threshold {
			display := name
			res.SpeakerMapping[speakerID] = &display
			res.ConfidenceScores[speakerID] = round3(score)
			r.recordResolution(ctx, "resolved")
			continue
		}

		res.SpeakerMapping[speakerID] = nil
		if score > 0 {
			res.ConfidenceScores[speakerID] = round3(score)
		} else {
			res.ConfidenceScores[speakerID] = 0
		}
		r.recordResolution(ctx, "unresolved")
	}
	return res, nil
}

// resolveSpeaker evaluates up to probeLimit probes for one speaker group and
// returns the best-scoring profile display name with its score. The maximum
// is tracked across all probes, not per probe.
func (r *Resolver) resolveSpeaker(ctx context.Context, audioPath, speakerID string, group []types.Segment, profiles map[string]profile.Profile) (bestName string, bestScore float64) {
	probes := selectProbes(group, r.probeLimit)

	for _, seg := range probes {
		if seg.Duration() < r.minProbeDuration {
			continue
		}

		start := time.Now()
		embedding, err := r.provider.EmbedRange(ctx, audioPath, seg.Start, seg.End)
		if err != nil {
			r.recordEmbed(ctx, time.Since(start), "error")
			slog.Warn("failed to extract probe embedding",
				"speaker_id", speakerID, "start", seg.Start, "end", seg.End, "err", err)
			continue
		}
		r.recordEmbed(ctx, time.Since(start), "ok")

		for _, p := range profiles {
			score, err := Cosine(embedding, p.Embedding)
			if err != nil {
				slog.Warn("failed to compare probe against profile",
					"speaker_id", speakerID, "profile_id", p.ProfileID, "err", err)
				continue
			}
			if score > bestScore {
				bestScore = score
				bestName = p.DisplayName
			}
		}
	}
	return bestName, bestScore
}

// groupBySpeaker partitions segments by their normalized speaker label.
// Segments with no label at all land under the empty label, which still
// receives a (necessarily unresolved or resolved like any other) entry.
func groupBySpeaker(segments []types.Segment) map[string][]types.Segment {
	groups := make(map[string][]types.Segment)
	for _, seg := range segments {
		label := seg.Label()
		groups[label] = append(groups[label], seg)
	}
	return groups
}

// selectProbes returns up to limit segments ordered by descending duration.
// Longer segments carry more acoustic information, so they are tried first.
func selectProbes(group []types.Segment, limit int) []types.Segment {
	sorted := make([]types.Segment, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Duration() > sorted[j].Duration()
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// warnVersionSkew logs once per request when any profile's embedding version
// differs from the active provider model. Scores across versions are still
// computed (matching historical behavior) but are not guaranteed comparable.
func (r *Resolver) warnVersionSkew(profiles map[string]profile.Profile) {
	model := r.provider.ModelID()
	if model == "" {
		return
	}
	for _, p := range profiles {
		if p.EmbeddingVersion != "" && p.EmbeddingVersion != model {
			slog.Warn("profile embedding version differs from active model; scores may not be comparable",
				"profile_id", p.ProfileID, "profile_version", p.EmbeddingVersion, "model", model)
			return
		}
	}
}

func (r *Resolver) recordEmbed(ctx context.Context, d time.Duration, status string) {
	if r.metrics != nil {
		r.metrics.RecordEmbed(ctx, d.Seconds(), status)
	}
}

func (r *Resolver) recordResolution(ctx context.Context, status string) {
	if r.metrics != nil {
		r.metrics.RecordResolution(ctx, status)
	}
}
