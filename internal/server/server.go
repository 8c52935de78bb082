// Package server dispatches protocol requests to the enrollment manager,
// speaker resolver, and profile store.
//
// A Server handles exactly one request per process invocation. Request-level
// failures are classified into the protocol error taxonomy and terminate the
// invocation with a failing exit status; per-probe failures inside
// identification are recovered locally by the resolver and never surface
// here.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/MrWong99/voiceprint/internal/config"
	"github.com/MrWong99/voiceprint/internal/enroll"
	"github.com/MrWong99/voiceprint/internal/observe"
	"github.com/MrWong99/voiceprint/internal/protocol"
	"github.com/MrWong99/voiceprint/internal/resolver"
	"github.com/MrWong99/voiceprint/pkg/audioinfo"
	"github.com/MrWong99/voiceprint/pkg/profile"
	"github.com/MrWong99/voiceprint/pkg/profile/dirstore"
	"github.com/MrWong99/voiceprint/pkg/profile/pgstore"
	"github.com/MrWong99/voiceprint/pkg/provider/voiceembed"
	"github.com/MrWong99/voiceprint/pkg/provider/voiceembed/pyannote"
)

// healthChecker is implemented by providers that can probe their backend
// without extracting an embedding.
type healthChecker interface {
	Healthy(ctx context.Context) error
}

// Option is a functional option for [New].
type Option func(*Server)

// WithMetrics attaches a metrics instance; nil disables metric recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithProber overrides the audio duration prober used during enrollment.
func WithProber(p audioinfo.Prober) Option {
	return func(s *Server) { s.prober = p }
}

// WithStore overrides store construction with a fixed store. For tests.
func WithStore(st profile.Store) Option {
	return func(s *Server) { s.store = st }
}

// Server executes one protocol request against the configured store and
// embedding provider.
type Server struct {
	cfg     *config.Config
	reg     *config.Registry
	metrics *observe.Metrics
	prober  audioinfo.Prober
	store   profile.Store
}

// New returns a Server for the given configuration and provider registry.
func New(cfg *config.Config, reg *config.Registry, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		reg:    reg,
		prober: audioinfo.WAVProber{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run decodes one request from r, handles it, and writes the response to w.
// The return value is the process exit status: 0 on success, 1 on any
// classified failure.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) int {
	req, perr := protocol.Decode(r)
	if perr != nil {
		return s.fail(w, perr)
	}
	return s.Execute(ctx, req, w)
}

// Execute handles one decoded request and writes the success or error
// payload to w. The return value is the process exit status.
func (s *Server) Execute(ctx context.Context, req protocol.Request, w io.Writer) int {
	resp, perr := s.Handle(ctx, req)
	if perr != nil {
		return s.fail(w, perr)
	}
	if err := protocol.WriteJSON(w, resp); err != nil {
		slog.Error("failed to write response", "err", err)
		return 1
	}
	return 0
}

func (s *Server) fail(w io.Writer, perr *protocol.Error) int {
	resp := protocol.ErrorResponse{
		Success:   false,
		Error:     perr.Error(),
		ErrorType: perr.Type,
	}
	if err := protocol.WriteJSON(w, resp); err != nil {
		slog.Error("failed to write error response", "err", err)
	}
	return 1
}

// Handle executes a single decoded request and returns the action-specific
// success payload or a classified error.
func (s *Server) Handle(ctx context.Context, req protocol.Request) (any, *protocol.Error) {
	switch req.Action {
	case protocol.ActionCheck:
		return s.handleCheck(ctx, req)
	case protocol.ActionEnroll:
		return s.handleEnroll(ctx, req)
	case protocol.ActionIdentify:
		return s.handleIdentify(ctx, req)
	case protocol.ActionList:
		return s.handleList(ctx, req)
	case protocol.ActionDelete:
		return s.handleDelete(ctx, req)
	default:
		return nil, protocol.NewError(protocol.ErrUnknownAction, "unknown action: %s", req.Action)
	}
}

// token resolves the embedding credential: request first, then config. The
// config value is pre-seeded from HUGGINGFACE_TOKEN by the CLI layer, so no
// ambient environment reads happen here.
func (s *Server) token(req protocol.Request) string {
	if req.HuggingFaceToken != "" {
		return req.HuggingFaceToken
	}
	return s.cfg.Provider.HuggingFaceToken
}

// openStore builds the profile store for this request. The dir backend
// honors a per-request profiles_dir override; the postgres backend is fully
// config-driven.
func (s *Server) openStore(ctx context.Context, req protocol.Request) (profile.Store, *protocol.Error) {
	if s.store != nil {
		return s.store, nil
	}

	switch s.cfg.Store.Backend {
	case config.BackendPostgres:
		st, err := pgstore.New(ctx, s.cfg.Store.DSN, s.cfg.Store.EmbeddingDimensions)
		if err != nil {
			return nil, protocol.WrapError(protocol.ErrUnexpected, err, "failed to open profile store")
		}
		return st, nil
	default:
		dir := req.ProfilesDir
		if dir == "" {
			dir = s.cfg.Store.ProfilesDir
		}
		if dir == "" {
			dir = protocol.DefaultProfilesDir()
		}
		var opts []dirstore.Option
		if s.metrics != nil {
			opts = append(opts, dirstore.WithSkipObserver(func(string) {
				s.metrics.RecordProfileSkipped(ctx)
			}))
		}
		st, err := dirstore.New(protocol.ExpandPath(dir), opts...)
		if err != nil {
			return nil, protocol.WrapError(protocol.ErrUnexpected, err, "failed to open profile store")
		}
		return st, nil
	}
}

// newProvider constructs the embedding provider for this request.
func (s *Server) newProvider(req protocol.Request) (voiceembed.Provider, error) {
	return s.reg.CreateEmbedding(s.cfg.Provider, s.token(req))
}

func (s *Server) handleCheck(ctx context.Context, req protocol.Request) (any, *protocol.Error) {
	tok := s.token(req)

	resp := protocol.CheckResponse{
		Success:     true,
		ServerURL:   s.cfg.Provider.BaseURL,
		Model:       s.cfg.Provider.Model,
		TokenStatus: "missing",
	}
	if resp.ServerURL == "" {
		resp.ServerURL = pyannote.DefaultBaseURL
	}
	if resp.Model == "" {
		resp.Model = pyannote.DefaultModelID
	}

	if tok == "" {
		// Without a credential the backend cannot be probed; report the
		// token as missing but the environment as otherwise usable.
		return resp, nil
	}
	resp.TokenStatus = "provided"

	provider, err := s.newProvider(req)
	if err != nil {
		return nil, protocol.WrapError(protocol.ErrMissingDependencies, err, "embedding provider unavailable")
	}
	if hc, ok := provider.(healthChecker); ok {
		if err := hc.Healthy(ctx); err != nil {
			return nil, protocol.WrapError(protocol.ErrMissingDependencies, err, "embedding backend unreachable")
		}
	}
	return resp, nil
}

func (s *Server) handleEnroll(ctx context.Context, req protocol.Request) (any, *protocol.Error) {
	st, perr := s.openStore(ctx, req)
	if perr != nil {
		return nil, perr
	}

	mgr := enroll.New(st,
		func() (voiceembed.Provider, error) { return s.newProvider(req) },
		enroll.WithProber(s.prober),
		enroll.WithMetrics(s.metrics),
	)

	res, err := mgr.Enroll(ctx, req.Name, protocol.ExpandPath(req.AudioPath))
	if err != nil {
		switch {
		case errors.Is(err, enroll.ErrNameRequired):
			return nil, protocol.NewError(protocol.ErrValidation, "name is required for enrollment")
		case errors.Is(err, enroll.ErrAudioRequired):
			return nil, protocol.NewError(protocol.ErrValidation, "audio path is required for enrollment")
		case errors.Is(err, fs.ErrNotExist):
			return nil, protocol.NewError(protocol.ErrFileNotFound, "audio file not found: %s", protocol.ExpandPath(req.AudioPath))
		case errors.Is(err, profile.ErrExists):
			return nil, protocol.NewError(protocol.ErrProfileExists, "profile %q already exists", req.Name)
		default:
			return nil, protocol.WrapError(protocol.ErrEnrollment, err, "enrollment failed")
		}
	}

	return protocol.EnrollResponse{
		Success:               true,
		ProfileID:             res.ProfileID,
		Name:                  res.Name,
		ProfilePath:           res.ProfilePath,
		SampleDurationSeconds: res.SampleDurationSeconds,
	}, nil
}

func (s *Server) handleIdentify(ctx context.Context, req protocol.Request) (any, *protocol.Error) {
	start := time.Now()

	if req.AudioPath == "" {
		return nil, protocol.NewError(protocol.ErrValidation, "audio path is required")
	}
	audioPath := protocol.ExpandPath(req.AudioPath)
	if _, err := os.Stat(audioPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, protocol.NewError(protocol.ErrFileNotFound, "audio file not found: %s", audioPath)
		}
		return nil, protocol.WrapError(protocol.ErrUnexpected, err, "failed to stat audio file")
	}

	st, perr := s.openStore(ctx, req)
	if perr != nil {
		return nil, perr
	}

	profiles, err := st.LoadAll(ctx)
	if err != nil {
		return nil, protocol.WrapError(protocol.ErrUnexpected, err, "failed to load profiles")
	}

	if len(profiles) == 0 {
		// Model initialization is expensive; skip it entirely when there is
		// nothing to compare against.
		return protocol.IdentifyResponse{
			Success:          true,
			SpeakerMapping:   map[string]*string{},
			ConfidenceScores: map[string]float64{},
			Message:          "No speaker profiles enrolled",
		}, nil
	}

	provider, err := s.newProvider(req)
	if err != nil {
		return nil, protocol.WrapError(protocol.ErrModel, err, "failed to load model")
	}

	opts := []resolver.Option{resolver.WithMetrics(s.metrics)}
	switch {
	case req.Threshold != nil:
		opts = append(opts, resolver.WithThreshold(*req.Threshold))
	case s.cfg.Resolver.Threshold > 0:
		opts = append(opts, resolver.WithThreshold(s.cfg.Resolver.Threshold))
	}
	if s.cfg.Resolver.ProbeLimit > 0 {
		opts = append(opts, resolver.WithProbeLimit(s.cfg.Resolver.ProbeLimit))
	}
	if s.cfg.Resolver.MinProbeDurationSeconds > 0 {
		opts = append(opts, resolver.WithMinProbeDuration(s.cfg.Resolver.MinProbeDurationSeconds))
	}

	res, err := resolver.New(provider, opts...).Identify(ctx, audioPath, req.Segments, profiles)
	if err != nil {
		return nil, protocol.WrapError(protocol.ErrUnexpected, err, "identification failed")
	}

	if s.metrics != nil {
		s.metrics.IdentifyDuration.Record(ctx, time.Since(start).Seconds())
	}

	return protocol.IdentifyResponse{
		Success:          true,
		SpeakerMapping:   res.SpeakerMapping,
		ConfidenceScores: res.ConfidenceScores,
	}, nil
}

func (s *Server) handleList(ctx context.Context, req protocol.Request) (any, *protocol.Error) {
	st, perr := s.openStore(ctx, req)
	if perr != nil {
		return nil, perr
	}

	metas, err := st.List(ctx)
	if err != nil {
		return nil, protocol.WrapError(protocol.ErrUnexpected, err, "failed to list profiles")
	}

	entries := make([]protocol.ProfileEntry, 0, len(metas))
	for _, m := range metas {
		entries = append(entries, protocol.ProfileEntry{
			ID:                    m.ProfileID,
			Name:                  m.Name,
			DisplayName:           m.DisplayName,
			CreatedAt:             m.CreatedAt.UTC().Format(time.RFC3339),
			SampleDurationSeconds: m.SampleDurationSeconds,
		})
	}

	return protocol.ListResponse{Success: true, Profiles: entries, Count: len(entries)}, nil
}

func (s *Server) handleDelete(ctx context.Context, req protocol.Request) (any, *protocol.Error) {
	if req.Name == "" {
		return nil, protocol.NewError(protocol.ErrValidation, "name is required for deletion")
	}

	st, perr := s.openStore(ctx, req)
	if perr != nil {
		return nil, perr
	}

	id, err := st.Resolve(ctx, req.Name)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return nil, protocol.WrapError(protocol.ErrProfileNotFound, err, fmt.Sprintf("profile %q not found", req.Name))
		}
		return nil, protocol.WrapError(protocol.ErrUnexpected, err, "failed to resolve profile")
	}

	var path string
	if pathed, ok := st.(profile.PathStore); ok {
		path = pathed.ProfilePath(id)
	}

	if err := st.Delete(ctx, id); err != nil {
		if s.metrics != nil {
			s.metrics.RecordProfileMutation(ctx, "delete", "error")
		}
		if errors.Is(err, profile.ErrNotFound) {
			return nil, protocol.NewError(protocol.ErrProfileNotFound, "profile %q not found", req.Name)
		}
		return nil, protocol.WrapError(protocol.ErrDelete, err, "failed to delete profile")
	}
	if s.metrics != nil {
		s.metrics.RecordProfileMutation(ctx, "delete", "ok")
	}

	return protocol.DeleteResponse{Success: true, Deleted: req.Name, ProfilePath: path}, nil
}
