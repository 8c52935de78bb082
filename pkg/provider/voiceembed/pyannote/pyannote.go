// Package pyannote provides a voiceembed provider backed by a pyannote
// embedding server.
//
// The server is a thin HTTP wrapper around the pyannote/embedding model that
// exposes a single POST /v1/embed endpoint. Requests name a local audio file
// and an optional time window; responses carry the extracted vector. The
// HuggingFace token that gates the model weights is forwarded as a bearer
// token and is required at construction time.
//
// Usage:
//
//	p, err := pyannote.New("", token) // connects to http://localhost:9570
//	if err != nil {
//	    log.Fatal(err)
//	}
//	vec, err := p.EmbedRange(ctx, "/tmp/call.wav", 12.5, 17.0)
package pyannote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/voiceprint/pkg/provider/voiceembed"
)

// DefaultBaseURL is the default base URL for a locally running pyannote
// embedding server.
const DefaultBaseURL = "http://localhost:9570"

// DefaultModelID identifies the embedding model the default server build
// serves. It is recorded on enrolled profiles as the embedding version.
const DefaultModelID = "pyannote/embedding@3.1"

// Ensure Provider implements the voiceembed.Provider interface at compile time.
var _ voiceembed.Provider = (*Provider)(nil)

// Provider implements voiceembed.Provider against a pyannote embedding server.
//
// Dimension resolution happens in this order:
//  1. Value supplied via WithDimensions (highest priority).
//  2. Auto-detection: the length of the first vector returned by the server
//     is cached for the lifetime of the Provider.
//
// Provider is safe for concurrent use.
type Provider struct {
	baseURL    string
	token      string
	modelID    string
	httpClient *http.Client

	mu         sync.Mutex
	dimensions int
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithTimeout sets a per-request HTTP timeout. Embedding extraction over long
// audio can be slow; the default is no timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.httpClient.Timeout = d
		}
	}
}

// WithDimensions pre-sets the embedding dimension, bypassing auto-detection.
func WithDimensions(dims int) Option {
	return func(p *Provider) {
		p.dimensions = dims
	}
}

// WithModelID overrides the model identifier reported by ModelID when the
// server is built around a different embedding checkpoint.
func WithModelID(id string) Option {
	return func(p *Provider) {
		p.modelID = id
	}
}

// New constructs a pyannote Provider.
//
// baseURL is the base URL of the embedding server; if empty, DefaultBaseURL
// is used. token is the HuggingFace access token and must not be empty —
// the model weights are gated and the server rejects unauthenticated
// requests.
func New(baseURL, token string, opts ...Option) (*Provider, error) {
	if token == "" {
		return nil, fmt.Errorf("pyannote: HuggingFace token required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		modelID:    DefaultModelID,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// embedRequest is the JSON body of POST /v1/embed. Start and End are omitted
// for whole-file extraction.
type embedRequest struct {
	AudioPath string   `json:"audio_path"`
	Start     *float64 `json:"start,omitempty"`
	End       *float64 `json:"end,omitempty"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
	Error     string    `json:"error"`
}

// Embed implements voiceembed.Provider over the entire audio file.
func (p *Provider) Embed(ctx context.Context, audioPath string) ([]float32, error) {
	return p.embed(ctx, embedRequest{AudioPath: audioPath})
}

// EmbedRange implements voiceembed.Provider for the window [start, end].
func (p *Provider) EmbedRange(ctx context.Context, audioPath string, start, end float64) ([]float32, error) {
	return p.embed(ctx, embedRequest{AudioPath: audioPath, Start: &start, End: &end})
}

func (p *Provider) embed(ctx context.Context, req embedRequest) ([]float32, error) {
	if req.AudioPath == "" {
		return nil, fmt.Errorf("pyannote: audio path must not be empty")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("pyannote: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("pyannote: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("pyannote: embed request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("pyannote: read response: %w", err)
	}

	var parsed embedResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("pyannote: server returned %s", resp.Status)
		}
		return nil, fmt.Errorf("pyannote: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != "" {
			return nil, fmt.Errorf("pyannote: server returned %s: %s", resp.Status, parsed.Error)
		}
		return nil, fmt.Errorf("pyannote: server returned %s", resp.Status)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("pyannote: server returned empty embedding")
	}

	p.mu.Lock()
	if p.dimensions == 0 {
		p.dimensions = len(parsed.Embedding)
	}
	p.mu.Unlock()

	return parsed.Embedding, nil
}

// Dimensions implements voiceembed.Provider. Returns 0 until the first
// successful extraction when no dimension was pre-set.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dimensions
}

// ModelID implements voiceembed.Provider.
func (p *Provider) ModelID() string { return p.modelID }

// Healthy probes the server's GET /v1/health endpoint. Used by the check
// action to verify the embedding backend is reachable before reporting the
// environment as ready.
func (p *Provider) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/health", nil)
	if err != nil {
		return fmt.Errorf("pyannote: build health request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pyannote: health check: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pyannote: health check returned %s", resp.Status)
	}
	return nil
}
