package pyannote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voiceprint/pkg/provider/voiceembed/pyannote"
)

type embedRequest struct {
	AudioPath string   `json:"audio_path"`
	Start     *float64 `json:"start"`
	End       *float64 `json:"end"`
}

// newEmbedServer returns an httptest server answering POST /v1/embed with the
// given vector and recording the last decoded request, plus the Authorization
// header it saw.
func newEmbedServer(t *testing.T, embedding []float32) (*httptest.Server, *embedRequest, *string) {
	t.Helper()
	var last embedRequest
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/embed" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&last); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"embedding": embedding, "model": "pyannote/embedding@3.1"})
	}))
	t.Cleanup(srv.Close)
	return srv, &last, &auth
}

// TestNew_RequiresToken verifies that construction fails without a
// HuggingFace token.
func TestNew_RequiresToken(t *testing.T) {
	if _, err := pyannote.New("http://localhost:9570", ""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

// TestEmbed_WholeFile verifies the request shape and bearer authentication
// for whole-file extraction.
func TestEmbed_WholeFile(t *testing.T) {
	srv, last, auth := newEmbedServer(t, []float32{0.1, 0.2, 0.3})

	p, err := pyannote.New(srv.URL, "hf_secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vec, err := p.Embed(context.Background(), "/tmp/call.wav")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("embedding length: got %d, want 3", len(vec))
	}
	if *auth != "Bearer hf_secret" {
		t.Errorf("authorization header: got %q", *auth)
	}
	if last.AudioPath != "/tmp/call.wav" {
		t.Errorf("audio_path: got %q", last.AudioPath)
	}
	if last.Start != nil || last.End != nil {
		t.Errorf("whole-file request should omit the window, got start=%v end=%v", last.Start, last.End)
	}
}

// TestEmbedRange_SendsWindow verifies that the time window is forwarded.
func TestEmbedRange_SendsWindow(t *testing.T) {
	srv, last, _ := newEmbedServer(t, []float32{1})

	p, err := pyannote.New(srv.URL, "hf_secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.EmbedRange(context.Background(), "call.wav", 12.5, 17); err != nil {
		t.Fatalf("EmbedRange: %v", err)
	}
	if last.Start == nil || *last.Start != 12.5 {
		t.Errorf("start: got %v, want 12.5", last.Start)
	}
	if last.End == nil || *last.End != 17 {
		t.Errorf("end: got %v, want 17", last.End)
	}
}

// TestEmbed_DimensionAutoDetection verifies that the first successful vector
// fixes the reported dimension.
func TestEmbed_DimensionAutoDetection(t *testing.T) {
	srv, _, _ := newEmbedServer(t, []float32{1, 2, 3, 4})

	p, err := pyannote.New(srv.URL, "hf_secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := p.Dimensions(); got != 0 {
		t.Errorf("dimensions before first call: got %d, want 0", got)
	}
	if _, err := p.Embed(context.Background(), "call.wav"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got := p.Dimensions(); got != 4 {
		t.Errorf("dimensions after first call: got %d, want 4", got)
	}
}

// TestEmbed_PresetDimensions verifies that WithDimensions bypasses detection.
func TestEmbed_PresetDimensions(t *testing.T) {
	p, err := pyannote.New("http://localhost:9570", "hf_secret", pyannote.WithDimensions(512))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := p.Dimensions(); got != 512 {
		t.Errorf("dimensions: got %d, want 512", got)
	}
}

// TestEmbed_ServerError verifies that a structured server error surfaces its
// message.
func TestEmbed_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{"error": "audio file not readable"})
	}))
	t.Cleanup(srv.Close)

	p, err := pyannote.New(srv.URL, "hf_secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Embed(context.Background(), "call.wav")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "audio file not readable") {
		t.Errorf("error should carry the server message, got %v", err)
	}
}

// TestEmbed_EmptyEmbedding verifies that an empty vector is rejected.
func TestEmbed_EmptyEmbedding(t *testing.T) {
	srv, _, _ := newEmbedServer(t, []float32{})

	p, err := pyannote.New(srv.URL, "hf_secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Embed(context.Background(), "call.wav"); err == nil {
		t.Fatal("expected error for empty embedding")
	}
}

// TestEmbed_ContextCancellation verifies that a cancelled context aborts the
// request.
func TestEmbed_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	t.Cleanup(srv.Close)

	p, err := pyannote.New(srv.URL, "hf_secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Embed(ctx, "call.wav"); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

// TestHealthy probes both outcomes of the health endpoint.
func TestHealthy(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	p, err := pyannote.New(srv.URL, "hf_secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := p.Healthy(context.Background()); err != nil {
		t.Errorf("Healthy on 200: %v", err)
	}

	status = http.StatusServiceUnavailable
	if err := p.Healthy(context.Background()); err == nil {
		t.Error("Healthy on 503 should fail")
	}
}
