// Package mock provides a test double for the audioinfo.Prober interface.
package mock

import (
	"sync"

	"github.com/MrWong99/voiceprint/pkg/audioinfo"
)

// Ensure Prober implements audioinfo.Prober at compile time.
var _ audioinfo.Prober = (*Prober)(nil)

// Prober is a mock implementation of audioinfo.Prober.
type Prober struct {
	mu sync.Mutex

	// DurationResult is returned by Duration.
	DurationResult float64

	// DurationErr, if non-nil, is returned as the error from Duration.
	DurationErr error

	// Paths records every path passed to Duration in order.
	Paths []string
}

// Duration records the call and returns DurationResult, DurationErr.
func (p *Prober) Duration(path string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Paths = append(p.Paths, path)
	return p.DurationResult, p.DurationErr
}
