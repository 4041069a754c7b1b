// Package capture produces screen frames for detection and navigation.
// A shared Service holds the whole-frame cache; each worker goroutine gets
// its own Handle with its own backend chain, because capture backends are
// not assumed to be share-safe.
package capture

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/menuvox/menuvox/internal/vision"
)

// Defaults for the frame cache and backend demotion.
const (
	DefaultCacheTTL    = 50 * time.Millisecond
	DefaultDemoteAfter = 3
)

// Backend captures the whole screen once.
type Backend interface {
	Name() string
	Capture() (*image.RGBA, error)
}

// Factory builds one backend instance. Handles call factories at
// construction so every worker owns its backends.
type Factory func() Backend

// Service is the shared capture state: backend factories, the short-lived
// whole-frame cache, and the blank-frame dimensions used on total failure.
type Service struct {
	logger      *slog.Logger
	factories   []Factory
	cacheTTL    time.Duration
	demoteAfter int
	blankW      int
	blankH      int

	mu     sync.Mutex
	cached *vision.Frame
}

// Option configures a Service.
type Option func(*Service)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCacheTTL sets how long a captured frame keeps serving callers.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cacheTTL = ttl }
}

// WithDemoteAfter sets how many consecutive failures demote a backend.
func WithDemoteAfter(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.demoteAfter = n
		}
	}
}

// WithFactories replaces the platform backend chain. First factory is the
// preferred backend; later ones are fallbacks.
func WithFactories(factories ...Factory) Option {
	return func(s *Service) { s.factories = factories }
}

// NewService builds the capture service with the platform default chain:
// display capture first, then an external screenshot tool.
func NewService(opts ...Option) *Service {
	s := &Service{
		logger:      slog.Default().With("component", "capture"),
		cacheTTL:    DefaultCacheTTL,
		demoteAfter: DefaultDemoteAfter,
		blankW:      1920,
		blankH:      1080,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.factories == nil {
		s.factories = []Factory{newDisplayBackend, newExecBackend}
	}
	if w, h, ok := primaryDisplaySize(); ok {
		s.blankW, s.blankH = w, h
	}
	return s
}

// NewHandle builds a per-worker capture handle. A handle must only be used
// by the goroutine that owns it.
func (s *Service) NewHandle() *Handle {
	backends := make([]Backend, 0, len(s.factories))
	for _, f := range s.factories {
		if b := f(); b != nil {
			backends = append(backends, b)
		}
	}
	return &Handle{svc: s, backends: backends}
}

// BlankSize returns the dimensions substituted frames are created with.
func (s *Service) BlankSize() (w, h int) { return s.blankW, s.blankH }

func (s *Service) cachedFrame() *vision.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil && time.Since(s.cached.Taken) <= s.cacheTTL {
		return s.cached
	}
	return nil
}

func (s *Service) storeFrame(f *vision.Frame) {
	s.mu.Lock()
	s.cached = f
	s.mu.Unlock()
}

// Handle is one worker's capture entry point.
type Handle struct {
	svc      *Service
	backends []Backend
	active   int
	failures int
}

// Frame returns the current screen frame, serving the shared cache when it
// is fresh. It errors only when every backend failed, which detection treats
// as "keep the previous menu" rather than "no menu".
func (h *Handle) Frame() (*vision.Frame, error) {
	if f := h.svc.cachedFrame(); f != nil {
		return f, nil
	}
	if len(h.backends) == 0 {
		return nil, fmt.Errorf("no capture backends available")
	}

	var firstErr error
	for i := h.active; i < len(h.backends); i++ {
		img, err := h.backends[i].Capture()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if i == h.active {
				h.noteFailure()
			}
			continue
		}
		if i == h.active {
			h.failures = 0
		}
		frame := vision.NewFrame(img)
		h.svc.storeFrame(frame)
		return frame, nil
	}
	return nil, fmt.Errorf("all capture backends failed: %w", firstErr)
}

// FrameOrBlank never fails: total capture failure degrades to a blank frame
// so condition evaluation always has a bitmap to look at.
func (h *Handle) FrameOrBlank() *vision.Frame {
	f, err := h.Frame()
	if err != nil {
		h.svc.logger.Debug("capture degraded to blank frame", "error", err)
		return vision.Blank(h.svc.blankW, h.svc.blankH)
	}
	return f
}

// ActiveBackend names the backend the handle currently prefers.
func (h *Handle) ActiveBackend() string {
	if len(h.backends) == 0 {
		return ""
	}
	return h.backends[h.active].Name()
}

// noteFailure counts a consecutive failure of the active backend and demotes
// to the next one in the chain once the threshold is hit.
func (h *Handle) noteFailure() {
	h.failures++
	if h.failures >= h.svc.demoteAfter && h.active < len(h.backends)-1 {
		h.svc.logger.Warn("capture backend demoted",
			"from", h.backends[h.active].Name(),
			"to", h.backends[h.active+1].Name(),
			"failures", h.failures)
		h.active++
		h.failures = 0
	}
}
