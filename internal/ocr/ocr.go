// Package ocr recognizes text in frame regions through an external
// tesseract process. The backend initializes lazily and asynchronously
// exactly once; until it is ready every call returns the empty string, which
// downstream code already treats as "no text".
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/menuvox/menuvox/internal/vision"
)

// Defaults for the per-region result cache.
const (
	DefaultCacheTTL   = 500 * time.Millisecond
	DefaultMaxEntries = 64
)

// runTimeout bounds one tesseract invocation.
const runTimeout = 10 * time.Second

// Init states. The backend moves uninitialized -> initializing ->
// ready/failed and never re-enters an earlier state.
const (
	StateUninitialized = "uninitialized"
	StateInitializing  = "initializing"
	StateReady         = "ready"
	StateFailed        = "failed"
)

type execFunc func(ctx context.Context, bin string, args []string, stdin []byte) (string, error)

// Backend wraps the external recognizer with caching and call coalescing.
// Safe for concurrent use.
type Backend struct {
	logger    *slog.Logger
	languages []string
	cacheTTL  time.Duration
	maxCache  int

	lookPath func(string) (string, error)
	exec     execFunc

	mu     sync.Mutex
	state  string
	binary string

	cacheMu sync.Mutex
	cache   map[string]*cacheEntry
	flight  singleflight.Group
}

type cacheEntry struct {
	text     string
	expires  time.Time
	lastUsed time.Time
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithLanguages sets the recognition languages (tesseract -l).
func WithLanguages(langs ...string) Option {
	return func(b *Backend) {
		if len(langs) > 0 {
			b.languages = langs
		}
	}
}

// WithCacheTTL sets how long a region's recognized text is reused.
func WithCacheTTL(ttl time.Duration) Option {
	return func(b *Backend) { b.cacheTTL = ttl }
}

// WithMaxCacheEntries bounds the region cache.
func WithMaxCacheEntries(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.maxCache = n
		}
	}
}

// WithLookPath replaces binary resolution, for tests.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(b *Backend) {
		if fn != nil {
			b.lookPath = fn
		}
	}
}

// WithExec replaces process execution, for tests.
func WithExec(fn execFunc) Option {
	return func(b *Backend) {
		if fn != nil {
			b.exec = fn
		}
	}
}

// New builds an OCR backend. No initialization happens until the first
// ExtractText or an explicit Init.
func New(opts ...Option) *Backend {
	b := &Backend{
		logger:    slog.Default().With("component", "ocr"),
		languages: []string{"eng"},
		cacheTTL:  DefaultCacheTTL,
		maxCache:  DefaultMaxEntries,
		lookPath:  exec.LookPath,
		exec:      runProcess,
		state:     StateUninitialized,
		cache:     make(map[string]*cacheEntry),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Init kicks off asynchronous initialization if it has not started yet.
// Concurrent callers share the single initialization attempt.
func (b *Backend) Init() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateUninitialized {
		return
	}
	b.state = StateInitializing
	go b.initialize()
}

func (b *Backend) initialize() {
	bin, err := b.lookPath("tesseract")
	if err != nil {
		b.logger.Warn("ocr unavailable: tesseract not found", "error", err)
		b.setState(StateFailed, "")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	if _, err := b.exec(ctx, bin, []string{"--version"}, nil); err != nil {
		b.logger.Warn("ocr unavailable: tesseract not runnable", "error", err)
		b.setState(StateFailed, "")
		return
	}
	b.logger.Info("ocr ready", "binary", bin, "languages", strings.Join(b.languages, "+"))
	b.setState(StateReady, bin)
}

func (b *Backend) setState(state, bin string) {
	b.mu.Lock()
	b.state = state
	b.binary = bin
	b.mu.Unlock()
}

// State reports the initialization state for status surfaces.
func (b *Backend) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Ready reports whether recognition is available right now.
func (b *Backend) Ready() bool { return b.State() == StateReady }

// ExtractText recognizes the text inside region. It returns "" while the
// backend is initializing, when the region is invalid, and on any
// recognition failure. Results are cached per region for a short TTL and
// concurrent calls for the same region share one recognition.
func (b *Backend) ExtractText(frame *vision.Frame, region image.Rectangle) string {
	if frame == nil || region.Empty() {
		return ""
	}

	b.mu.Lock()
	switch b.state {
	case StateUninitialized:
		b.state = StateInitializing
		go b.initialize()
		b.mu.Unlock()
		return ""
	case StateInitializing, StateFailed:
		b.mu.Unlock()
		return ""
	}
	bin := b.binary
	b.mu.Unlock()

	key := fmt.Sprintf("%d:%d:%d:%d", region.Min.X, region.Min.Y, region.Max.X, region.Max.Y)
	if text, ok := b.cachedText(key); ok {
		return text
	}

	result, _, _ := b.flight.Do(key, func() (any, error) {
		// Recheck under the flight: a just-finished call may have filled
		// the cache between our miss and this execution.
		if text, ok := b.cachedText(key); ok {
			return text, nil
		}
		text := b.recognize(bin, frame, region)
		b.storeText(key, text)
		return text, nil
	})
	text, _ := result.(string)
	return text
}

func (b *Backend) recognize(bin string, frame *vision.Frame, region image.Rectangle) string {
	crop, ok := frame.Crop(region)
	if !ok {
		return ""
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, crop); err != nil {
		b.logger.Debug("ocr crop encode failed", "error", err)
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	args := []string{"stdin", "stdout", "-l", strings.Join(b.languages, "+"), "--psm", "6"}
	out, err := b.exec(ctx, bin, args, buf.Bytes())
	if err != nil {
		b.logger.Debug("ocr recognition failed", "region", region.String(), "error", err)
		return ""
	}
	return strings.TrimSpace(out)
}

func (b *Backend) cachedText(key string) (string, bool) {
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	entry, ok := b.cache[key]
	if !ok {
		return "", false
	}
	now := time.Now()
	if now.After(entry.expires) {
		delete(b.cache, key)
		return "", false
	}
	entry.lastUsed = now
	return entry.text, true
}

func (b *Backend) storeText(key, text string) {
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	now := time.Now()
	b.cache[key] = &cacheEntry{text: text, expires: now.Add(b.cacheTTL), lastUsed: now}
	if len(b.cache) <= b.maxCache {
		return
	}

	// Over capacity: drop expired entries first, then the least recently
	// used until back under the limit.
	for k, e := range b.cache {
		if now.After(e.expires) {
			delete(b.cache, k)
		}
	}
	if len(b.cache) <= b.maxCache {
		return
	}
	type aged struct {
		key      string
		lastUsed time.Time
	}
	entries := make([]aged, 0, len(b.cache))
	for k, e := range b.cache {
		entries = append(entries, aged{key: k, lastUsed: e.lastUsed})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].lastUsed.Before(entries[j].lastUsed) })
	for _, e := range entries[:len(entries)-b.maxCache] {
		delete(b.cache, e.key)
	}
}

// Close drops the region cache. Recognition uses one process per call, so
// there is no long-lived engine to shut down.
func (b *Backend) Close() {
	b.cacheMu.Lock()
	b.cache = make(map[string]*cacheEntry)
	b.cacheMu.Unlock()
}

// runProcess is the production execFunc: feed stdin, collect stdout.
func runProcess(ctx context.Context, bin string, args []string, stdin []byte) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return out.String(), nil
}
