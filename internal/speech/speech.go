// Package speech owns the announcement voice. A single worker drains a FIFO
// of utterances so speech never overlaps, keeps a minimum gap between
// utterances, and survives synthesizer faults by reinitializing the engine
// behind a cooldown. A failed utterance is dropped, not retried; stale
// announcements are worse than missing ones.
package speech

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMinGap is the minimum spacing between utterance starts.
	DefaultMinGap = 100 * time.Millisecond

	// DefaultReinitCooldown limits how often a faulting synthesizer is
	// rebuilt.
	DefaultReinitCooldown = 5 * time.Second

	// speakTimeout bounds a single utterance.
	speakTimeout = 30 * time.Second
)

// Synthesizer turns text into audio. Implementations wrap an external TTS
// command and are not assumed to be safe for concurrent use; the queue owns
// exactly one at a time.
type Synthesizer interface {
	Name() string
	Speak(ctx context.Context, text string) error
}

// Factory builds a synthesizer. The queue calls it once at construction and
// again whenever a faulting engine is reinitialized.
type Factory func() Synthesizer

// Queue serializes speech output.
type Queue struct {
	logger   *slog.Logger
	factory  Factory
	voice    string
	minGap   time.Duration
	cooldown time.Duration

	mu      sync.Mutex
	synth   Synthesizer
	pending []string
	notify  chan struct{}

	// lastStart and lastReinit are touched only by the worker goroutine.
	lastStart  time.Time
	lastReinit time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the queue's logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithVoice selects the synthesizer voice, when the platform engine has one.
func WithVoice(voice string) Option {
	return func(q *Queue) { q.voice = voice }
}

// WithMinGap overrides the spacing between utterances.
func WithMinGap(d time.Duration) Option {
	return func(q *Queue) {
		if d >= 0 {
			q.minGap = d
		}
	}
}

// WithReinitCooldown overrides the reinitialization cooldown.
func WithReinitCooldown(d time.Duration) Option {
	return func(q *Queue) {
		if d >= 0 {
			q.cooldown = d
		}
	}
}

// WithFactory replaces the platform synthesizer factory.
func WithFactory(f Factory) Option {
	return func(q *Queue) {
		if f != nil {
			q.factory = f
		}
	}
}

// NewQueue builds a queue around the platform synthesizer. Run must be
// started for anything to be spoken.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		logger:   slog.Default().With("component", "speech"),
		minGap:   DefaultMinGap,
		cooldown: DefaultReinitCooldown,
		notify:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.factory == nil {
		q.factory = func() Synthesizer { return newPlatformSynthesizer(q.voice) }
	}
	q.synth = q.factory()
	return q
}

// Say queues one utterance. Empty text is ignored.
func (q *Queue) Say(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, text)
	n := len(q.pending)
	q.mu.Unlock()
	q.logger.Debug("utterance queued", "text", text, "pending", n)
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// SayAll queues several utterances in order.
func (q *Queue) SayAll(texts []string) {
	for _, t := range texts {
		q.Say(t)
	}
}

// Pending returns the number of queued utterances.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Engine returns the name of the current synthesizer.
func (q *Queue) Engine() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.synth.Name()
}

// Run drains the queue until ctx is canceled.
func (q *Queue) Run(ctx context.Context) {
	q.logger.Info("speech worker started", "engine", q.Engine())
	for {
		select {
		case <-ctx.Done():
			q.logger.Debug("speech worker stopped")
			return
		case <-q.notify:
		}
		for {
			text, ok := q.take()
			if !ok {
				break
			}
			q.speakOne(ctx, text)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (q *Queue) take() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return "", false
	}
	text := q.pending[0]
	q.pending = q.pending[1:]
	return text, true
}

func (q *Queue) speakOne(ctx context.Context, text string) {
	if wait := q.minGap - time.Since(q.lastStart); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
	q.lastStart = time.Now()

	q.mu.Lock()
	synth := q.synth
	q.mu.Unlock()

	sctx, cancel := context.WithTimeout(ctx, speakTimeout)
	err := synth.Speak(sctx, text)
	cancel()
	if err == nil {
		return
	}

	q.logger.Warn("speech failed", "engine", synth.Name(), "error", err, "text", text)
	if time.Since(q.lastReinit) < q.cooldown && !q.lastReinit.IsZero() {
		return
	}
	q.lastReinit = time.Now()
	next := q.factory()
	q.mu.Lock()
	q.synth = next
	q.mu.Unlock()
	q.logger.Info("speech engine reinitialized", "engine", next.Name())
}
