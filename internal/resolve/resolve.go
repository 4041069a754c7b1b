// Package resolve decides which profile menu is active for a captured frame.
package resolve

import (
	"log/slog"

	"github.com/menuvox/menuvox/internal/profile"
	"github.com/menuvox/menuvox/internal/vision"
)

// ConditionEvaluator is the slice of the condition engine the resolver needs.
type ConditionEvaluator interface {
	EvaluateAll(conds []profile.Condition, frame *vision.Frame) bool
}

// Resolver picks the active menu for a frame. Detection is sticky: a menu
// that is still matching keeps priority over every other candidate, and a
// manual menu is never deactivated by detection at all.
type Resolver struct {
	eval   ConditionEvaluator
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a resolver that evaluates menu conditions with eval.
func New(eval ConditionEvaluator, opts ...Option) *Resolver {
	r := &Resolver{
		eval:   eval,
		logger: slog.Default().With("component", "resolve"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the id of the menu active in frame, or "" when none is.
// previous is the root of the current menu stack; submenus entered by
// selection do not participate in detection.
//
// A manual previous menu wins unconditionally. A non-manual previous menu is
// re-checked before any other candidate and wins while its conditions still
// hold. Otherwise the matching menu with the most conditions wins, ties
// broken by menu id. Menus without conditions are never auto-detected.
//
// A nil frame means the screen could not be captured; that is not evidence
// that the menu went away, so the previous answer stands.
func (r *Resolver) Resolve(p profile.Profile, frame *vision.Frame, previous string) string {
	if frame == nil {
		return previous
	}

	if prev := p.Menu(previous); prev != nil {
		if prev.IsManual {
			return previous
		}
		if len(prev.Conditions) > 0 && r.eval.EvaluateAll(prev.Conditions, frame) {
			return previous
		}
	}

	// MenuIDs is sorted, so keeping the first menu at the best count makes
	// the tie-break deterministic.
	best := ""
	bestCount := 0
	for _, id := range p.MenuIDs() {
		if id == previous {
			continue
		}
		m := p[id]
		if m == nil || m.IsManual || len(m.Conditions) == 0 {
			continue
		}
		if !r.eval.EvaluateAll(m.Conditions, frame) {
			continue
		}
		if len(m.Conditions) > bestCount {
			best = id
			bestCount = len(m.Conditions)
		}
	}
	return best
}
