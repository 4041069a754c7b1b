// Package command serializes every action that touches the pointer or the
// navigation state. One screen, one mouse: commands run strictly one at a
// time, and the detection loop checks InFlight so it never samples the
// screen mid-gesture.
//
// Commands are plain value objects rather than closures so the queue stays
// inspectable and nothing captures mutable state between enqueue and
// execution.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates command payloads.
type Kind string

const (
	KindNavigate     Kind = "navigate"
	KindSelect       Kind = "select"
	KindPop          Kind = "pop"
	KindGroupNext    Kind = "group_next"
	KindGroupPrev    Kind = "group_prev"
	KindActivateMenu Kind = "activate_menu"
	KindDetected     Kind = "detected"
	KindReload       Kind = "reload"
)

// Command is one unit of serialized work.
type Command struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Direction  int       `json:"direction,omitempty"`
	MenuID     string    `json:"menu_id,omitempty"`
	Path       string    `json:"path,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// New returns a command of the given kind with a fresh id.
func New(kind Kind) Command {
	return Command{ID: uuid.NewString(), Kind: kind, EnqueuedAt: time.Now()}
}

// Navigate moves focus by direction, -1 or +1.
func Navigate(direction int) Command {
	c := New(KindNavigate)
	c.Direction = direction
	return c
}

// Select clicks the focused element.
func Select() Command { return New(KindSelect) }

// Pop closes the innermost submenu.
func Pop() Command { return New(KindPop) }

// GroupNext cycles to the next group.
func GroupNext() Command { return New(KindGroupNext) }

// GroupPrev cycles to the previous group.
func GroupPrev() Command { return New(KindGroupPrev) }

// ActivateMenu makes menuID active regardless of detection.
func ActivateMenu(menuID string) Command {
	c := New(KindActivateMenu)
	c.MenuID = menuID
	return c
}

// Detected reports the resolver's verdict; menuID may be empty for none.
func Detected(menuID string) Command {
	c := New(KindDetected)
	c.MenuID = menuID
	return c
}

// Reload reloads the profile, from path when non-empty.
func Reload(path string) Command {
	c := New(KindReload)
	c.Path = path
	return c
}

// Executor runs one command. The queue guarantees Execute is never invoked
// concurrently with itself.
type Executor interface {
	Execute(ctx context.Context, cmd Command) error
}

type entry struct {
	cmd     Command
	resolve chan error
}

// Queue is the strictly serialized command worker.
type Queue struct {
	logger   *slog.Logger
	executor Executor

	mu      sync.Mutex
	pending []*entry
	notify  chan struct{}

	busy atomic.Bool
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

// NewQueue builds a queue that dispatches to executor. Run must be started
// for commands to execute.
func NewQueue(executor Executor, opts ...Option) *Queue {
	q := &Queue{
		logger:   slog.Default().With("component", "command"),
		executor: executor,
		notify:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds cmd and returns immediately.
func (q *Queue) Enqueue(cmd Command) {
	q.add(cmd)
}

// EnqueueWait adds cmd and blocks until the worker finishes it or ctx ends.
func (q *Queue) EnqueueWait(ctx context.Context, cmd Command) error {
	e := q.add(cmd)
	select {
	case err := <-e.resolve:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) add(cmd Command) *entry {
	e := &entry{cmd: cmd, resolve: make(chan error, 1)}
	q.mu.Lock()
	q.pending = append(q.pending, e)
	n := len(q.pending)
	q.mu.Unlock()
	q.logger.Debug("command queued", "kind", cmd.Kind, "id", cmd.ID, "pending", n)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return e
}

// Pending returns the number of queued commands.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InFlight reports whether a command is executing or waiting to execute.
// The detection loop skips its tick while this is true, because pointer
// movement is often part of the visual state conditions sample.
func (q *Queue) InFlight() bool {
	return q.busy.Load() || q.Pending() > 0
}

// Clear drops all queued commands, resolving their waiters with
// context.Canceled. The executing command, if any, is not interrupted.
func (q *Queue) Clear() int {
	q.mu.Lock()
	dropped := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, e := range dropped {
		e.resolve <- context.Canceled
		close(e.resolve)
	}
	return len(dropped)
}

// Run executes commands until ctx is canceled, then fails any still-queued
// waiters with the cancellation error.
func (q *Queue) Run(ctx context.Context) {
	q.logger.Info("command worker started")
	for {
		select {
		case <-ctx.Done():
			q.failPending(ctx.Err())
			q.logger.Debug("command worker stopped")
			return
		case <-q.notify:
		}
		for {
			e := q.take()
			if e == nil {
				break
			}
			err := q.executeOne(ctx, e.cmd)
			e.resolve <- err
			close(e.resolve)
			if ctx.Err() != nil {
				q.failPending(ctx.Err())
				return
			}
		}
	}
}

func (q *Queue) take() *entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	e := q.pending[0]
	q.pending = q.pending[1:]
	return e
}

func (q *Queue) executeOne(ctx context.Context, cmd Command) (err error) {
	q.busy.Store(true)
	defer q.busy.Store(false)
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			q.logger.Error("command panicked", "kind", cmd.Kind, "id", cmd.ID,
				"panic", r, "stack", string(buf[:n]))
			err = fmt.Errorf("panic in %s command: %v", cmd.Kind, r)
		}
	}()

	start := time.Now()
	err = q.executor.Execute(ctx, cmd)
	if err != nil {
		q.logger.Warn("command failed", "kind", cmd.Kind, "id", cmd.ID, "error", err)
		return err
	}
	q.logger.Debug("command done", "kind", cmd.Kind, "id", cmd.ID,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (q *Queue) failPending(err error) {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, e := range pending {
		e.resolve <- err
		close(e.resolve)
	}
}
