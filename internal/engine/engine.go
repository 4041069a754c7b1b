// Package engine ties the pipeline together. It runs the adaptive detection
// loop that keeps the active menu current and implements the command
// executor that turns navigation outcomes into pointer, speech and event
// activity.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/menuvox/menuvox/internal/announce"
	"github.com/menuvox/menuvox/internal/capture"
	"github.com/menuvox/menuvox/internal/command"
	"github.com/menuvox/menuvox/internal/condition"
	"github.com/menuvox/menuvox/internal/events"
	"github.com/menuvox/menuvox/internal/nav"
	"github.com/menuvox/menuvox/internal/ocr"
	"github.com/menuvox/menuvox/internal/pointer"
	"github.com/menuvox/menuvox/internal/profile"
	"github.com/menuvox/menuvox/internal/resolve"
	"github.com/menuvox/menuvox/internal/speech"
)

// Defaults for the adaptive detection interval.
const (
	DefaultBaseInterval  = 50 * time.Millisecond
	DefaultMaxInterval   = 500 * time.Millisecond
	DefaultIdleThreshold = 20
)

// Deps are the pipeline components the engine drives. Capture, Conditions,
// Resolver and Nav are required. Speech, Pointer, OCR and Bus may be nil;
// the matching activity is skipped.
type Deps struct {
	Capture    *capture.Service
	Conditions *condition.Engine
	Resolver   *resolve.Resolver
	Nav        *nav.Machine
	OCR        *ocr.Backend
	Speech     *speech.Queue
	Pointer    pointer.Controller
	Bus        *events.Bus
}

// Engine owns the detection loop and the command queue worker.
type Engine struct {
	logger   *slog.Logger
	capture  *capture.Service
	cond     *condition.Engine
	resolver *resolve.Resolver
	nav      *nav.Machine
	ocr      *ocr.Backend
	speech   *speech.Queue
	pointer  pointer.Controller
	bus      *events.Bus

	queue *command.Queue

	// execHandle is used only from the queue worker goroutine.
	execHandle *capture.Handle

	base          time.Duration
	max           time.Duration
	idleThreshold int

	detecting atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithIntervals sets the base polling interval and its backed-off ceiling.
func WithIntervals(base, max time.Duration) Option {
	return func(e *Engine) {
		if base > 0 {
			e.base = base
		}
		if max >= e.base {
			e.max = max
		}
	}
}

// WithIdleThreshold sets how many no-change ticks precede backing off.
func WithIdleThreshold(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.idleThreshold = n
		}
	}
}

// WithAutoDetect controls whether detection runs at startup. When off, menus
// activate only through manual activation commands until SetDetecting(true).
func WithAutoDetect(on bool) Option {
	return func(e *Engine) { e.detecting.Store(on) }
}

// New assembles an engine around its components and builds its command
// queue.
func New(deps Deps, opts ...Option) *Engine {
	e := &Engine{
		logger:        slog.Default().With("component", "engine"),
		capture:       deps.Capture,
		cond:          deps.Conditions,
		resolver:      deps.Resolver,
		nav:           deps.Nav,
		ocr:           deps.OCR,
		speech:        deps.Speech,
		pointer:       deps.Pointer,
		bus:           deps.Bus,
		base:          DefaultBaseInterval,
		max:           DefaultMaxInterval,
		idleThreshold: DefaultIdleThreshold,
	}
	e.detecting.Store(true)
	for _, opt := range opts {
		opt(e)
	}
	e.queue = command.NewQueue(e, command.WithLogger(e.logger))
	e.execHandle = e.capture.NewHandle()
	return e
}

// Queue exposes the command queue so the server and CLI can submit work.
func (e *Engine) Queue() *command.Queue { return e.queue }

// Detecting reports whether the detection loop is sampling the screen.
func (e *Engine) Detecting() bool { return e.detecting.Load() }

// SetDetecting pauses or resumes menu detection. Commands keep working
// either way.
func (e *Engine) SetDetecting(on bool) { e.detecting.Store(on) }

// Status is a point-in-time summary for the control API.
type Status struct {
	Detecting       bool     `json:"detecting"`
	ActiveMenu      string   `json:"active_menu"`
	RootMenu        string   `json:"root_menu"`
	MenuStack       []string `json:"menu_stack"`
	Group           string   `json:"group"`
	Position        int      `json:"position"`
	PendingCommands int      `json:"pending_commands"`
	PendingSpeech   int      `json:"pending_speech"`
	OCRState        string   `json:"ocr_state"`
	PointerBackend  string   `json:"pointer_backend,omitempty"`
	SpeechEngine    string   `json:"speech_engine,omitempty"`
}

// Status reports the engine's current state.
func (e *Engine) Status() Status {
	snap := e.nav.Snapshot()
	st := Status{
		Detecting:       e.detecting.Load(),
		ActiveMenu:      snap.ActiveMenu,
		RootMenu:        snap.RootMenu,
		MenuStack:       snap.MenuStack,
		Group:           snap.CurrentGroup,
		Position:        snap.CurrentPosition,
		PendingCommands: e.queue.Pending(),
	}
	if e.ocr != nil {
		st.OCRState = e.ocr.State()
	}
	if e.speech != nil {
		st.PendingSpeech = e.speech.Pending()
		st.SpeechEngine = e.speech.Engine()
	}
	if e.pointer != nil {
		st.PointerBackend = e.pointer.Backend()
	}
	return st
}

// Run drives the engine until ctx is canceled: the command worker, the
// speech worker and the detection loop.
func (e *Engine) Run(ctx context.Context) error {
	if e.ocr != nil {
		e.ocr.Init()
		defer e.ocr.Close()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.queue.Run(ctx)
	}()
	if e.speech != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.speech.Run(ctx)
		}()
	}

	e.detectLoop(ctx)
	wg.Wait()
	return nil
}

// detectLoop polls the screen at an adaptive interval. The interval sits at
// the base while things change and stretches toward the ceiling as
// consecutive ticks come back unchanged.
func (e *Engine) detectLoop(ctx context.Context) {
	handle := e.capture.NewHandle()
	idle := 0
	timer := time.NewTimer(e.base)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if e.tick(handle) {
			idle = 0
		} else {
			idle++
		}
		timer.Reset(e.nextInterval(idle))
	}
}

// tick samples the screen once and enqueues a detection command when the
// resolved root menu differs from the current one. Detection is skipped
// while a command is in flight so it never races the pointer.
func (e *Engine) tick(handle *capture.Handle) (changed bool) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			e.logger.Error("detection tick panicked", "panic", r, "stack", string(buf[:n]))
		}
	}()

	if !e.detecting.Load() || e.queue.InFlight() {
		return false
	}
	prof := e.nav.Profile()
	if len(prof) == 0 {
		return false
	}

	frame, err := handle.Frame()
	if err != nil {
		// A failed capture keeps the previous menu rather than clearing it.
		e.logger.Debug("capture failed, keeping active menu", "error", err)
		frame = nil
	}

	current := e.nav.RootMenu()
	detected := e.resolver.Resolve(prof, frame, current)
	if detected == current {
		return false
	}

	e.queue.Enqueue(command.Detected(detected))
	return true
}

func (e *Engine) nextInterval(idle int) time.Duration {
	if idle <= e.idleThreshold {
		return e.base
	}
	d := e.base * time.Duration(idle-e.idleThreshold+1)
	if d > e.max {
		d = e.max
	}
	return d
}

// Execute runs one command on the queue worker goroutine.
func (e *Engine) Execute(ctx context.Context, cmd command.Command) error {
	frame := e.execHandle.FrameOrBlank()

	switch cmd.Kind {
	case command.KindNavigate:
		return e.perform(ctx, e.nav.Navigate(cmd.Direction, frame))
	case command.KindSelect:
		return e.perform(ctx, e.nav.Select(frame))
	case command.KindPop:
		out, _ := e.nav.Pop(frame)
		return e.perform(ctx, out)
	case command.KindGroupNext:
		return e.perform(ctx, e.nav.NextGroup(frame))
	case command.KindGroupPrev:
		return e.perform(ctx, e.nav.PrevGroup(frame))
	case command.KindActivateMenu:
		prev := e.nav.RootMenu()
		out, err := e.nav.ActivateManual(cmd.MenuID, frame)
		if err != nil {
			return err
		}
		e.emitMenuChange(prev, true)
		return e.perform(ctx, out)
	case command.KindDetected:
		prev := e.nav.RootMenu()
		out := e.nav.ApplyDetection(cmd.MenuID, frame)
		e.emitMenuChange(prev, false)
		return e.perform(ctx, out)
	case command.KindReload:
		return e.reload(cmd.Path)
	default:
		return fmt.Errorf("unknown command kind %q", cmd.Kind)
	}
}

// perform carries out an outcome in the fixed order the state machine
// promises: click, literal utterances, pointer move, group announcement,
// focus announcement.
func (e *Engine) perform(ctx context.Context, out nav.Outcome) error {
	if out.Empty() {
		return nil
	}
	menuID := e.nav.ActiveMenu()

	if out.Click != nil && e.pointer != nil {
		if err := e.pointer.ClickAt(ctx, out.Click.X, out.Click.Y); err != nil {
			e.logger.Warn("click failed", "x", out.Click.X, "y", out.Click.Y, "error", err)
		}
	}

	for _, text := range out.Speak {
		e.say(text, menuID, "")
	}

	moved := false
	if out.Move != nil {
		moved = true
		if e.pointer != nil {
			if err := e.pointer.MoveTo(ctx, out.Move.X, out.Move.Y); err != nil {
				e.logger.Warn("pointer move failed", "x", out.Move.X, "y", out.Move.Y, "error", err)
			}
		}
	}

	if out.GroupChange != "" {
		e.say(out.GroupChange, menuID, "")
	}

	if out.Focus != nil {
		e.announceFocus(ctx, out.Focus, moved)
	}
	return nil
}

// announceFocus formats and speaks the focus announcement. When the focus
// followed a pointer move and the element asks for an OCR delay, the delay
// runs first so the screen can settle under the new pointer position.
func (e *Engine) announceFocus(ctx context.Context, f *nav.Focus, moved bool) {
	el := f.Element

	if moved && f.OcrDelayMs > 0 {
		select {
		case <-time.After(time.Duration(f.OcrDelayMs) * time.Millisecond):
		case <-ctx.Done():
			return
		}
	}

	group := el.Group
	if group == "" {
		group = profile.DefaultGroup
	}

	text := announce.Format(announce.Details{
		Name:     el.Name,
		Type:     el.Type,
		Index:    f.GroupIndex,
		Total:    f.GroupSize,
		Menu:     f.MenuID,
		Submenu:  el.SubmenuID,
		Group:    group,
		Template: el.CustomAnnouncement,
	}, e.gatherOcr(&el))

	e.say(text, f.MenuID, el.Name)

	if e.bus != nil {
		_ = events.Emit(e.bus, events.TopicFocusChanged, events.FocusChanged{
			MenuID:     f.MenuID,
			Element:    el.Name,
			Group:      group,
			GroupIndex: f.GroupIndex,
			GroupSize:  f.GroupSize,
			Position:   f.Position,
			At:         time.Now(),
		})
	}
}

// gatherOcr reads the element's OCR regions from a fresh frame. A region
// whose gate conditions fail contributes empty text, and a capture failure
// leaves every tag unresolved.
func (e *Engine) gatherOcr(el *profile.Element) map[string]string {
	if len(el.OcrRegions) == 0 || e.ocr == nil {
		return nil
	}
	frame, err := e.execHandle.Frame()
	if err != nil {
		e.logger.Debug("ocr capture failed", "error", err)
		return nil
	}

	out := make(map[string]string, len(el.OcrRegions))
	for i := range el.OcrRegions {
		r := &el.OcrRegions[i]
		if len(r.Conditions) > 0 && !e.cond.EvaluateAll(r.Conditions, frame) {
			out[r.Tag] = ""
			continue
		}
		out[r.Tag] = e.ocr.ExtractText(frame, r.Rect.ImageRect())
	}
	return out
}

// say hands text to the speech queue and publishes it as an announcement
// event.
func (e *Engine) say(text, menuID, element string) {
	if text == "" {
		return
	}
	if e.speech != nil {
		e.speech.Say(text)
	}
	if e.bus != nil {
		_ = events.Emit(e.bus, events.TopicAnnouncement, events.Announcement{
			Text:    text,
			MenuID:  menuID,
			Element: element,
			At:      time.Now(),
		})
	}
}

func (e *Engine) emitMenuChange(prev string, manual bool) {
	cur := e.nav.RootMenu()
	if cur == prev || e.bus == nil {
		return
	}
	_ = events.Emit(e.bus, events.TopicMenuChanged, events.MenuChanged{
		MenuID:   cur,
		Previous: prev,
		Manual:   manual,
		At:       time.Now(),
	})
}

// reload swaps in the profile at path. A load or validation failure keeps
// the running profile.
func (e *Engine) reload(path string) error {
	p, err := profile.Load(path)
	if err != nil {
		e.logger.Warn("profile reload failed, keeping current profile", "path", path, "error", err)
		return err
	}
	if err := p.Validate(); err != nil {
		e.logger.Warn("reloaded profile is invalid, keeping current profile", "path", path, "error", err)
		return err
	}

	e.nav.SetProfile(p)
	e.say("Profile reloaded", "", "")
	e.logger.Info("profile reloaded", "path", path, "menus", len(p))

	if e.bus != nil {
		_ = events.Emit(e.bus, events.TopicProfileLoaded, events.ProfileLoaded{
			Path:  path,
			Menus: len(p),
			At:    time.Now(),
		})
	}
	return nil
}
