package engine

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/menuvox/menuvox/internal/capture"
	"github.com/menuvox/menuvox/internal/command"
	"github.com/menuvox/menuvox/internal/condition"
	"github.com/menuvox/menuvox/internal/events"
	"github.com/menuvox/menuvox/internal/nav"
	"github.com/menuvox/menuvox/internal/profile"
	"github.com/menuvox/menuvox/internal/resolve"
	"github.com/menuvox/menuvox/internal/speech"
)

// fakeScreen is a capture backend serving a mutable in-memory image.
type fakeScreen struct {
	mu  sync.Mutex
	img *image.RGBA
}

func newFakeScreen(w, h int) *fakeScreen {
	f := &fakeScreen{img: image.NewRGBA(image.Rect(0, 0, w, h))}
	f.fill(color.RGBA{R: 255, G: 255, B: 255, A: 255})
	return f
}

func (f *fakeScreen) Name() string { return "fake" }

func (f *fakeScreen) Capture() (*image.RGBA, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := image.NewRGBA(f.img.Bounds())
	copy(out.Pix, f.img.Pix)
	return out, nil
}

func (f *fakeScreen) fill(c color.RGBA) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			f.img.SetRGBA(x, y, c)
		}
	}
}

func (f *fakeScreen) set(x, y int, c color.RGBA) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.img.SetRGBA(x, y, c)
}

type pointerCall struct {
	kind string
	x, y int
}

type fakePointer struct {
	mu    sync.Mutex
	calls []pointerCall
}

func (f *fakePointer) MoveTo(_ context.Context, x, y int) error {
	f.record("move", x, y)
	return nil
}

func (f *fakePointer) ClickAt(_ context.Context, x, y int) error {
	f.record("click", x, y)
	return nil
}

func (f *fakePointer) Backend() string { return "fake" }

func (f *fakePointer) record(kind string, x, y int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pointerCall{kind, x, y})
}

func (f *fakePointer) ofKind(kind string) []pointerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []pointerCall
	for _, c := range f.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

type fakeSynth struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeSynth) Name() string { return "fake" }

func (f *fakeSynth) Speak(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeSynth) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeSynth) said(text string) bool {
	for _, t := range f.spoken() {
		if t == text {
			return true
		}
	}
	return false
}

// testProfile has a menu detected by a red pixel at (4,4) plus a manual
// help menu that detection must leave alone.
func testProfile() profile.Profile {
	return profile.Profile{
		"main": {
			Conditions: []profile.Condition{{
				Type:      profile.CondPixelColor,
				X:         4,
				Y:         4,
				Color:     profile.RGB{255, 0, 0},
				Tolerance: 10,
			}},
			ResetIndex: true,
			Items: []profile.Element{
				{Coordinates: profile.Point{X: 100, Y: 200}, Name: "Play", Type: "button", Group: profile.DefaultGroup},
				{Coordinates: profile.Point{X: 100, Y: 260}, Name: "Quit", Type: "button", Group: profile.DefaultGroup, DisplayIndex: 1},
			},
		},
		"help": {
			IsManual:   true,
			ResetIndex: true,
			Items: []profile.Element{
				{Name: "Escape closes this menu", Type: "message", Group: profile.DefaultGroup},
			},
		},
	}
}

type testRig struct {
	engine  *Engine
	screen  *fakeScreen
	pointer *fakePointer
	synth   *fakeSynth
	nav     *nav.Machine
	bus     *events.Bus
}

func newTestRig(t *testing.T, opts ...Option) *testRig {
	t.Helper()

	screen := newFakeScreen(32, 32)
	svc := capture.NewService(
		capture.WithFactories(func() capture.Backend { return screen }),
		capture.WithCacheTTL(0),
	)
	eval := condition.New()
	machine := nav.New(eval)
	machine.SetProfile(testProfile())

	ptr := &fakePointer{}
	synth := &fakeSynth{}
	bus := events.NewBus(events.WithSyncDelivery())
	t.Cleanup(func() { events.Complete(bus) })

	e := New(Deps{
		Capture:    svc,
		Conditions: eval,
		Resolver:   resolve.New(eval),
		Nav:        machine,
		Speech: speech.NewQueue(
			speech.WithFactory(func() speech.Synthesizer { return synth }),
			speech.WithMinGap(0),
		),
		Pointer: ptr,
		Bus:     bus,
	}, opts...)

	return &testRig{engine: e, screen: screen, pointer: ptr, synth: synth, nav: machine, bus: bus}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestExecuteActivateMovesPointerToFirstItem(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if err := rig.engine.Execute(ctx, command.ActivateMenu("main")); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if got := rig.nav.ActiveMenu(); got != "main" {
		t.Fatalf("active menu = %q, want main", got)
	}

	moves := rig.pointer.ofKind("move")
	if len(moves) != 1 {
		t.Fatalf("got %d moves, want 1", len(moves))
	}
	if moves[0].x != 100 || moves[0].y != 200 {
		t.Fatalf("moved to (%d,%d), want (100,200)", moves[0].x, moves[0].y)
	}
}

func TestExecuteNavigateWrapsThroughGroup(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if err := rig.engine.Execute(ctx, command.ActivateMenu("main")); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if err := rig.engine.Execute(ctx, command.Navigate(1)); err != nil {
		t.Fatalf("navigate failed: %v", err)
	}
	if err := rig.engine.Execute(ctx, command.Navigate(1)); err != nil {
		t.Fatalf("navigate failed: %v", err)
	}

	moves := rig.pointer.ofKind("move")
	want := []pointerCall{
		{"move", 100, 200},
		{"move", 100, 260},
		{"move", 100, 200},
	}
	if len(moves) != len(want) {
		t.Fatalf("got %d moves, want %d", len(moves), len(want))
	}
	for i := range want {
		if moves[i] != want[i] {
			t.Fatalf("move %d = %+v, want %+v", i, moves[i], want[i])
		}
	}
}

func TestExecuteSelectClicksFocusedElement(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if err := rig.engine.Execute(ctx, command.ActivateMenu("main")); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if err := rig.engine.Execute(ctx, command.Select()); err != nil {
		t.Fatalf("select failed: %v", err)
	}

	clicks := rig.pointer.ofKind("click")
	if len(clicks) != 1 {
		t.Fatalf("got %d clicks, want 1", len(clicks))
	}
	if clicks[0].x != 100 || clicks[0].y != 200 {
		t.Fatalf("clicked (%d,%d), want (100,200)", clicks[0].x, clicks[0].y)
	}
}

func TestExecuteUnknownMenuFails(t *testing.T) {
	rig := newTestRig(t)

	err := rig.engine.Execute(context.Background(), command.ActivateMenu("ghost"))
	if err == nil {
		t.Fatal("expected error for unknown menu")
	}
	if got := rig.nav.ActiveMenu(); got != "" {
		t.Fatalf("active menu = %q, want none", got)
	}
}

func TestExecuteUnknownKindFails(t *testing.T) {
	rig := newTestRig(t)

	err := rig.engine.Execute(context.Background(), command.Command{Kind: "bogus"})
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if !strings.Contains(err.Error(), "unknown command kind") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExecuteReloadSwapsProfile(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	next := profile.Profile{
		"other": {
			IsManual:   true,
			ResetIndex: true,
			Items:      []profile.Element{{Name: "Only", Type: "message"}},
		},
	}
	path := filepath.Join(t.TempDir(), "next.json")
	if err := next.Save(path); err != nil {
		t.Fatalf("save profile: %v", err)
	}

	if err := rig.engine.Execute(ctx, command.Reload(path)); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	p := rig.nav.Profile()
	if p.Menu("other") == nil {
		t.Fatal("reloaded profile missing menu other")
	}
	if p.Menu("main") != nil {
		t.Fatal("old profile still active after reload")
	}
}

func TestExecuteReloadFailureKeepsProfile(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := rig.engine.Execute(ctx, command.Reload(path)); err == nil {
		t.Fatal("expected error for broken profile")
	}
	if rig.nav.Profile().Menu("main") == nil {
		t.Fatal("running profile was dropped on a failed reload")
	}
}

func TestExecuteDetectedEmitsMenuChanged(t *testing.T) {
	rig := newTestRig(t)

	var mu sync.Mutex
	var got []events.MenuChanged
	sub := events.Subscribe(rig.bus, events.TopicMenuChanged, func(_ context.Context, m events.MenuChanged) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, m)
		return nil
	})
	defer sub.Unsubscribe()

	if err := rig.engine.Execute(context.Background(), command.Detected("main")); err != nil {
		t.Fatalf("detected failed: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if got[0].MenuID != "main" || got[0].Previous != "" || got[0].Manual {
		t.Fatalf("unexpected event: %+v", got[0])
	}
}

func TestTickEnqueuesDetectionOnce(t *testing.T) {
	rig := newTestRig(t)
	rig.screen.set(4, 4, color.RGBA{R: 255, A: 255})
	handle := rig.engine.capture.NewHandle()

	if !rig.engine.tick(handle) {
		t.Fatal("tick saw no change on a matching screen")
	}
	if n := rig.engine.Queue().Pending(); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}

	// The queued command counts as in flight, so the next tick must not
	// stack a duplicate behind it.
	if rig.engine.tick(handle) {
		t.Fatal("tick re-detected while a command was queued")
	}
	if n := rig.engine.Queue().Pending(); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}
}

func TestTickRespectsDetectingFlag(t *testing.T) {
	rig := newTestRig(t)
	rig.screen.set(4, 4, color.RGBA{R: 255, A: 255})
	handle := rig.engine.capture.NewHandle()

	rig.engine.SetDetecting(false)
	if rig.engine.tick(handle) {
		t.Fatal("tick detected while detection was paused")
	}
	if n := rig.engine.Queue().Pending(); n != 0 {
		t.Fatalf("pending = %d, want 0", n)
	}

	rig.engine.SetDetecting(true)
	if !rig.engine.tick(handle) {
		t.Fatal("tick saw no change after detection resumed")
	}
}

func TestNextIntervalBacksOff(t *testing.T) {
	rig := newTestRig(t, WithIntervals(10*time.Millisecond, 50*time.Millisecond), WithIdleThreshold(3))

	cases := []struct {
		idle int
		want time.Duration
	}{
		{0, 10 * time.Millisecond},
		{3, 10 * time.Millisecond},
		{4, 20 * time.Millisecond},
		{5, 30 * time.Millisecond},
		{7, 50 * time.Millisecond},
		{50, 50 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := rig.engine.nextInterval(tc.idle); got != tc.want {
			t.Errorf("nextInterval(%d) = %v, want %v", tc.idle, got, tc.want)
		}
	}
}

func TestStatusSnapshot(t *testing.T) {
	rig := newTestRig(t)

	if err := rig.engine.Execute(context.Background(), command.ActivateMenu("main")); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	st := rig.engine.Status()
	if !st.Detecting {
		t.Error("detecting = false, want true")
	}
	if st.ActiveMenu != "main" || st.RootMenu != "main" {
		t.Errorf("active %q root %q, want main/main", st.ActiveMenu, st.RootMenu)
	}
	if st.PointerBackend != "fake" {
		t.Errorf("pointer backend = %q, want fake", st.PointerBackend)
	}

	rig.engine.SetDetecting(false)
	if rig.engine.Status().Detecting {
		t.Error("detecting = true after pause")
	}
}

func TestRunDetectsAndAnnouncesEndToEnd(t *testing.T) {
	rig := newTestRig(t, WithIntervals(2*time.Millisecond, 10*time.Millisecond))
	rig.screen.set(4, 4, color.RGBA{R: 255, A: 255})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rig.engine.Run(ctx)
	}()

	waitFor(t, func() bool { return rig.nav.RootMenu() == "main" })
	waitFor(t, func() bool {
		return rig.synth.said("main") && rig.synth.said("Play, button, 1 of 2")
	})
	waitFor(t, func() bool { return len(rig.pointer.ofKind("move")) >= 1 })

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
