package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSynth struct {
	name string
	fail bool

	mu     sync.Mutex
	spoken []string
	starts []time.Time
}

func (f *fakeSynth) Name() string { return f.name }

func (f *fakeSynth) Speak(_ context.Context, text string) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	f.starts = append(f.starts, time.Now())
	f.mu.Unlock()
	if f.fail {
		return errors.New("synth exploded")
	}
	return nil
}

func (f *fakeSynth) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

func (f *fakeSynth) startTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.starts...)
}

func runQueue(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go q.Run(ctx)
}

func TestSpeaksInOrder(t *testing.T) {
	synth := &fakeSynth{name: "fake"}
	q := NewQueue(WithFactory(func() Synthesizer { return synth }), WithMinGap(0))
	runQueue(t, q)

	q.Say("one")
	q.Say("two")
	q.Say("three")

	require.Eventually(t, func() bool {
		return len(synth.snapshot()) == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"one", "two", "three"}, synth.snapshot())
	assert.Equal(t, 0, q.Pending())
}

func TestMinimumSpacing(t *testing.T) {
	synth := &fakeSynth{name: "fake"}
	q := NewQueue(WithFactory(func() Synthesizer { return synth }), WithMinGap(60*time.Millisecond))
	q.SayAll([]string{"a", "b", "c"})
	runQueue(t, q)

	require.Eventually(t, func() bool {
		return len(synth.snapshot()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	starts := synth.startTimes()
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		assert.GreaterOrEqual(t, gap, 50*time.Millisecond, "utterance %d started too soon", i)
	}
}

func TestFailureReinitializesEngine(t *testing.T) {
	bad := &fakeSynth{name: "bad", fail: true}
	good := &fakeSynth{name: "good"}
	synths := []Synthesizer{bad, good}
	var mu sync.Mutex
	builds := 0
	factory := func() Synthesizer {
		mu.Lock()
		defer mu.Unlock()
		s := synths[0]
		if len(synths) > 1 {
			synths = synths[1:]
		}
		builds++
		return s
	}

	q := NewQueue(WithFactory(factory), WithMinGap(0), WithReinitCooldown(0))
	runQueue(t, q)

	q.Say("first")
	q.Say("second")

	require.Eventually(t, func() bool {
		return len(good.snapshot()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"first"}, bad.snapshot(), "failed utterance is dropped, not retried")
	assert.Equal(t, []string{"second"}, good.snapshot())
	assert.Equal(t, "good", q.Engine())
	mu.Lock()
	assert.Equal(t, 2, builds)
	mu.Unlock()
}

func TestReinitGatedByCooldown(t *testing.T) {
	bad := &fakeSynth{name: "bad", fail: true}
	var mu sync.Mutex
	builds := 0
	factory := func() Synthesizer {
		mu.Lock()
		builds++
		mu.Unlock()
		return bad
	}

	q := NewQueue(WithFactory(factory), WithMinGap(0), WithReinitCooldown(time.Hour))
	runQueue(t, q)

	q.SayAll([]string{"a", "b", "c"})
	require.Eventually(t, func() bool {
		return len(bad.snapshot()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, builds, "one build at construction, one reinit inside the cooldown window")
}

func TestEmptyUtterancesIgnored(t *testing.T) {
	q := NewQueue(WithFactory(func() Synthesizer { return &fakeSynth{name: "fake"} }))
	q.Say("")
	q.Say("   ")
	assert.Equal(t, 0, q.Pending())
}

func TestRunStopsOnCancel(t *testing.T) {
	q := NewQueue(WithFactory(func() Synthesizer { return &fakeSynth{name: "fake"} }))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
