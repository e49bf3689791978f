package worker

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-shesafe/pkg/alert"
	"github.com/teslashibe/go-shesafe/pkg/camera"
	"github.com/teslashibe/go-shesafe/pkg/state"
	"github.com/teslashibe/go-shesafe/pkg/vision"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type emitted struct {
	origin alert.Origin
	kind   alert.Kind
}

type mockEmitter struct {
	mu    sync.Mutex
	calls []emitted
}

func (m *mockEmitter) Emit(ctx context.Context, origin alert.Origin, kind alert.Kind) (alert.Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, emitted{origin, kind})
	return alert.Event{}, true
}

func (m *mockEmitter) Kinds() []alert.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []alert.Kind
	for _, c := range m.calls {
		out = append(out, c.kind)
	}
	return out
}

type mockSignal struct{ pending atomic.Bool }

func (m *mockSignal) Detected() bool { return m.pending.CompareAndSwap(true, false) }

type mockRecorder struct {
	mu         sync.Mutex
	frames     int
	reconnects int
	states     []string
}

func (m *mockRecorder) FrameProcessed(camera string, men, women int) {
	m.mu.Lock()
	m.frames++
	m.mu.Unlock()
}

func (m *mockRecorder) SourceReconnect(camera string) {
	m.mu.Lock()
	m.reconnects++
	m.mu.Unlock()
}

func (m *mockRecorder) WorkerState(camera, state string, all []string) {
	m.mu.Lock()
	m.states = append(m.states, state)
	m.mu.Unlock()
}

func (m *mockRecorder) Reconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnects
}

var cam = camera.Descriptor{ID: "cam1", Location: "Gate", Lat: 17.385, Lon: 78.4867, Source: camera.Device(0)}

func box(x, y, w, h int) image.Rectangle { return image.Rect(x, y, x+w, y+h) }

func persons(boxes ...image.Rectangle) *vision.MockDetector {
	return &vision.MockDetector{DetectFunc: func(*camera.Frame) ([]vision.Detection, error) {
		out := make([]vision.Detection, len(boxes))
		for i, b := range boxes {
			out[i] = vision.Detection{Box: b, Confidence: 0.9}
		}
		return out, nil
	}}
}

func newTestWorker(p vision.Pipeline, e Emitter, clk *clock, opts ...Option) (*Worker, *state.Store) {
	store := state.NewStore()
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	return New(cam, camera.DefaultCapture(), nil, p, e, store, opts...), store
}

func TestProcess_IsolationFiresOncePerEpisode(t *testing.T) {
	clk := newClock()
	woman := box(100, 100, 100, 200)
	ledger := &alert.MemoryLedger{}
	coord := alert.NewCoordinator(alert.WithLedger(ledger), alert.WithClock(clk.Now))

	w, _ := newTestWorker(vision.Pipeline{
		Persons: persons(woman),
		Gender:  &vision.MockClassifier{Genders: map[image.Rectangle]vision.Gender{woman: vision.Female}},
	}, coord, clk)

	frame := &camera.Frame{JPEG: []byte{0xff, 0xd8}}
	for i := 0; i < 10; i++ {
		w.process(context.Background(), frame)
		clk.Advance(500 * time.Millisecond)
	}

	events := ledger.Events()
	if len(events) != 1 {
		t.Fatalf("ledger has %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Kind != alert.KindWomanIsolated || ev.Severity != alert.SeverityLow || ev.Camera != "cam1" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Lat != cam.Lat || ev.Lon != cam.Lon {
		t.Errorf("event location = %v,%v", ev.Lat, ev.Lon)
	}
}

func TestProcess_Surrounded(t *testing.T) {
	clk := newClock()
	woman := box(300, 100, 100, 200)
	men := []image.Rectangle{box(200, 100, 100, 200), box(400, 100, 100, 200), box(300, 150, 100, 200)}
	genders := map[image.Rectangle]vision.Gender{woman: vision.Female}
	for _, m := range men {
		genders[m] = vision.Male
	}

	e := &mockEmitter{}
	w, store := newTestWorker(vision.Pipeline{
		Persons: persons(append([]image.Rectangle{woman}, men...)...),
		Gender:  &vision.MockClassifier{Genders: genders},
	}, e, clk)

	frame := &camera.Frame{}
	w.process(context.Background(), frame)
	clk.Advance(1100 * time.Millisecond)
	w.process(context.Background(), frame)

	kinds := e.Kinds()
	if len(kinds) != 1 || kinds[0] != alert.KindWomanSurrounded {
		t.Errorf("emitted %v, want [WOMAN_SURROUNDED]", kinds)
	}
	if got := store.Stats.Get(); got.Persons != 4 || got.Women != 1 {
		t.Errorf("stats = %+v, want 4 persons 1 woman", got)
	}
}

func TestProcess_GestureIsEdgeTriggered(t *testing.T) {
	clk := newClock()
	seq := []vision.Gesture{
		vision.GestureTuckThumb,
		vision.GestureTuckThumb,
		vision.GestureNone,
		vision.GestureTrapThumb,
		vision.GestureTrapThumb,
		vision.GestureTuckThumb,
	}
	i := 0
	e := &mockEmitter{}
	w, _ := newTestWorker(vision.Pipeline{
		Gesture: &vision.MockGesture{DetectFunc: func(*camera.Frame) (vision.Gesture, error) {
			g := seq[i]
			i++
			return g, nil
		}},
	}, e, clk)

	for range seq {
		w.process(context.Background(), &camera.Frame{})
	}

	want := []alert.Kind{alert.KindTuckThumb, alert.KindTrapThumb, alert.KindTuckThumb}
	got := e.Kinds()
	if len(got) != len(want) {
		t.Fatalf("emitted %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("emit %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestProcess_GestureErrorKeepsLastGesture(t *testing.T) {
	clk := newClock()
	type result struct {
		g   vision.Gesture
		err error
	}
	seq := []result{
		{vision.GestureTuckThumb, nil},
		{vision.GestureNone, errors.New("model busy")},
		{vision.GestureTuckThumb, nil},
		{vision.GestureNone, nil},
		{vision.GestureTuckThumb, nil},
	}
	i := 0
	e := &mockEmitter{}
	w, _ := newTestWorker(vision.Pipeline{
		Gesture: &vision.MockGesture{DetectFunc: func(*camera.Frame) (vision.Gesture, error) {
			r := seq[i]
			i++
			return r.g, r.err
		}},
	}, e, clk)

	for range seq {
		w.process(context.Background(), &camera.Frame{})
	}

	// The held gesture survives the failed tick; only the real release
	// lets it fire again.
	if got := e.Kinds(); len(got) != 2 {
		t.Errorf("emitted %v, want two TUCK_THUMB", got)
	}
}

func TestProcess_SkipsSmallAndUnknown(t *testing.T) {
	clk := newClock()
	small := box(0, 0, 50, 300)
	unknown := box(200, 0, 100, 200)
	annot := &vision.MockAnnotator{}
	classified := 0

	w, store := newTestWorker(vision.Pipeline{
		Persons: persons(small, unknown),
		Gender: &vision.MockClassifier{ClassifyFunc: func(_ *camera.Frame, b image.Rectangle) (vision.Gender, error) {
			classified++
			if b == small {
				return vision.Female, nil
			}
			return vision.Unknown, nil
		}},
		Annotator: annot,
	}, &mockEmitter{}, clk)

	w.process(context.Background(), &camera.Frame{JPEG: []byte("jpeg")})

	if classified != 1 {
		t.Errorf("classified %d boxes, want 1", classified)
	}
	if got := store.Stats.Get(); got.Persons != 0 || got.Women != 0 {
		t.Errorf("stats = %+v, want zero", got)
	}
	calls := annot.Calls()
	if len(calls) != 1 || len(calls[0].Persons) != 1 || calls[0].Persons[0].Gender != vision.Unknown {
		t.Errorf("annotate calls = %+v", calls)
	}
	if fr, ok := store.Frames.Latest("cam1"); !ok || string(fr.JPEG) != "jpeg" {
		t.Errorf("latest frame = %+v, %v", fr, ok)
	}
}

func TestProcess_DetectionErrorContinues(t *testing.T) {
	clk := newClock()
	e := &mockEmitter{}
	w, store := newTestWorker(vision.Pipeline{
		Persons: &vision.MockDetector{DetectFunc: func(*camera.Frame) ([]vision.Detection, error) {
			return nil, errors.New("inference timeout")
		}},
		Gesture: &vision.MockGesture{DetectFunc: func(*camera.Frame) (vision.Gesture, error) {
			return vision.GestureTuckThumb, nil
		}},
	}, e, clk)

	w.process(context.Background(), &camera.Frame{})

	if _, ok := store.Heartbeats.Last("cam1"); !ok {
		t.Error("heartbeat not recorded")
	}
	if k := e.Kinds(); len(k) != 1 || k[0] != alert.KindTuckThumb {
		t.Errorf("emitted %v", k)
	}
}

func TestProcess_AudioAnomaly(t *testing.T) {
	clk := newClock()
	sig := &mockSignal{}
	e := &mockEmitter{}
	w, _ := newTestWorker(vision.Pipeline{}, e, clk, WithAudio(sig))

	w.process(context.Background(), &camera.Frame{})
	sig.pending.Store(true)
	w.process(context.Background(), &camera.Frame{})
	w.process(context.Background(), &camera.Frame{})

	if k := e.Kinds(); len(k) != 1 || k[0] != alert.KindHighRiskAudio {
		t.Errorf("emitted %v, want one HIGH_RISK_AUDIO", k)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRun_ProcessesUntilCancelled(t *testing.T) {
	var frames atomic.Int32
	src := &camera.MockSource{NextFunc: func(ctx context.Context) (camera.Frame, error) {
		if frames.Add(1)%2 == 0 {
			return camera.Frame{}, camera.ErrNoFrame
		}
		return camera.Frame{JPEG: []byte("x"), Width: 640, Height: 480}, nil
	}}
	open := func(ctx context.Context, d camera.Descriptor, c camera.Capture) (camera.Source, error) {
		return src, nil
	}

	rec := &mockRecorder{}
	store := state.NewStore()
	w := New(cam, camera.DefaultCapture(), open, vision.Pipeline{}, &mockEmitter{}, store,
		WithRecorder(rec),
		WithConfig(Config{MinCrop: 80, MaxMisses: 100, IdleBackoff: time.Millisecond, Retry: camera.Retry{Attempts: 1}}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, func() bool { return frames.Load() > 10 })
	if s := w.State(); s != StateRunning {
		t.Errorf("State = %s, want RUNNING", s)
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
	if s := w.State(); s != StateStopped {
		t.Errorf("State = %s, want STOPPED", s)
	}
	if !src.Closed() {
		t.Error("source not closed")
	}
	if _, ok := store.Heartbeats.Last("cam1"); !ok {
		t.Error("no heartbeat")
	}
	if fr, ok := store.Frames.Latest("cam1"); !ok || fr.Width != 640 {
		t.Errorf("latest frame = %+v, %v", fr, ok)
	}
}

func TestRun_OpenFailure(t *testing.T) {
	open := func(ctx context.Context, d camera.Descriptor, c camera.Capture) (camera.Source, error) {
		return nil, errors.New("no such device")
	}
	rec := &mockRecorder{}
	w := New(cam, camera.DefaultCapture(), open, vision.Pipeline{}, &mockEmitter{}, state.NewStore(),
		WithRecorder(rec),
		WithConfig(Config{Retry: camera.Retry{Attempts: 2, Backoff: time.Millisecond}}))

	err := w.Run(context.Background())
	if !errors.Is(err, camera.ErrSourceUnavailable) {
		t.Fatalf("Run = %v, want ErrSourceUnavailable", err)
	}
	if w.State() != StateFailed || w.Err() == nil {
		t.Errorf("State = %s, Err = %v", w.State(), w.Err())
	}
	if len(rec.states) != 2 || rec.states[0] != "STARTING" || rec.states[1] != "FAILED" {
		t.Errorf("recorded states = %v", rec.states)
	}
}

func TestRun_ReopensAfterMisses(t *testing.T) {
	var opens atomic.Int32
	open := func(ctx context.Context, d camera.Descriptor, c camera.Capture) (camera.Source, error) {
		opens.Add(1)
		return &camera.MockSource{}, nil
	}
	rec := &mockRecorder{}
	w := New(cam, camera.DefaultCapture(), open, vision.Pipeline{}, &mockEmitter{}, state.NewStore(),
		WithRecorder(rec),
		WithConfig(Config{MaxMisses: 3, IdleBackoff: time.Millisecond, Retry: camera.Retry{Attempts: 1}}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, func() bool { return opens.Load() >= 3 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run = %v", err)
	}
	if rec.Reconnects() < 2 {
		t.Errorf("reconnects = %d, want >= 2", rec.Reconnects())
	}
}

func TestGroup(t *testing.T) {
	ok := func(ctx context.Context, d camera.Descriptor, c camera.Capture) (camera.Source, error) {
		return &camera.MockSource{}, nil
	}
	bad := func(ctx context.Context, d camera.Descriptor, c camera.Capture) (camera.Source, error) {
		return nil, errors.New("gone")
	}
	cfg := Config{MaxMisses: 0, IdleBackoff: time.Millisecond, Retry: camera.Retry{Attempts: 1}}
	store := state.NewStore()
	good := New(cam, camera.DefaultCapture(), ok, vision.Pipeline{}, &mockEmitter{}, store, WithConfig(cfg))
	broken := New(camera.Descriptor{ID: "cam2"}, camera.DefaultCapture(), bad, vision.Pipeline{}, &mockEmitter{}, store, WithConfig(cfg))
	g := NewGroup(good, broken)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan []error, 1)
	go func() { done <- g.Run(ctx) }()

	waitFor(t, func() bool {
		s := g.States()
		return s["cam1"] == StateRunning && s["cam2"] == StateFailed
	})
	cancel()

	errs := <-done
	if len(errs) != 1 || !errors.Is(errs[0], camera.ErrSourceUnavailable) {
		t.Errorf("errors = %v", errs)
	}
}
