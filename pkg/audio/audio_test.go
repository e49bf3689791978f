package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-shesafe/pkg/alert"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestVolume(t *testing.T) {
	tests := []struct {
		name  string
		chunk Chunk
		loud  bool
	}{
		{"empty", Chunk{}, false},
		{"silence", Tone(100, 0), false},
		{"quiet", Tone(100, 0.1), false},
		{"loud", Tone(100, 0.5), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := Volume(tc.chunk)
			if got := v > DefaultThreshold; got != tc.loud {
				t.Errorf("Volume = %v, loud = %v, want %v", v, got, tc.loud)
			}
		})
	}
}

func TestFromBytes(t *testing.T) {
	c := FromBytes([]byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80}, 16000)
	want := []int16{1, -1, -32768}
	if len(c.Samples) != len(want) {
		t.Fatalf("got %d samples", len(c.Samples))
	}
	for i := range want {
		if c.Samples[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, c.Samples[i], want[i])
		}
	}
}

func TestAnomalyDetector_EdgeTriggered(t *testing.T) {
	d := NewAnomalyDetector(0, 0)
	loud := Tone(100, 0.5)

	if d.Detected() {
		t.Fatal("detected before any audio")
	}

	d.Observe(loud, t0)
	if !d.Detected() {
		t.Fatal("loud chunk not detected")
	}
	if d.Detected() {
		t.Fatal("Detected should clear the flag")
	}

	// Within the refractory period nothing new is raised.
	d.Observe(loud, t0.Add(time.Second))
	if d.Detected() {
		t.Error("anomaly raised inside refractory period")
	}

	d.Observe(loud, t0.Add(1600*time.Millisecond))
	if !d.Detected() {
		t.Error("anomaly after refractory period not raised")
	}
}

func TestAnomalyDetector_QuietIgnored(t *testing.T) {
	d := NewAnomalyDetector(0, 0)
	d.Observe(Tone(100, 0.1), t0)
	if d.Detected() {
		t.Error("quiet chunk raised an anomaly")
	}
}

func TestAnomalyDetector_Run(t *testing.T) {
	src := NewMockSource(Tone(100, 0), Tone(100, 0.5))
	d := NewAnomalyDetector(0, 0)

	if err := d.Run(context.Background(), src, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !d.Detected() {
		t.Error("Run did not observe the loud chunk")
	}
}

func TestPlayer(t *testing.T) {
	var (
		mu    sync.Mutex
		calls [][]string
	)
	run := func(ctx context.Context, name string, args ...string) error {
		mu.Lock()
		calls = append(calls, append([]string{name}, args...))
		mu.Unlock()
		return nil
	}

	p := NewPlayer(DefaultSounds("sounds"), WithCommand("ffplay", "-nodisp", "-autoexit"), WithRunner(run))
	p.Play(alert.SoundSOS)
	p.Play("no-such-sound")
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 1 {
		t.Fatalf("got %d runs, want 1", len(calls))
	}
	want := []string{"ffplay", "-nodisp", "-autoexit", "sounds/sos.wav"}
	for i := range want {
		if calls[0][i] != want[i] {
			t.Errorf("arg %d = %q, want %q", i, calls[0][i], want[i])
		}
	}
}

func TestPlayer_NewSoundInterrupts(t *testing.T) {
	started := make(chan struct{})
	interrupted := make(chan struct{})
	first := true
	var mu sync.Mutex

	run := func(ctx context.Context, name string, args ...string) error {
		mu.Lock()
		isFirst := first
		first = false
		mu.Unlock()
		if !isFirst {
			return nil
		}
		close(started)
		<-ctx.Done()
		close(interrupted)
		return errors.New("killed")
	}

	p := NewPlayer(DefaultSounds("sounds"), WithRunner(run))
	p.Play(alert.SoundIsolated)
	<-started
	p.Play(alert.SoundHighRisk)

	select {
	case <-interrupted:
	case <-time.After(time.Second):
		t.Fatal("first sound was not interrupted")
	}
	p.Stop()
}

func TestDefaultSounds_CoversPolicies(t *testing.T) {
	sounds := DefaultSounds("sounds")
	for kind, p := range alert.DefaultPolicies() {
		t.Run(string(kind), func(t *testing.T) {
			if _, ok := sounds[p.Sound]; !ok {
				t.Errorf("no file for sound %q", p.Sound)
			}
		})
	}
	if got, want := sounds[alert.SoundSOS], "sounds/sos.wav"; got != want {
		t.Errorf("sos = %q, want %q", got, want)
	}
}
