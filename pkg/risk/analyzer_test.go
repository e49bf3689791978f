package risk

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)

func at(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

func TestPosition_Dist(t *testing.T) {
	if d := (Position{0, 0}).Dist(Position{3, 4}); d != 5 {
		t.Errorf("Dist = %v, want 5", d)
	}
}

func TestAnalyzer_Isolation(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())
	woman := []Position{{100, 100}}

	if ev := a.Analyze(woman, nil, at(0)); ev != None {
		t.Errorf("tick 0: got %q, want none", ev)
	}
	if start, ok := a.IsolationStart(); !ok || !start.Equal(at(0)) {
		t.Errorf("IsolationStart = %v, %v", start, ok)
	}
	if ev := a.Analyze(woman, nil, at(500)); ev != None {
		t.Errorf("tick 500ms: got %q, want none", ev)
	}
	if ev := a.Analyze(woman, nil, at(1000)); ev != Isolated {
		t.Errorf("tick 1s: got %q, want ISOLATED", ev)
	}
	if ev := a.Analyze(woman, nil, at(1500)); ev != None {
		t.Errorf("same episode should fire once, got %q", ev)
	}
}

func TestAnalyzer_IsolationResets(t *testing.T) {
	tests := []struct {
		name    string
		females []Position
		males   []Position
	}{
		{"male appears", []Position{{100, 100}}, []Position{{500, 500}}},
		{"second female appears", []Position{{100, 100}, {200, 200}}, nil},
		{"nobody", nil, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAnalyzer(DefaultConfig())
			woman := []Position{{100, 100}}

			a.Analyze(woman, nil, at(0))
			a.Analyze(woman, nil, at(900))
			if ev := a.Analyze(tc.females, tc.males, at(950)); ev != None {
				t.Fatalf("breaking tick: got %q", ev)
			}
			if _, ok := a.IsolationStart(); ok {
				t.Fatal("timer should be unset after condition breaks")
			}

			// Timer restarts from the next qualifying tick.
			if ev := a.Analyze(woman, nil, at(1000)); ev != None {
				t.Errorf("restart tick: got %q", ev)
			}
			if ev := a.Analyze(woman, nil, at(1900)); ev != None {
				t.Errorf("before new threshold: got %q", ev)
			}
			if ev := a.Analyze(woman, nil, at(2000)); ev != Isolated {
				t.Errorf("after new threshold: got %q, want ISOLATED", ev)
			}
		})
	}
}

func TestAnalyzer_NewEpisodeFiresAgain(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())
	woman := []Position{{100, 100}}

	a.Analyze(woman, nil, at(0))
	if ev := a.Analyze(woman, nil, at(1000)); ev != Isolated {
		t.Fatalf("first episode: got %q", ev)
	}
	a.Analyze(nil, nil, at(1100))
	a.Analyze(woman, nil, at(1200))
	if ev := a.Analyze(woman, nil, at(2200)); ev != Isolated {
		t.Errorf("second episode: got %q, want ISOLATED", ev)
	}
}

func TestAnalyzer_Surrounded(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())
	woman := []Position{{300, 300}}
	men := []Position{{350, 300}, {300, 350}, {250, 250}}

	if ev := a.Analyze(woman, men, at(0)); ev != None {
		t.Errorf("tick 0: got %q", ev)
	}
	if ev := a.Analyze(woman, men, at(999)); ev != None {
		t.Errorf("tick 999ms: got %q", ev)
	}
	if ev := a.Analyze(woman, men, at(1000)); ev != Surrounded {
		t.Errorf("tick 1s: got %q, want SURROUNDED", ev)
	}
	if ev := a.Analyze(woman, men, at(1200)); ev != None {
		t.Errorf("same episode should fire once, got %q", ev)
	}
}

func TestAnalyzer_SurroundedResets(t *testing.T) {
	tests := []struct {
		name  string
		males []Position
	}{
		{"one male leaves", []Position{{350, 300}, {300, 350}}},
		{"one male moves away", []Position{{350, 300}, {300, 350}, {900, 900}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAnalyzer(DefaultConfig())
			woman := []Position{{300, 300}}
			men := []Position{{350, 300}, {300, 350}, {250, 250}}

			a.Analyze(woman, men, at(0))
			a.Analyze(woman, tc.males, at(800))
			if _, ok := a.SurroundStart(); ok {
				t.Fatal("timer should be unset after neighbours drop below 3")
			}
			a.Analyze(woman, men, at(900))
			if ev := a.Analyze(woman, men, at(1000)); ev != None {
				t.Errorf("old episode should not fire, got %q", ev)
			}
			if ev := a.Analyze(woman, men, at(1900)); ev != Surrounded {
				t.Errorf("new episode: got %q, want SURROUNDED", ev)
			}
		})
	}
}

func TestAnalyzer_ManyMenFarAway(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())
	woman := []Position{{0, 0}}
	men := []Position{{500, 0}, {0, 500}, {400, 400}, {600, 600}}

	for ms := 0; ms <= 3000; ms += 500 {
		if ev := a.Analyze(woman, men, at(ms)); ev != None {
			t.Fatalf("at %dms: got %q, want none", ms, ev)
		}
	}
	if _, ok := a.SurroundStart(); ok {
		t.Error("surround timer should never start when nobody is near")
	}
}

func TestAnalyzer_AnyFemaleCanBeSurrounded(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())
	women := []Position{{0, 0}, {1000, 1000}}
	men := []Position{{1010, 1000}, {1000, 1010}, {990, 990}}

	a.Analyze(women, men, at(0))
	if ev := a.Analyze(women, men, at(1000)); ev != Surrounded {
		t.Errorf("got %q, want SURROUNDED", ev)
	}
}
