package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-shesafe/pkg/alert"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func event(camera string, kind alert.Kind, i int) alert.Event {
	return alert.NewEvent(camera, kind, alert.SeverityMedium, 17.3850, 78.4867, t0.Add(time.Duration(i)*time.Second))
}

func TestCSV_MissingFileIsEmpty(t *testing.T) {
	l, err := NewCSV(filepath.Join(t.TempDir(), "alerts.csv"))
	if err != nil {
		t.Fatalf("NewCSV: %v", err)
	}

	events, err := l.All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}

func TestCSV_AppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "alerts.csv")
	l, err := NewCSV(path)
	if err != nil {
		t.Fatalf("NewCSV: %v", err)
	}
	ctx := context.Background()

	kinds := []alert.Kind{alert.KindWomanIsolated, alert.KindWomanSurrounded, alert.KindTuckThumb}
	for i, k := range kinds {
		if err := l.Append(ctx, event("cam1", k, i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 4 {
		t.Fatalf("file has %d lines, want header + 3", len(lines))
	}
	if lines[0] != strings.Join(Header, ",") {
		t.Errorf("header = %q", lines[0])
	}

	all, err := l.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("All returned %d events, want 3", len(all))
	}
	for i, ev := range all {
		if ev.Kind != kinds[i] {
			t.Errorf("event %d kind = %s, want %s", i, ev.Kind, kinds[i])
		}
		if ev.Risk != kinds[i].Weight() {
			t.Errorf("event %d risk = %v, want %v", i, ev.Risk, kinds[i].Weight())
		}
		if !ev.Timestamp.Equal(t0.Add(time.Duration(i) * time.Second)) {
			t.Errorf("event %d timestamp = %v", i, ev.Timestamp)
		}
		if ev.ID == "" {
			t.Errorf("event %d has no id", i)
		}
	}

	recent, err := l.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 || recent[0].Kind != alert.KindTuckThumb || recent[1].Kind != alert.KindWomanSurrounded {
		t.Errorf("Recent(2) = %+v", recent)
	}
}

func TestCSV_ConcurrentAppends(t *testing.T) {
	l, err := NewCSV(filepath.Join(t.TempDir(), "alerts.csv"))
	if err != nil {
		t.Fatalf("NewCSV: %v", err)
	}
	ctx := context.Background()

	const writers, each = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				if err := l.Append(ctx, event(fmt.Sprintf("cam%d", w), alert.KindTrapThumb, i)); err != nil {
					t.Errorf("Append: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	all, err := l.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != writers*each {
		t.Errorf("got %d rows, want %d", len(all), writers*each)
	}
}

func TestReadCSV_LegacyAndBadRows(t *testing.T) {
	in := strings.Join([]string{
		"timestamp,camera_id,alert_type,latitude,longitude",
		"2026-03-01 09:00:00,cam1,WOMAN_SURROUNDED,17.385,78.4867",
		"2026-03-01 09:00:05,cam1,TUCK_THUMB,not-a-number,78.4867",
		"2026-03-01 09:00:09,cam2,TRAP_THUMB,17.386,78.4870",
		"",
	}, "\n")

	events, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (bad row skipped)", len(events))
	}
	if events[0].Risk != 3 || events[1].Risk != 5 {
		t.Errorf("risks = %v, %v; want weights 3, 5", events[0].Risk, events[1].Risk)
	}
	if events[0].Timestamp.IsZero() {
		t.Error("legacy timestamp not parsed")
	}
}

func TestReadCSV_MissingColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("timestamp,camera_id\n"))
	if err == nil {
		t.Fatal("expected error for missing columns")
	}
}

func TestCSV_Closed(t *testing.T) {
	l, _ := NewCSV(filepath.Join(t.TempDir(), "alerts.csv"))
	l.Close()
	if err := l.Append(context.Background(), event("cam1", alert.KindWomanIsolated, 0)); err != ErrClosed {
		t.Errorf("Append after Close = %v, want ErrClosed", err)
	}
}

func TestNewestFirst(t *testing.T) {
	evs := []alert.Event{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	tests := []struct {
		n    int
		want string
	}{
		{0, ""},
		{-1, ""},
		{1, "c"},
		{3, "cba"},
		{10, "cba"},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprint(tc.n), func(t *testing.T) {
			var got string
			for _, ev := range newestFirst(evs, tc.n) {
				got += ev.ID
			}
			if got != tc.want {
				t.Errorf("newestFirst(%d) = %q, want %q", tc.n, got, tc.want)
			}
		})
	}
}

func TestSQLite_RoundTrip(t *testing.T) {
	ctx := context.Background()
	l, err := Open(ctx, Config{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "alerts.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	for i, k := range []alert.Kind{alert.KindWomanIsolated, alert.KindHighRiskAudio} {
		if err := l.Append(ctx, event("cam1", k, i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	all, err := l.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 || all[0].Kind != alert.KindWomanIsolated || all[1].Risk != 5 {
		t.Errorf("All = %+v", all)
	}

	recent, err := l.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Kind != alert.KindHighRiskAudio {
		t.Errorf("Recent(1) = %+v", recent)
	}
	if !recent[0].Timestamp.Equal(t0.Add(time.Second)) {
		t.Errorf("timestamp = %v", recent[0].Timestamp)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Config{Backend: "mongo"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpen_PostgresNeedsDSN(t *testing.T) {
	if _, err := Open(context.Background(), Config{Backend: "postgres"}); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}
