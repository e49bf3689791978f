package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-shesafe/pkg/alert"
)

// DefaultCSVPath is the ledger file used when none is configured.
const DefaultCSVPath = "alert_logs.csv"

// Header is the CSV column order written by this package.
var Header = []string{"timestamp", "camera_id", "alert_type", "latitude", "longitude", "severity", "risk", "id"}

// CSV is a ledger backed by an append-only CSV file.
type CSV struct {
	path string

	mu     sync.RWMutex
	closed bool
}

// NewCSV creates a CSV ledger at path. The file is created on first append.
func NewCSV(path string) (*CSV, error) {
	if path == "" {
		path = DefaultCSVPath
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("ledger: create directory: %w", err)
		}
	}
	return &CSV{path: path}, nil
}

// Path returns the backing file path.
func (l *CSV) Path() string { return l.path }

// Append writes ev as one CSV row, writing the header first if the file is
// new or empty.
func (l *CSV) Append(ctx context.Context, ev alert.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("ledger: open: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("ledger: stat: %w", err)
	}

	// Build the full record in memory so it reaches the file in one write.
	var buf strings.Builder
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		_ = w.Write(Header)
	}
	_ = w.Write(encodeRow(ev))
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("ledger: encode: %w", err)
	}

	if _, err := io.WriteString(f, buf.String()); err != nil {
		return fmt.Errorf("ledger: write: %w", err)
	}
	return nil
}

// All reads every row. Rows with unparsable coordinates are skipped.
func (l *CSV) All(ctx context.Context) ([]alert.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, ErrClosed
	}

	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []alert.Event{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	defer f.Close()

	return ReadCSV(f)
}

// Recent returns up to n rows, most recent first.
func (l *CSV) Recent(ctx context.Context, n int) ([]alert.Event, error) {
	all, err := l.All(ctx)
	if err != nil {
		return nil, err
	}
	return newestFirst(all, n), nil
}

// Close marks the ledger closed. The file itself is never held open.
func (l *CSV) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// ReadCSV decodes ledger rows from r. Columns are located by header name, so
// files with the older five-column layout (no severity, risk or id) load too.
func ReadCSV(r io.Reader) ([]alert.Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []alert.Event{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{"timestamp", "camera_id", "alert_type", "latitude", "longitude"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("ledger: missing column %q", required)
		}
	}

	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	events := []alert.Event{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A torn trailing line is treated as the end of the ledger.
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				continue
			}
			return nil, fmt.Errorf("ledger: read row: %w", err)
		}

		lat, errLat := strconv.ParseFloat(get(rec, "latitude"), 64)
		lon, errLon := strconv.ParseFloat(get(rec, "longitude"), 64)
		if errLat != nil || errLon != nil {
			continue
		}

		kind := alert.Kind(get(rec, "alert_type"))
		ev := alert.Event{
			ID:        get(rec, "id"),
			Camera:    get(rec, "camera_id"),
			Kind:      kind,
			Severity:  alert.Severity(get(rec, "severity")),
			Risk:      kind.Weight(),
			Lat:       lat,
			Lon:       lon,
			Timestamp: parseTime(get(rec, "timestamp")),
		}
		if risk, err := strconv.ParseFloat(get(rec, "risk"), 64); err == nil {
			ev.Risk = risk
		}
		events = append(events, ev)
	}
	return events, nil
}

func encodeRow(ev alert.Event) []string {
	return []string{
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		ev.Camera,
		string(ev.Kind),
		strconv.FormatFloat(ev.Lat, 'f', -1, 64),
		strconv.FormatFloat(ev.Lon, 'f', -1, 64),
		string(ev.Severity),
		strconv.FormatFloat(ev.Risk, 'f', -1, 64),
		ev.ID,
	}
}

// parseTime accepts RFC 3339 and the "2006-01-02 15:04:05" local layout.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.Local); err == nil {
		return t
	}
	return time.Time{}
}
