// Package ledger is the append-only durable record of accepted alerts.
//
// Two backends are provided: a CSV file (the default) and a SQL table
// (SQLite via modernc.org/sqlite or PostgreSQL via pgx).
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/teslashibe/go-shesafe/pkg/alert"
)

// ErrClosed is returned by operations on a closed ledger.
var ErrClosed = errors.New("ledger: closed")

// Ledger appends and reads alert events. Appends from concurrent callers are
// serialized; readers never see a partial record.
type Ledger interface {
	Append(ctx context.Context, ev alert.Event) error

	// All returns every event in append order. A missing or empty backing
	// store yields an empty slice, not an error.
	All(ctx context.Context) ([]alert.Event, error)

	// Recent returns up to n events, most recent first.
	Recent(ctx context.Context, n int) ([]alert.Event, error)

	Close() error
}

// Config selects and configures a backend.
type Config struct {
	// Backend is "csv", "sqlite" or "postgres".
	Backend string

	// Path is the CSV file or SQLite database path.
	Path string

	// DSN is the PostgreSQL connection string.
	DSN string
}

// Open creates the configured ledger.
func Open(ctx context.Context, cfg Config) (Ledger, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "csv":
		return NewCSV(cfg.Path)
	case "sqlite":
		return OpenSQL(ctx, DriverSQLite, cfg.Path)
	case "postgres", "pgx":
		return OpenSQL(ctx, DriverPostgres, cfg.DSN)
	default:
		return nil, fmt.Errorf("ledger: unknown backend %q", cfg.Backend)
	}
}

// newestFirst returns up to n events from events (append order), newest first.
func newestFirst(events []alert.Event, n int) []alert.Event {
	if n <= 0 {
		return []alert.Event{}
	}
	out := make([]alert.Event, 0, min(n, len(events)))
	for i := len(events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, events[i])
	}
	return out
}
