package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-shesafe/pkg/alert"
)

// database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// SQL is a ledger stored in an "alerts" table.
type SQL struct {
	db     *sql.DB
	driver string
}

// OpenSQL connects to dsn with driver and creates the alerts table if needed.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQL, error) {
	if dsn == "" {
		return nil, fmt.Errorf("ledger: %s: empty dsn", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite allows one writer; a single connection serializes appends.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: ping %s: %w", driver, err)
	}

	l := &SQL{db: db, driver: driver}
	if err := l.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQL) migrate(ctx context.Context) error {
	seq := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if l.driver == DriverPostgres {
		seq = "BIGSERIAL PRIMARY KEY"
	}
	stmt := `CREATE TABLE IF NOT EXISTS alerts (
		seq ` + seq + `,
		id TEXT NOT NULL,
		ts TEXT NOT NULL,
		camera_id TEXT NOT NULL,
		alert_type TEXT NOT NULL,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		severity TEXT NOT NULL,
		risk DOUBLE PRECISION NOT NULL
	)`
	if _, err := l.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("ledger: migrate: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (l *SQL) rebind(q string) string {
	if l.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (l *SQL) Append(ctx context.Context, ev alert.Event) error {
	q := l.rebind(`INSERT INTO alerts (id, ts, camera_id, alert_type, latitude, longitude, severity, risk)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := l.db.ExecContext(ctx, q,
		ev.ID,
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		ev.Camera,
		string(ev.Kind),
		ev.Lat,
		ev.Lon,
		string(ev.Severity),
		ev.Risk,
	)
	if err != nil {
		return fmt.Errorf("ledger: insert: %w", err)
	}
	return nil
}

func (l *SQL) All(ctx context.Context) ([]alert.Event, error) {
	return l.query(ctx, `SELECT id, ts, camera_id, alert_type, latitude, longitude, severity, risk
		FROM alerts ORDER BY seq ASC`)
}

func (l *SQL) Recent(ctx context.Context, n int) ([]alert.Event, error) {
	if n <= 0 {
		return []alert.Event{}, nil
	}
	return l.query(ctx, l.rebind(`SELECT id, ts, camera_id, alert_type, latitude, longitude, severity, risk
		FROM alerts ORDER BY seq DESC LIMIT ?`), n)
}

func (l *SQL) query(ctx context.Context, q string, args ...any) ([]alert.Event, error) {
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: query: %w", err)
	}
	defer rows.Close()

	events := []alert.Event{}
	for rows.Next() {
		var (
			ev            alert.Event
			ts, kind, sev string
		)
		if err := rows.Scan(&ev.ID, &ts, &ev.Camera, &kind, &ev.Lat, &ev.Lon, &sev, &ev.Risk); err != nil {
			return nil, fmt.Errorf("ledger: scan: %w", err)
		}
		ev.Kind = alert.Kind(kind)
		ev.Severity = alert.Severity(sev)
		ev.Timestamp = parseTime(ts)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: rows: %w", err)
	}
	return events, nil
}

func (l *SQL) Close() error {
	return l.db.Close()
}
