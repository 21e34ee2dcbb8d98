// Package journal persists root routine failures to sqlite so they survive
// restarts. Diagnostics only: routine state itself is never persisted.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"corun/internal/eventbus"
	logx "corun/pkg/logx"
	"corun/pkg/routine"
)

const schema = `
CREATE TABLE IF NOT EXISTS failures (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	at      TEXT NOT NULL,
	program TEXT NOT NULL,
	error   TEXT NOT NULL,
	trace   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS failures_at ON failures(at);
`

type Config struct {
	Path        string
	Keep        int
	BusyTimeout time.Duration
}

type Entry struct {
	At      time.Time
	Program string
	Error   string
	Trace   string
}

type Journal struct {
	db   *sql.DB
	log  logx.Logger
	keep int

	writes uint64
}

func Open(cfg Config, log logx.Logger) (*Journal, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("journal path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	keep := cfg.Keep
	if keep <= 0 {
		keep = 1000
	}
	return &Journal{db: db, log: log, keep: keep}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO failures(at, program, error, trace) VALUES(?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.Program, e.Error, e.Trace,
	)
	if err == nil {
		j.writes++
		if j.writes%100 == 0 {
			j.prune(ctx)
		}
	}
	return err
}

func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT at, program, error, trace FROM failures ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var at string
		if err := rows.Scan(&at, &e.Program, &e.Error, &e.Trace); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *Journal) prune(ctx context.Context) {
	_, err := j.db.ExecContext(ctx,
		`DELETE FROM failures WHERE id NOT IN (SELECT id FROM failures ORDER BY id DESC LIMIT ?)`,
		j.keep,
	)
	if err != nil && !j.log.IsZero() {
		j.log.Warn("journal prune failed", logx.Err(err))
	}
}

// Consume subscribes to routine.failed events and records each one until
// ctx is canceled. Run it on its own goroutine (the supervisor).
func (j *Journal) Consume(ctx context.Context, bus eventbus.Bus) error {
	sub := bus.Subscribe(64, routine.EventFailed)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			re, match := ev.Data.(routine.RoutineEvent)
			if !match {
				continue
			}
			e := Entry{
				At:      ev.Time,
				Program: re.Program,
				Error:   re.Error,
				Trace:   strings.Join(re.Trace, " < "),
			}
			wctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := j.Record(wctx, e); err != nil && !j.log.IsZero() {
				j.log.Warn("journal write failed", logx.Err(err))
			}
			cancel()
		}
	}
}
