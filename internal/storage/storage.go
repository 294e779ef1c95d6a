package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/angeloszaimis/heartbeat-keeper/internal/session"
	"github.com/angeloszaimis/heartbeat-keeper/pkg/logger"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const createTable = `
	CREATE TABLE IF NOT EXISTS sessions (
		proxy      TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		browser_id TEXT NOT NULL,
		profile    TEXT,
		created_at BIGINT NOT NULL
	)`

const selectSession = `
	SELECT user_id, browser_id, profile, created_at
	FROM sessions WHERE proxy = ?`

const upsertSession = `
	INSERT INTO sessions (proxy, user_id, browser_id, profile, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (proxy) DO UPDATE SET
		user_id = excluded.user_id,
		browser_id = excluded.browser_id,
		profile = excluded.profile,
		created_at = excluded.created_at`

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SQLStore is a session.Store over database/sql.
type SQLStore struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

// Open returns the store for driver together with the closer that releases
// it.
func Open(ctx context.Context, driver, dsn string, log *slog.Logger) (session.Store, io.Closer, error) {
	switch driver {
	case DriverMemory, "":
		return session.NewMemoryStore(), nopCloser{}, nil
	case DriverSQLite, DriverPostgres:
		store, err := OpenSQL(ctx, driver, dsn, log)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

func OpenSQL(ctx context.Context, driver, dsn string, log *slog.Logger) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	s := &SQLStore{
		db:     db,
		driver: driver,
		logger: log.With(slog.String("component", "storage"), slog.String("driver", driver)),
	}

	if driver == DriverSQLite {
		// A single writer avoids SQLITE_BUSY between workers.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			s.logger.Warn("Failed to set WAL mode", slog.String("error", err.Error()))
		}
	}

	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}

	s.logger.Info("Session store ready")
	return s, nil
}

func (s *SQLStore) Load(ctx context.Context, proxy string) (*session.Record, error) {
	var (
		rec       = session.Record{Proxy: proxy}
		profile   sql.NullString
		createdAt int64
	)

	err := s.db.QueryRowContext(ctx, s.rebind(selectSession), proxy).
		Scan(&rec.UserID, &rec.BrowserID, &profile, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", logger.RedactProxy(proxy), err)
	}

	if profile.Valid && profile.String != "" {
		rec.Profile = []byte(profile.String)
	}
	rec.CreatedAt = time.Unix(0, createdAt)

	return &rec, nil
}

func (s *SQLStore) Save(ctx context.Context, rec *session.Record) error {
	var profile sql.NullString
	if len(rec.Profile) > 0 {
		profile = sql.NullString{String: string(rec.Profile), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, s.rebind(upsertSession),
		rec.Proxy, rec.UserID, rec.BrowserID, profile, rec.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save session %s: %w", logger.RedactProxy(rec.Proxy), err)
	}

	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders as $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
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
