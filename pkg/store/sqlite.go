package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/chatkeep/chatkeep/internal/appdir"
	"github.com/chatkeep/chatkeep/internal/observability"
	"github.com/chatkeep/chatkeep/internal/tracing"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const sqliteDBName = "chatkeep.db"

// SQLiteStore keeps sessions in a single database file instead of one file
// per record. It implements the same Store contract as FileStore so hosts
// can swap backends through configuration alone: id synthesis, id-overwrite
// on list, the fixed not-found message on load, and the failure on deleting
// a missing session all behave identically.
type SQLiteStore struct {
	dirs   appdir.Provider
	dbOnce sync.Once
	dbErr  error

	mu sync.Mutex
	db *sql.DB
}

// NewSQLite creates a SQLite-backed session store. The database file lives
// directly under the storage root and is created on first use.
func NewSQLite(dirs appdir.Provider) *SQLiteStore {
	observability.EnsureRegistered()
	return &SQLiteStore{dirs: dirs}
}

func (s *SQLiteStore) conn() (*sql.DB, error) {
	s.dbOnce.Do(func() {
		root, err := s.dirs.StorageRoot()
		if err != nil {
			s.dbErr = err
			return
		}
		if err := os.MkdirAll(root, dirPermMode); err != nil {
			s.dbErr = err
			return
		}

		db, err := sql.Open("sqlite3", filepath.Join(root, sqliteDBName))
		if err != nil {
			s.dbErr = err
			return
		}
		// Keep sqlite responsive when the host retries quickly.
		_, _ = db.Exec("PRAGMA busy_timeout = 5000;")
		_, _ = db.Exec("PRAGMA journal_mode = WAL;")
		_, _ = db.Exec("PRAGMA synchronous = NORMAL;")

		schema := `CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		);`
		if _, err := db.Exec(schema); err != nil {
			_ = db.Close()
			s.dbErr = err
			return
		}

		s.mu.Lock()
		s.db = db
		s.mu.Unlock()
	})
	if s.dbErr != nil {
		return nil, s.dbErr
	}

	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, errors.New("sqlite store unavailable")
	}
	return db, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, session any) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "chatkeep.store", "store.save",
		attribute.String("backend", "sqlite"))
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordSessionSave(time.Since(start))
	}()

	obj, ok := session.(map[string]any)
	if !ok || obj == nil {
		span.SetStatus(codes.Error, ErrInvalidFormat.Error())
		return "", ErrInvalidFormat
	}

	id, _ := obj["id"].(string)
	if id == "" {
		id = NewSessionID()
	}
	if err := validateID(id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	record := make(map[string]any, len(obj)+1)
	for k, v := range obj {
		record[k] = v
	}
	record["id"] = id

	body, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", ioError("serialize session", err)
	}

	db, err := s.conn()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", ioError("open session database", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO sessions (id, body, created_at_ms) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET body = excluded.body`,
		id, string(body), time.Now().UnixMilli())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", ioError("write session row", err)
	}

	s.updateActiveSessionsMetric(ctx, db)
	return id, nil
}

// List implements Store. Rows whose body no longer parses are skipped; the
// row id overrides whatever id the body claims, and created_at_ms stands in
// for a missing timestamp the way file metadata does for FileStore.
func (s *SQLiteStore) List(ctx context.Context) ([]any, error) {
	ctx, span := tracing.StartSpan(ctx, "chatkeep.store", "store.list",
		attribute.String("backend", "sqlite"))
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordSessionList(time.Since(start))
	}()

	sessions := []any{}

	db, err := s.conn()
	if err != nil {
		return sessions, nil
	}
	rows, err := db.QueryContext(ctx, `SELECT id, body, created_at_ms FROM sessions`)
	if err != nil {
		return sessions, nil
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id        string
			body      string
			createdMS int64
		)
		if err := rows.Scan(&id, &body, &createdMS); err != nil {
			continue
		}

		var record any
		if err := json.Unmarshal([]byte(body), &record); err != nil {
			continue
		}

		if obj, ok := record.(map[string]any); ok {
			obj["id"] = id
			if _, hasTS := obj["timestamp"]; !hasTS {
				obj["timestamp"] = float64(createdMS)
			}
		}

		sessions = append(sessions, record)
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return effectiveTimestamp(sessions[i]) > effectiveTimestamp(sessions[j])
	})

	observability.SetActiveSessions(len(sessions))
	return sessions, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, id string) (any, error) {
	ctx, span := tracing.StartSpan(ctx, "chatkeep.store", "store.load",
		attribute.String("backend", "sqlite"))
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordSessionLoad(time.Since(start))
	}()

	if err := validateID(id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	db, err := s.conn()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, ErrNotFound
	}

	var body string
	err = db.QueryRowContext(ctx, `SELECT body FROM sessions WHERE id = ?`, id).Scan(&body)
	if err != nil {
		span.SetStatus(codes.Error, ErrNotFound.Error())
		return nil, ErrNotFound
	}

	var record any
	if err := json.Unmarshal([]byte(body), &record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, parseError(err)
	}

	return record, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "chatkeep.store", "store.delete",
		attribute.String("backend", "sqlite"))
	defer span.End()

	if err := validateID(id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordSessionDelete(false)
		return err
	}

	db, err := s.conn()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordSessionDelete(false)
		return ioError("open session database", err)
	}

	res, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordSessionDelete(false)
		return ioError("delete session row", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		observability.RecordSessionDelete(false)
		return ioError("delete session row", errors.New("no such session"))
	}

	s.updateActiveSessionsMetric(ctx, db)
	observability.RecordSessionDelete(true)
	return nil
}

func (s *SQLiteStore) updateActiveSessionsMetric(ctx context.Context, db *sql.DB) {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count); err != nil {
		return
	}
	observability.SetActiveSessions(count)
}
