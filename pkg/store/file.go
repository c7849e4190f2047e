package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/chatkeep/chatkeep/internal/appdir"
	"github.com/chatkeep/chatkeep/internal/observability"
	"github.com/chatkeep/chatkeep/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	chatsDirName   = "chats"
	recordExt      = ".json"
	newIDPrefix    = "chat_"
	dirPermMode    = 0o755
	recordPermMode = 0o644
)

// FileStore keeps one pretty-printed JSON document per session under
// <storage root>/chats. The directory entry is the record: there is no
// in-memory state, every operation re-resolves the directory and touches
// the filesystem fresh.
type FileStore struct {
	dirs appdir.Provider
}

// NewFile creates a file-backed session store over the given directory
// provider.
func NewFile(dirs appdir.Provider) *FileStore {
	observability.EnsureRegistered()
	return &FileStore{dirs: dirs}
}

// chatsDir resolves the chats directory without creating it.
func (s *FileStore) chatsDir() (string, error) {
	root, err := s.dirs.StorageRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, chatsDirName), nil
}

// ensureChatsDir resolves the chats directory, creating it and any missing
// parents on first use.
func (s *FileStore) ensureChatsDir() (string, error) {
	dir, err := s.chatsDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, dirPermMode); err != nil {
		return "", err
	}
	return dir, nil
}

func (s *FileStore) recordPath(dir, id string) string {
	return filepath.Join(dir, id+recordExt)
}

// NewSessionID synthesizes an id for a session saved without one.
func NewSessionID() string {
	return fmt.Sprintf("%s%d", newIDPrefix, time.Now().UnixMilli())
}

// Save implements Store. The input must be a JSON object; its "id" field is
// advisory on the way in and forcibly set on disk. Concurrent saves to the
// same id race at the filesystem level and the last writer wins.
func (s *FileStore) Save(ctx context.Context, session any) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "chatkeep.store", "store.save",
		attribute.String("backend", "file"))
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

	ctx = tracing.WithSessionID(ctx, id)
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	dir, err := s.ensureChatsDir()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", ioError("create chats directory", err)
	}

	// Write a copy so the caller's map is left alone; the stored document
	// always carries the resolved id.
	record := make(map[string]any, len(obj)+1)
	for k, v := range obj {
		record[k] = v
	}
	record["id"] = id

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", ioError("serialize session", err)
	}

	if err := os.WriteFile(s.recordPath(dir, id), data, recordPermMode); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", ioError("write session file", err)
	}

	s.updateActiveSessionsMetric()
	logger.Debug().Int("bytes", len(data)).Msg("Session saved")

	return id, nil
}

// List implements Store. It never fails: unreadable or corrupt records are
// skipped and a missing directory degrades to an empty result. Every object
// record comes back with its id rewritten to the filename stem, and with a
// timestamp synthesized from file metadata when the document has none.
func (s *FileStore) List(ctx context.Context) ([]any, error) {
	ctx, span := tracing.StartSpan(ctx, "chatkeep.store", "store.list",
		attribute.String("backend", "file"))
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordSessionList(time.Since(start))
	}()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	sessions := []any{}

	dir, err := s.chatsDir()
	if err != nil {
		logger.Warn().Err(err).Msg("Storage root unresolved, listing nothing")
		return sessions, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Debug().Err(err).Msg("Chats directory unreadable, listing nothing")
		return sessions, nil
	}

	skipped := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) != recordExt {
			continue
		}
		// A file named exactly ".json" has no stem to serve as an id.
		stem := name[:len(name)-len(recordExt)]
		if stem == "" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			skipped++
			continue
		}

		var record any
		if err := json.Unmarshal(data, &record); err != nil {
			skipped++
			continue
		}

		// Filename is the authoritative identity: rewrite the id so a
		// record copied to the wrong file can never desynchronize id and
		// path. Non-object records pass through untouched.
		if obj, ok := record.(map[string]any); ok {
			obj["id"] = stem

			if _, hasTS := obj["timestamp"]; !hasTS {
				if info, err := entry.Info(); err == nil {
					obj["timestamp"] = float64(info.ModTime().UnixMilli())
				}
			}
		}

		sessions = append(sessions, record)
	}

	// Newest first. NaN compares false on both sides, so incomparable
	// timestamps fall back to equal instead of panicking.
	sort.SliceStable(sessions, func(i, j int) bool {
		return effectiveTimestamp(sessions[i]) > effectiveTimestamp(sessions[j])
	})

	observability.SetActiveSessions(len(sessions))
	logger.Debug().
		Int("sessions", len(sessions)).
		Int("skipped", skipped).
		Msg("Sessions listed")

	return sessions, nil
}

// Load implements Store. The record comes back verbatim: unlike List, no id
// or timestamp repair is applied here.
func (s *FileStore) Load(ctx context.Context, id string) (any, error) {
	ctx, span := tracing.StartSpan(ctx, "chatkeep.store", "store.load",
		attribute.String("backend", "file"))
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

	ctx = tracing.WithSessionID(ctx, id)
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	dir, err := s.chatsDir()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(s.recordPath(dir, id))
	if err != nil {
		// The OS detail stays out of the error: the host UI shows this
		// message directly.
		logger.Debug().Err(err).Msg("Session file unreadable")
		span.SetStatus(codes.Error, ErrNotFound.Error())
		return nil, ErrNotFound
	}

	var record any
	if err := json.Unmarshal(data, &record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, parseError(err)
	}

	logger.Debug().Msg("Session loaded")
	return record, nil
}

// Delete implements Store. Removal is immediate and irreversible; deleting
// a missing session reports the underlying failure.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "chatkeep.store", "store.delete",
		attribute.String("backend", "file"))
	defer span.End()

	if err := validateID(id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordSessionDelete(false)
		return err
	}

	ctx = tracing.WithSessionID(ctx, id)
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	dir, err := s.chatsDir()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordSessionDelete(false)
		return ioError("resolve storage root", err)
	}

	if err := os.Remove(s.recordPath(dir, id)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordSessionDelete(false)
		return ioError("delete session file", err)
	}

	s.updateActiveSessionsMetric()
	observability.RecordSessionDelete(true)
	logger.Info().Msg("Session deleted")

	return nil
}

func (s *FileStore) updateActiveSessionsMetric() {
	dir, err := s.chatsDir()
	if err != nil {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == recordExt {
			count++
		}
	}
	observability.SetActiveSessions(count)
}
