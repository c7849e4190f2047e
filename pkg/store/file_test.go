package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatkeep/chatkeep/internal/appdir"
)

func setupFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	root := t.TempDir()
	return NewFile(appdir.Fixed(root)), root
}

func writeRecord(t *testing.T, root, name, body string) {
	t.Helper()
	dir := filepath.Join(root, chatsDirName)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestFileStoreSaveSynthesizesID(t *testing.T) {
	s, root := setupFileStore(t)

	id, err := s.Save(context.Background(), map[string]any{"title": "untitled"})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^chat_\d+$`), id)

	_, err = os.Stat(filepath.Join(root, chatsDirName, id+".json"))
	assert.NoError(t, err)
}

func TestFileStoreSaveUsesExplicitID(t *testing.T) {
	s, root := setupFileStore(t)

	id, err := s.Save(context.Background(), map[string]any{"id": "chat_42", "title": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "chat_42", id)

	data, err := os.ReadFile(filepath.Join(root, chatsDirName, "chat_42.json"))
	require.NoError(t, err)

	var stored map[string]any
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, "chat_42", stored["id"])
	assert.Equal(t, "hello", stored["title"])
}

func TestFileStoreSaveOverwrites(t *testing.T) {
	s, _ := setupFileStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, map[string]any{"id": "chat_1", "title": "first"})
	require.NoError(t, err)
	_, err = s.Save(ctx, map[string]any{"id": "chat_1", "title": "second"})
	require.NoError(t, err)

	record, err := s.Load(ctx, "chat_1")
	require.NoError(t, err)
	assert.Equal(t, "second", record.(map[string]any)["title"])

	sessions, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestFileStoreSaveRejectsNonObject(t *testing.T) {
	s, root := setupFileStore(t)

	_, err := s.Save(context.Background(), []any{"not", "an", "object"})
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = s.Save(context.Background(), "plain string")
	assert.ErrorIs(t, err, ErrInvalidFormat)

	// Nothing must have been written.
	_, statErr := os.Stat(filepath.Join(root, chatsDirName))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileStoreSaveLeavesInputUntouched(t *testing.T) {
	s, _ := setupFileStore(t)

	session := map[string]any{"title": "mutation check"}
	_, err := s.Save(context.Background(), session)
	require.NoError(t, err)

	_, present := session["id"]
	assert.False(t, present)
}

func TestFileStoreListRewritesIDFromFilename(t *testing.T) {
	s, root := setupFileStore(t)

	// The body claims id "a" but lives in b.json; the filename wins.
	writeRecord(t, root, "b.json", `{"id": "a", "timestamp": 100}`)

	sessions, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "b", sessions[0].(map[string]any)["id"])
}

func TestFileStoreListOrdersNewestFirst(t *testing.T) {
	s, root := setupFileStore(t)

	writeRecord(t, root, "one.json", `{"timestamp": 100}`)
	writeRecord(t, root, "two.json", `{"timestamp": 300}`)
	writeRecord(t, root, "three.json", `{"timestamp": 200}`)

	sessions, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 3)

	var order []string
	for _, session := range sessions {
		order = append(order, session.(map[string]any)["id"].(string))
	}
	assert.Equal(t, []string{"two", "three", "one"}, order)
}

func TestFileStoreListSynthesizesTimestamp(t *testing.T) {
	s, root := setupFileStore(t)

	before := time.Now().UnixMilli()
	writeRecord(t, root, "bare.json", `{"title": "no timestamp"}`)

	sessions, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	ts, ok := sessions[0].(map[string]any)["timestamp"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, int64(ts), before)
}

func TestFileStoreListSkipsCorruptRecords(t *testing.T) {
	s, root := setupFileStore(t)

	writeRecord(t, root, "good.json", `{"timestamp": 100}`)
	writeRecord(t, root, "bad.json", `{not json at all`)
	writeRecord(t, root, "notes.txt", `ignored entirely`)

	sessions, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "good", sessions[0].(map[string]any)["id"])
}

func TestFileStoreListNonObjectRecordPassesThrough(t *testing.T) {
	s, root := setupFileStore(t)

	writeRecord(t, root, "array.json", `[1, 2, 3]`)
	writeRecord(t, root, "obj.json", `{"timestamp": 50}`)

	sessions, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	// The object sorts first; the array has no timestamp and sorts as zero.
	assert.Equal(t, "obj", sessions[0].(map[string]any)["id"])
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, sessions[1])
}

func TestFileStoreListSkipsStemlessFile(t *testing.T) {
	s, root := setupFileStore(t)

	// A file named exactly ".json" has no stem and therefore no id.
	writeRecord(t, root, ".json", `{"timestamp": 100}`)
	writeRecord(t, root, "real.json", `{"timestamp": 200}`)

	sessions, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "real", sessions[0].(map[string]any)["id"])
}

func TestFileStoreListMissingDirectoryIsEmpty(t *testing.T) {
	s, _ := setupFileStore(t)

	sessions, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.NotNil(t, sessions)
}

func TestFileStoreLoadReturnsRecordVerbatim(t *testing.T) {
	s, root := setupFileStore(t)

	// Load applies none of the list-time repair: the body's stale id and
	// missing timestamp come back as stored.
	writeRecord(t, root, "chat_9.json", `{"id": "stale", "title": "raw"}`)

	record, err := s.Load(context.Background(), "chat_9")
	require.NoError(t, err)

	obj := record.(map[string]any)
	assert.Equal(t, "stale", obj["id"])
	_, hasTS := obj["timestamp"]
	assert.False(t, hasTS)
}

func TestFileStoreLoadMissingIsNotFound(t *testing.T) {
	s, _ := setupFileStore(t)

	_, err := s.Load(context.Background(), "chat_missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "chat not found", err.Error())
}

func TestFileStoreLoadCorruptIsParseFailure(t *testing.T) {
	s, root := setupFileStore(t)

	writeRecord(t, root, "chat_bad.json", `{truncated`)

	_, err := s.Load(context.Background(), "chat_bad")
	assert.ErrorIs(t, err, ErrParse)
}

func TestFileStoreDelete(t *testing.T) {
	s, root := setupFileStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, map[string]any{"id": "chat_del"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "chat_del"))

	_, statErr := os.Stat(filepath.Join(root, chatsDirName, "chat_del.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileStoreDeleteMissingFails(t *testing.T) {
	s, _ := setupFileStore(t)

	err := s.Delete(context.Background(), "chat_missing")
	assert.ErrorIs(t, err, ErrIO)
}

func TestFileStoreRoundTrip(t *testing.T) {
	s, _ := setupFileStore(t)
	ctx := context.Background()

	session := map[string]any{
		"id":        "chat_rt",
		"title":     "round trip",
		"timestamp": float64(1700000000000),
		"messages": []any{
			map[string]any{"role": "user", "content": "hi"},
			map[string]any{"role": "assistant", "content": "hello"},
		},
	}

	id, err := s.Save(ctx, session)
	require.NoError(t, err)

	record, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, session, record)
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"plain", "chat_1700000000000", false},
		{"uuid style", "550e8400-e29b-41d4-a716-446655440000", false},
		{"empty", "", true},
		{"traversal", "../../etc/passwd", true},
		{"forward slash", "a/b", true},
		{"backslash", `a\b`, true},
		{"null byte", "a\x00b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateID(tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidID)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFileStoreInvalidIDNeverTouchesDisk(t *testing.T) {
	s, root := setupFileStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, map[string]any{"id": "../escape"})
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = s.Load(ctx, "../escape")
	assert.ErrorIs(t, err, ErrInvalidID)

	assert.ErrorIs(t, s.Delete(ctx, "../escape"), ErrInvalidID)

	_, statErr := os.Stat(filepath.Join(root, chatsDirName))
	assert.True(t, os.IsNotExist(statErr))
}
