package bridge

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatkeep/chatkeep/internal/appdir"
	"github.com/chatkeep/chatkeep/pkg/store"
)

func setupServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(Config{
		Port:   8175,
		Store:  store.NewFile(appdir.Fixed(t.TempDir())),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	return s
}

func call(s *Server, method string, params map[string]any) *RPCResponse {
	return s.router.RouteRequest(&RPCRequest{ID: "1", Method: method, Params: params})
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(Config{Port: 0, Store: store.NewFile(appdir.Fixed(t.TempDir()))})
	assert.Error(t, err)

	_, err = NewServer(Config{Port: 8175})
	assert.Error(t, err)
}

func TestChatSaveAndLoad(t *testing.T) {
	s := setupServer(t)

	resp := call(s, "chat.save", map[string]any{
		"session": map[string]any{"id": "chat_1", "title": "hello"},
	})
	require.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"id": "chat_1"}, resp.Result)

	resp = call(s, "chat.load", map[string]any{"id": "chat_1"})
	require.Nil(t, resp.Error)
	session := resp.Result.(map[string]any)["session"].(map[string]any)
	assert.Equal(t, "hello", session["title"])
}

func TestChatList(t *testing.T) {
	s := setupServer(t)

	for _, title := range []string{"first", "second"} {
		resp := call(s, "chat.save", map[string]any{
			"session": map[string]any{"title": title},
		})
		require.Nil(t, resp.Error)
	}

	resp := call(s, "chat.list", nil)
	require.Nil(t, resp.Error)
	sessions := resp.Result.(map[string]any)["sessions"].([]any)
	assert.Len(t, sessions, 2)
}

func TestChatDelete(t *testing.T) {
	s := setupServer(t)

	resp := call(s, "chat.save", map[string]any{
		"session": map[string]any{"id": "chat_del"},
	})
	require.Nil(t, resp.Error)

	resp = call(s, "chat.delete", map[string]any{"id": "chat_del"})
	require.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"ok": true}, resp.Result)

	resp = call(s, "chat.load", map[string]any{"id": "chat_del"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, SessionNotFound, resp.Error.Code)
}

func TestChatMethodErrorMapping(t *testing.T) {
	s := setupServer(t)

	t.Run("load missing session", func(t *testing.T) {
		resp := call(s, "chat.load", map[string]any{"id": "chat_missing"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, SessionNotFound, resp.Error.Code)
		assert.Equal(t, "chat not found", resp.Error.Message)
	})

	t.Run("save non-object session", func(t *testing.T) {
		resp := call(s, "chat.save", map[string]any{"session": "not an object"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, InvalidParams, resp.Error.Code)
	})

	t.Run("save without session param", func(t *testing.T) {
		resp := call(s, "chat.save", map[string]any{})
		require.NotNil(t, resp.Error)
		assert.Equal(t, InvalidParams, resp.Error.Code)
	})

	t.Run("save with traversal id", func(t *testing.T) {
		resp := call(s, "chat.save", map[string]any{
			"session": map[string]any{"id": "../escape"},
		})
		require.NotNil(t, resp.Error)
		assert.Equal(t, InvalidParams, resp.Error.Code)
	})

	t.Run("delete missing session", func(t *testing.T) {
		resp := call(s, "chat.delete", map[string]any{"id": "chat_missing"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, StorageFailure, resp.Error.Code)
	})

	t.Run("load without id", func(t *testing.T) {
		resp := call(s, "chat.load", map[string]any{})
		require.NotNil(t, resp.Error)
		assert.Equal(t, InvalidParams, resp.Error.Code)
	})

	t.Run("load with empty id", func(t *testing.T) {
		resp := call(s, "chat.load", map[string]any{"id": ""})
		require.NotNil(t, resp.Error)
		assert.Equal(t, InvalidParams, resp.Error.Code)
	})
}

func TestSystemMethods(t *testing.T) {
	s := setupServer(t)

	resp := call(s, "system.ping", nil)
	require.Nil(t, resp.Error)
	assert.Equal(t, "pong", resp.Result)

	resp = call(s, "system.methods", nil)
	require.Nil(t, resp.Error)
	assert.Contains(t, resp.Result.([]string), "chat.save")
	assert.Contains(t, resp.Result.([]string), "chat.delete")
}
