package bridge

import (
	"context"
	"errors"

	"github.com/chatkeep/chatkeep/internal/tracing"
	"github.com/chatkeep/chatkeep/pkg/store"
)

// registerChatMethods wires the four store operations onto the RPC router.
// These are the commands the host UI invokes.
func (s *Server) registerChatMethods() {
	_ = s.router.RegisterMethod("chat.save", s.handleChatSave)
	_ = s.router.RegisterMethod("chat.list", s.handleChatList)
	_ = s.router.RegisterMethod("chat.load", s.handleChatLoad)
	_ = s.router.RegisterMethod("chat.delete", s.handleChatDelete)
	_ = s.router.RegisterMethod("system.ping", s.handlePing)
	_ = s.router.RegisterMethod("system.methods", s.handleListMethods)
}

func (s *Server) handleChatSave(params map[string]any) (any, error) {
	session, ok := params["session"]
	if !ok {
		return nil, &RPCError{Code: InvalidParams, Message: "missing session parameter"}
	}

	ctx := tracing.NewRequestContext(context.Background())
	id, err := s.store.Save(ctx, session)
	if err != nil {
		return nil, storeErrorToRPC(err)
	}

	s.broadcaster.Broadcast("chat.saved", map[string]any{"id": id})
	return map[string]any{"id": id}, nil
}

func (s *Server) handleChatList(params map[string]any) (any, error) {
	ctx := tracing.NewRequestContext(context.Background())
	sessions, err := s.store.List(ctx)
	if err != nil {
		return nil, storeErrorToRPC(err)
	}
	return map[string]any{"sessions": sessions}, nil
}

func (s *Server) handleChatLoad(params map[string]any) (any, error) {
	id, err := stringParam(params, "id")
	if err != nil {
		return nil, err
	}

	ctx := tracing.NewRequestContext(context.Background())
	record, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, storeErrorToRPC(err)
	}
	return map[string]any{"session": record}, nil
}

func (s *Server) handleChatDelete(params map[string]any) (any, error) {
	id, err := stringParam(params, "id")
	if err != nil {
		return nil, err
	}

	ctx := tracing.NewRequestContext(context.Background())
	if err := s.store.Delete(ctx, id); err != nil {
		return nil, storeErrorToRPC(err)
	}

	s.broadcaster.Broadcast("chat.deleted", map[string]any{"id": id})
	return map[string]any{"ok": true}, nil
}

func (s *Server) handlePing(params map[string]any) (any, error) {
	return "pong", nil
}

func (s *Server) handleListMethods(params map[string]any) (any, error) {
	return s.router.GetMethods(), nil
}

func stringParam(params map[string]any, name string) (string, error) {
	v, ok := params[name]
	if !ok {
		return "", &RPCError{Code: InvalidParams, Message: "missing " + name + " parameter"}
	}
	str, ok := v.(string)
	if !ok || str == "" {
		return "", &RPCError{Code: InvalidParams, Message: name + " must be a non-empty string"}
	}
	return str, nil
}

// storeErrorToRPC maps the store's error taxonomy onto RPC error codes,
// preserving each class's message policy.
func storeErrorToRPC(err error) *RPCError {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &RPCError{Code: SessionNotFound, Message: err.Error()}
	case errors.Is(err, store.ErrInvalidFormat), errors.Is(err, store.ErrInvalidID):
		return &RPCError{Code: InvalidParams, Message: err.Error()}
	case errors.Is(err, store.ErrIO), errors.Is(err, store.ErrParse):
		return &RPCError{Code: StorageFailure, Message: err.Error()}
	default:
		return &RPCError{Code: InternalError, Message: err.Error()}
	}
}
