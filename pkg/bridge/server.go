package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chatkeep/chatkeep/internal/observability"
	"github.com/chatkeep/chatkeep/pkg/store"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Server is the websocket bridge between the session store and the host UI.
type Server struct {
	port           int
	server         *http.Server
	upgrader       websocket.Upgrader
	clients        *ClientRegistry
	router         *RPCRouter
	authHandler    *AuthHandler
	broadcaster    *EventBroadcaster
	store          store.Store
	logger         zerolog.Logger
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	Port int
	// SharedSecret enables HMAC challenge-response auth when non-empty.
	SharedSecret string
	Store        store.Store
	Logger       zerolog.Logger
}

// NewServer creates a new bridge server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	clients := NewClientRegistry()

	s := &Server{
		port:        cfg.Port,
		clients:     clients,
		router:      NewRPCRouter(),
		authHandler: NewAuthHandler(cfg.SharedSecret),
		broadcaster: NewEventBroadcaster(clients, cfg.Logger),
		store:       cfg.Store,
		logger:      cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The bridge binds to loopback; the host shell is the
				// only expected origin.
				return true
			},
		},
	}

	s.registerChatMethods()

	return s, nil
}

// Broadcaster exposes the event broadcaster so collaborators (the store
// watcher) can push events to connected clients.
func (s *Server) Broadcaster() *EventBroadcaster {
	return s.broadcaster
}

// Start runs the HTTP server. It blocks until Shutdown is called or the
// listener fails.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler: mux,
	}

	s.logger.Info().Int("port", s.port).Bool("auth", s.authHandler.Enabled()).Msg("Bridge listening")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("bridge server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown deadline reached with requests in flight")
	}

	for _, client := range s.clients.GetAuthenticatedClients() {
		_ = client.Conn.Close()
	}

	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := &Client{
		ID:           gonanoid.Must(12),
		Conn:         conn,
		ConnectedAt:  time.Now(),
		LastActivity: time.Now(),
		State:        StateConnecting,
	}

	if s.authHandler.Enabled() {
		challenge, err := s.authHandler.GenerateChallenge()
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to generate auth challenge")
			_ = conn.Close()
			return
		}
		client.Challenge = challenge
		client.State = StateAuthenticating
		if err := client.WriteJSON(AuthChallenge{Event: "auth.challenge", Challenge: challenge}); err != nil {
			_ = conn.Close()
			return
		}
	} else {
		client.Authenticated = true
		client.State = StateAuthenticated
	}

	s.clients.Add(client)
	s.logger.Debug().Str("clientId", client.ID).Msg("Client connected")

	defer func() {
		s.clients.Remove(client.ID)
		_ = conn.Close()
		s.logger.Debug().Str("clientId", client.ID).Msg("Client disconnected")
	}()

	s.readLoop(client)
}

func (s *Server) readLoop(client *Client) {
	for {
		_, data, err := client.Conn.ReadMessage()
		if err != nil {
			return
		}
		s.clients.UpdateActivity(client.ID)

		if !client.Authenticated {
			if !s.handleAuthMessage(client, data) {
				return
			}
			continue
		}

		req, err := s.router.ParseRequest(data)
		if err != nil {
			rpcErr, _ := err.(*RPCError)
			_ = client.WriteJSON(RPCResponse{JSONRPC: "2.0", Error: rpcErr})
			continue
		}

		s.inFlightReqs.Add(1)
		resp := s.router.RouteRequest(req)
		s.inFlightReqs.Done()

		observability.RecordBridgeRequest(req.Method, resp.Error == nil)

		if err := client.WriteJSON(resp); err != nil {
			s.logger.Warn().
				Err(err).
				Str("clientId", client.ID).
				Str("method", req.Method).
				Msg("Failed to write response")
			return
		}
	}
}

// handleAuthMessage processes one message from an unauthenticated client.
// It reports whether the connection should stay open.
func (s *Server) handleAuthMessage(client *Client, data []byte) bool {
	resp := AuthResponse{}
	if err := json.Unmarshal(data, &resp); err != nil || resp.Method != "auth" {
		_ = client.WriteJSON(RPCResponse{
			JSONRPC: "2.0",
			Error: &RPCError{
				Code:    AuthenticationRequired,
				Message: "Authentication required",
			},
		})
		return true
	}

	result := s.authHandler.HandleAuthResponse(client, resp.Signature)
	_ = client.WriteJSON(result)

	if !result.Success && client.AuthAttempts >= 3 {
		return false
	}
	return true
}
