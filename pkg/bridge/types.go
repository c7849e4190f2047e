// Package bridge exposes the session store to a host UI over a local
// websocket: four chat methods, change events, and optional shared-secret
// authentication. It is the process boundary the desktop shell talks to.
package bridge

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// RPCRequest represents a JSON-RPC 2.0 request
type RPCRequest struct {
	ID             string         `json:"id"`
	Method         string         `json:"method"`
	Params         map[string]any `json:"params,omitempty"`
	JSONRPC        string         `json:"jsonrpc"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
}

// RPCResponse represents a JSON-RPC 2.0 response
type RPCResponse struct {
	ID      string    `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
	JSONRPC string    `json:"jsonrpc"`
}

// RPCError represents a JSON-RPC 2.0 error
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface
func (e *RPCError) Error() string {
	return e.Message
}

// EventMessage represents a server-initiated event
type EventMessage struct {
	Type      string `json:"type,omitempty"`
	Event     string `json:"event"`
	Seq       int64  `json:"seq,omitempty"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// AuthChallenge represents an authentication challenge message
type AuthChallenge struct {
	Event     string `json:"event"`
	Challenge string `json:"challenge"`
}

// AuthResponse represents a client's authentication response
type AuthResponse struct {
	Method    string `json:"method"`
	Signature string `json:"signature"`
}

// AuthResult represents the result of authentication
type AuthResult struct {
	Event   string `json:"event"`
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// ClientState represents the state of a client connection
type ClientState int

const (
	StateConnecting ClientState = iota
	StateAuthenticating
	StateAuthenticated
	StateDisconnected
)

// RPC error codes
const (
	ParseError             = -32700
	InvalidRequest         = -32600
	MethodNotFound         = -32601
	InvalidParams          = -32602
	InternalError          = -32603
	AuthenticationRequired = -32001
	SessionNotFound        = -32002
	StorageFailure         = -32003
)

// RequestHandler is a function that handles RPC requests
type RequestHandler func(params map[string]any) (any, error)

// Client represents a connected WebSocket client
type Client struct {
	ID            string
	Conn          *websocket.Conn
	Authenticated bool
	Challenge     string
	ConnectedAt   time.Time
	LastActivity  time.Time
	AuthAttempts  int
	State         ClientState

	// writeMu serializes writes to Conn: the read loop answers requests
	// while the broadcaster fans out events, and gorilla/websocket allows
	// only one concurrent writer per connection.
	writeMu sync.Mutex
}

// WriteJSON writes v to the client's connection under the write lock.
func (c *Client) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteJSON(v)
}

// WriteMessage writes a raw frame to the client's connection under the
// write lock.
func (c *Client) WriteMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}
