package connection

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rickgao/pricefeed/internal/router"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrDisconnected    = errors.New("disconnected before transport opened")
	ErrSuperseded      = errors.New("superseded by a newer connect")
	ErrManagerStopped  = errors.New("connection manager stopped")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., ws://localhost:5000)
	Header           http.Header   // Extra handshake headers
	HandshakeTimeout time.Duration // Max time for the WebSocket handshake
	PingInterval     time.Duration // How often to send keepalive pings
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	Client               ClientConfig  // Transport settings; URL is required
	ReconnectInterval    time.Duration // Fixed wait between reconnect attempts
	MaxReconnectAttempts int           // Attempts after an unexpected close before giving up
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Client:               DefaultClientConfig(),
		ReconnectInterval:    3 * time.Second,
		MaxReconnectAttempts: 5,
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	State      State
	SessionID  uuid.UUID // Identifies the current transport; uuid.Nil when none
	Attempts   int       // Reconnect attempts made in the current outage
	Connects   int64     // Transports opened
	Reconnects int64     // Transports opened by automatic reconnect
	Dropped    int64     // Outbound frames dropped because the state was not Connected
	StaleDrops int64     // Inbound frames discarded from replaced transports
	Bus        router.BusStats
}

// StateChange records a single state transition.
type StateChange struct {
	From     State
	To       State
	Attempts int
	Err      error // Cause, when the transition was driven by a failure
	At       time.Time
}
