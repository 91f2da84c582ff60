package feed

import (
	"errors"
	"net/http"
	"time"
)

const (
	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout = 5 * time.Second
	// ReconnectDelay is the fixed wait between a lost connection and the next attempt.
	ReconnectDelay = 3 * time.Second

	// keepaliveMarker identifies keepalive text frames by substring.
	keepaliveMarker = "ping"
)

// Errors
var (
	ErrNotConfigured     = errors.New("feed: manager not configured")
	ErrAlreadyConfigured = errors.New("feed: manager already configured")
	ErrInvalidConfig     = errors.New("feed: invalid connection config")
	ErrNotConnected      = errors.New("feed: not connected")
)

// State is the connection lifecycle state of a Manager.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// EventKind enumerates what a transport can report.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventText
	EventBinary
	EventPing
	EventPong
	EventViabilityChanged
	EventReconnectSuggested
	EventCancelled
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventText:
		return "text"
	case EventBinary:
		return "binary"
	case EventPing:
		return "ping"
	case EventPong:
		return "pong"
	case EventViabilityChanged:
		return "viability_changed"
	case EventReconnectSuggested:
		return "reconnect_suggested"
	case EventCancelled:
		return "cancelled"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single transport notification. Only the fields relevant to Kind
// are set.
type Event struct {
	Kind    EventKind
	Headers http.Header // Connected
	Reason  string      // Disconnected
	Code    int         // Disconnected
	Text    string      // Text
	Data    []byte      // Binary, Ping, Pong
	Viable  bool        // ViabilityChanged
	Err     error       // Error
}

// Request describes one connection attempt.
type Request struct {
	URL     string
	Timeout time.Duration
	Header  http.Header
}

// Dialer opens transport handles. Open must not block and must not emit
// events before Conn.Connect is called.
type Dialer interface {
	Open(req Request, sink func(Event)) Conn
}

// Conn is a single transport connection owned by the Manager.
type Conn interface {
	// Connect starts the connection attempt. The outcome is reported through
	// the sink given to Dialer.Open.
	Connect()

	// Disconnect tears the connection down. It may report EventCancelled.
	Disconnect()

	// WriteText sends one text frame.
	WriteText(text string) error
}
