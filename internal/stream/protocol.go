// Package stream maintains the single live event-feed connection for a
// project: connection state machine, reconnect backoff, keep-alive and
// listener fan-out.
package stream

// MessageTypePong marks keep-alive replies. They never reach listeners.
const MessageTypePong = "pong"

// Client actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
)

// Message is the server-to-client envelope.
type Message struct {
	Type      string         `json:"type"`
	Event     string         `json:"event"`
	EventType string         `json:"event_type,omitempty"` // published by the event bus in place of event
	ProjectID string         `json:"project_id"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Name returns the event name, preferring Event over EventType and
// falling back to Type.
func (m Message) Name() string {
	switch {
	case m.Event != "":
		return m.Event
	case m.EventType != "":
		return m.EventType
	default:
		return m.Type
	}
}

// ClientMessage is the client-to-server envelope.
type ClientMessage struct {
	Action  string `json:"action"`
	Channel string `json:"channel,omitempty"`
}
