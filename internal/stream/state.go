package stream

import "time"

// State is the connection state. Exactly one is active at a time.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
)

// Defaults for the reconnect and keep-alive schedule.
const (
	DefaultReconnectBase = 1 * time.Second
	DefaultReconnectMax  = 8 * time.Second
	DefaultPingInterval  = 30 * time.Second
)

// Backoff returns min(base * 2^attempt, ceiling).
func Backoff(base, ceiling time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= ceiling || d <= 0 {
			return ceiling
		}
	}
	return min(d, ceiling)
}

// TargetChange reports that the live target moved. Current is empty after
// a disconnect.
type TargetChange struct {
	Previous string
	Current  string
}
