package client

// State is the lifecycle phase of one logical room subscription.
type State int

const (
	// StateIdle means no connection exists and none is wanted.
	StateIdle State = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateConnected means the handshake succeeded and frames flow.
	StateConnected
	// StateClosing means an explicit unsubscribe is shutting the connection down.
	StateClosing
	// StateBackoff means the subscription is waiting out a reconnect delay.
	StateBackoff
	// StateGivenUp means reconnect attempts are exhausted; a manual
	// Resubscribe is required.
	StateGivenUp
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateBackoff:
		return "backoff"
	case StateGivenUp:
		return "given_up"
	default:
		return "unknown"
	}
}
