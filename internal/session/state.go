package session

import "time"

// State is the lifecycle state of the managed session.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateSubscribing  State = "subscribing"
	StateListening    State = "listening"
	StateDisconnected State = "disconnected"
	StateFailed       State = "failed"
	StateStopped      State = "stopped"
)

// Connected reports whether the broker connection is established.
func (s State) Connected() bool {
	return s == StateSubscribing || s == StateListening
}

// Snapshot is a point-in-time copy of the manager's observable state.
type Snapshot struct {
	State            State     `json:"state"`
	BrokerURL        string    `json:"broker_url,omitempty"`
	ClientID         string    `json:"client_id,omitempty"`
	Topics           []string  `json:"topics,omitempty"`
	LastStatus       string    `json:"last_status,omitempty"`
	LastError        string    `json:"last_error,omitempty"`
	ReconnectPending bool      `json:"reconnect_pending"`
	Attempts         int       `json:"attempts"`
	ConnectedAt      time.Time `json:"connected_at,omitzero"`
	Generation       uint64    `json:"generation"`
	DroppedMessages  int64     `json:"dropped_messages"`
}
