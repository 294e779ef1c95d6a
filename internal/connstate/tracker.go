package connstate

import (
	"encoding/json"
	"sync"
	"time"
)

type State int

const (
	StateNotConnected State = iota // No heartbeat yet
	StateConnected                 // Last heartbeat succeeded
	StateDisconnected              // Last heartbeat failed
)

func (s State) String() string {
	switch s {
	case StateNotConnected:
		return "NOT_CONNECTED"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

type Tracker struct {
	mutex            sync.Mutex
	state            State
	failures         int
	lastChange       time.Time
	failureThreshold int
}

// Snapshot is a consistent copy of the tracker's fields.
type Snapshot struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Degraded            bool      `json:"degraded"`
	LastChange          time.Time `json:"last_change"`
}

func NewTracker(threshold int) *Tracker {
	return &Tracker{
		state:            StateNotConnected,
		failureThreshold: threshold,
	}
}

func (t *Tracker) RecordSuccess() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.failures = 0
	t.setState(StateConnected)
}

// RecordFailure counts one failed heartbeat round and returns the new
// counter. An unauthorized failure demotes the proxy rather than the pool,
// so it leaves the state alone unless CONNECTED, which requires a zero
// counter.
func (t *Tracker) RecordFailure(unauthorized bool) int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.failures++
	if unauthorized {
		if t.state == StateConnected {
			t.setState(StateDisconnected)
		}
		return t.failures
	}

	// Streaks below and past the threshold both report DISCONNECTED.
	t.setState(StateDisconnected)

	return t.failures
}

// Degraded reports whether the current failure streak has reached the
// configured threshold.
func (t *Tracker) Degraded() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.failureThreshold > 0 && t.failures >= t.failureThreshold
}

func (t *Tracker) State() State {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.state
}

func (t *Tracker) Failures() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.failures
}

func (t *Tracker) Snapshot() Snapshot {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return Snapshot{
		State:               t.state,
		ConsecutiveFailures: t.failures,
		Degraded:            t.failureThreshold > 0 && t.failures >= t.failureThreshold,
		LastChange:          t.lastChange,
	}
}

func (t *Tracker) setState(s State) {
	if t.state != s {
		t.lastChange = time.Now()
	}
	t.state = s
}
