package session

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNoSession is returned when an operation needs an authenticated session
// for a proxy that has none.
var ErrNoSession = errors.New("no session for proxy")

// Record is the identity obtained by one authentication cycle. Records are
// replaced on re-authentication, never mutated.
type Record struct {
	Proxy     string          `json:"proxy"`
	UserID    string          `json:"user_id"`
	BrowserID string          `json:"browser_id"`
	Profile   json.RawMessage `json:"profile"`
	CreatedAt time.Time       `json:"created_at"`
}
