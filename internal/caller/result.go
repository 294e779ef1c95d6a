package caller

import (
	"encoding/json"
	"net/http"
)

type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNoResponse
	OutcomeForbidden
	OutcomeInvalid
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNoResponse:
		return "no-response"
	case OutcomeForbidden:
		return "forbidden"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Reply is the JSON envelope every endpoint answers with. Code is a pointer
// so that a missing field can be told apart from a zero code.
type Reply struct {
	Code    *int            `json:"code"`
	Message string          `json:"msg,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// StatusCode returns the payload code, or -1 when it is missing.
func (r *Reply) StatusCode() int {
	if r == nil || r.Code == nil {
		return -1
	}
	return *r.Code
}

// Success reports whether the service accepted the request (code 0).
func (r *Reply) Success() bool {
	return r.StatusCode() == 0
}

// Unauthorized reports whether the payload code rejects the credentials.
func (r *Reply) Unauthorized() bool {
	code := r.StatusCode()
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

func (r *Reply) valid() bool {
	return r != nil && r.Code != nil && *r.Code >= 0
}

// Result is the outcome of one Call across all of its attempts.
type Result struct {
	Outcome  Outcome
	Reply    *Reply
	Attempts int
	// Err holds the last error observed; nil on OutcomeOK.
	Err error
}

func (r Result) OK() bool {
	return r.Outcome == OutcomeOK
}

// Unauthorized reports whether the result should demote the proxy: an HTTP
// 403 or a reply whose code is 401/403.
func (r Result) Unauthorized() bool {
	if r.Outcome == OutcomeForbidden {
		return true
	}
	return r.Reply != nil && r.Reply.Unauthorized()
}
