// Package caller sends JSON requests to the remote API through a proxy with
// bounded retries and exponential backoff.
//
// Every call ends in exactly one Outcome:
//
//   - OutcomeOK: a well-formed reply carrying a non-negative code
//   - OutcomeForbidden: HTTP 403, returned on the first occurrence
//   - OutcomeInvalid: a reply without a code, or with a negative one
//   - OutcomeNoResponse: every attempt failed with a retryable error
//   - OutcomeCanceled: the caller's context ended
//
// Usage:
//
//	c := caller.New(transport, caller.Options{MaxAttempts: 5, Timeout: 15 * time.Second}, log)
//	res := c.Call(ctx, sessionURL, struct{}{}, proxy, token)
//	if res.OK() {
//	    // use res.Reply
//	}
package caller
