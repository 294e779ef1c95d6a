// Package connstate tracks the aggregate health of the heartbeat pool.
//
// A single Tracker is shared by every worker. It holds one of three states
// and a consecutive-failure counter:
//
//   - NOT_CONNECTED: no heartbeat has completed yet
//   - CONNECTED: the most recent heartbeat succeeded, the counter is zero
//   - DISCONNECTED: the most recent heartbeat failed
//
// Usage:
//
//	tracker := connstate.NewTracker(2)
//	if ok {
//	    tracker.RecordSuccess()
//	} else {
//	    tracker.RecordFailure(unauthorized)
//	}
package connstate
