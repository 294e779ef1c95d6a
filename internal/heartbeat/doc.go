// Package heartbeat keeps authenticated proxies alive by pinging the
// heartbeat endpoints on a fixed interval.
//
// A Pinger is shared by all workers. Run drives one proxy: it ticks, waits
// for the interval and ticks again until the context is cancelled or the
// proxy loses its session. Each tick tries the endpoints in order and feeds
// its outcome into the connection state tracker.
//
// Usage:
//
//	pinger := heartbeat.New(c, auth, tracker, collector, heartbeat.Options{
//	    Endpoints: cfg.API.PingURLs,
//	    Interval:  60 * time.Second,
//	    Version:   "2.2.7",
//	}, log)
//	go pinger.Run(ctx, proxy, token)
package heartbeat
