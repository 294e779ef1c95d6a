// Package worker runs one isolated worker per account under a global
// concurrency ceiling.
//
// A worker authenticates its proxy and, once authorized, heartbeats it
// until cancelled or de-authenticated. The slot it takes from the pool is
// held for the worker's whole lifetime, so the ceiling limits how many
// proxies are active at once rather than the request rate.
package worker
