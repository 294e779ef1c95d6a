// Package config handles loading and validation of configuration from YAML
// files and environment variables. It defines the remote API endpoints,
// request retry policy, heartbeat cadence, worker limits, account sources
// and session storage used by the heartbeat keeper.
package config
