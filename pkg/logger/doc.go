// Package logger provides structured logging with configurable log levels.
// It wraps the standard log/slog package and adds helpers for logging proxy
// identities without leaking the credentials embedded in them.
package logger
