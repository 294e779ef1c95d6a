// Package httpserver wraps http.Server for the status surface: it validates
// the listen address up front and shuts down within a bounded time.
package httpserver
