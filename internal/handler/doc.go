// Package handler serves the pool's observable status and logs the requests
// made to the HTTP surface.
package handler
