// Package session authenticates proxies against the session endpoint and
// caches the resulting identity.
//
// The Registry is the process-wide authorization cache. Each proxy key is
// written only by the worker that owns it, so the registry lock guards the
// map structure and never serialises workers on each other's state. A
// Record exists for a proxy exactly while the proxy is authorized.
package session
