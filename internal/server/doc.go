// Package server hosts the Fiber HTTP service that fronts the armory client.
// It wires the request middleware chain (panic recovery, request IDs), the
// lookup endpoints under /api, and the token-guarded cache administration
// endpoints under /-/cache. Keep exports narrow and accept explicit
// dependencies so that the CLI and tests can inject fakes.
package server
