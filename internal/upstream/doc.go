// Package upstream talks to the remote data service. It owns the shared HTTP
// client, the conditional fetcher that turns If-Modified-Since responses into
// an explicit "not modified" result, and the signer that builds the BNET
// Authorization header for credentialed calls. It never retries; callers
// decide how to react to failures.
package upstream
