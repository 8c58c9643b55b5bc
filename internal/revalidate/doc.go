// Package revalidate orchestrates "cache hit → conditional revalidation →
// fetch and store" for a single record. A Pipeline owns exactly one cache
// backend for its lifetime. Record bodies live only in that backend: an
// expired entry is read with Peek before Fetch evicts it, and is then used for
// If-Modified-Since or as a stale fallback when the upstream is unreachable.
// The only per-key state the Pipeline keeps is the Last-Modified header of
// records that carry no lastModified field of their own. Each call makes at
// most one upstream request.
package revalidate
