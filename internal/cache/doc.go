// Package cache defines the storage contract shared by every cache engine and
// the adapters that implement it: an in-process map, a flat-file snapshot, an
// embedded bbolt file, Redis, SQL tables (SQLite/MySQL) and a no-op engine.
// Entries are partitioned into fixed groups and carry an absolute expiry that
// is computed once at store time, so freshness checks behave the same on every
// engine. Fetch drops expired entries on access; there is no background sweep.
// The revalidation pipeline owns one Backend per instance and is the only
// writer; callers only ever receive copies of stored payloads.
package cache
