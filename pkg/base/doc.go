// Package base provides a client for Base, a hosted key-value document store
// reached over HTTP. Items are JSON objects identified by a string key.
//
// Queries are built from Expressions (constraints on dotted field paths that
// are AND-ed together) combined with Or, and encode deterministically to the
// service's "path?op" wire form. Updates accumulate per-path mutations
// (set, increment, append, prepend, delete) and serialize to the service's
// grouped update body. BatchWriter splits writes into chunks of at most 25
// items and reports a per-item outcome; QueryRunner follows continuation
// cursors lazily through Go iterators.
//
// The Client type wraps these pieces behind Get/Put/Insert/Update/Delete and
// Query/FetchAll. NewFromEnv selects between the HTTP API and an in-memory
// emulator using BASE_RUNTIME_MODE, BASE_DATA_KEY, BASE_NAME, BASE_API_URL and
// BASE_MOCK_SEED.
package base
