// Package storage defines the usage-accounting store: one record per
// completed chat request with the token counters the upstream reported.
// Adapters live in the memory and postgres subpackages; this package holds
// the record type, the store interface, sentinel errors, and the recorder
// bridging the request path to a store.
package storage
