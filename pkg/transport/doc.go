// Package transport exposes the gateway over HTTP. It owns the inbound
// route surface (chat, tags, version), the NDJSON stream writer, the
// translation of internal errors to status codes, and the HTTP middleware
// chain (request IDs, logging, panic recovery, CORS).
package transport
