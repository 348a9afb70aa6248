// Package provider defines the interface for upstream LLM provider
// adapters. Each adapter owns its backend's wire protocol (request shape,
// authentication convention, streaming format) and translates both
// directions into the canonical types from pkg/api, keeping backend quirks
// invisible to the transport layer.
package provider
