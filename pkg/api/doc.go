// Package api defines the canonical chat protocol exposed by the unillm
// gateway. The wire format follows the Ollama chat API: requests carry a
// flat message list, responses are emitted as frames: either a single JSON
// document (non-streaming) or newline-delimited JSON where exactly the last
// frame has done=true.
//
// All other packages depend on these types; none of them redefine wire
// shapes of their own for the inbound surface.
package api
