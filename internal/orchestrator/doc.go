// Package orchestrator is the client for the AI orchestration backend.
//
// Two wire variants exist behind one Transport interface: a gRPC
// server-streaming client and a chunked-HTTP client that parses
// "data: <json>" lines. The variant is chosen once from configuration at
// construction time; nothing downstream branches on it. Both variants
// deliver the same event model, and the HTTP variant converts transport
// failures into an error event followed by a done event so that every
// opened stream terminates cleanly.
package orchestrator
