// Package gateway is the HTTP surface of the chat BFF.
//
// It fronts the session lifecycle manager, the message store, and the
// orchestrator transport with a chi-routed JSON API plus one SSE
// streaming endpoint. Session authorization is implemented once
// (authorizeSession) and shared by the streaming and history read paths
// so the two cannot drift. Streamed failures are sanitized into generic
// categories before reaching the wire unless debug errors are enabled.
package gateway
