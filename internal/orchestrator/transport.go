// ABOUTME: Transport contract for the AI orchestrator client
// ABOUTME: Defines the event model, lazy event stream, and variant selection

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vendra/chat-gateway/internal/config"
)

// Event types produced by the orchestrator. Token and the structured
// results are forwarded to clients verbatim; ping and ack are
// transport-internal; done is the terminal marker.
const (
	EventToken         = "token"
	EventClarification = "clarification"
	EventCards         = "cards"
	EventComparison    = "comparison"
	EventCartUpdated   = "cart_updated"
	EventOrderCreated  = "order_created"
	EventFollowups     = "followups"
	EventError         = "error"
	EventDone          = "done"
	EventPing          = "ping"
	EventAck           = "ack"
)

// Event is one discriminated unit of streamed conversation output. Raw
// holds the complete JSON object as produced by the orchestrator so the
// gateway can forward payloads without re-encoding them.
type Event struct {
	Type string
	Raw  json.RawMessage
}

// Content decodes the "content" field of a token event.
func (e *Event) Content() string {
	var payload struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(e.Raw, &payload); err != nil {
		return ""
	}
	return payload.Content
}

// EventStream is an unbounded, non-restartable sequence of events.
// Recv blocks until the next event is available and returns io.EOF when
// the stream completes. Close releases the underlying transport resource
// and must be called when the consumer abandons the stream early.
type EventStream interface {
	Recv() (*Event, error)
	Close() error
}

// Transport is the orchestrator client capability set. Both wire variants
// satisfy it with identical observable behavior.
type Transport interface {
	// ProcessMessage opens a server-streaming message-processing call.
	ProcessMessage(ctx context.Context, sessionID, userID, message string) (EventStream, error)

	// InvokeTool executes a single tool call. Backend-reported
	// application failures surface as *ToolError, distinct from
	// transport-level errors.
	InvokeTool(ctx context.Context, toolName string, args map[string]any, traceID string) (json.RawMessage, error)
}

// ToolError is a well-formed failure reported by the orchestrator, as
// opposed to a transport failure reaching it.
type ToolError struct {
	Message string
}

func (e *ToolError) Error() string {
	return e.Message
}

// New selects the transport variant from configuration: a configured
// gRPC address wins, otherwise the chunked-HTTP variant is used against
// the base URL. The choice is made once here; call sites never branch.
func New(cfg config.OrchestratorConfig, logger *slog.Logger) (Transport, error) {
	if cfg.GRPCAddr != "" {
		return NewGRPCTransport(cfg.GRPCAddr, logger)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("orchestrator transport requires grpc_addr or base_url")
	}
	return NewHTTPTransport(cfg.BaseURL, cfg.RequestTimeout, logger), nil
}

// parseEvent decodes the type discriminator of a raw orchestrator
// payload. Payloads that are not JSON objects with a type field are kept
// as-is with an empty type; consumers ignore unknown types defensively.
func parseEvent(raw []byte) *Event {
	var head struct {
		Type string `json:"type"`
	}
	ev := &Event{Raw: json.RawMessage(raw)}
	if err := json.Unmarshal(raw, &head); err == nil {
		ev.Type = head.Type
	}
	return ev
}

// syntheticEvent builds a gateway-originated event of the given type.
func syntheticEvent(eventType string, fields map[string]string) *Event {
	payload := map[string]string{"type": eventType}
	for k, v := range fields {
		payload[k] = v
	}
	raw, _ := json.Marshal(payload)
	return &Event{Type: eventType, Raw: raw}
}
