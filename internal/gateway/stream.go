// ABOUTME: SSE streaming handler relaying orchestrator events to the client
// ABOUTME: Multiplexes heartbeats with payload events and guarantees one terminal done

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/vendra/chat-gateway/internal/orchestrator"
	"github.com/vendra/chat-gateway/internal/session"
	"github.com/vendra/chat-gateway/internal/store"
)

// sseWriter serializes event writes from the relay loop and the
// heartbeat goroutine onto one response. Once a write fails the
// connection is considered gone and further writes are dropped.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

func newSSEWriter(w http.ResponseWriter, flusher http.Flusher) *sseWriter {
	return &sseWriter{w: w, flusher: flusher}
}

// writeRaw frames one record as a data line and flushes it.
func (s *sseWriter) writeRaw(raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("connection closed")
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", raw); err != nil {
		s.closed = true
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) writeEvent(eventType string, fields map[string]any) error {
	payload := map[string]any{"type": eventType}
	for k, v := range fields {
		payload[k] = v
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.writeRaw(raw)
}

// handleChatMessages is the streaming endpoint. It authorizes the
// session, opens an orchestrator stream, and relays events to the client
// interleaved with heartbeat pings until the orchestrator finishes, the
// client disconnects, or relaying fails. Every opened stream ends with
// exactly one done record.
func (g *Gateway) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" || strings.TrimSpace(req.Message) == "" {
		writeAPIError(w, http.StatusBadRequest, "sessionId and message are required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeAPIError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	// Framing headers go out before any authorization work so the client
	// observes a live stream immediately.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sw := newSSEWriter(w, flusher)
	traceID := middleware.GetReqID(r.Context())
	logger := g.logger.With("session_id", req.SessionID, "trace_id", traceID)

	sess, identity, authErr := g.authorizeSession(r, req.SessionID)
	if authErr != nil {
		_ = sw.writeEvent(orchestrator.EventError, map[string]any{"error": authErr.message})
		_ = sw.writeEvent(orchestrator.EventDone, nil)
		return
	}

	_ = sw.writeEvent(orchestrator.EventAck, map[string]any{"sessionId": sess.ID})

	g.sessions.TouchActivity(r.Context(), sess.ID)
	g.saveMessage(r.Context(), sess.ID, store.RoleUser, req.Message, logger)

	authedUserID := ""
	if identity != nil {
		authedUserID = identity.UserID
	}
	effectiveUserID := session.EffectiveUserID(sess, authedUserID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stream, err := g.transport.ProcessMessage(ctx, sess.ID, effectiveUserID, req.Message)
	if err != nil {
		logger.Error("failed to open orchestrator stream", "error", err)
		_ = sw.writeEvent(orchestrator.EventError, map[string]any{
			"error": sanitizeError(err, g.config.Chat.DebugErrors, traceID),
		})
		_ = sw.writeEvent(orchestrator.EventDone, nil)
		return
	}

	// Close the upstream call on client disconnect or loop exit so an
	// abandoned stream never runs to completion unconsumed.
	go func() {
		<-ctx.Done()
		_ = stream.Close()
	}()

	var heartbeats sync.WaitGroup
	heartbeats.Add(1)
	go func() {
		defer heartbeats.Done()
		ticker := time.NewTicker(g.config.Chat.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := sw.writeEvent(orchestrator.EventPing, nil); err != nil {
					return
				}
			}
		}
	}()

	reply, relayErr := g.relay(ctx, stream, sw)

	// Heartbeats stop before the terminal done so it is the last record.
	cancel()
	heartbeats.Wait()

	if relayErr != nil && ctx.Err() == nil {
		logger.Error("stream relay failed", "error", relayErr)
		_ = sw.writeEvent(orchestrator.EventError, map[string]any{
			"error": sanitizeError(relayErr, g.config.Chat.DebugErrors, traceID),
		})
	}
	_ = sw.writeEvent(orchestrator.EventDone, nil)

	if relayErr == nil && reply != "" {
		// The request context may already be canceled (client gone); the
		// assembled reply is still part of the conversation history.
		g.saveMessage(context.WithoutCancel(r.Context()), sess.ID, store.RoleAssistant, reply, logger)
	}
}

// relay forwards orchestrator events to the client until the sequence
// ends. Internal ping/ack markers are dropped; the orchestrator's own
// done marker terminates the loop without being forwarded, since the
// caller writes the single client-facing done. Returns the assembled
// assistant reply from token events.
func (g *Gateway) relay(ctx context.Context, stream orchestrator.EventStream, sw *sseWriter) (string, error) {
	var reply strings.Builder

	for {
		ev, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				return reply.String(), nil
			}
			return reply.String(), err
		}

		switch ev.Type {
		case orchestrator.EventDone:
			return reply.String(), nil
		case orchestrator.EventPing, orchestrator.EventAck:
			continue
		case orchestrator.EventToken:
			reply.WriteString(ev.Content())
		}

		if err := sw.writeRaw(ev.Raw); err != nil {
			// Client is gone; stop consuming promptly.
			return reply.String(), nil
		}
		if ctx.Err() != nil {
			return reply.String(), nil
		}
	}
}

// saveMessage records a message for history. Best-effort: persistence
// failures never interrupt the stream.
func (g *Gateway) saveMessage(ctx context.Context, sessionID, role, content string, logger *slog.Logger) {
	msg := &store.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.store.SaveMessage(ctx, msg); err != nil {
		logger.Warn("failed to persist message", "role", role, "error", err)
	}
}
