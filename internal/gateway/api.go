// ABOUTME: JSON API handlers for session lifecycle, history, and feedback
// ABOUTME: Holds the single shared session authorization rule for all read paths

package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vendra/chat-gateway/internal/auth"
	"github.com/vendra/chat-gateway/internal/session"
	"github.com/vendra/chat-gateway/internal/store"
)

// authzError is a terminal authorization outcome. Streams render it as
// an error+done pair; plain endpoints render it as a JSON status.
type authzError struct {
	status  int
	message string
}

// authorizeSession applies the ownership rule shared by the streaming
// and history paths: an absent session is terminal; a user-owned session
// requires a verified identity matching the owner; a guest session needs
// no credential at all. The resolved identity (nil for anonymous guests)
// is returned for effective-user-id derivation.
func (g *Gateway) authorizeSession(r *http.Request, sessionID string) (*store.ChatSession, *auth.Identity, *authzError) {
	sess, err := g.sessions.Get(r.Context(), sessionID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, nil, &authzError{status: http.StatusNotFound, message: "Session not found"}
		}
		g.logger.Error("session lookup failed", "session_id", sessionID, "error", err)
		return nil, nil, &authzError{status: http.StatusInternalServerError, message: "Internal error"}
	}

	if sess.UserID != nil {
		cred := auth.CredentialFromRequest(r, g.config.Auth.CookieName)
		if cred == "" {
			return nil, nil, &authzError{status: http.StatusUnauthorized, message: "Authentication required"}
		}
		id, err := g.verifier.Verify(cred)
		if err != nil {
			return nil, nil, &authzError{status: http.StatusUnauthorized, message: "Invalid or expired token"}
		}
		if id.UserID != *sess.UserID {
			return nil, nil, &authzError{status: http.StatusForbidden, message: "Access denied"}
		}
		return sess, id, nil
	}

	// Guest-owned: knowledge of the session id is sufficient. An identity
	// is still resolved opportunistically for downstream attribution.
	return sess, auth.IdentityFromRequest(r, g.config.Auth.CookieName, g.verifier), nil
}

// requireIdentity resolves a verified identity or explains why it could
// not, distinguishing a missing credential from a rejected one.
func (g *Gateway) requireIdentity(r *http.Request) (*auth.Identity, *authzError) {
	cred := auth.CredentialFromRequest(r, g.config.Auth.CookieName)
	if cred == "" {
		return nil, &authzError{status: http.StatusUnauthorized, message: "Authentication required"}
	}
	id, err := g.verifier.Verify(cred)
	if err != nil {
		return nil, &authzError{status: http.StatusUnauthorized, message: "Invalid or expired token"}
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// sessionPayload is the client-facing projection of a session.
type sessionPayload struct {
	SessionID    string     `json:"sessionId"`
	SessionType  string     `json:"sessionType"`
	Status       string     `json:"status"`
	Locale       string     `json:"locale"`
	Channel      string     `json:"channel"`
	UserID       *string    `json:"userId,omitempty"`
	GuestID      *string    `json:"guestId,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastActiveAt time.Time  `json:"lastActiveAt"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
}

func toSessionPayload(sess *store.ChatSession) sessionPayload {
	return sessionPayload{
		SessionID:    sess.ID,
		SessionType:  string(sess.Type),
		Status:       string(sess.Status),
		Locale:       sess.Locale,
		Channel:      sess.Channel,
		UserID:       sess.UserID,
		GuestID:      sess.GuestID,
		CreatedAt:    sess.CreatedAt,
		LastActiveAt: sess.LastActiveAt,
		ExpiresAt:    sess.ExpiresAt,
		EndedAt:      sess.EndedAt,
	}
}

func toSessionPayloads(sessions []*store.ChatSession) []sessionPayload {
	out := make([]sessionPayload, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionPayload(sess))
	}
	return out
}

// handleCreateSession starts a new conversation. Authenticated callers
// get a user-owned session; everyone else gets a guest session scoped to
// a device id, generated when the client does not supply one.
func (g *Gateway) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Locale   string `json:"locale"`
		DeviceID string `json:"deviceId"`
	}
	if r.Body != nil {
		// Body is optional; a bare POST creates a guest session.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	identity := auth.IdentityFromRequest(r, g.config.Auth.CookieName, g.verifier)

	params := session.CreateParams{
		Locale:   req.Locale,
		IsGuest:  identity == nil,
		DeviceID: req.DeviceID,
	}
	if identity != nil {
		params.OwnerUserID = identity.UserID
	}

	result, err := g.sessions.Create(r.Context(), params)
	if err != nil {
		g.logger.Error("session create failed", "error", err)
		writeAPIError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	resp := map[string]any{
		"sessionId": result.SessionID,
		"isGuest":   result.IsGuest,
	}
	if result.DeviceID != "" {
		resp["deviceId"] = result.DeviceID
	}
	if result.ExpiresAt != nil {
		resp["expiresAt"] = result.ExpiresAt
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (g *Gateway) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, _, authErr := g.authorizeSession(r, sessionID)
	if authErr != nil {
		writeAPIError(w, authErr.status, authErr.message)
		return
	}

	writeJSON(w, http.StatusOK, toSessionPayload(sess))
}

// handleListSessions returns the authenticated caller's sessions.
func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	identity, authErr := g.requireIdentity(r)
	if authErr != nil {
		writeAPIError(w, authErr.status, authErr.message)
		return
	}

	sessions, err := g.sessions.ListUserSessions(r.Context(), identity.UserID)
	if err != nil {
		g.logger.Error("session list failed", "user_id", identity.UserID, "error", err)
		writeAPIError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": toSessionPayloads(sessions)})
}

// handleEndSession transitions an ACTIVE session to ENDED. Ending a
// session that is absent or already terminal reports success=false
// rather than an error.
func (g *Gateway) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	_, _, authErr := g.authorizeSession(r, sessionID)
	if authErr != nil {
		if authErr.status == http.StatusNotFound {
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Session not found"})
			return
		}
		writeAPIError(w, authErr.status, authErr.message)
		return
	}

	ended, err := g.sessions.End(r.Context(), sessionID)
	if err != nil {
		g.logger.Error("session end failed", "session_id", sessionID, "error", err)
		writeAPIError(w, http.StatusInternalServerError, "Failed to end session")
		return
	}

	if !ended {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Session is not active"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Session ended"})
}

// handleListGuestSessions lists a device's ACTIVE guest sessions. The
// device id is the only key; it is a grouping token, not a credential.
func (g *Gateway) handleListGuestSessions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"deviceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" {
		writeAPIError(w, http.StatusBadRequest, "deviceId is required")
		return
	}

	sessions, err := g.sessions.ListGuestSessions(r.Context(), req.DeviceID)
	if err != nil {
		g.logger.Error("guest session list failed", "device_id", req.DeviceID, "error", err)
		writeAPIError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": toSessionPayloads(sessions)})
}

// handleHistory returns one page of message history, newest page first
// by cursor. The `before` query parameter is an exclusive upper bound;
// the returned oldestTimestamp feeds the next page's cursor.
func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	_, _, authErr := g.authorizeSession(r, sessionID)
	if authErr != nil {
		writeAPIError(w, authErr.status, authErr.message)
		return
	}

	limit := g.config.Chat.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeAPIError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	params := store.GetMessagesParams{SessionID: sessionID, Limit: limit}
	if raw := r.URL.Query().Get("before"); raw != "" {
		before, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, "before must be an RFC 3339 timestamp")
			return
		}
		params.Before = &before
	}

	result, err := g.store.GetMessages(r.Context(), params)
	if err != nil {
		g.logger.Error("history fetch failed", "session_id", sessionID, "error", err)
		writeAPIError(w, http.StatusInternalServerError, "Failed to fetch history")
		return
	}

	type messagePayload struct {
		ID        string    `json:"id"`
		Role      string    `json:"role"`
		Content   string    `json:"content"`
		CreatedAt time.Time `json:"createdAt"`
	}

	messages := make([]messagePayload, 0, len(result.Messages))
	for _, m := range result.Messages {
		messages = append(messages, messagePayload{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}

	resp := map[string]any{
		"messages": messages,
		"hasMore":  result.HasMore,
	}
	if len(result.Messages) > 0 {
		resp["oldestTimestamp"] = result.Messages[0].CreatedAt.Format(time.RFC3339Nano)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleFeedback attaches a rating to an assistant message.
func (g *Gateway) handleFeedback(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	_, _, authErr := g.authorizeSession(r, sessionID)
	if authErr != nil {
		writeAPIError(w, authErr.status, authErr.message)
		return
	}

	var req struct {
		MessageID string `json:"messageId"`
		Rating    int    `json:"rating"`
		Reason    string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MessageID == "" {
		writeAPIError(w, http.StatusBadRequest, "messageId is required")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeAPIError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	fb := &store.Feedback{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		MessageID: req.MessageID,
		Rating:    req.Rating,
		Reason:    req.Reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.store.SaveFeedback(r.Context(), fb); err != nil {
		g.logger.Error("feedback save failed", "session_id", sessionID, "error", err)
		writeAPIError(w, http.StatusInternalServerError, "Failed to save feedback")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
