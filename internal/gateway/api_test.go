// ABOUTME: Tests for the JSON session and history endpoints
// ABOUTME: Covers creation, listing, idempotent end, shared authorization, and pagination

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendra/chat-gateway/internal/session"
	"github.com/vendra/chat-gateway/internal/store"
)

func doJSON(t *testing.T, method, url string, body any, header http.Header) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func TestCreateSession_Guest(t *testing.T) {
	g := newTestGateway(t, &fakeTransport{})
	srv := newTestServer(t, g)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/chat/sessions", map[string]any{}, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["isGuest"])
	assert.NotEmpty(t, body["sessionId"])
	assert.NotEmpty(t, body["deviceId"], "device id is generated and returned for reuse")
	assert.NotEmpty(t, body["expiresAt"])
}

func TestCreateSession_Authenticated(t *testing.T) {
	g := newTestGateway(t, &fakeTransport{})
	srv := newTestServer(t, g)
	token := issueToken(t, g, "user-1")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/chat/sessions", map[string]any{"locale": "en-US"}, bearer(token))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, false, body["isGuest"])
	assert.Nil(t, body["deviceId"])
	assert.Nil(t, body["expiresAt"], "user sessions carry no expiry")

	sess, err := g.sessions.Get(context.Background(), body["sessionId"].(string))
	require.NoError(t, err)
	require.NotNil(t, sess.UserID)
	assert.Equal(t, "user-1", *sess.UserID)
	assert.Equal(t, "en-US", sess.Locale)
}

func TestGetSession_Authorization(t *testing.T) {
	g := newTestGateway(t, &fakeTransport{})
	srv := newTestServer(t, g)

	guest := createGuestSession(t, g)
	owned := createUserSession(t, g, "user-1")

	t.Run("guest session needs no credential", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/chat/sessions/"+guest.SessionID, nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "GUEST", body["sessionType"])
	})

	t.Run("missing session is 404", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/chat/sessions/missing", nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("owned session without credential is 401", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/chat/sessions/"+owned.SessionID, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Authentication required", body["error"])
	})

	t.Run("owned session with wrong owner is 403", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/chat/sessions/"+owned.SessionID, nil, bearer(issueToken(t, g, "user-2")))
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "Access denied", body["error"])
	})

	t.Run("owner reads own session", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/chat/sessions/"+owned.SessionID, nil, bearer(issueToken(t, g, "user-1")))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "CUSTOMER", body["sessionType"])
	})
}

func TestListSessions_RequiresAuth(t *testing.T) {
	g := newTestGateway(t, &fakeTransport{})
	srv := newTestServer(t, g)

	createUserSession(t, g, "user-1")
	createUserSession(t, g, "user-1")
	createUserSession(t, g, "user-2")

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/chat/sessions", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/chat/sessions", nil, bearer(issueToken(t, g, "user-1")))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["sessions"], 2)
}

func TestEndSession_Idempotent(t *testing.T) {
	g := newTestGateway(t, &fakeTransport{})
	srv := newTestServer(t, g)
	sess := createGuestSession(t, g)

	url := srv.URL + "/v1/chat/sessions/" + sess.SessionID + "/end"

	resp, body := doJSON(t, http.MethodPost, url, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	resp, body = doJSON(t, http.MethodPost, url, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["success"], "second end is a failure result, not an error")

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/chat/sessions/missing/end", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}

func TestListGuestSessions(t *testing.T) {
	g := newTestGateway(t, &fakeTransport{})
	srv := newTestServer(t, g)

	first := createGuestSession(t, g)
	// Second conversation on the same device.
	second, err := g.sessions.Create(context.Background(), session.CreateParams{IsGuest: true, DeviceID: first.DeviceID})
	require.NoError(t, err)
	// Unrelated device.
	createGuestSession(t, g)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/chat/guest/sessions", map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/chat/guest/sessions", map[string]any{"deviceId": first.DeviceID}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	sessions := body["sessions"].([]any)
	require.Len(t, sessions, 2)
	ids := []string{
		sessions[0].(map[string]any)["sessionId"].(string),
		sessions[1].(map[string]any)["sessionId"].(string),
	}
	assert.ElementsMatch(t, []string{first.SessionID, second.SessionID}, ids)
}

func TestHistory(t *testing.T) {
	g := newTestGateway(t, &fakeTransport{})
	srv := newTestServer(t, g)
	sess := createGuestSession(t, g)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 15; i++ {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		require.NoError(t, g.store.SaveMessage(context.Background(), &store.ChatMessage{
			ID:        fmt.Sprintf("msg-%02d", i),
			SessionID: sess.SessionID,
			Role:      role,
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/chat/sessions/"+sess.SessionID+"/messages?limit=10", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["hasMore"])

	messages := body["messages"].([]any)
	require.Len(t, messages, 10)
	firstPage := messages[0].(map[string]any)
	assert.Equal(t, "msg-05", firstPage["id"], "page holds the newest records in chronological order")

	oldest, ok := body["oldestTimestamp"].(string)
	require.True(t, ok)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/chat/sessions/"+sess.SessionID+"/messages?limit=10&before="+oldest, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["hasMore"])
	messages = body["messages"].([]any)
	require.Len(t, messages, 5)
	assert.Equal(t, "msg-00", messages[0].(map[string]any)["id"])
	assert.Equal(t, "msg-04", messages[4].(map[string]any)["id"])
}

func TestHistory_BadParams(t *testing.T) {
	g := newTestGateway(t, &fakeTransport{})
	srv := newTestServer(t, g)
	sess := createGuestSession(t, g)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/chat/sessions/"+sess.SessionID+"/messages?limit=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/chat/sessions/"+sess.SessionID+"/messages?before=notatime", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFeedback(t *testing.T) {
	g := newTestGateway(t, &fakeTransport{})
	srv := newTestServer(t, g)
	sess := createGuestSession(t, g)

	url := srv.URL + "/v1/chat/sessions/" + sess.SessionID + "/feedback"

	resp, body := doJSON(t, http.MethodPost, url, map[string]any{"messageId": "msg-1", "rating": 4, "reason": "helpful"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	resp, _ = doJSON(t, http.MethodPost, url, map[string]any{"messageId": "msg-1", "rating": 9}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, url, map[string]any{"rating": 3}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	g := newTestGateway(t, &fakeTransport{})
	srv := newTestServer(t, g)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
