// ABOUTME: Shared test harness for gateway handler tests
// ABOUTME: Provides a fake orchestrator transport and SSE record helpers

package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vendra/chat-gateway/internal/auth"
	"github.com/vendra/chat-gateway/internal/config"
	"github.com/vendra/chat-gateway/internal/orchestrator"
	"github.com/vendra/chat-gateway/internal/session"
	"github.com/vendra/chat-gateway/internal/store"
)

const testJWTSecret = "test-secret"

// fakeStream replays a fixed event sequence. With blocking set, Recv
// hangs after the scripted events until Close is called, which lets
// tests observe cancellation.
type fakeStream struct {
	events   []*orchestrator.Event
	blocking bool

	mu        sync.Mutex
	next      int
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeStream(blocking bool, events ...*orchestrator.Event) *fakeStream {
	return &fakeStream{
		events:   events,
		blocking: blocking,
		closed:   make(chan struct{}),
	}
}

func (s *fakeStream) Recv() (*orchestrator.Event, error) {
	s.mu.Lock()
	if s.next < len(s.events) {
		ev := s.events[s.next]
		s.next++
		s.mu.Unlock()
		return ev, nil
	}
	s.mu.Unlock()

	if s.blocking {
		<-s.closed
	}
	return nil, io.EOF
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) waitClosed(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case <-s.closed:
	case <-time.After(within):
		t.Fatalf("upstream stream was not closed within %v", within)
	}
}

type fakeTransport struct {
	stream  orchestrator.EventStream
	openErr error

	mu          sync.Mutex
	lastSession string
	lastUserID  string
	lastMessage string
}

func (f *fakeTransport) ProcessMessage(ctx context.Context, sessionID, userID, message string) (orchestrator.EventStream, error) {
	f.mu.Lock()
	f.lastSession = sessionID
	f.lastUserID = userID
	f.lastMessage = message
	f.mu.Unlock()

	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.stream, nil
}

func (f *fakeTransport) InvokeTool(ctx context.Context, toolName string, args map[string]any, traceID string) (json.RawMessage, error) {
	return json.RawMessage("{}"), nil
}

func (f *fakeTransport) lastCall() (sessionID, userID, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSession, f.lastUserID, f.lastMessage
}

func event(eventType string, fields map[string]any) *orchestrator.Event {
	payload := map[string]any{"type": eventType}
	for k, v := range fields {
		payload[k] = v
	}
	raw, _ := json.Marshal(payload)
	return &orchestrator.Event{Type: eventType, Raw: raw}
}

func tokenEvent(content string) *orchestrator.Event {
	return event(orchestrator.EventToken, map[string]any{"content": content})
}

func newTestGateway(t *testing.T, transport orchestrator.Transport) *Gateway {
	t.Helper()

	cfg := &config.Config{
		Server:       config.ServerConfig{HTTPAddr: "localhost:0"},
		Database:     config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "test.db")},
		Auth:         config.AuthConfig{JWTSecret: testJWTSecret},
		Orchestrator: config.OrchestratorConfig{BaseURL: "http://localhost:0"},
	}
	cfg.ApplyDefaults()
	// Short heartbeat so cancellation tests complete quickly.
	cfg.Chat.HeartbeatInterval = 100 * time.Millisecond

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	logger := slog.Default()
	return &Gateway{
		config:    cfg,
		store:     s,
		sessions:  session.NewManager(s, cfg.Chat.GuestSessionTTL, logger),
		transport: transport,
		verifier:  auth.NewJWTVerifier([]byte(testJWTSecret)),
		logger:    logger,
	}
}

func newTestServer(t *testing.T, g *Gateway) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(g.router())
	t.Cleanup(srv.Close)
	return srv
}

func createGuestSession(t *testing.T, g *Gateway) *session.CreateResult {
	t.Helper()
	result, err := g.sessions.Create(context.Background(), session.CreateParams{IsGuest: true})
	require.NoError(t, err)
	return result
}

func createUserSession(t *testing.T, g *Gateway, userID string) *session.CreateResult {
	t.Helper()
	result, err := g.sessions.Create(context.Background(), session.CreateParams{OwnerUserID: userID})
	require.NoError(t, err)
	return result
}

func issueToken(t *testing.T, g *Gateway, userID string) string {
	t.Helper()
	token, err := g.verifier.Generate(&auth.Identity{UserID: userID, Role: "customer"}, time.Hour)
	require.NoError(t, err)
	return token
}

// readStreamRecords parses every data record from an SSE body.
func readStreamRecords(t *testing.T, body io.Reader) []map[string]any {
	t.Helper()
	var records []map[string]any
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 7 || line[:6] != "data: " {
			continue
		}
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(line[6:]), &record), "bad record: %s", line)
		records = append(records, record)
	}
	return records
}

// applicationRecords drops transport-internal ack and ping records.
func applicationRecords(records []map[string]any) []map[string]any {
	var out []map[string]any
	for _, r := range records {
		switch r["type"] {
		case orchestrator.EventAck, orchestrator.EventPing:
			continue
		}
		out = append(out, r)
	}
	return out
}

func recordTypes(records []map[string]any) []string {
	types := make([]string, 0, len(records))
	for _, r := range records {
		types = append(types, fmt.Sprintf("%v", r["type"]))
	}
	return types
}
