// ABOUTME: Chunked-HTTP fallback transport for the orchestrator client
// ABOUTME: Parses data-prefixed JSON lines from a streaming response body

package orchestrator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const dataPrefix = "data: "

// HTTPTransport implements Transport against the orchestrator's chunked
// HTTP endpoints. It is used when no gRPC address is configured.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPTransport creates a chunked-HTTP transport. The request timeout
// applies to unary tool calls only; streaming requests run without a
// client timeout and are bounded by the caller's context.
func NewHTTPTransport(baseURL string, requestTimeout time.Duration, logger *slog.Logger) *HTTPTransport {
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
		logger:  logger.With("component", "orchestrator-http"),
	}
}

// ProcessMessage posts the message and reads the chunked response body as
// a stream of "data: <json>" lines. Transport failures never surface as
// errors here: the contract is that every opened stream ends with a done
// marker, so failures become a synthetic error event followed by done.
func (t *HTTPTransport) ProcessMessage(ctx context.Context, sessionID, userID, message string) (EventStream, error) {
	body, err := json.Marshal(map[string]string{
		"sessionId": sessionID,
		"userId":    userID,
		"message":   message,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding process request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/orchestrator/process", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building process request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	// Streaming must not be cut off by the unary timeout.
	streamClient := &http.Client{Transport: t.client.Transport}

	resp, err := streamClient.Do(req)
	if err != nil {
		t.logger.Warn("orchestrator request failed", "error", err)
		return newFailedStream(), nil
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.logger.Warn("orchestrator returned non-200", "status", resp.StatusCode)
		return newFailedStream(), nil
	}

	return &httpEventStream{
		body:   resp.Body,
		reader: bufio.NewReader(resp.Body),
		logger: t.logger,
	}, nil
}

// InvokeTool posts a unary tool-execution request. The response envelope
// distinguishes application failures (*ToolError) from transport ones.
func (t *HTTPTransport) InvokeTool(ctx context.Context, toolName string, args map[string]any, traceID string) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(map[string]any{
		"toolName":  toolName,
		"arguments": args,
		"traceId":   traceID,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding tool request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/orchestrator/test-tool", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building tool request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoking tool %s: %w", toolName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tool endpoint returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Success bool            `json:"success"`
		Result  json.RawMessage `json:"result"`
		Error   string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding tool response: %w", err)
	}

	if !envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = "tool execution failed"
		}
		return nil, &ToolError{Message: msg}
	}
	if len(envelope.Result) == 0 {
		return json.RawMessage("{}"), nil
	}
	return envelope.Result, nil
}

// httpEventStream reads line-delimited events from a chunked response.
// Lines are only parsed when complete; a chunk boundary mid-line never
// produces a partial event.
type httpEventStream struct {
	body    io.ReadCloser
	reader  *bufio.Reader
	logger  *slog.Logger
	pending []*Event
	failed  bool
	done    bool
}

func (s *httpEventStream) Recv() (*Event, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.done {
			return nil, io.EOF
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF && line == "" {
				s.done = true
				return nil, io.EOF
			}
			if err != io.EOF {
				// Mid-stream failure: degrade to an error event and a
				// terminal done so the consumer always sees a clean end.
				if !s.failed {
					s.failed = true
					s.logger.Warn("orchestrator stream read failed", "error", err)
					s.pending = failureEvents()
					s.done = true
					continue
				}
				s.done = true
				return nil, io.EOF
			}
			// EOF with a trailing unterminated line: fall through and
			// parse what we have.
			s.done = true
		}

		line = strings.TrimRight(line, "\r\n")
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimPrefix(line, dataPrefix)
		if payload == "" || !json.Valid([]byte(payload)) {
			continue
		}
		return parseEvent([]byte(payload)), nil
	}
}

func (s *httpEventStream) Close() error {
	return s.body.Close()
}

// failedStream yields a fixed error-then-done pair for requests that
// never produced a usable response.
type failedStream struct {
	pending []*Event
}

func newFailedStream() *failedStream {
	return &failedStream{pending: failureEvents()}
}

func (s *failedStream) Recv() (*Event, error) {
	if len(s.pending) == 0 {
		return nil, io.EOF
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

func (s *failedStream) Close() error {
	return nil
}

func failureEvents() []*Event {
	return []*Event{
		syntheticEvent(EventError, map[string]string{"error": "Orchestration service unavailable"}),
		syntheticEvent(EventDone, nil),
	}
}
