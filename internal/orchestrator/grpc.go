// ABOUTME: gRPC streaming transport variant for the orchestrator client
// ABOUTME: Opens server-streaming ProcessMessage calls and unary TestTool calls

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	processMessageMethod = "/commerce.ai.orchestrator.Orchestrator/ProcessMessage"
	testToolMethod       = "/commerce.ai.orchestrator.Orchestrator/TestTool"
)

var processMessageStreamDesc = &grpc.StreamDesc{
	StreamName:    "ProcessMessage",
	ServerStreams: true,
}

// GRPCTransport implements Transport over a gRPC connection to the
// orchestrator.
type GRPCTransport struct {
	conn   *grpc.ClientConn
	logger *slog.Logger
}

// NewGRPCTransport creates a gRPC transport for the given address.
// The connection is lazy; no dial happens until the first call.
func NewGRPCTransport(addr string, logger *slog.Logger) (*GRPCTransport, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator grpc client: %w", err)
	}
	return &GRPCTransport{
		conn:   conn,
		logger: logger.With("component", "orchestrator-grpc"),
	}, nil
}

// ProcessMessage opens a server-streaming call. Each server push carries
// a JSON-encoded payload string that is decoded into an application
// event. Stream completion surfaces as io.EOF from Recv; stream errors
// surface as the underlying status error.
func (t *GRPCTransport) ProcessMessage(ctx context.Context, sessionID, userID, message string) (EventStream, error) {
	ctx, cancel := context.WithCancel(ctx)

	stream, err := t.conn.NewStream(ctx, processMessageStreamDesc, processMessageMethod, grpc.ForceCodec(wireCodec{}))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening process message stream: %w", err)
	}

	req := &processMessageRequest{
		SessionID: sessionID,
		UserID:    userID,
		Message:   message,
	}
	if err := stream.SendMsg(req); err != nil {
		cancel()
		return nil, fmt.Errorf("sending process message request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, fmt.Errorf("closing send side: %w", err)
	}

	return &grpcEventStream{stream: stream, cancel: cancel}, nil
}

// InvokeTool executes a unary TestTool call. A response with success set
// to false is an application failure and returns *ToolError.
func (t *GRPCTransport) InvokeTool(ctx context.Context, toolName string, args map[string]any, traceID string) (json.RawMessage, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encoding tool arguments: %w", err)
	}
	if args == nil {
		argsJSON = []byte("{}")
	}

	req := &testToolRequest{
		ToolName:      toolName,
		ArgumentsJSON: string(argsJSON),
		TraceID:       traceID,
	}
	resp := &testToolResponse{}

	if err := t.conn.Invoke(ctx, testToolMethod, req, resp, grpc.ForceCodec(wireCodec{})); err != nil {
		return nil, fmt.Errorf("invoking tool %s: %w", toolName, err)
	}

	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "tool execution failed"
		}
		return nil, &ToolError{Message: msg}
	}

	if resp.ResultJSON == "" {
		return json.RawMessage("{}"), nil
	}
	return json.RawMessage(resp.ResultJSON), nil
}

// Close tears down the shared connection.
func (t *GRPCTransport) Close() error {
	return t.conn.Close()
}

// grpcEventStream adapts a grpc.ClientStream to EventStream.
type grpcEventStream struct {
	stream grpc.ClientStream
	cancel context.CancelFunc
}

func (s *grpcEventStream) Recv() (*Event, error) {
	chunk := &processChunk{}
	if err := s.stream.RecvMsg(chunk); err != nil {
		return nil, err
	}
	return parseEvent([]byte(chunk.JSON)), nil
}

// Close cancels the call context, which releases the underlying stream.
func (s *grpcEventStream) Close() error {
	s.cancel()
	return nil
}
