// ABOUTME: Tests for client-facing error sanitization
// ABOUTME: Covers category mapping and debug passthrough

package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeError_Categories(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"deadline exceeded", context.DeadlineExceeded, errMsgTimeout},
		{"timeout text", errors.New("request timeout after 60s"), errMsgTimeout},
		{"connection refused", errors.New("dial tcp 10.0.0.1:50051: connection refused"), errMsgConnectivity},
		{"connection reset", errors.New("read: connection reset by peer"), errMsgConnectivity},
		{"dns failure", errors.New("lookup orchestrator: no such host"), errMsgConnectivity},
		{"grpc unavailable", errors.New("rpc error: code = Unavailable desc = transport closing"), errMsgAIUnavailable},
		{"anything else", errors.New("index out of range"), errMsgGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeError(tt.err, false, "trace-1")
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, tt.err.Error(), "internal text must not leak")
		})
	}
}

func TestSanitizeError_Debug(t *testing.T) {
	err := fmt.Errorf("opening stream: connection refused")

	got := sanitizeError(err, true, "trace-42")
	assert.Contains(t, got, "connection refused")
	assert.Contains(t, got, "trace-42")

	got = sanitizeError(err, true, "")
	assert.Equal(t, err.Error(), got)
}
