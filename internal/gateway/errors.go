// ABOUTME: Client-facing error sanitization for streamed failures
// ABOUTME: Maps internal errors to generic categories outside debug mode

package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sanitized messages by failure category.
const (
	errMsgTimeout       = "The request timed out. Please try again."
	errMsgConnectivity  = "Unable to reach the service. Please check your connection and try again."
	errMsgAIUnavailable = "The assistant is temporarily unavailable. Please try again shortly."
	errMsgGeneric       = "Something went wrong. Please try again."
)

// sanitizeError maps an internal error to a message safe to put on the
// wire. In debug mode the raw text and trace id pass through; otherwise
// the error is bucketed into one of a few generic categories so internal
// details never reach end users.
func sanitizeError(err error, debug bool, traceID string) string {
	if debug {
		if traceID != "" {
			return fmt.Sprintf("%s (trace: %s)", err.Error(), traceID)
		}
		return err.Error()
	}

	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return errMsgTimeout
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "broken pipe"):
		return errMsgConnectivity
	case strings.Contains(msg, "unavailable"),
		strings.Contains(msg, "orchestrat"):
		return errMsgAIUnavailable
	default:
		return errMsgGeneric
	}
}
