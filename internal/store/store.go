// ABOUTME: Store interface and data types for chat-gateway persistence
// ABOUTME: Defines ChatSession, ChatMessage structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateSession is returned when trying to create a session that already exists
var ErrDuplicateSession = errors.New("session already exists")

// SessionType distinguishes anonymous guest sessions from user-owned ones
type SessionType string

const (
	SessionTypeGuest    SessionType = "GUEST"
	SessionTypeCustomer SessionType = "CUSTOMER"
)

// SessionStatus is the lifecycle state of a session. Transitions are
// monotonic: once ENDED or EXPIRED a session never returns to ACTIVE.
type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "ACTIVE"
	SessionStatusEnded   SessionStatus = "ENDED"
	SessionStatusExpired SessionStatus = "EXPIRED"
)

// ChatSession represents one conversation scope, owned either by a guest
// device identifier or an authenticated user. A GUEST session always
// carries a non-nil GuestID and nil UserID; a CUSTOMER session always
// carries a non-nil UserID. ExpiresAt is set only while a guest session
// has neither been upgraded nor explicitly ended.
type ChatSession struct {
	ID           string
	UserID       *string
	GuestID      *string
	Type         SessionType
	Status       SessionStatus
	Locale       string
	Channel      string
	CreatedAt    time.Time
	LastActiveAt time.Time
	ExpiresAt    *time.Time
	EndedAt      *time.Time
}

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// ChatMessage represents a single message within a session for history purposes
type ChatMessage struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

// GetMessagesParams specifies the parameters for paginated history retrieval.
type GetMessagesParams struct {
	SessionID string
	Limit     int        // 1-100, defaults to 10
	Before    *time.Time // exclusive upper bound on message time
}

// GetMessagesResult contains one page of history in chronological order.
type GetMessagesResult struct {
	Messages []ChatMessage
	HasMore  bool // true if older messages exist before this page
}

// Feedback is a user rating attached to an assistant message
type Feedback struct {
	ID        string
	SessionID string
	MessageID string
	Rating    int
	Reason    string
	CreatedAt time.Time
}

// User is an authenticated customer created at first OTP login
type User struct {
	ID           string
	PhoneCountry string
	PhoneNumber  string
	Role         string
	CreatedAt    time.Time
}

// OTPRequest tracks an outstanding one-time-code challenge
type OTPRequest struct {
	ID                string
	PhoneCountry      string
	PhoneNumber       string
	OTP               string
	DeviceID          string
	Attempts          int
	MaxAttempts       int
	Used              bool
	ExpiresAt         time.Time
	ResendAvailableAt time.Time
	CreatedAt         time.Time
}

// Store defines the interface for session, message, and auth persistence.
// Implementations must support concurrent reads and targeted per-session
// updates without a global lock; the conditional mutations (EndSession,
// UpgradeGuestSessions) are each a single atomic storage operation.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, sess *ChatSession) error
	GetSession(ctx context.Context, id string) (*ChatSession, error)
	ListGuestSessions(ctx context.Context, deviceID string) ([]*ChatSession, error)
	ListUserSessions(ctx context.Context, userID string) ([]*ChatSession, error)

	// EndSession transitions an ACTIVE session to ENDED, setting ended_at
	// and clearing expires_at. Returns false if the session was absent or
	// not ACTIVE (already ended or expired).
	EndSession(ctx context.Context, id string, endedAt time.Time) (bool, error)

	// UpgradeGuestSessions atomically converts every session with the
	// given guest id and no owner into a CUSTOMER session owned by
	// userID, clearing guest_id and expires_at. Returns the ids actually
	// changed; calling again is a no-op since guest_id is gone.
	UpgradeGuestSessions(ctx context.Context, deviceID, userID string) ([]string, error)

	// TouchSessionActivity updates last_active_at only.
	TouchSessionActivity(ctx context.Context, id string, at time.Time) error

	// Messages (history)
	SaveMessage(ctx context.Context, msg *ChatMessage) error
	GetMessages(ctx context.Context, params GetMessagesParams) (*GetMessagesResult, error)

	// Feedback
	SaveFeedback(ctx context.Context, fb *Feedback) error

	// Users
	GetUserByPhone(ctx context.Context, phoneCountry, phoneNumber string) (*User, error)
	CreateUser(ctx context.Context, user *User) error

	// OTP requests
	CreateOTPRequest(ctx context.Context, req *OTPRequest) error
	GetOTPRequest(ctx context.Context, id string) (*OTPRequest, error)

	// GetLatestOTPRequest returns the most recently created challenge
	// for a phone number, or ErrNotFound. Used to enforce the resend
	// window on repeated requests.
	GetLatestOTPRequest(ctx context.Context, phoneCountry, phoneNumber string) (*OTPRequest, error)
	IncrementOTPAttempts(ctx context.Context, id string) error
	MarkOTPUsed(ctx context.Context, id string) error

	// Close releases any resources held by the store
	Close() error
}
