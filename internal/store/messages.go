// ABOUTME: Message history, feedback, user, and OTP persistence for SQLiteStore
// ABOUTME: Implements backward pagination with the limit+1 newest-first fetch

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultMessageLimit = 10
	maxMessageLimit     = 100
)

// SaveMessage persists a chat message
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *ChatMessage) error {
	query := `
		INSERT INTO chat_messages (id, session_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.SessionID,
		msg.Role,
		msg.Content,
		msg.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// GetMessages retrieves one page of history. The page is fetched newest
// first with limit+1 records (the extra row is the HasMore probe), trimmed
// to limit, then reversed to chronological order. Before is an exclusive
// upper bound on message time.
func (s *SQLiteStore) GetMessages(ctx context.Context, params GetMessagesParams) (*GetMessagesResult, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}

	query := `
		SELECT id, session_id, role, content, created_at
		FROM chat_messages
		WHERE session_id = ?
	`
	args := []any{params.SessionID}

	if params.Before != nil {
		query += ` AND created_at < ?`
		args = append(args, params.Before.UTC().Format(timeLayout))
	}

	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []ChatMessage
	for rows.Next() {
		var msg ChatMessage
		var createdAt string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if msg.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	// Reverse to chronological order (oldest first)
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return &GetMessagesResult{Messages: messages, HasMore: hasMore}, nil
}

// SaveFeedback persists a feedback record
func (s *SQLiteStore) SaveFeedback(ctx context.Context, fb *Feedback) error {
	query := `
		INSERT INTO feedback (id, session_id, message_id, rating, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		fb.ID,
		fb.SessionID,
		fb.MessageID,
		fb.Rating,
		fb.Reason,
		fb.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting feedback: %w", err)
	}
	return nil
}

// GetUserByPhone retrieves a user by phone number
func (s *SQLiteStore) GetUserByPhone(ctx context.Context, phoneCountry, phoneNumber string) (*User, error) {
	query := `
		SELECT id, phone_country, phone_number, role, created_at
		FROM users
		WHERE phone_country = ? AND phone_number = ?
	`

	user := &User{}
	var createdAt string
	err := s.db.QueryRowContext(ctx, query, phoneCountry, phoneNumber).Scan(
		&user.ID,
		&user.PhoneCountry,
		&user.PhoneNumber,
		&user.Role,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	if user.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing user created_at: %w", err)
	}
	return user, nil
}

// CreateUser persists a new user
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, phone_country, phone_number, role, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.PhoneCountry,
		user.PhoneNumber,
		user.Role,
		user.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// CreateOTPRequest persists a new OTP challenge
func (s *SQLiteStore) CreateOTPRequest(ctx context.Context, req *OTPRequest) error {
	query := `
		INSERT INTO otp_requests (
			id, phone_country, phone_number, otp, device_id,
			attempts, max_attempts, used, expires_at, resend_available_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		req.ID,
		req.PhoneCountry,
		req.PhoneNumber,
		req.OTP,
		req.DeviceID,
		req.Attempts,
		req.MaxAttempts,
		boolToInt(req.Used),
		req.ExpiresAt.UTC().Format(timeLayout),
		req.ResendAvailableAt.UTC().Format(timeLayout),
		req.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting otp request: %w", err)
	}
	return nil
}

const otpColumns = `id, phone_country, phone_number, otp, device_id,
	attempts, max_attempts, used, expires_at, resend_available_at, created_at`

// GetOTPRequest retrieves an OTP challenge by id
func (s *SQLiteStore) GetOTPRequest(ctx context.Context, id string) (*OTPRequest, error) {
	query := `SELECT ` + otpColumns + ` FROM otp_requests WHERE id = ?`

	req, err := scanOTPRequest(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying otp request: %w", err)
	}
	return req, nil
}

// GetLatestOTPRequest retrieves the newest challenge for a phone number
func (s *SQLiteStore) GetLatestOTPRequest(ctx context.Context, phoneCountry, phoneNumber string) (*OTPRequest, error) {
	query := `SELECT ` + otpColumns + `
		FROM otp_requests
		WHERE phone_country = ? AND phone_number = ?
		ORDER BY created_at DESC
		LIMIT 1`

	req, err := scanOTPRequest(s.db.QueryRowContext(ctx, query, phoneCountry, phoneNumber))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest otp request: %w", err)
	}
	return req, nil
}

// scanOTPRequest reads one OTP challenge row
func scanOTPRequest(row scanner) (*OTPRequest, error) {
	req := &OTPRequest{}
	var used int
	var expiresAt, resendAvailableAt, createdAt string
	err := row.Scan(
		&req.ID,
		&req.PhoneCountry,
		&req.PhoneNumber,
		&req.OTP,
		&req.DeviceID,
		&req.Attempts,
		&req.MaxAttempts,
		&used,
		&expiresAt,
		&resendAvailableAt,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	req.Used = used != 0
	if req.ExpiresAt, err = time.Parse(timeLayout, expiresAt); err != nil {
		return nil, fmt.Errorf("parsing otp expires_at: %w", err)
	}
	if req.ResendAvailableAt, err = time.Parse(timeLayout, resendAvailableAt); err != nil {
		return nil, fmt.Errorf("parsing otp resend_available_at: %w", err)
	}
	if req.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing otp created_at: %w", err)
	}
	return req, nil
}

// IncrementOTPAttempts bumps the attempt counter for an OTP challenge
func (s *SQLiteStore) IncrementOTPAttempts(ctx context.Context, id string) error {
	query := `UPDATE otp_requests SET attempts = attempts + 1 WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("incrementing otp attempts: %w", err)
	}
	return nil
}

// MarkOTPUsed marks an OTP challenge as consumed
func (s *SQLiteStore) MarkOTPUsed(ctx context.Context, id string) error {
	query := `UPDATE otp_requests SET used = 1 WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("marking otp used: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
