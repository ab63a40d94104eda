// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides session persistence with automatic schema creation and atomic conditional updates

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is the storage format for timestamps. The fractional part
// is fixed width so the stored TEXT sorts lexicographically in
// chronological order; the ORDER BY clauses and the exclusive `before`
// cursor comparison depend on that. All values are stored in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chat_sessions (
			id             TEXT PRIMARY KEY,
			user_id        TEXT,
			guest_id       TEXT,
			session_type   TEXT NOT NULL,
			status         TEXT NOT NULL DEFAULT 'ACTIVE',
			locale         TEXT NOT NULL DEFAULT 'en-IN',
			channel        TEXT NOT NULL DEFAULT 'MOBILE_APP',
			created_at     TEXT NOT NULL,
			last_active_at TEXT NOT NULL,
			expires_at     TEXT,
			ended_at       TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_chat_sessions_guest
			ON chat_sessions(guest_id);

		CREATE INDEX IF NOT EXISTS idx_chat_sessions_user_created
			ON chat_sessions(user_id, created_at);

		CREATE INDEX IF NOT EXISTS idx_chat_sessions_last_active
			ON chat_sessions(last_active_at);

		CREATE TABLE IF NOT EXISTS chat_messages (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES chat_sessions(id)
		);

		CREATE INDEX IF NOT EXISTS idx_chat_messages_session_created
			ON chat_messages(session_id, created_at);

		CREATE TABLE IF NOT EXISTS feedback (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			rating     INTEGER NOT NULL,
			reason     TEXT,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			phone_country TEXT NOT NULL,
			phone_number  TEXT NOT NULL,
			role          TEXT NOT NULL DEFAULT 'customer',
			created_at    TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_phone
			ON users(phone_country, phone_number);

		CREATE TABLE IF NOT EXISTS otp_requests (
			id                  TEXT PRIMARY KEY,
			phone_country       TEXT NOT NULL,
			phone_number        TEXT NOT NULL,
			otp                 TEXT NOT NULL,
			device_id           TEXT NOT NULL,
			attempts            INTEGER NOT NULL DEFAULT 0,
			max_attempts        INTEGER NOT NULL DEFAULT 3,
			used                INTEGER NOT NULL DEFAULT 0,
			expires_at          TEXT NOT NULL,
			resend_available_at TEXT NOT NULL,
			created_at          TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close releases the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession persists a new chat session
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *ChatSession) error {
	query := `
		INSERT INTO chat_sessions (
			id, user_id, guest_id, session_type, status, locale, channel,
			created_at, last_active_at, expires_at, ended_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		sess.ID,
		sess.UserID,
		sess.GuestID,
		string(sess.Type),
		string(sess.Status),
		sess.Locale,
		sess.Channel,
		sess.CreatedAt.UTC().Format(timeLayout),
		sess.LastActiveAt.UTC().Format(timeLayout),
		formatNullableTime(sess.ExpiresAt),
		formatNullableTime(sess.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	s.logger.Debug("created session",
		"session_id", sess.ID,
		"type", sess.Type,
	)
	return nil
}

const sessionColumns = `id, user_id, guest_id, session_type, status, locale, channel,
	created_at, last_active_at, expires_at, ended_at`

// GetSession retrieves a session by id
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*ChatSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE id = ?`

	sess, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return sess, nil
}

// ListGuestSessions returns ACTIVE guest sessions for a device,
// most-recently-active first.
func (s *SQLiteStore) ListGuestSessions(ctx context.Context, deviceID string) ([]*ChatSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM chat_sessions
		WHERE guest_id = ? AND session_type = ? AND status = ?
		ORDER BY last_active_at DESC`

	rows, err := s.db.QueryContext(ctx, query, deviceID, string(SessionTypeGuest), string(SessionStatusActive))
	if err != nil {
		return nil, fmt.Errorf("querying guest sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

// ListUserSessions returns all sessions owned by a user,
// most-recently-active first.
func (s *SQLiteStore) ListUserSessions(ctx context.Context, userID string) ([]*ChatSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM chat_sessions
		WHERE user_id = ?
		ORDER BY last_active_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying user sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

// EndSession transitions an ACTIVE session to ENDED in a single
// conditional update. Clearing expires_at keeps an intentionally ended
// session out of time-based expiry.
func (s *SQLiteStore) EndSession(ctx context.Context, id string, endedAt time.Time) (bool, error) {
	query := `
		UPDATE chat_sessions
		SET status = ?, ended_at = ?, expires_at = NULL
		WHERE id = ? AND status = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		string(SessionStatusEnded),
		endedAt.UTC().Format(timeLayout),
		id,
		string(SessionStatusActive),
	)
	if err != nil {
		return false, fmt.Errorf("ending session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return affected > 0, nil
}

// UpgradeGuestSessions converts all unowned sessions tagged with the
// device id into user-owned CUSTOMER sessions as one atomic statement.
// Sessions already upgraded no longer match (guest_id is cleared), which
// makes repeated calls a natural no-op.
func (s *SQLiteStore) UpgradeGuestSessions(ctx context.Context, deviceID, userID string) ([]string, error) {
	query := `
		UPDATE chat_sessions
		SET user_id = ?, session_type = ?, guest_id = NULL, expires_at = NULL
		WHERE guest_id = ? AND user_id IS NULL
		RETURNING id
	`

	rows, err := s.db.QueryContext(ctx, query, userID, string(SessionTypeCustomer), deviceID)
	if err != nil {
		return nil, fmt.Errorf("upgrading guest sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning upgraded session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating upgraded sessions: %w", err)
	}

	if len(ids) > 0 {
		s.logger.Info("upgraded guest sessions",
			"device_id", deviceID,
			"user_id", userID,
			"count", len(ids),
		)
	}
	return ids, nil
}

// TouchSessionActivity updates last_active_at without touching any other field
func (s *SQLiteStore) TouchSessionActivity(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE chat_sessions SET last_active_at = ? WHERE id = ?`

	_, err := s.db.ExecContext(ctx, query, at.UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("touching session activity: %w", err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for session scanning
type scanner interface {
	Scan(dest ...any) error
}

// scanSession reads one session row
func scanSession(row scanner) (*ChatSession, error) {
	sess := &ChatSession{}
	var sessType, status string
	var createdAt, lastActiveAt string
	var expiresAt, endedAt sql.NullString

	err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&sess.GuestID,
		&sessType,
		&status,
		&sess.Locale,
		&sess.Channel,
		&createdAt,
		&lastActiveAt,
		&expiresAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}

	sess.Type = SessionType(sessType)
	sess.Status = SessionStatus(status)

	if sess.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if sess.LastActiveAt, err = time.Parse(timeLayout, lastActiveAt); err != nil {
		return nil, fmt.Errorf("parsing last_active_at: %w", err)
	}
	if sess.ExpiresAt, err = parseNullableTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	if sess.EndedAt, err = parseNullableTime(endedAt); err != nil {
		return nil, fmt.Errorf("parsing ended_at: %w", err)
	}

	return sess, nil
}

// collectSessions drains rows into a session slice
func collectSessions(rows *sql.Rows) ([]*ChatSession, error) {
	var sessions []*ChatSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// formatNullableTime converts an optional time to its storage form
func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

// parseNullableTime converts a stored nullable timestamp back to *time.Time
func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
