// ABOUTME: Session lifecycle manager for guest and customer conversations
// ABOUTME: Handles creation, ownership resolution, guest upgrade, and activity tracking

package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vendra/chat-gateway/internal/store"
)

// Defaults applied when the caller leaves session metadata unset.
const (
	DefaultLocale  = "en-IN"
	DefaultChannel = "MOBILE_APP"
)

// Manager owns the session lifecycle on top of the store.
type Manager struct {
	store    store.Store
	guestTTL time.Duration
	logger   *slog.Logger
}

// NewManager creates a session manager. guestTTL is the time-to-live
// applied to guest sessions at creation.
func NewManager(s store.Store, guestTTL time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		store:    s,
		guestTTL: guestTTL,
		logger:   logger.With("component", "session-manager"),
	}
}

// CreateParams describes a session creation request.
type CreateParams struct {
	OwnerUserID string // empty for guest sessions
	Locale      string
	IsGuest     bool
	DeviceID    string // guest only; generated when empty
}

// CreateResult is returned from Create. DeviceID is echoed (or generated)
// so the client can persist it and reuse it across conversations.
type CreateResult struct {
	SessionID string
	DeviceID  string
	IsGuest   bool
	ExpiresAt *time.Time
}

// Create starts a new conversation session. Guest sessions are tagged
// with a device identifier and expire after the guest TTL; customer
// sessions are owned by the authenticated user and never expire.
func (m *Manager) Create(ctx context.Context, params CreateParams) (*CreateResult, error) {
	now := time.Now().UTC()

	locale := params.Locale
	if locale == "" {
		locale = DefaultLocale
	}

	sess := &store.ChatSession{
		ID:           uuid.New().String(),
		Type:         store.SessionTypeCustomer,
		Status:       store.SessionStatusActive,
		Locale:       locale,
		Channel:      DefaultChannel,
		CreatedAt:    now,
		LastActiveAt: now,
	}

	result := &CreateResult{SessionID: sess.ID, IsGuest: params.IsGuest}

	if params.IsGuest {
		deviceID := params.DeviceID
		if deviceID == "" {
			deviceID = uuid.New().String()
		}
		expiresAt := now.Add(m.guestTTL)

		sess.Type = store.SessionTypeGuest
		sess.GuestID = &deviceID
		sess.ExpiresAt = &expiresAt

		result.DeviceID = deviceID
		result.ExpiresAt = &expiresAt
	} else {
		if params.OwnerUserID == "" {
			return nil, fmt.Errorf("owner user id required for customer session")
		}
		userID := params.OwnerUserID
		sess.UserID = &userID
	}

	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	m.logger.Info("session created",
		"session_id", sess.ID,
		"type", sess.Type,
		"guest", params.IsGuest,
	)
	return result, nil
}

// Get returns a read-only projection of a session.
// Returns store.ErrNotFound if the session does not exist.
func (m *Manager) Get(ctx context.Context, sessionID string) (*store.ChatSession, error) {
	return m.store.GetSession(ctx, sessionID)
}

// ListGuestSessions returns the ACTIVE guest sessions for a device,
// most-recently-active first.
func (m *Manager) ListGuestSessions(ctx context.Context, deviceID string) ([]*store.ChatSession, error) {
	return m.store.ListGuestSessions(ctx, deviceID)
}

// ListUserSessions returns the sessions owned by a user.
func (m *Manager) ListUserSessions(ctx context.Context, userID string) ([]*store.ChatSession, error) {
	return m.store.ListUserSessions(ctx, userID)
}

// End transitions an ACTIVE session to ENDED. Returns false when the
// session was absent or already terminal; that is a result, not an error.
func (m *Manager) End(ctx context.Context, sessionID string) (bool, error) {
	ended, err := m.store.EndSession(ctx, sessionID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("ending session: %w", err)
	}
	if ended {
		m.logger.Info("session ended", "session_id", sessionID)
	}
	return ended, nil
}

// UpgradeGuestSessions converts every unowned session on the device into
// a CUSTOMER session owned by userID. Keyed by device id because the
// login event knows only the device, not which conversations exist on it.
// Safe to call repeatedly; already-upgraded sessions no longer match.
func (m *Manager) UpgradeGuestSessions(ctx context.Context, deviceID, userID string) ([]string, error) {
	ids, err := m.store.UpgradeGuestSessions(ctx, deviceID, userID)
	if err != nil {
		return nil, fmt.Errorf("upgrading guest sessions: %w", err)
	}
	return ids, nil
}

// TouchActivity records activity on a session. Best-effort: failures are
// logged and swallowed so bookkeeping never aborts a stream.
func (m *Manager) TouchActivity(ctx context.Context, sessionID string) {
	if err := m.store.TouchSessionActivity(ctx, sessionID, time.Now().UTC()); err != nil {
		m.logger.Warn("failed to touch session activity",
			"session_id", sessionID,
			"error", err,
		)
	}
}

// EffectiveUserID resolves the identity handed to the orchestrator for a
// session: the authenticated user when present, else the guest device id,
// else a deterministic fallback so the downstream call never sees an
// empty identity.
func EffectiveUserID(sess *store.ChatSession, authedUserID string) string {
	if authedUserID != "" {
		return authedUserID
	}
	if sess.GuestID != nil && *sess.GuestID != "" {
		return *sess.GuestID
	}
	return "guest-" + sess.ID
}
