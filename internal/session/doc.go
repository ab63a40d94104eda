// Package session manages the conversation session lifecycle.
//
// A session is owned either by a guest device identifier or by an
// authenticated user, never both. Guest sessions carry a 12-hour expiry
// that is cleared the moment they are upgraded to user ownership at login
// or explicitly ended. The upgrade is keyed by device identifier and is
// idempotent: once upgraded, a session's guest_id is gone and it cannot
// match again.
//
// Knowledge of the device identifier is deliberately sufficient to list
// and read guest sessions. It is a grouping token for low-sensitivity
// anonymous history, not a credential.
package session
