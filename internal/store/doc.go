// Package store provides persistence for chat sessions, message history,
// users, and OTP challenges.
//
// The Store interface is the authoritative record of conversation
// sessions. Two mutations are deliberately pushed down to the storage
// layer as single atomic statements rather than read-modify-write in
// application code:
//
//   - EndSession: conditional on status = ACTIVE, so a concurrent end
//     never clobbers a terminal transition.
//   - UpgradeGuestSessions: one UPDATE over "guest_id = D and user_id is
//     null" that sets the owner, flips the type to CUSTOMER, and clears
//     guest_id and expires_at. Upgraded sessions stop matching, which
//     makes the operation idempotent under retries and concurrency.
//
// The SQLite implementation runs in WAL mode and creates its schema on
// startup. Sessions are never deleted here; expired guest sessions are a
// disposal concern for an external sweep.
package store
