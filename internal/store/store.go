// Package store persists users, sessions, and conversation messages.
// Two backends implement the same contract: SQLite (default) and bbolt.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrSessionOwned is returned when a session id already belongs to a
// different user. The caller must never see the other user's session.
var ErrSessionOwned = errors.New("session id owned by another user")

// SessionRecord is one row of the session registry.
type SessionRecord struct {
	ID        string
	UserID    string
	Title     string
	StartTime time.Time
}

// SessionSummary is a registry row joined with its message count,
// used for per-user session listings.
type SessionSummary struct {
	ID           string
	Title        string
	StartTime    time.Time
	MessageCount int
}

// MessageRecord is one immutable exchange: the human input and the AI reply
// persisted together. ID is a monotonically increasing surrogate used to
// break ordering ties when timestamps collide.
type MessageRecord struct {
	ID        int64
	SessionID string
	Human     string
	AI        string
	Timestamp time.Time
}

type Store interface {
	// EnsureUser inserts the user if absent. Idempotent.
	EnsureUser(ctx context.Context, userID string) error

	// GetOrCreateSession returns the existing (sessionID, userID) session
	// unchanged, or creates it with the given title and start time. Safe
	// under concurrent identical calls: the losing insert fails silently.
	// Returns ErrSessionOwned if the id exists under a different user.
	GetOrCreateSession(ctx context.Context, sessionID, userID, title string, startTime time.Time) (SessionRecord, error)

	// ListSessionsForUser returns the user's sessions with message counts,
	// most recently started first.
	ListSessionsForUser(ctx context.Context, userID string) ([]SessionSummary, error)

	// AppendMessage writes one exchange and returns its surrogate id.
	AppendMessage(ctx context.Context, sessionID, human, ai string, ts time.Time) (int64, error)

	// ListMessages returns all messages for the session ordered by
	// timestamp ascending, surrogate id breaking ties. Empty slice,
	// not an error, when the session has no messages.
	ListMessages(ctx context.Context, sessionID string) ([]MessageRecord, error)

	// CountMessages returns the session's total message count.
	CountMessages(ctx context.Context, sessionID string) (int, error)

	// DeleteSession removes the session row and all its messages atomically.
	DeleteSession(ctx context.Context, sessionID string) error

	Close() error
}
