// Package coordination implements the Coordination Store (C1): dedup
// reservations, per-thread advisory locks, thread state, and the
// feedback-follow-up pending-prompt table, against either an in-process or
// a networked (SQLite) backend.
package coordination

import (
	"context"
	"fmt"
	"time"
)

// Store is the interface the orchestrator, reaction pipeline, and follow-up
// coordinator depend on. Implementations may be in-memory (single node) or
// networked (multi node); callers never assume a specific backend.
type Store interface {
	// ReserveDedup is set-if-absent with a TTL; returns true exactly once per
	// key within the TTL window.
	ReserveDedup(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// AcquireLock is set-if-absent with a TTL and a random token. The
	// returned token must be passed to ReleaseLock. An empty token with a
	// nil error means the lock is currently held by someone else.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)

	// ReleaseLock succeeds iff token matches the current holder's token.
	ReleaseLock(ctx context.Context, key, token string) (bool, error)

	SetThreadState(ctx context.Context, key string, state ThreadState, ttl time.Duration) error
	GetThreadState(ctx context.Context, key string) (*ThreadState, error)

	// SetPending/GetPending/ClearPending back the feedback-follow-up
	// coordinator's (channel, user_id)-keyed pending prompt (spec §9).
	SetPending(ctx context.Context, key string, value string, ttl time.Duration) error
	GetPending(ctx context.Context, key string) (string, bool, error)
	ClearPending(ctx context.Context, key string) error

	Close() error
}

// ThreadState is the last-known state of a (channel_id, thread_id) thread.
type ThreadState struct {
	LastEventID string
	UserID      string
	Timestamp   time.Time
}

// Key formats are stable and depended on by tests (spec §6).
func DedupKey(channel, eventID string) string {
	return fmt.Sprintf("dedup:%s:%s", channel, eventID)
}

func ThreadLockKey(channel, threadID string) string {
	return fmt.Sprintf("thread-lock:%s:%s", channel, threadID)
}

func ThreadKey(channel, threadID string) string {
	return fmt.Sprintf("thread:%s:%s", channel, threadID)
}

func PendingFollowupKey(channel, userID string) string {
	return fmt.Sprintf("followup:%s:%s", channel, userID)
}
