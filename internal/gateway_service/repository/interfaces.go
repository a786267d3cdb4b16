package repository

import (
	"context"
	"time"
)

// SessionStore holds the ephemeral per-customer signals: the message
// buffer for burst aggregation, the automation cooldown flag and the
// active-order flag. All operations are best-effort; backend failures are
// logged by implementations and read as "absent" rather than propagated.
type SessionStore interface {
	// PushToBuffer appends a text fragment to the customer's buffer list.
	// The TTL is set only when the key has none yet, so the expiry window
	// starts at the first fragment of a burst.
	PushToBuffer(ctx context.Context, customerID, text string, ttl time.Duration) bool
	BufferLength(ctx context.Context, customerID string) int
	// PopAllAndClear atomically reads the whole buffer and deletes the key.
	PopAllAndClear(ctx context.Context, customerID string) []string

	SetCooldown(ctx context.Context, customerID string, ttl time.Duration) bool
	// IsInCooldown reports whether the cooldown flag is set and how many
	// seconds remain (-1 when unknown or inactive).
	IsInCooldown(ctx context.Context, customerID string) (bool, int)

	SetOrderActive(ctx context.Context, customerID, value string, ttl time.Duration) bool
	IsOrderExpired(ctx context.Context, customerID string) bool
	// RenewOrderTTL extends an existing order session. Renewing an absent
	// (already expired) key fails and returns false.
	RenewOrderTTL(ctx context.Context, customerID string, ttl time.Duration) bool
}

// ChatHistoryRepository is the append-only conversation log consumed by
// the agent collaborator and fed by the webhook flow.
type ChatHistoryRepository interface {
	Append(ctx context.Context, customerID, role, content string) error
	// RecentWindow returns up to limit messages, oldest first.
	RecentWindow(ctx context.Context, customerID string, limit int) ([]ChatMessage, error)
}

// ChatMessage is one persisted conversation turn.
type ChatMessage struct {
	Role      string    // "user" or "assistant"
	Content   string
	CreatedAt time.Time
}
