// Package audit provides an append-only record of mutating operations.
// Entries are a write-only side channel for compliance; nothing in the
// checkout pipeline ever reads them back.
package audit

import (
	"context"
	"time"
)

// Action enumerates the kinds of mutations recorded in the audit log.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Entry is a single immutable audit record. CreatedAt is stamped at write
// time by the store.
type Entry struct {
	ID         string
	UserID     string
	UserName   string
	Action     Action
	EntityType string
	EntityID   string
	Details    string
	CreatedAt  time.Time
}

// Repository persists audit entries.
type Repository interface {
	Insert(ctx context.Context, e Entry) error
}

// Logger records audit entries. Implementations must never let an audit
// failure propagate into the operation being audited.
type Logger interface {
	Log(ctx context.Context, e Entry)
}
