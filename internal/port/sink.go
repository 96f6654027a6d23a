package port

import (
	"context"

	"github.com/rl1809/asset-ledger/internal/core/domain"
)

type AuditSink interface {
	// Record appends an event. Failure never rolls back the state change
	// that produced it.
	Record(ctx context.Context, event domain.Event) error
}

type NotificationSink interface {
	Notify(ctx context.Context, userID string, n domain.Notification) error
}

// EventHandler consumes dispatched events, e.g. projections.
type EventHandler interface {
	Handle(ctx context.Context, event domain.Event) error
}
