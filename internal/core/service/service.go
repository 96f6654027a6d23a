// Package service holds the lifecycle and allocation engine: asset state
// transitions, seat pools and group stock. Every operation re-reads the
// entity, validates against it and commits with a single compare-and-swap.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/asset-ledger/internal/core/domain"
	"github.com/rl1809/asset-ledger/internal/port"
)

// DefaultMaxAttempts bounds optimistic retries for operations that retry
// internally (seat assignment, group membership).
const DefaultMaxAttempts = 3

// Sinks are the best-effort event consumers. Either may be nil.
type Sinks struct {
	Audit  port.AuditSink
	Notify port.NotificationSink
}

type emitter struct {
	sinks  Sinks
	logger *zap.Logger
}

// record never fails the caller: the state change has already committed.
func (e emitter) record(ctx context.Context, event domain.Event) {
	if e.sinks.Audit == nil {
		return
	}
	if err := e.sinks.Audit.Record(context.WithoutCancel(ctx), event); err != nil {
		e.logger.Warn("audit record failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("entity_id", event.EntityID),
			zap.Error(err),
		)
	}
}

func (e emitter) notify(ctx context.Context, userID string, n domain.Notification) {
	if e.sinks.Notify == nil || userID == "" {
		return
	}
	if err := e.sinks.Notify.Notify(context.WithoutCancel(ctx), userID, n); err != nil {
		e.logger.Warn("notification failed",
			zap.String("user_id", userID),
			zap.String("kind", string(n.Kind)),
			zap.String("entity_id", n.EntityID),
			zap.Error(err),
		)
	}
}

// change computes the next value from a fresh read. Returning write=false
// ends the operation without touching the store.
type change[T any] func(current T) (next T, write bool, err error)

type mutation[T any] struct {
	before T
	after  T
	wrote  bool
}

// mutate runs read → change → compare-and-swap, repeating with a fresh read
// when the swap loses, at most attempts times.
func mutate[T domain.Entity[T]](
	ctx context.Context,
	store port.InvariantStore[T],
	kind, id string,
	attempts int,
	fn change[T],
) (mutation[T], error) {
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return mutation[T]{}, err
		}

		current, err := store.Read(ctx, id)
		if err != nil {
			return mutation[T]{}, err
		}

		next, write, err := fn(current)
		if err != nil {
			return mutation[T]{}, err
		}
		if !write {
			return mutation[T]{before: current, after: current}, nil
		}

		if err := ctx.Err(); err != nil {
			return mutation[T]{}, err
		}
		ok, err := store.CompareAndSwap(ctx, current, next)
		if err != nil {
			return mutation[T]{}, err
		}
		if ok {
			return mutation[T]{
				before: current,
				after:  next.WithVersion(current.EntityVersion() + 1),
				wrote:  true,
			}, nil
		}
	}

	return mutation[T]{}, &domain.ConflictError{Kind: kind, ID: id, Attempts: attempts}
}

func requireID(field, value string) error {
	if value == "" {
		return domain.NewValidationError(field, "is required")
	}
	return nil
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

type clock func() time.Time
