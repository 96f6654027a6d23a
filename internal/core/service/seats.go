package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/asset-ledger/internal/core/domain"
	"github.com/rl1809/asset-ledger/internal/port"
)

// SeatAllocator admits members into capacity-bounded pools. When the
// store implements port.SeatAdmitter, admission is delegated to it;
// otherwise it runs as an optimistic compare-and-swap with a bounded
// number of fresh-read retries.
type SeatAllocator[P domain.Pool[P]] struct {
	kind        string
	store       port.InvariantStore[P]
	admitter    port.SeatAdmitter
	maxAttempts int
	events      emitter
	logger      *zap.Logger
	now         clock
}

// LicenseSeats is the allocator for software license seats.
type LicenseSeats = SeatAllocator[domain.License]

func NewLicenseSeats(store port.InvariantStore[domain.License], sinks Sinks, logger *zap.Logger, maxAttempts int) *LicenseSeats {
	return NewSeatAllocator[domain.License]("license", store, sinks, logger, maxAttempts)
}

func NewSeatAllocator[P domain.Pool[P]](kind string, store port.InvariantStore[P], sinks Sinks, logger *zap.Logger, maxAttempts int) *SeatAllocator[P] {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	logger = orNop(logger).With(zap.String("pool_kind", kind))

	a := &SeatAllocator[P]{
		kind:        kind,
		store:       store,
		maxAttempts: maxAttempts,
		events:      emitter{sinks: sinks, logger: logger},
		logger:      logger,
		now:         time.Now,
	}
	if admitter, ok := store.(port.SeatAdmitter); ok {
		a.admitter = admitter
	}
	return a
}

func (a *SeatAllocator[P]) Create(ctx context.Context, pool P) error {
	if err := requireID("pool_id", pool.EntityID()); err != nil {
		return err
	}
	if pool.SeatCapacity() < 0 {
		return domain.NewValidationError("capacity", "must not be negative")
	}
	if err := a.store.Create(ctx, pool); err != nil {
		return fmt.Errorf("create %s %s: %w", a.kind, pool.EntityID(), err)
	}
	return nil
}

func (a *SeatAllocator[P]) Get(ctx context.Context, poolID string) (P, error) {
	if err := requireID("pool_id", poolID); err != nil {
		var zero P
		return zero, err
	}
	return a.store.Read(ctx, poolID)
}

func (a *SeatAllocator[P]) Utilization(ctx context.Context, poolID string) (domain.Utilization, error) {
	pool, err := a.Get(ctx, poolID)
	if err != nil {
		return domain.Utilization{}, err
	}
	return domain.UtilizationOf(pool), nil
}

// Assign gives memberID a seat. A member that already holds a seat is
// rejected with domain.ErrDuplicateAssignment; a full pool with
// domain.ErrCapacityExceeded.
func (a *SeatAllocator[P]) Assign(ctx context.Context, poolID, memberID, actor string) (domain.Utilization, error) {
	if err := requireID("pool_id", poolID); err != nil {
		return domain.Utilization{}, err
	}
	if err := requireID("member_id", memberID); err != nil {
		return domain.Utilization{}, err
	}

	var (
		usage domain.Utilization
		err   error
	)
	if a.admitter != nil {
		usage, err = a.admitNative(ctx, poolID, memberID)
	} else {
		usage, err = a.admitCAS(ctx, poolID, memberID)
	}
	if err != nil {
		return domain.Utilization{}, err
	}

	event := domain.NewEvent(domain.EventSeatAssigned, poolID, actor, a.now())
	event.MemberID = memberID
	a.events.record(ctx, event)
	a.events.notify(ctx, memberID, domain.Notification{
		Kind:     domain.NotifySeatAssigned,
		Subject:  fmt.Sprintf("You were assigned a seat on %s %s", a.kind, poolID),
		EntityID: poolID,
	})
	return usage, nil
}

func (a *SeatAllocator[P]) admitCAS(ctx context.Context, poolID, memberID string) (domain.Utilization, error) {
	result, err := mutate(ctx, a.store, a.kind, poolID, a.maxAttempts, func(current P) (P, bool, error) {
		members := current.SeatMembers()
		if members.Contains(memberID) {
			return current, false, &domain.DuplicateAssignmentError{PoolID: poolID, MemberID: memberID}
		}
		if members.Len() >= current.SeatCapacity() {
			return current, false, &domain.CapacityExceededError{PoolID: poolID, Used: members.Len(), Capacity: current.SeatCapacity()}
		}
		return current.WithSeatMembers(members.Add(memberID)), true, nil
	})
	if err != nil {
		return domain.Utilization{}, err
	}
	return domain.UtilizationOf(result.after), nil
}

func (a *SeatAllocator[P]) admitNative(ctx context.Context, poolID, memberID string) (domain.Utilization, error) {
	outcome, err := a.admitter.Admit(ctx, poolID, memberID)
	if err != nil {
		return domain.Utilization{}, fmt.Errorf("admit %s to %s %s: %w", memberID, a.kind, poolID, err)
	}

	switch outcome {
	case port.AdmitNoPool:
		return domain.Utilization{}, domain.NewNotFoundError(a.kind, poolID)
	case port.AdmitDuplicate:
		return domain.Utilization{}, &domain.DuplicateAssignmentError{PoolID: poolID, MemberID: memberID}
	case port.AdmitFull:
		usage, err := a.Utilization(ctx, poolID)
		if err != nil {
			return domain.Utilization{}, err
		}
		return domain.Utilization{}, &domain.CapacityExceededError{PoolID: poolID, Used: usage.Used, Capacity: usage.Capacity}
	}

	return a.Utilization(ctx, poolID)
}

// Unassign frees memberID's seat. Removing a non-member is a no-op and
// emits nothing.
func (a *SeatAllocator[P]) Unassign(ctx context.Context, poolID, memberID, actor string) (domain.Utilization, error) {
	if err := requireID("pool_id", poolID); err != nil {
		return domain.Utilization{}, err
	}
	if err := requireID("member_id", memberID); err != nil {
		return domain.Utilization{}, err
	}

	var (
		usage   domain.Utilization
		removed bool
	)
	if a.admitter != nil {
		ok, err := a.admitter.Release(ctx, poolID, memberID)
		if err != nil {
			return domain.Utilization{}, fmt.Errorf("release %s from %s %s: %w", memberID, a.kind, poolID, err)
		}
		if usage, err = a.Utilization(ctx, poolID); err != nil {
			return domain.Utilization{}, err
		}
		removed = ok
	} else {
		result, err := mutate(ctx, a.store, a.kind, poolID, a.maxAttempts, func(current P) (P, bool, error) {
			members := current.SeatMembers()
			if !members.Contains(memberID) {
				return current, false, nil
			}
			return current.WithSeatMembers(members.Remove(memberID)), true, nil
		})
		if err != nil {
			return domain.Utilization{}, err
		}
		usage, removed = domain.UtilizationOf(result.after), result.wrote
	}

	if removed {
		event := domain.NewEvent(domain.EventSeatUnassigned, poolID, actor, a.now())
		event.MemberID = memberID
		a.events.record(ctx, event)
		a.events.notify(ctx, memberID, domain.Notification{
			Kind:     domain.NotifySeatRevoked,
			Subject:  fmt.Sprintf("Your seat on %s %s was released", a.kind, poolID),
			EntityID: poolID,
		})
	}
	return usage, nil
}

// SetCapacity is an administrative edit. Reducing capacity below the
// number of assigned members is allowed and reported through a negative
// Available; members are never evicted here.
func (a *SeatAllocator[P]) SetCapacity(ctx context.Context, poolID string, capacity int, actor string) (domain.Utilization, error) {
	if err := requireID("pool_id", poolID); err != nil {
		return domain.Utilization{}, err
	}
	if capacity < 0 {
		return domain.Utilization{}, domain.NewValidationError("capacity", "must not be negative")
	}

	result, err := mutate(ctx, a.store, a.kind, poolID, a.maxAttempts, func(current P) (P, bool, error) {
		if current.SeatCapacity() == capacity {
			return current, false, nil
		}
		return current.WithSeatCapacity(capacity), true, nil
	})
	if err != nil {
		return domain.Utilization{}, err
	}

	usage := domain.UtilizationOf(result.after)
	if !result.wrote {
		return usage, nil
	}

	event := domain.NewEvent(domain.EventCapacityChanged, poolID, actor, a.now())
	event.From = strconv.Itoa(result.before.SeatCapacity())
	event.To = strconv.Itoa(capacity)
	a.events.record(ctx, event)

	if usage.OverCommitted() {
		a.logger.Warn("pool over-committed after capacity change",
			zap.String("pool_id", poolID),
			zap.Int("used", usage.Used),
			zap.Int("capacity", usage.Capacity),
		)
	}
	return usage, nil
}
