package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rl1809/asset-ledger/internal/adapter/storage"
	"github.com/rl1809/asset-ledger/internal/core/domain"
	"github.com/rl1809/asset-ledger/internal/port"
)

// recordingSink captures everything the engine emits.
type recordingSink struct {
	mu            sync.Mutex
	events        []domain.Event
	notifications map[string][]domain.Notification
	auditErr      error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{notifications: make(map[string][]domain.Notification)}
}

func (r *recordingSink) sinks() Sinks {
	return Sinks{Audit: r, Notify: r}
}

func (r *recordingSink) Record(_ context.Context, e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.auditErr
}

func (r *recordingSink) Notify(_ context.Context, userID string, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications[userID] = append(r.notifications[userID], n)
	return nil
}

func (r *recordingSink) eventsOf(t domain.EventType) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recordingSink) notificationsFor(userID string) []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notifications[userID]
}

// losingStore wraps a store and reports a lost compare-and-swap for the
// first `lose` calls, simulating a concurrent writer.
type losingStore[T domain.Entity[T]] struct {
	port.InvariantStore[T]
	lose  int32
	swaps atomic.Int32
}

func (s *losingStore[T]) CompareAndSwap(ctx context.Context, expected, next T) (bool, error) {
	n := s.swaps.Add(1)
	if n <= s.lose {
		return false, nil
	}
	return s.InvariantStore.CompareAndSwap(ctx, expected, next)
}

// admittingStore adds a mutex-guarded native admission path on top of a
// memory store so the SeatAdmitter branch can be tested without Redis.
type admittingStore struct {
	*storage.MemoryStore[domain.License]
	mu       sync.Mutex
	admits   atomic.Int32
	releases atomic.Int32
}

func (s *admittingStore) Admit(ctx context.Context, poolID, memberID string) (port.AdmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admits.Add(1)

	l, err := s.Read(ctx, poolID)
	if errors.Is(err, domain.ErrNotFound) {
		return port.AdmitNoPool, nil
	}
	if err != nil {
		return 0, err
	}
	if l.AssignedUsers.Contains(memberID) {
		return port.AdmitDuplicate, nil
	}
	if l.AssignedUsers.Len() >= l.TotalSeats {
		return port.AdmitFull, nil
	}
	ok, err := s.CompareAndSwap(ctx, l, l.WithSeatMembers(l.AssignedUsers.Add(memberID)))
	if err != nil || !ok {
		return 0, errors.New("admitting store: unexpected lost swap")
	}
	return port.Admitted, nil
}

func (s *admittingStore) Release(ctx context.Context, poolID, memberID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases.Add(1)

	l, err := s.Read(ctx, poolID)
	if err != nil {
		return false, err
	}
	if !l.AssignedUsers.Contains(memberID) {
		return false, nil
	}
	ok, err := s.CompareAndSwap(ctx, l, l.WithSeatMembers(l.AssignedUsers.Remove(memberID)))
	if err != nil || !ok {
		return false, errors.New("admitting store: unexpected lost swap")
	}
	return true, nil
}
