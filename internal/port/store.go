package port

import (
	"context"

	"github.com/rl1809/asset-ledger/internal/core/domain"
)

type InvariantStore[T domain.Entity[T]] interface {
	// Read returns the current value, or an error matching domain.ErrNotFound
	Read(ctx context.Context, id string) (T, error)

	// CompareAndSwap writes next only if the stored version still equals
	// expected.EntityVersion(). Returns false, nil when another writer won.
	// On success the stored version is expected.EntityVersion()+1.
	CompareAndSwap(ctx context.Context, expected, next T) (bool, error)

	// Create stores a new entity at version 0, failing with
	// domain.ErrAlreadyExists if the id is taken
	Create(ctx context.Context, value T) error

	// List returns every stored entity, ordered by id
	List(ctx context.Context) ([]T, error)
}

// AdmitResult is the outcome of a native seat admission.
type AdmitResult int

const (
	Admitted AdmitResult = iota
	AdmitDuplicate
	AdmitFull
	AdmitNoPool
)

// SeatAdmitter is implemented by stores with a native "add to set with a
// size precondition". Membership check, capacity check and insert run as
// one atomic operation.
type SeatAdmitter interface {
	Admit(ctx context.Context, poolID, memberID string) (AdmitResult, error)

	// Release removes memberID, returning whether it was a member
	Release(ctx context.Context, poolID, memberID string) (bool, error)
}
