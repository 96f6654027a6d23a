package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rl1809/asset-ledger/internal/core/domain"
	"github.com/rl1809/asset-ledger/internal/port"
)

var (
	_ port.InvariantStore[domain.Asset]      = (*MemoryStore[domain.Asset])(nil)
	_ port.InvariantStore[domain.License]    = (*MemoryStore[domain.License])(nil)
	_ port.InvariantStore[domain.AssetGroup] = (*MemoryStore[domain.AssetGroup])(nil)
)

type memoryRecord struct {
	version int64
	body    []byte
}

// MemoryStore keeps encoded records in a map. Values are encoded on write
// and decoded on read, so callers never share state with the store.
type MemoryStore[T domain.Entity[T]] struct {
	kind    string
	records map[string]memoryRecord
	mu      sync.RWMutex
}

func NewMemoryStore[T domain.Entity[T]](kind string) *MemoryStore[T] {
	return &MemoryStore[T]{
		kind:    kind,
		records: make(map[string]memoryRecord),
	}
}

func (s *MemoryStore[T]) Read(ctx context.Context, id string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	s.mu.RLock()
	rec, exists := s.records[id]
	s.mu.RUnlock()
	if !exists {
		return zero, domain.NewNotFoundError(s.kind, id)
	}
	return s.decodeRecord(rec)
}

func (s *MemoryStore[T]) CompareAndSwap(ctx context.Context, expected, next T) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	id := expected.EntityID()
	if next.EntityID() != id {
		return false, fmt.Errorf("compare and swap %s %s: id changed to %s", s.kind, id, next.EntityID())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[id]
	if !exists {
		return false, domain.NewNotFoundError(s.kind, id)
	}
	if rec.version != expected.EntityVersion() {
		return false, nil
	}

	version := rec.version + 1
	body, err := encode(next.WithVersion(version))
	if err != nil {
		return false, fmt.Errorf("encode %s %s: %w", s.kind, id, err)
	}
	s.records[id] = memoryRecord{version: version, body: body}
	return true, nil
}

func (s *MemoryStore[T]) Create(ctx context.Context, value T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id := value.EntityID()
	body, err := encode(value.WithVersion(0))
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", s.kind, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; exists {
		return fmt.Errorf("%s %s: %w", s.kind, id, domain.ErrAlreadyExists)
	}
	s.records[id] = memoryRecord{version: 0, body: body}
	return nil
}

func (s *MemoryStore[T]) List(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	records := make([]memoryRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, s.records[id])
	}
	s.mu.RUnlock()

	result := make([]T, 0, len(records))
	for _, rec := range records {
		value, err := s.decodeRecord(rec)
		if err != nil {
			return nil, err
		}
		result = append(result, value)
	}
	return result, nil
}

func (s *MemoryStore[T]) decodeRecord(rec memoryRecord) (T, error) {
	var value T
	if err := decode(rec.body, &value); err != nil {
		return value, fmt.Errorf("decode %s: %w", s.kind, err)
	}
	return value.WithVersion(rec.version), nil
}
