package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/asset-ledger/internal/core/domain"
	"github.com/rl1809/asset-ledger/internal/port"
)

// testStoreContract checks the compare-and-swap contract every backend
// must satisfy. Ids are random so runs against shared servers don't clash.
func testStoreContract(t *testing.T, store port.InvariantStore[domain.AssetGroup]) {
	ctx := context.Background()

	t.Run("ReadMissing", func(t *testing.T) {
		_, err := store.Read(ctx, "missing-"+uuid.NewString())
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("CreateAndRead", func(t *testing.T) {
		group := newTestGroup(t, 2, "a", "b")
		if err := store.Create(ctx, group); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		got, err := store.Read(ctx, group.ID)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if got.Version != 0 {
			t.Errorf("expected version 0, got %d", got.Version)
		}
		if got.CurrentStock != 2 || got.Assets.Len() != 2 {
			t.Errorf("expected 2 assets, got stock=%d assets=%v", got.CurrentStock, got.Assets)
		}
		if got.MinStock != 2 {
			t.Errorf("expected min stock 2, got %d", got.MinStock)
		}
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		group := newTestGroup(t, 1)
		if err := store.Create(ctx, group); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := store.Create(ctx, group); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got: %v", err)
		}
	})

	t.Run("CompareAndSwap", func(t *testing.T) {
		group := newTestGroup(t, 1)
		if err := store.Create(ctx, group); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		current, _ := store.Read(ctx, group.ID)
		next := current.WithAssets(domain.IDSet{"x"}, time.Now())

		ok, err := store.CompareAndSwap(ctx, current, next)
		if err != nil || !ok {
			t.Fatalf("first swap: ok=%v err=%v", ok, err)
		}

		// Stale expected value must lose.
		ok, err = store.CompareAndSwap(ctx, current, current.WithAssets(domain.IDSet{"y"}, time.Now()))
		if err != nil {
			t.Fatalf("stale swap error: %v", err)
		}
		if ok {
			t.Error("expected stale swap to fail")
		}

		got, _ := store.Read(ctx, group.ID)
		if got.Version != 1 {
			t.Errorf("expected version 1, got %d", got.Version)
		}
		if !got.Assets.Contains("x") || got.Assets.Contains("y") {
			t.Errorf("unexpected assets %v", got.Assets)
		}
	})

	t.Run("CompareAndSwapMissing", func(t *testing.T) {
		group := newTestGroup(t, 1)

		ok, err := store.CompareAndSwap(ctx, group, group.WithAssets(domain.IDSet{"x"}, time.Now()))
		if ok {
			t.Error("expected swap on a missing entity to fail")
		}
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got: %v", err)
		}
		if domain.IsRetryable(err) {
			t.Error("a missing entity must not be reported as retryable")
		}
	})

	t.Run("ConcurrentSwapsOneWinnerPerVersion", func(t *testing.T) {
		group := newTestGroup(t, 0)
		if err := store.Create(ctx, group); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		current, _ := store.Read(ctx, group.ID)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				next := current.WithAssets(domain.IDSet{uuid.NewString()}, time.Now())
				ok, err := store.CompareAndSwap(ctx, current, next)
				if err != nil {
					t.Errorf("swap error: %v", err)
					return
				}
				if ok {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()

		if wins.Load() != 1 {
			t.Errorf("expected exactly 1 winner, got %d", wins.Load())
		}
	})

	t.Run("List", func(t *testing.T) {
		group := newTestGroup(t, 3)
		if err := store.Create(ctx, group); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		groups, err := store.List(ctx)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		found := false
		for i, g := range groups {
			if i > 0 && groups[i-1].ID > g.ID {
				t.Errorf("list not ordered by id: %s before %s", groups[i-1].ID, g.ID)
			}
			if g.ID == group.ID {
				found = true
			}
		}
		if !found {
			t.Errorf("created group %s missing from list", group.ID)
		}
	})
}

func newTestGroup(t *testing.T, minStock int, assets ...string) domain.AssetGroup {
	t.Helper()
	now := time.Now()
	g, err := domain.NewAssetGroup("group-"+uuid.NewString(), "test group", minStock, now)
	if err != nil {
		t.Fatalf("NewAssetGroup failed: %v", err)
	}
	return g.WithAssets(domain.NewIDSet(assets...), now)
}
