package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/asset-ledger/internal/adapter/storage"
	"github.com/rl1809/asset-ledger/internal/core/domain"
)

// projectingSink forwards audit records to the projector synchronously.
type projectingSink struct {
	projector *MembershipProjector
}

func (p projectingSink) Record(ctx context.Context, e domain.Event) error {
	return p.projector.Handle(ctx, e)
}

func TestMembershipProjector(t *testing.T) {
	ctx := context.Background()
	assets := storage.NewMemoryStore[domain.Asset]("asset")
	groups := storage.NewMemoryStore[domain.AssetGroup]("asset group")
	lifecycle := NewLifecycleManager(assets, nil, Sinks{}, nil)
	projector := NewMembershipProjector(assets, groups, nil, 0)
	tracker := NewStockTracker(groups, Sinks{Audit: projectingSink{projector}}, nil, 0)

	for _, id := range []string{"A1", "A2"} {
		_, err := lifecycle.Register(ctx, id, "", "receiver")
		require.NoError(t, err)
	}
	_, err := tracker.CreateGroup(ctx, "laptops", "Laptops", 1)
	require.NoError(t, err)
	_, err = tracker.CreateGroup(ctx, "loaners", "Loaners", 0)
	require.NoError(t, err)

	// Z9 is not a registered asset; the group still accepts it.
	group, err := tracker.AddAssets(ctx, "laptops", []string{"A1", "A2", "Z9"}, "admin")
	require.NoError(t, err)
	assert.Equal(t, 3, group.CurrentStock)
	_, err = tracker.AddAssets(ctx, "loaners", []string{"A1"}, "admin")
	require.NoError(t, err)

	a1, err := lifecycle.Get(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, domain.NewIDSet("laptops", "loaners"), a1.GroupIDs)

	_, err = lifecycle.Archive(ctx, "A1", "admin")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = tracker.RemoveAssets(ctx, "laptops", []string{"A1"}, "admin")
	require.NoError(t, err)
	_, err = tracker.RemoveAssets(ctx, "loaners", []string{"A1"}, "admin")
	require.NoError(t, err)

	a1, err = lifecycle.Get(ctx, "A1")
	require.NoError(t, err)
	assert.Zero(t, a1.GroupIDs.Len())

	_, err = lifecycle.Archive(ctx, "A1", "admin")
	assert.NoError(t, err)
}

// capturingSink keeps audit records so a test can deliver them later.
type capturingSink struct {
	events []domain.Event
}

func (c *capturingSink) Record(_ context.Context, e domain.Event) error {
	c.events = append(c.events, e)
	return nil
}

func TestMembershipProjector_OutOfOrderDelivery(t *testing.T) {
	ctx := context.Background()
	assets := storage.NewMemoryStore[domain.Asset]("asset")
	groups := storage.NewMemoryStore[domain.AssetGroup]("asset group")
	captured := &capturingSink{}
	lifecycle := NewLifecycleManager(assets, nil, Sinks{}, nil, WithGroupStore(groups))
	projector := NewMembershipProjector(assets, groups, nil, 0)
	tracker := NewStockTracker(groups, Sinks{Audit: captured}, nil, 0)

	_, err := lifecycle.Register(ctx, "A1", "", "receiver")
	require.NoError(t, err)
	_, err = tracker.CreateGroup(ctx, "laptops", "Laptops", 0)
	require.NoError(t, err)
	_, err = tracker.AddAssets(ctx, "laptops", []string{"A1"}, "admin")
	require.NoError(t, err)
	_, err = tracker.RemoveAssets(ctx, "laptops", []string{"A1"}, "admin")
	require.NoError(t, err)
	require.Len(t, captured.events, 2)

	// Removed arrives before Added, then Added is replayed.
	for _, e := range []domain.Event{captured.events[1], captured.events[0], captured.events[0]} {
		require.NoError(t, projector.Handle(ctx, e))
	}

	a1, err := lifecycle.Get(ctx, "A1")
	require.NoError(t, err)
	assert.Zero(t, a1.GroupIDs.Len())

	_, err = lifecycle.Archive(ctx, "A1", "admin")
	assert.NoError(t, err)
}

func TestMembershipProjector_DroppedGroup(t *testing.T) {
	ctx := context.Background()
	assets := storage.NewMemoryStore[domain.Asset]("asset")
	groups := storage.NewMemoryStore[domain.AssetGroup]("asset group")
	projector := NewMembershipProjector(assets, groups, nil, 0)

	asset := domain.NewAsset("A1", "", time.Now())
	asset.GroupIDs = domain.NewIDSet("gone")
	require.NoError(t, assets.Create(ctx, asset))

	added := domain.NewEvent(domain.EventAssetsAdded, "gone", "admin", time.Now())
	added.MemberIDs = []string{"A1"}
	require.NoError(t, projector.Handle(ctx, added))

	a1, err := assets.Read(ctx, "A1")
	require.NoError(t, err)
	assert.False(t, a1.GroupIDs.Contains("gone"))
}

func TestMembershipProjector_IgnoresOtherEvents(t *testing.T) {
	assets := storage.NewMemoryStore[domain.Asset]("asset")
	projector := NewMembershipProjector(assets, storage.NewMemoryStore[domain.AssetGroup]("asset group"), nil, 0)

	err := projector.Handle(context.Background(), domain.NewEvent(domain.EventSeatAssigned, "L1", "admin", time.Now()))
	assert.NoError(t, err)
}
