package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/asset-ledger/internal/core/domain"
	"github.com/rl1809/asset-ledger/internal/port"
)

const groupKind = "asset group"

// StockTracker maintains group membership. CurrentStock is recomputed in
// the same write as every membership change.
type StockTracker struct {
	store       port.InvariantStore[domain.AssetGroup]
	maxAttempts int
	events      emitter
	logger      *zap.Logger
	now         clock
}

func NewStockTracker(store port.InvariantStore[domain.AssetGroup], sinks Sinks, logger *zap.Logger, maxAttempts int) *StockTracker {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	logger = orNop(logger)
	return &StockTracker{
		store:       store,
		maxAttempts: maxAttempts,
		events:      emitter{sinks: sinks, logger: logger},
		logger:      logger,
		now:         time.Now,
	}
}

func (s *StockTracker) CreateGroup(ctx context.Context, groupID, name string, minStock int) (domain.AssetGroup, error) {
	group, err := domain.NewAssetGroup(groupID, name, minStock, s.now())
	if err != nil {
		return domain.AssetGroup{}, err
	}
	if err := s.store.Create(ctx, group); err != nil {
		return domain.AssetGroup{}, fmt.Errorf("create group %s: %w", groupID, err)
	}
	return group, nil
}

func (s *StockTracker) Get(ctx context.Context, groupID string) (domain.AssetGroup, error) {
	if err := requireID("group_id", groupID); err != nil {
		return domain.AssetGroup{}, err
	}
	return s.store.Read(ctx, groupID)
}

// AddAssets unions assetIDs into the group. IDs already present are
// ignored; if nothing is new the group is returned unchanged.
func (s *StockTracker) AddAssets(ctx context.Context, groupID string, assetIDs []string, actor string) (domain.AssetGroup, error) {
	candidates, err := s.validate(groupID, assetIDs)
	if err != nil {
		return domain.AssetGroup{}, err
	}

	var added domain.IDSet
	result, err := mutate(ctx, s.store, groupKind, groupID, s.maxAttempts, func(current domain.AssetGroup) (domain.AssetGroup, bool, error) {
		added = current.Assets.Missing(candidates)
		if added.Len() == 0 {
			return current, false, nil
		}
		return current.WithAssets(current.Assets.Union(added), s.now()), true, nil
	})
	if err != nil {
		return domain.AssetGroup{}, err
	}

	if result.wrote {
		event := domain.NewEvent(domain.EventAssetsAdded, groupID, actor, result.after.UpdatedAt)
		event.MemberIDs = added
		event.From = fmt.Sprint(result.before.CurrentStock)
		event.To = fmt.Sprint(result.after.CurrentStock)
		s.events.record(ctx, event)
	}
	return result.after, nil
}

// RemoveAssets drops assetIDs from the group; non-members are ignored.
func (s *StockTracker) RemoveAssets(ctx context.Context, groupID string, assetIDs []string, actor string) (domain.AssetGroup, error) {
	candidates, err := s.validate(groupID, assetIDs)
	if err != nil {
		return domain.AssetGroup{}, err
	}

	var removed domain.IDSet
	result, err := mutate(ctx, s.store, groupKind, groupID, s.maxAttempts, func(current domain.AssetGroup) (domain.AssetGroup, bool, error) {
		removed = current.Assets.Present(candidates)
		if removed.Len() == 0 {
			return current, false, nil
		}
		return current.WithAssets(current.Assets.Difference(removed), s.now()), true, nil
	})
	if err != nil {
		return domain.AssetGroup{}, err
	}

	if result.wrote {
		event := domain.NewEvent(domain.EventAssetsRemoved, groupID, actor, result.after.UpdatedAt)
		event.MemberIDs = removed
		event.From = fmt.Sprint(result.before.CurrentStock)
		event.To = fmt.Sprint(result.after.CurrentStock)
		s.events.record(ctx, event)

		if result.after.LowStock() && !result.before.LowStock() {
			s.logger.Info("group dropped below minimum stock",
				zap.String("group_id", groupID),
				zap.Int("current_stock", result.after.CurrentStock),
				zap.Int("min_stock", result.after.MinStock),
			)
		}
	}
	return result.after, nil
}

func (s *StockTracker) SetMinStock(ctx context.Context, groupID string, minStock int) (domain.AssetGroup, error) {
	if err := requireID("group_id", groupID); err != nil {
		return domain.AssetGroup{}, err
	}
	if minStock < 0 {
		return domain.AssetGroup{}, domain.NewValidationError("min_stock", "must not be negative")
	}

	result, err := mutate(ctx, s.store, groupKind, groupID, s.maxAttempts, func(current domain.AssetGroup) (domain.AssetGroup, bool, error) {
		if current.MinStock == minStock {
			return current, false, nil
		}
		next := current
		next.MinStock = minStock
		next.UpdatedAt = s.now()
		return next, true, nil
	})
	if err != nil {
		return domain.AssetGroup{}, err
	}
	return result.after, nil
}

// LowStockAlerts lists groups below their minimum stock, most depleted
// first.
func (s *StockTracker) LowStockAlerts(ctx context.Context) ([]domain.LowStockAlert, error) {
	groups, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return domain.LowStockAlerts(groups), nil
}

func (s *StockTracker) validate(groupID string, assetIDs []string) (domain.IDSet, error) {
	if err := requireID("group_id", groupID); err != nil {
		return nil, err
	}
	for _, id := range assetIDs {
		if id == "" {
			return nil, domain.NewValidationError("asset_ids", "must not contain empty ids")
		}
	}
	return domain.NewIDSet(assetIDs...), nil
}
