package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/asset-ledger/internal/core/domain"
	"github.com/rl1809/asset-ledger/internal/port"
)

// MembershipProjector mirrors group membership onto Asset.GroupIDs from
// AssetsAdded/AssetsRemoved events. Events only name the assets to
// reconcile; membership itself is re-read from the group record, so
// replays and out-of-order delivery converge on the group's state.
type MembershipProjector struct {
	assets      port.InvariantStore[domain.Asset]
	groups      port.InvariantStore[domain.AssetGroup]
	maxAttempts int
	logger      *zap.Logger
	now         clock
}

func NewMembershipProjector(assets port.InvariantStore[domain.Asset], groups port.InvariantStore[domain.AssetGroup], logger *zap.Logger, maxAttempts int) *MembershipProjector {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &MembershipProjector{
		assets:      assets,
		groups:      groups,
		maxAttempts: maxAttempts,
		logger:      orNop(logger),
		now:         time.Now,
	}
}

func (p *MembershipProjector) Handle(ctx context.Context, event domain.Event) error {
	if event.Type != domain.EventAssetsAdded && event.Type != domain.EventAssetsRemoved {
		return nil
	}

	groupID := event.EntityID
	var members domain.IDSet
	group, err := p.groups.Read(ctx, groupID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return fmt.Errorf("project group %s: %w", groupID, err)
	default:
		members = group.Assets
	}

	var errs []error
	for _, assetID := range event.MemberIDs {
		member := members.Contains(assetID)
		_, err := mutate(ctx, p.assets, assetKind, assetID, p.maxAttempts, func(current domain.Asset) (domain.Asset, bool, error) {
			if current.GroupIDs.Contains(groupID) == member {
				return current, false, nil
			}
			next := current
			if member {
				next.GroupIDs = current.GroupIDs.Add(groupID)
			} else {
				next.GroupIDs = current.GroupIDs.Remove(groupID)
			}
			next.UpdatedAt = p.now()
			return next, true, nil
		})
		if errors.Is(err, domain.ErrNotFound) {
			p.logger.Info("group member is not a registered asset",
				zap.String("asset_id", assetID),
				zap.String("group_id", groupID),
			)
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
