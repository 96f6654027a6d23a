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

const assetKind = "asset"

// LifecycleManager validates and applies asset status transitions against
// a TransitionTable. A lost compare-and-swap is reported as
// domain.ErrConcurrencyConflict and never retried here: a caller that
// decided on a target from an earlier read must decide again.
type LifecycleManager struct {
	store  port.InvariantStore[domain.Asset]
	groups port.InvariantStore[domain.AssetGroup]
	table  *domain.TransitionTable
	events emitter
	logger *zap.Logger
	now    clock
}

type LifecycleOption func(*LifecycleManager)

// WithGroupStore makes Archive check membership against the group records
// instead of the projected Asset.GroupIDs.
func WithGroupStore(groups port.InvariantStore[domain.AssetGroup]) LifecycleOption {
	return func(m *LifecycleManager) {
		m.groups = groups
	}
}

func NewLifecycleManager(store port.InvariantStore[domain.Asset], table *domain.TransitionTable, sinks Sinks, logger *zap.Logger, opts ...LifecycleOption) *LifecycleManager {
	if table == nil {
		table = domain.DefaultTransitionTable()
	}
	logger = orNop(logger)
	m := &LifecycleManager{
		store:  store,
		table:  table,
		events: emitter{sinks: sinks, logger: logger},
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *LifecycleManager) Table() *domain.TransitionTable {
	return m.table
}

// Register creates an asset in the initial Expected state.
func (m *LifecycleManager) Register(ctx context.Context, assetID, ownerID, actor string) (domain.Asset, error) {
	if err := requireID("asset_id", assetID); err != nil {
		return domain.Asset{}, err
	}

	asset := domain.NewAsset(assetID, ownerID, m.now())
	if err := m.store.Create(ctx, asset); err != nil {
		return domain.Asset{}, fmt.Errorf("register asset %s: %w", assetID, err)
	}

	m.logger.Info("asset registered", zap.String("asset_id", assetID), zap.String("actor", actor))
	return asset, nil
}

func (m *LifecycleManager) Get(ctx context.Context, assetID string) (domain.Asset, error) {
	if err := requireID("asset_id", assetID); err != nil {
		return domain.Asset{}, err
	}
	asset, err := m.store.Read(ctx, assetID)
	if err != nil {
		return domain.Asset{}, err
	}
	if asset.Deleted {
		return domain.Asset{}, domain.NewNotFoundError(assetKind, assetID)
	}
	return asset, nil
}

// RequestTransition moves the asset to target. Requesting the current
// status succeeds without a write or an event.
func (m *LifecycleManager) RequestTransition(ctx context.Context, assetID string, target domain.AssetStatus, actor, reason string) (domain.Asset, error) {
	if !target.Valid() {
		return domain.Asset{}, domain.NewValidationError("target_status", fmt.Sprintf("unknown asset status %q", target))
	}

	current, err := m.Get(ctx, assetID)
	if err != nil {
		return domain.Asset{}, err
	}
	if current.Status.Terminal() {
		return domain.Asset{}, domain.NewInvalidTransitionError(assetID, current.Status, target, nil)
	}
	if current.Status == target {
		return current, nil
	}

	edge, ok := m.table.Lookup(current.Status, target)
	if !ok {
		return domain.Asset{}, domain.NewInvalidTransitionError(assetID, current.Status, target, m.table.Next(current.Status))
	}
	if edge.Has(domain.EffectRequireReason) && reason == "" {
		return domain.Asset{}, domain.NewValidationError("reason", fmt.Sprintf("required for %s -> %s", edge.From, edge.To))
	}

	now := m.now()
	next := current
	next.Status = target
	next.UpdatedAt = now
	if edge.Has(domain.EffectReleaseOwner) {
		next.OwnerID = ""
	}

	if err := ctx.Err(); err != nil {
		return domain.Asset{}, err
	}
	swapped, err := m.store.CompareAndSwap(ctx, current, next)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("transition asset %s: %w", assetID, err)
	}
	if !swapped {
		return domain.Asset{}, &domain.ConflictError{Kind: assetKind, ID: assetID, Attempts: 1}
	}
	next = next.WithVersion(current.Version + 1)

	event := domain.NewEvent(domain.EventStatusChanged, assetID, actor, now)
	event.From = string(current.Status)
	event.To = string(target)
	event.Reason = reason
	m.events.record(ctx, event)

	if edge.Has(domain.EffectNotifyOwner) && current.HasOwner() {
		m.events.notify(ctx, current.OwnerID, domain.Notification{
			Kind:     domain.NotifyAssetStatus,
			Subject:  fmt.Sprintf("Asset %s is now %s", assetID, target),
			Message:  reason,
			EntityID: assetID,
		})
	}

	m.logger.Debug("asset transitioned",
		zap.String("asset_id", assetID),
		zap.String("from", string(current.Status)),
		zap.String("to", string(target)),
		zap.String("actor", actor),
	)
	return next, nil
}

// ValidNextStates returns the outgoing edges of the asset's current status.
func (m *LifecycleManager) ValidNextStates(ctx context.Context, assetID string) ([]domain.AssetStatus, error) {
	asset, err := m.Get(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return m.table.Next(asset.Status), nil
}

func (m *LifecycleManager) AssignOwner(ctx context.Context, assetID, ownerID, actor string) (domain.Asset, error) {
	if err := requireID("asset_id", assetID); err != nil {
		return domain.Asset{}, err
	}

	now := m.now()
	result, err := mutate(ctx, m.store, assetKind, assetID, 1, func(current domain.Asset) (domain.Asset, bool, error) {
		if current.Deleted {
			return current, false, domain.NewNotFoundError(assetKind, assetID)
		}
		if current.Status == domain.StatusRetired || current.Status.Terminal() {
			return current, false, domain.NewValidationError("owner_id", fmt.Sprintf("asset is %s", current.Status))
		}
		if current.OwnerID == ownerID {
			return current, false, nil
		}
		next := current
		next.OwnerID = ownerID
		next.UpdatedAt = now
		return next, true, nil
	})
	if err != nil {
		return domain.Asset{}, err
	}
	if !result.wrote {
		return result.after, nil
	}

	event := domain.NewEvent(domain.EventOwnerChanged, assetID, actor, now)
	event.From = result.before.OwnerID
	event.To = ownerID
	m.events.record(ctx, event)
	m.events.notify(ctx, ownerID, domain.Notification{
		Kind:     domain.NotifyAssetOwner,
		Subject:  fmt.Sprintf("Asset %s assigned to you", assetID),
		EntityID: assetID,
	})
	return result.after, nil
}

// Archive soft-deletes an asset. Assets still referenced by a group are
// refused; remove them from their groups first.
func (m *LifecycleManager) Archive(ctx context.Context, assetID, actor string) (domain.Asset, error) {
	if err := requireID("asset_id", assetID); err != nil {
		return domain.Asset{}, err
	}
	memberOf, err := m.memberOf(ctx, assetID)
	if err != nil {
		return domain.Asset{}, err
	}

	now := m.now()
	result, err := mutate(ctx, m.store, assetKind, assetID, 1, func(current domain.Asset) (domain.Asset, bool, error) {
		if current.Deleted {
			return current, false, domain.NewNotFoundError(assetKind, assetID)
		}
		if m.groups == nil {
			memberOf = current.GroupIDs
		}
		if memberOf.Len() > 0 {
			return current, false, domain.NewValidationError("asset_id", fmt.Sprintf("asset is a member of %d group(s)", memberOf.Len()))
		}
		next := current
		next.Deleted = true
		next.UpdatedAt = now
		return next, true, nil
	})
	if err != nil {
		return domain.Asset{}, err
	}

	event := domain.NewEvent(domain.EventAssetArchived, assetID, actor, now)
	event.From = string(result.before.Status)
	m.events.record(ctx, event)
	return result.after, nil
}

// memberOf lists the groups holding assetID, or nil without a group store.
func (m *LifecycleManager) memberOf(ctx context.Context, assetID string) (domain.IDSet, error) {
	if m.groups == nil {
		return nil, nil
	}
	groups, err := m.groups.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	var ids []string
	for _, g := range groups {
		if g.Assets.Contains(assetID) {
			ids = append(ids, g.ID)
		}
	}
	return domain.NewIDSet(ids...), nil
}

// IsInvalidTransition extracts the rejected transition, if err is one.
func IsInvalidTransition(err error) (*domain.InvalidTransitionError, bool) {
	var target *domain.InvalidTransitionError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
