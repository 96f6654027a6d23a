package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"github.com/rl1809/asset-ledger/internal/adapter/storage"
	"github.com/rl1809/asset-ledger/internal/core/domain"
)

var errorsByName = map[string]error{
	"validation":           domain.ErrValidation,
	"not found":            domain.ErrNotFound,
	"invalid transition":   domain.ErrInvalidTransition,
	"capacity exceeded":    domain.ErrCapacityExceeded,
	"duplicate assignment": domain.ErrDuplicateAssignment,
	"conflict":             domain.ErrConcurrencyConflict,
}

type engineTestContext struct {
	sink      *recordingSink
	lifecycle *LifecycleManager
	seats     *LicenseSeats
	stock     *StockTracker
	err       error
}

func (c *engineTestContext) reset() {
	c.sink = newRecordingSink()
	c.lifecycle = NewLifecycleManager(storage.NewMemoryStore[domain.Asset]("asset"), nil, c.sink.sinks(), nil)
	c.seats = NewLicenseSeats(storage.NewMemoryStore[domain.License]("license"), c.sink.sinks(), nil, 0)
	c.stock = NewStockTracker(storage.NewMemoryStore[domain.AssetGroup]("asset group"), c.sink.sinks(), nil, 0)
	c.err = nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *engineTestContext) anAssetOwnedBy(ctx context.Context, assetID, owner string) error {
	_, err := c.lifecycle.Register(ctx, assetID, owner, "receiver")
	return err
}

func (c *engineTestContext) assetHasMovedThrough(ctx context.Context, assetID, states string) error {
	for _, raw := range splitList(states) {
		status, err := domain.ParseStatus(raw)
		if err != nil {
			return err
		}
		if _, err := c.lifecycle.RequestTransition(ctx, assetID, status, "setup", "setup"); err != nil {
			return fmt.Errorf("move %s to %s: %w", assetID, status, err)
		}
	}
	return nil
}

func (c *engineTestContext) actorMovesAsset(ctx context.Context, actor, assetID, target string) error {
	return c.actorMovesAssetBecause(ctx, actor, assetID, target, "")
}

func (c *engineTestContext) actorMovesAssetBecause(ctx context.Context, actor, assetID, target, reason string) error {
	status, err := domain.ParseStatus(target)
	if err != nil {
		return err
	}
	_, c.err = c.lifecycle.RequestTransition(ctx, assetID, status, actor, reason)
	return nil
}

func (c *engineTestContext) assetIs(ctx context.Context, assetID, want string) error {
	asset, err := c.lifecycle.Get(ctx, assetID)
	if err != nil {
		return err
	}
	if string(asset.Status) != want {
		return fmt.Errorf("expected asset %s to be %s, got %s", assetID, want, asset.Status)
	}
	return nil
}

func (c *engineTestContext) assetHasNoOwner(ctx context.Context, assetID string) error {
	asset, err := c.lifecycle.Get(ctx, assetID)
	if err != nil {
		return err
	}
	if asset.HasOwner() {
		return fmt.Errorf("expected no owner, got %q", asset.OwnerID)
	}
	return nil
}

func (c *engineTestContext) eventFromToIsRecorded(eventType, from, to string) error {
	for _, e := range c.sink.eventsOf(domain.EventType(eventType)) {
		if e.From == from && e.To == to {
			return nil
		}
	}
	return fmt.Errorf("no %s event from %s to %s", eventType, from, to)
}

func (c *engineTestContext) eventsAreRecorded(count int, eventType string) error {
	if got := len(c.sink.eventsOf(domain.EventType(eventType))); got != count {
		return fmt.Errorf("expected %d %s events, got %d", count, eventType, got)
	}
	return nil
}

func (c *engineTestContext) validNextStatesAre(ctx context.Context, assetID, states string) error {
	next, err := c.lifecycle.ValidNextStates(ctx, assetID)
	if err != nil {
		return err
	}
	got := make([]string, len(next))
	for i, s := range next {
		got[i] = string(s)
	}
	if strings.Join(got, ", ") != strings.Join(splitList(states), ", ") {
		return fmt.Errorf("expected next states %q, got %q", states, strings.Join(got, ", "))
	}
	return nil
}

func (c *engineTestContext) userHasNotifications(userID string, count int) error {
	if got := len(c.sink.notificationsFor(userID)); got != count {
		return fmt.Errorf("expected %d notifications for %s, got %d", count, userID, got)
	}
	return nil
}

func (c *engineTestContext) theRequestFailsWith(name string) error {
	want, ok := errorsByName[name]
	if !ok {
		return fmt.Errorf("unknown error name %q", name)
	}
	if !errors.Is(c.err, want) {
		return fmt.Errorf("expected %s error, got %v", name, c.err)
	}
	return nil
}

func (c *engineTestContext) aLicenseWithSeats(ctx context.Context, licenseID string, seats int) error {
	license, err := domain.NewLicense(licenseID, licenseID, seats, time.Now())
	if err != nil {
		return err
	}
	return c.seats.Create(ctx, license)
}

func (c *engineTestContext) memberIsAssigned(ctx context.Context, memberID, licenseID string) error {
	_, c.err = c.seats.Assign(ctx, licenseID, memberID, "admin")
	return nil
}

func (c *engineTestContext) memberIsUnassigned(ctx context.Context, memberID, licenseID string) error {
	_, c.err = c.seats.Unassign(ctx, licenseID, memberID, "admin")
	return c.err
}

func (c *engineTestContext) capacityIsSetTo(ctx context.Context, licenseID string, capacity int) error {
	_, c.err = c.seats.SetCapacity(ctx, licenseID, capacity, "admin")
	return c.err
}

func (c *engineTestContext) licenseUsesSeats(ctx context.Context, licenseID string, used, capacity int) error {
	usage, err := c.seats.Utilization(ctx, licenseID)
	if err != nil {
		return err
	}
	if usage.Used != used || usage.Capacity != capacity {
		return fmt.Errorf("expected %d of %d seats, got %d of %d", used, capacity, usage.Used, usage.Capacity)
	}
	return nil
}

func (c *engineTestContext) licenseHasAvailable(ctx context.Context, licenseID string, available int) error {
	usage, err := c.seats.Utilization(ctx, licenseID)
	if err != nil {
		return err
	}
	if usage.Available != available {
		return fmt.Errorf("expected %d available, got %d", available, usage.Available)
	}
	return nil
}

func (c *engineTestContext) aGroupWithMinimumStock(ctx context.Context, groupID string, minStock int) error {
	_, err := c.stock.CreateGroup(ctx, groupID, groupID, minStock)
	return err
}

func (c *engineTestContext) assetsAreAddedTo(ctx context.Context, assetIDs, groupID string) error {
	_, err := c.stock.AddAssets(ctx, groupID, splitList(assetIDs), "admin")
	return err
}

func (c *engineTestContext) groupHasStock(ctx context.Context, groupID string, stock int) error {
	group, err := c.stock.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if group.CurrentStock != stock {
		return fmt.Errorf("expected stock %d, got %d", stock, group.CurrentStock)
	}
	return nil
}

func (c *engineTestContext) lowStockAlertsAre(ctx context.Context, groups string) error {
	alerts, err := c.stock.LowStockAlerts(ctx)
	if err != nil {
		return err
	}
	got := make([]string, len(alerts))
	for i, a := range alerts {
		got[i] = a.GroupID
	}
	if strings.Join(got, ", ") != strings.Join(splitList(groups), ", ") {
		return fmt.Errorf("expected alerts %q, got %q", groups, strings.Join(got, ", "))
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &engineTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Lifecycle
	ctx.Step(`^an asset "([^"]*)" owned by "([^"]*)"$`, tc.anAssetOwnedBy)
	ctx.Step(`^asset "([^"]*)" has moved through "([^"]*)"$`, tc.assetHasMovedThrough)
	ctx.Step(`^"([^"]*)" moves asset "([^"]*)" to "([^"]*)"$`, tc.actorMovesAsset)
	ctx.Step(`^"([^"]*)" moves asset "([^"]*)" to "([^"]*)" because "([^"]*)"$`, tc.actorMovesAssetBecause)
	ctx.Step(`^asset "([^"]*)" is "([^"]*)"$`, tc.assetIs)
	ctx.Step(`^asset "([^"]*)" has no owner$`, tc.assetHasNoOwner)
	ctx.Step(`^a "([^"]*)" event from "([^"]*)" to "([^"]*)" is recorded$`, tc.eventFromToIsRecorded)
	ctx.Step(`^(\d+) "([^"]*)" events are recorded$`, tc.eventsAreRecorded)
	ctx.Step(`^the valid next states of "([^"]*)" are "([^"]*)"$`, tc.validNextStatesAre)
	ctx.Step(`^"([^"]*)" has (\d+) notifications$`, tc.userHasNotifications)
	ctx.Step(`^the request fails with "([^"]*)"$`, tc.theRequestFailsWith)

	// Seats
	ctx.Step(`^a license "([^"]*)" with (\d+) seats$`, tc.aLicenseWithSeats)
	ctx.Step(`^"([^"]*)" is assigned a seat on "([^"]*)"$`, tc.memberIsAssigned)
	ctx.Step(`^"([^"]*)" is unassigned from "([^"]*)"$`, tc.memberIsUnassigned)
	ctx.Step(`^the capacity of "([^"]*)" is set to (\d+)$`, tc.capacityIsSetTo)
	ctx.Step(`^"([^"]*)" uses (\d+) of (\d+) seats$`, tc.licenseUsesSeats)
	ctx.Step(`^"([^"]*)" has (-?\d+) seats available$`, tc.licenseHasAvailable)

	// Stock
	ctx.Step(`^a group "([^"]*)" with minimum stock (\d+)$`, tc.aGroupWithMinimumStock)
	ctx.Step(`^assets "([^"]*)" are added to "([^"]*)"$`, tc.assetsAreAddedTo)
	ctx.Step(`^"([^"]*)" has stock (\d+)$`, tc.groupHasStock)
	ctx.Step(`^the low stock alerts are "([^"]*)"$`, tc.lowStockAlertsAre)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
