package domain

import (
	"sort"
	"time"
)

type AssetGroup struct {
	ID           string
	Name         string
	MinStock     int
	Assets       IDSet
	CurrentStock int // always Assets.Len()
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func NewAssetGroup(id, name string, minStock int, now time.Time) (AssetGroup, error) {
	if id == "" {
		return AssetGroup{}, NewValidationError("id", "group id is required")
	}
	if minStock < 0 {
		return AssetGroup{}, NewValidationError("min_stock", "must not be negative")
	}
	return AssetGroup{
		ID:        id,
		Name:      name,
		MinStock:  minStock,
		Assets:    IDSet{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (g AssetGroup) EntityID() string     { return g.ID }
func (g AssetGroup) EntityVersion() int64 { return g.Version }

func (g AssetGroup) WithVersion(version int64) AssetGroup {
	g.Version = version
	return g
}

// WithAssets replaces the membership and recomputes CurrentStock in the
// same value, so the two can never be written separately.
func (g AssetGroup) WithAssets(assets IDSet, now time.Time) AssetGroup {
	g.Assets = NewIDSet(assets...)
	g.CurrentStock = g.Assets.Len()
	g.UpdatedAt = now
	return g
}

func (g AssetGroup) LowStock() bool {
	return g.CurrentStock < g.MinStock
}

type Severity string

const (
	SeverityUrgent  Severity = "urgent"
	SeverityWarning Severity = "warning"
)

type LowStockAlert struct {
	GroupID      string
	Name         string
	CurrentStock int
	MinStock     int
	Severity     Severity
}

// LowStockAlerts selects groups below their minimum and orders them most
// depleted first. Ties are broken by group ID so the order is stable
// across store backends.
func LowStockAlerts(groups []AssetGroup) []LowStockAlert {
	alerts := make([]LowStockAlert, 0)
	for _, g := range groups {
		if !g.LowStock() {
			continue
		}
		severity := SeverityWarning
		if g.CurrentStock == 0 {
			severity = SeverityUrgent
		}
		alerts = append(alerts, LowStockAlert{
			GroupID:      g.ID,
			Name:         g.Name,
			CurrentStock: g.CurrentStock,
			MinStock:     g.MinStock,
			Severity:     severity,
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].CurrentStock != alerts[j].CurrentStock {
			return alerts[i].CurrentStock < alerts[j].CurrentStock
		}
		return alerts[i].GroupID < alerts[j].GroupID
	})
	return alerts
}
