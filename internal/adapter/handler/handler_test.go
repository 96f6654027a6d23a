package handler

import (
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/rl1809/asset-ledger/internal/adapter/storage"
	"github.com/rl1809/asset-ledger/internal/core/domain"
	"github.com/rl1809/asset-ledger/internal/core/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type engine struct {
	lifecycle *service.LifecycleManager
	seats     *service.LicenseSeats
	stock     *service.StockTracker
}

func newEngine(t *testing.T) engine {
	t.Helper()
	return engine{
		lifecycle: service.NewLifecycleManager(storage.NewMemoryStore[domain.Asset]("asset"), nil, service.Sinks{}, nil),
		seats:     service.NewLicenseSeats(storage.NewMemoryStore[domain.License]("license"), service.Sinks{}, nil, 0),
		stock:     service.NewStockTracker(storage.NewMemoryStore[domain.AssetGroup]("asset group"), service.Sinks{}, nil, 0),
	}
}
