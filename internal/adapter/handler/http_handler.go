package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/asset-ledger/internal/core/domain"
	"github.com/rl1809/asset-ledger/internal/core/service"
)

// ActorHeader names the caller for audit records.
const ActorHeader = "X-Actor"

const anonymousActor = "anonymous"

// HistoryReader serves the audit trail of one entity.
type HistoryReader interface {
	History(ctx context.Context, entityID string) ([]domain.Event, error)
}

type HTTPHandler struct {
	lifecycle *service.LifecycleManager
	seats     *service.LicenseSeats
	stock     *service.StockTracker
	history   HistoryReader
	logger    *zap.Logger
}

// NewHTTPHandler wires the engine to gin routes. history may be nil, in
// which case the history route is not registered.
func NewHTTPHandler(lifecycle *service.LifecycleManager, seats *service.LicenseSeats, stock *service.StockTracker, history HistoryReader, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		lifecycle: lifecycle,
		seats:     seats,
		stock:     stock,
		history:   history,
		logger:    logger,
	}
}

// Router returns a gin engine with every route registered.
func (h *HTTPHandler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog())
	h.Register(r)
	return r
}

func (h *HTTPHandler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")

	assets := api.Group("/assets")
	assets.POST("", h.RegisterAsset)
	assets.GET("/:id", h.GetAsset)
	assets.POST("/:id/transitions", h.RequestTransition)
	assets.GET("/:id/next-states", h.ValidNextStates)
	assets.PUT("/:id/owner", h.AssignOwner)
	assets.DELETE("/:id", h.ArchiveAsset)

	licenses := api.Group("/licenses")
	licenses.POST("", h.CreateLicense)
	licenses.GET("/:id/utilization", h.Utilization)
	licenses.PATCH("/:id", h.SetCapacity)
	licenses.PUT("/:id/seats/:user", h.AssignSeat)
	licenses.DELETE("/:id/seats/:user", h.UnassignSeat)

	groups := api.Group("/groups")
	groups.POST("", h.CreateGroup)
	groups.GET("/:id", h.GetGroup)
	groups.POST("/:id/assets", h.AddAssets)
	groups.POST("/:id/assets/remove", h.RemoveAssets)
	groups.PATCH("/:id", h.SetMinStock)

	api.GET("/alerts/low-stock", h.LowStockAlerts)

	if h.history != nil {
		api.GET("/history/:id", h.History)
	}
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) RegisterAsset(c *gin.Context) {
	var req RegisterAssetRequest
	if !h.bind(c, &req) {
		return
	}
	asset, err := h.lifecycle.Register(c.Request.Context(), req.ID, req.OwnerID, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, assetResponse(asset))
}

func (h *HTTPHandler) GetAsset(c *gin.Context) {
	asset, err := h.lifecycle.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, assetResponse(asset))
}

func (h *HTTPHandler) RequestTransition(c *gin.Context) {
	var req TransitionRequest
	if !h.bind(c, &req) {
		return
	}
	target, err := domain.ParseStatus(req.Target)
	if err != nil {
		h.fail(c, err)
		return
	}
	asset, err := h.lifecycle.RequestTransition(c.Request.Context(), c.Param("id"), target, actor(c), req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, assetResponse(asset))
}

func (h *HTTPHandler) ValidNextStates(c *gin.Context) {
	id := c.Param("id")
	next, err := h.lifecycle.ValidNextStates(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, NextStatesResponse{AssetID: id, States: statusStrings(next)})
}

func (h *HTTPHandler) AssignOwner(c *gin.Context) {
	var req AssignOwnerRequest
	if !h.bind(c, &req) {
		return
	}
	asset, err := h.lifecycle.AssignOwner(c.Request.Context(), c.Param("id"), req.OwnerID, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, assetResponse(asset))
}

func (h *HTTPHandler) ArchiveAsset(c *gin.Context) {
	if _, err := h.lifecycle.Archive(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) CreateLicense(c *gin.Context) {
	var req CreateLicenseRequest
	if !h.bind(c, &req) {
		return
	}
	license, err := domain.NewLicense(req.ID, req.Name, req.TotalSeats, time.Now())
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.seats.Create(c.Request.Context(), license); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, utilizationResponse(domain.UtilizationOf(license)))
}

func (h *HTTPHandler) Utilization(c *gin.Context) {
	usage, err := h.seats.Utilization(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, utilizationResponse(usage))
}

func (h *HTTPHandler) SetCapacity(c *gin.Context) {
	var req SetCapacityRequest
	if !h.bind(c, &req) {
		return
	}
	if req.TotalSeats == nil {
		h.fail(c, domain.NewValidationError("total_seats", "is required"))
		return
	}
	usage, err := h.seats.SetCapacity(c.Request.Context(), c.Param("id"), *req.TotalSeats, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, utilizationResponse(usage))
}

func (h *HTTPHandler) AssignSeat(c *gin.Context) {
	usage, err := h.seats.Assign(c.Request.Context(), c.Param("id"), c.Param("user"), actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, utilizationResponse(usage))
}

func (h *HTTPHandler) UnassignSeat(c *gin.Context) {
	usage, err := h.seats.Unassign(c.Request.Context(), c.Param("id"), c.Param("user"), actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, utilizationResponse(usage))
}

func (h *HTTPHandler) CreateGroup(c *gin.Context) {
	var req CreateGroupRequest
	if !h.bind(c, &req) {
		return
	}
	group, err := h.stock.CreateGroup(c.Request.Context(), req.ID, req.Name, req.MinStock)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, groupResponse(group))
}

func (h *HTTPHandler) GetGroup(c *gin.Context) {
	group, err := h.stock.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, groupResponse(group))
}

func (h *HTTPHandler) AddAssets(c *gin.Context) {
	var req MembershipRequest
	if !h.bind(c, &req) {
		return
	}
	group, err := h.stock.AddAssets(c.Request.Context(), c.Param("id"), req.AssetIDs, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, groupResponse(group))
}

func (h *HTTPHandler) RemoveAssets(c *gin.Context) {
	var req MembershipRequest
	if !h.bind(c, &req) {
		return
	}
	group, err := h.stock.RemoveAssets(c.Request.Context(), c.Param("id"), req.AssetIDs, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, groupResponse(group))
}

func (h *HTTPHandler) SetMinStock(c *gin.Context) {
	var req SetMinStockRequest
	if !h.bind(c, &req) {
		return
	}
	if req.MinStock == nil {
		h.fail(c, domain.NewValidationError("min_stock", "is required"))
		return
	}
	group, err := h.stock.SetMinStock(c.Request.Context(), c.Param("id"), *req.MinStock)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, groupResponse(group))
}

func (h *HTTPHandler) LowStockAlerts(c *gin.Context) {
	alerts, err := h.stock.LowStockAlerts(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lowStockResponse(alerts))
}

func (h *HTTPHandler) History(c *gin.Context) {
	events, err := h.history.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]EventResponse, len(events))
	for i, e := range events {
		out[i] = eventResponse(e)
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

func (h *HTTPHandler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "validation"})
		return false
	}
	return true
}

func (h *HTTPHandler) fail(c *gin.Context, err error) {
	m := mapError(err)
	if m.http == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(m.http, m.body)
}

func (h *HTTPHandler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func actor(c *gin.Context) string {
	if a := c.GetHeader(ActorHeader); a != "" {
		return a
	}
	return anonymousActor
}
