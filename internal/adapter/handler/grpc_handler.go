package handler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/asset-ledger/internal/core/domain"
	"github.com/rl1809/asset-ledger/internal/core/service"
)

const serviceName = "itam.v1.AllocationService"

var _ AllocationServer = (*GRPCHandler)(nil)

// actorMetadataKey carries the caller in incoming gRPC metadata.
const actorMetadataKey = "x-actor"

// AllocationServer is the gRPC surface of the engine. Messages travel as
// JSON under the "json" content-subtype.
type AllocationServer interface {
	RequestTransition(context.Context, *TransitionRequest) (*AssetResponse, error)
	ValidNextStates(context.Context, *AssetRequest) (*NextStatesResponse, error)
	AssignSeat(context.Context, *SeatRequest) (*UtilizationResponse, error)
	UnassignSeat(context.Context, *SeatRequest) (*UtilizationResponse, error)
	Utilization(context.Context, *UtilizationRequest) (*UtilizationResponse, error)
	AddAssets(context.Context, *MembershipRequest) (*GroupResponse, error)
	RemoveAssets(context.Context, *MembershipRequest) (*GroupResponse, error)
	LowStockAlerts(context.Context, *LowStockRequest) (*LowStockResponse, error)
}

var allocationServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AllocationServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("RequestTransition", AllocationServer.RequestTransition),
		unary("ValidNextStates", AllocationServer.ValidNextStates),
		unary("AssignSeat", AllocationServer.AssignSeat),
		unary("UnassignSeat", AllocationServer.UnassignSeat),
		unary("Utilization", AllocationServer.Utilization),
		unary("AddAssets", AllocationServer.AddAssets),
		unary("RemoveAssets", AllocationServer.RemoveAssets),
		unary("LowStockAlerts", AllocationServer.LowStockAlerts),
	},
	Streams: []grpc.StreamDesc{},
}

func unary[Req, Resp any](method string, call func(AllocationServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AllocationServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + serviceName + "/" + method,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(AllocationServer), ctx, req.(*Req))
			})
		},
	}
}

// RegisterAllocationServer registers srv on s.
func RegisterAllocationServer(s grpc.ServiceRegistrar, srv AllocationServer) {
	s.RegisterService(&allocationServiceDesc, srv)
}

type GRPCHandler struct {
	lifecycle *service.LifecycleManager
	seats     *service.LicenseSeats
	stock     *service.StockTracker
	logger    *zap.Logger
}

func NewGRPCHandler(lifecycle *service.LifecycleManager, seats *service.LicenseSeats, stock *service.StockTracker, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{
		lifecycle: lifecycle,
		seats:     seats,
		stock:     stock,
		logger:    logger,
	}
}

func (h *GRPCHandler) RequestTransition(ctx context.Context, req *TransitionRequest) (*AssetResponse, error) {
	target, err := domain.ParseStatus(req.Target)
	if err != nil {
		return nil, h.status(err)
	}
	asset, err := h.lifecycle.RequestTransition(ctx, req.AssetID, target, actorFrom(ctx), req.Reason)
	if err != nil {
		return nil, h.status(err)
	}
	resp := assetResponse(asset)
	return &resp, nil
}

func (h *GRPCHandler) ValidNextStates(ctx context.Context, req *AssetRequest) (*NextStatesResponse, error) {
	next, err := h.lifecycle.ValidNextStates(ctx, req.AssetID)
	if err != nil {
		return nil, h.status(err)
	}
	return &NextStatesResponse{AssetID: req.AssetID, States: statusStrings(next)}, nil
}

func (h *GRPCHandler) AssignSeat(ctx context.Context, req *SeatRequest) (*UtilizationResponse, error) {
	usage, err := h.seats.Assign(ctx, req.LicenseID, req.UserID, actorFrom(ctx))
	if err != nil {
		return nil, h.status(err)
	}
	resp := utilizationResponse(usage)
	return &resp, nil
}

func (h *GRPCHandler) UnassignSeat(ctx context.Context, req *SeatRequest) (*UtilizationResponse, error) {
	usage, err := h.seats.Unassign(ctx, req.LicenseID, req.UserID, actorFrom(ctx))
	if err != nil {
		return nil, h.status(err)
	}
	resp := utilizationResponse(usage)
	return &resp, nil
}

func (h *GRPCHandler) Utilization(ctx context.Context, req *UtilizationRequest) (*UtilizationResponse, error) {
	usage, err := h.seats.Utilization(ctx, req.LicenseID)
	if err != nil {
		return nil, h.status(err)
	}
	resp := utilizationResponse(usage)
	return &resp, nil
}

func (h *GRPCHandler) AddAssets(ctx context.Context, req *MembershipRequest) (*GroupResponse, error) {
	group, err := h.stock.AddAssets(ctx, req.GroupID, req.AssetIDs, actorFrom(ctx))
	if err != nil {
		return nil, h.status(err)
	}
	resp := groupResponse(group)
	return &resp, nil
}

func (h *GRPCHandler) RemoveAssets(ctx context.Context, req *MembershipRequest) (*GroupResponse, error) {
	group, err := h.stock.RemoveAssets(ctx, req.GroupID, req.AssetIDs, actorFrom(ctx))
	if err != nil {
		return nil, h.status(err)
	}
	resp := groupResponse(group)
	return &resp, nil
}

func (h *GRPCHandler) LowStockAlerts(ctx context.Context, _ *LowStockRequest) (*LowStockResponse, error) {
	alerts, err := h.stock.LowStockAlerts(ctx)
	if err != nil {
		return nil, h.status(err)
	}
	resp := lowStockResponse(alerts)
	return &resp, nil
}

func (h *GRPCHandler) status(err error) error {
	m := mapError(err)
	if m.grpc == codes.Internal {
		h.logger.Error("rpc failed", zap.Error(err))
		return status.Error(codes.Internal, m.body.Error)
	}
	msg := m.body.Error
	if len(m.body.ValidNextStates) > 0 {
		msg = fmt.Sprintf("%s; valid next states: %v", msg, m.body.ValidNextStates)
	}
	return status.Error(m.grpc, msg)
}

func actorFrom(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(actorMetadataKey); len(values) > 0 && values[0] != "" {
			return values[0]
		}
	}
	return anonymousActor
}

// LoggingInterceptor logs every unary call at debug level.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		logger.Debug("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}
