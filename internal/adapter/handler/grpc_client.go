package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// AllocationClient calls an AllocationServer over a client connection.
type AllocationClient struct {
	cc grpc.ClientConnInterface
}

func NewAllocationClient(cc grpc.ClientConnInterface) *AllocationClient {
	return &AllocationClient{cc: cc}
}

// JSONCallOption selects the JSON codec; pass it to grpc.WithDefaultCallOptions
// when dialing.
func JSONCallOption() grpc.CallOption {
	return grpc.CallContentSubtype(codecName)
}

// WithActor attaches the caller identity to outgoing calls.
func WithActor(ctx context.Context, actor string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, actorMetadataKey, actor)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{JSONCallOption()}, opts...)
	if err := cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AllocationClient) RequestTransition(ctx context.Context, in *TransitionRequest, opts ...grpc.CallOption) (*AssetResponse, error) {
	return invoke[AssetResponse](ctx, c.cc, "RequestTransition", in, opts...)
}

func (c *AllocationClient) ValidNextStates(ctx context.Context, in *AssetRequest, opts ...grpc.CallOption) (*NextStatesResponse, error) {
	return invoke[NextStatesResponse](ctx, c.cc, "ValidNextStates", in, opts...)
}

func (c *AllocationClient) AssignSeat(ctx context.Context, in *SeatRequest, opts ...grpc.CallOption) (*UtilizationResponse, error) {
	return invoke[UtilizationResponse](ctx, c.cc, "AssignSeat", in, opts...)
}

func (c *AllocationClient) UnassignSeat(ctx context.Context, in *SeatRequest, opts ...grpc.CallOption) (*UtilizationResponse, error) {
	return invoke[UtilizationResponse](ctx, c.cc, "UnassignSeat", in, opts...)
}

func (c *AllocationClient) Utilization(ctx context.Context, in *UtilizationRequest, opts ...grpc.CallOption) (*UtilizationResponse, error) {
	return invoke[UtilizationResponse](ctx, c.cc, "Utilization", in, opts...)
}

func (c *AllocationClient) AddAssets(ctx context.Context, in *MembershipRequest, opts ...grpc.CallOption) (*GroupResponse, error) {
	return invoke[GroupResponse](ctx, c.cc, "AddAssets", in, opts...)
}

func (c *AllocationClient) RemoveAssets(ctx context.Context, in *MembershipRequest, opts ...grpc.CallOption) (*GroupResponse, error) {
	return invoke[GroupResponse](ctx, c.cc, "RemoveAssets", in, opts...)
}

func (c *AllocationClient) LowStockAlerts(ctx context.Context, opts ...grpc.CallOption) (*LowStockResponse, error) {
	return invoke[LowStockResponse](ctx, c.cc, "LowStockAlerts", &LowStockRequest{}, opts...)
}
