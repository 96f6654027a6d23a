package handler

import (
	"time"

	"github.com/rl1809/asset-ledger/internal/core/domain"
)

// Request and response bodies shared by the HTTP and gRPC transports.

type RegisterAssetRequest struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
}

type TransitionRequest struct {
	AssetID string `json:"asset_id"`
	Target  string `json:"target"`
	Reason  string `json:"reason"`
}

type AssignOwnerRequest struct {
	OwnerID string `json:"owner_id"`
}

type AssetRequest struct {
	AssetID string `json:"asset_id"`
}

type AssetResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	OwnerID   string    `json:"owner_id,omitempty"`
	GroupIDs  []string  `json:"group_ids"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

type NextStatesResponse struct {
	AssetID string   `json:"asset_id"`
	States  []string `json:"states"`
}

type CreateLicenseRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TotalSeats int    `json:"total_seats"`
}

type SetCapacityRequest struct {
	TotalSeats *int `json:"total_seats"`
}

type SeatRequest struct {
	LicenseID string `json:"license_id"`
	UserID    string `json:"user_id"`
}

type UtilizationRequest struct {
	LicenseID string `json:"license_id"`
}

type UtilizationResponse struct {
	LicenseID string `json:"license_id"`
	Used      int    `json:"used"`
	Capacity  int    `json:"capacity"`
	Available int    `json:"available"`
}

type CreateGroupRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MinStock int    `json:"min_stock"`
}

type SetMinStockRequest struct {
	MinStock *int `json:"min_stock"`
}

type MembershipRequest struct {
	GroupID  string   `json:"group_id"`
	AssetIDs []string `json:"asset_ids"`
}

type GroupResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	MinStock     int      `json:"min_stock"`
	CurrentStock int      `json:"current_stock"`
	AssetIDs     []string `json:"asset_ids"`
	LowStock     bool     `json:"low_stock"`
}

type LowStockRequest struct{}

type LowStockAlert struct {
	GroupID      string `json:"group_id"`
	Name         string `json:"name"`
	CurrentStock int    `json:"current_stock"`
	MinStock     int    `json:"min_stock"`
	Severity     string `json:"severity"`
}

type LowStockResponse struct {
	Alerts []LowStockAlert `json:"alerts"`
}

type EventResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	EntityID  string    `json:"entity_id"`
	Actor     string    `json:"actor"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	MemberID  string    `json:"member_id,omitempty"`
	MemberIDs []string  `json:"member_ids,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorResponse struct {
	Error           string   `json:"error"`
	Code            string   `json:"code"`
	ValidNextStates []string `json:"valid_next_states,omitempty"`
	Retryable       bool     `json:"retryable,omitempty"`
}

func assetResponse(a domain.Asset) AssetResponse {
	return AssetResponse{
		ID:        a.ID,
		Status:    string(a.Status),
		OwnerID:   a.OwnerID,
		GroupIDs:  nonNil(a.GroupIDs),
		Version:   a.Version,
		UpdatedAt: a.UpdatedAt,
	}
}

func statusStrings(states []domain.AssetStatus) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

func utilizationResponse(u domain.Utilization) UtilizationResponse {
	return UtilizationResponse{
		LicenseID: u.PoolID,
		Used:      u.Used,
		Capacity:  u.Capacity,
		Available: u.Available,
	}
}

func groupResponse(g domain.AssetGroup) GroupResponse {
	return GroupResponse{
		ID:           g.ID,
		Name:         g.Name,
		MinStock:     g.MinStock,
		CurrentStock: g.CurrentStock,
		AssetIDs:     nonNil(g.Assets),
		LowStock:     g.LowStock(),
	}
}

func lowStockResponse(alerts []domain.LowStockAlert) LowStockResponse {
	out := LowStockResponse{Alerts: make([]LowStockAlert, len(alerts))}
	for i, a := range alerts {
		out.Alerts[i] = LowStockAlert{
			GroupID:      a.GroupID,
			Name:         a.Name,
			CurrentStock: a.CurrentStock,
			MinStock:     a.MinStock,
			Severity:     string(a.Severity),
		}
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:        e.ID,
		Type:      string(e.Type),
		EntityID:  e.EntityID,
		Actor:     e.Actor,
		From:      e.From,
		To:        e.To,
		MemberID:  e.MemberID,
		MemberIDs: e.MemberIDs,
		Reason:    e.Reason,
		Timestamp: e.Timestamp,
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
