package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventStatusChanged   EventType = "StatusChanged"
	EventOwnerChanged    EventType = "OwnerChanged"
	EventAssetArchived   EventType = "AssetArchived"
	EventSeatAssigned    EventType = "SeatAssigned"
	EventSeatUnassigned  EventType = "SeatUnassigned"
	EventCapacityChanged EventType = "CapacityChanged"
	EventAssetsAdded     EventType = "AssetsAdded"
	EventAssetsRemoved   EventType = "AssetsRemoved"
)

// Event is the record handed to audit sinks. From and To hold states,
// owners or capacities depending on Type.
type Event struct {
	ID        string
	Type      EventType
	EntityID  string
	Actor     string
	From      string
	To        string
	MemberID  string
	MemberIDs []string
	Reason    string
	Timestamp time.Time
}

func NewEvent(t EventType, entityID, actor string, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		EntityID:  entityID,
		Actor:     actor,
		Timestamp: at,
	}
}

type NotificationKind string

const (
	NotifyAssetStatus  NotificationKind = "asset_status"
	NotifyAssetOwner   NotificationKind = "asset_owner"
	NotifySeatAssigned NotificationKind = "seat_assigned"
	NotifySeatRevoked  NotificationKind = "seat_revoked"
)

type Notification struct {
	Kind     NotificationKind
	Subject  string
	Message  string
	EntityID string
}
