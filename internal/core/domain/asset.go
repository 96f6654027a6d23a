package domain

import "time"

type Asset struct {
	ID        string
	Status    AssetStatus
	OwnerID   string
	GroupIDs  IDSet
	Deleted   bool
	Version   int64 // optimistic locking
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewAsset(id, ownerID string, now time.Time) Asset {
	return Asset{
		ID:        id,
		Status:    StatusExpected,
		OwnerID:   ownerID,
		GroupIDs:  IDSet{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (a Asset) EntityID() string     { return a.ID }
func (a Asset) EntityVersion() int64 { return a.Version }

func (a Asset) WithVersion(version int64) Asset {
	a.Version = version
	return a
}

func (a Asset) HasOwner() bool {
	return a.OwnerID != ""
}
