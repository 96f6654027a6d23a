package domain

import "time"

type License struct {
	ID            string
	Name          string
	TotalSeats    int
	AssignedUsers IDSet
	Version       int64 // optimistic locking
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewLicense(id, name string, totalSeats int, now time.Time) (License, error) {
	if id == "" {
		return License{}, NewValidationError("id", "license id is required")
	}
	if totalSeats < 0 {
		return License{}, NewValidationError("total_seats", "must not be negative")
	}
	return License{
		ID:            id,
		Name:          name,
		TotalSeats:    totalSeats,
		AssignedUsers: IDSet{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (l License) EntityID() string     { return l.ID }
func (l License) EntityVersion() int64 { return l.Version }

func (l License) WithVersion(version int64) License {
	l.Version = version
	return l
}

func (l License) SeatCapacity() int  { return l.TotalSeats }
func (l License) SeatMembers() IDSet { return l.AssignedUsers }

func (l License) WithSeatMembers(members IDSet) License {
	l.AssignedUsers = members
	l.UpdatedAt = time.Now()
	return l
}

func (l License) WithSeatCapacity(capacity int) License {
	l.TotalSeats = capacity
	l.UpdatedAt = time.Now()
	return l
}
