package domain

// Entity is implemented by every persisted record. Version is owned by
// the store: CompareAndSwap succeeds only while the stored version still
// equals the version of the value the caller read.
type Entity[T any] interface {
	EntityID() string
	EntityVersion() int64
	WithVersion(version int64) T
}

// Pool is a bounded membership set: members may be added only while
// fewer than SeatCapacity are present.
type Pool[P any] interface {
	Entity[P]
	SeatCapacity() int
	SeatMembers() IDSet
	WithSeatMembers(members IDSet) P
	WithSeatCapacity(capacity int) P
}

type Utilization struct {
	PoolID    string
	Used      int
	Capacity  int
	Available int
}

// UtilizationOf reports the pool's usage. Available is negative when
// capacity was reduced below the number of assigned members.
func UtilizationOf[P Pool[P]](p P) Utilization {
	used := p.SeatMembers().Len()
	capacity := p.SeatCapacity()
	return Utilization{
		PoolID:    p.EntityID(),
		Used:      used,
		Capacity:  capacity,
		Available: capacity - used,
	}
}

func (u Utilization) OverCommitted() bool {
	return u.Available < 0
}
