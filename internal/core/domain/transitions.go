package domain

import "fmt"

// Effect is a side effect an edge requires when it is taken.
type Effect string

const (
	// EffectRequireReason rejects the transition unless a reason is given.
	// No default edge carries it; enable it through lifecycle.edges.
	EffectRequireReason Effect = "require_reason"
	// EffectReleaseOwner clears the owner in the same write as the status.
	EffectReleaseOwner Effect = "release_owner"
	// EffectNotifyOwner notifies the current owner after the write commits.
	EffectNotifyOwner Effect = "notify_owner"
)

func (e Effect) valid() bool {
	switch e {
	case EffectRequireReason, EffectReleaseOwner, EffectNotifyOwner:
		return true
	}
	return false
}

type Edge struct {
	From    AssetStatus
	To      AssetStatus
	Effects []Effect
}

func (e Edge) Has(effect Effect) bool {
	for _, candidate := range e.Effects {
		if candidate == effect {
			return true
		}
	}
	return false
}

var defaultEdges = []Edge{
	{From: StatusExpected, To: StatusReceived},
	{From: StatusReceived, To: StatusStaged},
	{From: StatusStaged, To: StatusInService, Effects: []Effect{EffectNotifyOwner}},
	{From: StatusInService, To: StatusRepair, Effects: []Effect{EffectNotifyOwner}},
	{From: StatusRepair, To: StatusInService, Effects: []Effect{EffectNotifyOwner}},
	{From: StatusRepair, To: StatusRetired, Effects: []Effect{EffectNotifyOwner, EffectReleaseOwner}},
	{From: StatusInService, To: StatusRetired, Effects: []Effect{EffectNotifyOwner, EffectReleaseOwner}},
	{From: StatusRetired, To: StatusDisposed},
}

// TransitionTable is the single source of legal lifecycle edges. Both
// the mutator and ValidNextStates read from the same instance.
type TransitionTable struct {
	edges []Edge
	from  map[AssetStatus][]Edge
}

func DefaultTransitionTable() *TransitionTable {
	t, err := NewTransitionTable(defaultEdges)
	if err != nil {
		panic("domain: default transition table is invalid: " + err.Error())
	}
	return t
}

// NewTransitionTable validates edges and indexes them by source state.
// Self edges, edges out of a terminal state, duplicates and unknown
// states or effects are rejected.
func NewTransitionTable(edges []Edge) (*TransitionTable, error) {
	t := &TransitionTable{
		edges: make([]Edge, 0, len(edges)),
		from:  make(map[AssetStatus][]Edge),
	}
	for _, e := range edges {
		if !e.From.Valid() {
			return nil, fmt.Errorf("edge %s->%s: unknown source state", e.From, e.To)
		}
		if !e.To.Valid() {
			return nil, fmt.Errorf("edge %s->%s: unknown target state", e.From, e.To)
		}
		if e.From == e.To {
			return nil, fmt.Errorf("edge %s->%s: self transitions are implicit", e.From, e.To)
		}
		if e.From.Terminal() {
			return nil, fmt.Errorf("edge %s->%s: %s is terminal", e.From, e.To, e.From)
		}
		for _, effect := range e.Effects {
			if !effect.valid() {
				return nil, fmt.Errorf("edge %s->%s: unknown effect %q", e.From, e.To, effect)
			}
		}
		if _, dup := t.Lookup(e.From, e.To); dup {
			return nil, fmt.Errorf("edge %s->%s: declared twice", e.From, e.To)
		}

		edge := Edge{From: e.From, To: e.To, Effects: append([]Effect(nil), e.Effects...)}
		t.edges = append(t.edges, edge)
		t.from[e.From] = append(t.from[e.From], edge)
	}
	return t, nil
}

func (t *TransitionTable) Lookup(from, to AssetStatus) (Edge, bool) {
	for _, e := range t.from[from] {
		if e.To == to {
			return e, true
		}
	}
	return Edge{}, false
}

func (t *TransitionTable) CanTransition(from, to AssetStatus) bool {
	_, ok := t.Lookup(from, to)
	return ok
}

// Next returns the targets reachable from the given state in declaration
// order. A terminal or unknown state yields an empty slice.
func (t *TransitionTable) Next(from AssetStatus) []AssetStatus {
	out := make([]AssetStatus, 0, len(t.from[from]))
	for _, e := range t.from[from] {
		out = append(out, e.To)
	}
	return out
}

func (t *TransitionTable) Edges() []Edge {
	out := make([]Edge, len(t.edges))
	copy(out, t.edges)
	return out
}
