package domain

import "sort"

// IDSet is a sorted, duplicate-free list of identifiers. Methods never
// modify the receiver; they return a new set.
type IDSet []string

func NewIDSet(ids ...string) IDSet {
	if len(ids) == 0 {
		return IDSet{}
	}
	out := make(IDSet, 0, len(ids))
	out = append(out, ids...)
	sort.Strings(out)

	n := 0
	for i, id := range out {
		if i > 0 && id == out[n-1] {
			continue
		}
		out[n] = id
		n++
	}
	return out[:n]
}

func (s IDSet) Len() int { return len(s) }

func (s IDSet) Contains(id string) bool {
	i := sort.SearchStrings(s, id)
	return i < len(s) && s[i] == id
}

func (s IDSet) Add(id string) IDSet {
	return s.Union(IDSet{id})
}

func (s IDSet) Remove(id string) IDSet {
	return s.Difference(IDSet{id})
}

// Union returns s ∪ other. other need not be normalized.
func (s IDSet) Union(other IDSet) IDSet {
	merged := make([]string, 0, len(s)+len(other))
	merged = append(merged, s...)
	merged = append(merged, other...)
	return NewIDSet(merged...)
}

// Difference returns the members of s not present in other.
func (s IDSet) Difference(other IDSet) IDSet {
	drop := NewIDSet(other...)
	out := make(IDSet, 0, len(s))
	for _, id := range s {
		if !drop.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

// Missing returns the ids from candidates that are not already members,
// normalized.
func (s IDSet) Missing(candidates IDSet) IDSet {
	return NewIDSet(candidates...).Difference(s)
}

// Present returns the ids from candidates that are members.
func (s IDSet) Present(candidates IDSet) IDSet {
	out := IDSet{}
	for _, id := range NewIDSet(candidates...) {
		if s.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	copy(out, s)
	return out
}
