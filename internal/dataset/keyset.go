package dataset

import "sort"

// KeySet is an immutable set of record keys. Union returns a new set, so a
// caller holding an older snapshot never sees it grow.
type KeySet struct {
	keys map[int]struct{}
}

// NewKeySet builds a set from keys.
func NewKeySet(keys ...int) KeySet {
	return KeySet{}.Union(keys...)
}

// Has reports whether key is in the set.
func (s KeySet) Has(key int) bool {
	_, ok := s.keys[key]
	return ok
}

// Len reports the set size.
func (s KeySet) Len() int {
	return len(s.keys)
}

// Union returns a new set holding the receiver's keys plus keys.
func (s KeySet) Union(keys ...int) KeySet {
	next := make(map[int]struct{}, len(s.keys)+len(keys))
	for k := range s.keys {
		next[k] = struct{}{}
	}
	for _, k := range keys {
		next[k] = struct{}{}
	}
	return KeySet{keys: next}
}

// Sorted returns the keys in ascending order.
func (s KeySet) Sorted() []int {
	out := make([]int, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
