// Package cache holds generation-guarded value slots and a small LRU. A
// slot accepts a response only when its request generation is newer than
// the last one committed, so a slow response can never overwrite a faster,
// later one.
//
// Slots are not safe for concurrent use; the owner serializes access.
package cache

// Generation orders requests issued against a single slot.
type Generation struct {
	issued    uint64
	committed uint64
}

// Next issues a new request generation.
func (g *Generation) Next() uint64 {
	g.issued++
	return g.issued
}

// Accept commits gen if it is newer than the last committed generation.
func (g *Generation) Accept(gen uint64) bool {
	if gen <= g.committed || gen > g.issued {
		return false
	}
	g.committed = gen
	return true
}

// Invalidate drops every request issued so far.
func (g *Generation) Invalidate() {
	g.committed = g.issued
}

// Issued returns the latest issued generation.
func (g *Generation) Issued() uint64 {
	return g.issued
}

// Committed returns the latest committed generation.
func (g *Generation) Committed() uint64 {
	return g.committed
}

// Slot holds the last accepted value for one scope.
type Slot[T any] struct {
	Value T    `json:"value"`
	Valid bool `json:"valid"`

	gen Generation
}

// Get returns the cached value and whether one has been committed.
func (s *Slot[T]) Get() (T, bool) {
	return s.Value, s.Valid
}

// Begin issues a generation for a new fetch into this slot.
func (s *Slot[T]) Begin() uint64 {
	return s.gen.Next()
}

// Commit stores v if gen is still current. Stale generations are dropped
// and reported with false.
func (s *Slot[T]) Commit(gen uint64, v T) bool {
	if !s.gen.Accept(gen) {
		return false
	}
	s.Value = v
	s.Valid = true
	return true
}

// Fresh reports whether gen would still be accepted by Commit.
func (s *Slot[T]) Fresh(gen uint64) bool {
	return gen > s.gen.committed && gen <= s.gen.issued
}

// Reset clears the value and invalidates in-flight fetches.
func (s *Slot[T]) Reset() {
	var zero T
	s.Value = zero
	s.Valid = false
	s.gen.Invalidate()
}

// Generation exposes the slot's counters.
func (s *Slot[T]) Generation() *Generation {
	return &s.gen
}
