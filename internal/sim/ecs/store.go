// Package ecs is the component storage the simulation is built on.
//
// Entities are plain integer handles; components are stored per type and are
// looked up through the handle, so nothing in the simulation holds a pointer
// to another entity. Iteration visits entities in ascending handle order,
// which is the stable "storage order" every system relies on.
package ecs

import (
	"fmt"
	"math/bits"
)

// Entity is a stable handle into a Store; the 0 value is the nil handle.
// Handles are never reused within a Store.
type Entity uint32

const Nil Entity = 0

// ComponentType is a bit set of component kinds. A single-bit value names
// one component; a multi-bit value is an archetype mask.
type ComponentType uint64

const NoType ComponentType = 0

func (t ComponentType) String() string { return fmt.Sprintf("<%016x>", uint64(t)) }

// All returns true only if all of the masked type bits are set. If the mask is
// NoType, always returns false.
func (t ComponentType) All(mask ComponentType) bool { return mask != NoType && t&mask == mask }

// Any returns true only if at least one of the masked type bits is set.
func (t ComponentType) Any(mask ComponentType) bool { return t&mask != 0 }

type Store struct {
	types []ComponentType
	alive []bool
	data  map[ComponentType]map[Entity]any
	live  int
}

func NewStore() *Store {
	return &Store{data: map[ComponentType]map[Entity]any{}}
}

// Create allocates a new entity with no components.
func (s *Store) Create() Entity {
	s.types = append(s.types, NoType)
	s.alive = append(s.alive, true)
	s.live++
	return Entity(len(s.types))
}

// Restore makes e alive again with no components, growing the store as
// needed. It is used when importing snapshots so handles survive a reload.
func (s *Store) Restore(e Entity) {
	if e == Nil {
		return
	}
	for len(s.types) < int(e) {
		s.types = append(s.types, NoType)
		s.alive = append(s.alive, false)
	}
	if !s.alive[e-1] {
		s.alive[e-1] = true
		s.live++
	}
}

// Destroy removes every component of e and retires the handle.
func (s *Store) Destroy(e Entity) {
	if !s.Alive(e) {
		return
	}
	t := s.types[e-1]
	for t != NoType {
		bit := ComponentType(1) << uint(bits.TrailingZeros64(uint64(t)))
		delete(s.data[bit], e)
		t &^= bit
	}
	s.types[e-1] = NoType
	s.alive[e-1] = false
	s.live--
}

func (s *Store) Alive(e Entity) bool {
	return e != Nil && int(e) <= len(s.alive) && s.alive[e-1]
}

func (s *Store) Type(e Entity) ComponentType {
	if !s.Alive(e) {
		return NoType
	}
	return s.types[e-1]
}

// Len counts live entities.
func (s *Store) Len() int { return s.live }

// Cap returns the highest handle ever handed out.
func (s *Store) Cap() int { return len(s.types) }

// Add attaches (or replaces) the component v of single-bit type t on e.
func (s *Store) Add(e Entity, t ComponentType, v any) {
	if bits.OnesCount64(uint64(t)) != 1 {
		panic(fmt.Sprintf("ecs: Add with non-singular component type %v", t))
	}
	if !s.Alive(e) {
		panic(fmt.Sprintf("ecs: Add on dead entity %d", e))
	}
	m := s.data[t]
	if m == nil {
		m = map[Entity]any{}
		s.data[t] = m
	}
	m[e] = v
	s.types[e-1] |= t
}

func (s *Store) Remove(e Entity, t ComponentType) {
	if !s.Alive(e) {
		return
	}
	delete(s.data[t], e)
	s.types[e-1] &^= t
}

// Has reports whether e carries every component in mask.
func (s *Store) Has(e Entity, mask ComponentType) bool {
	return s.Type(e).All(mask)
}

// Component returns the raw component value, or nil.
func (s *Store) Component(e Entity, t ComponentType) any {
	if !s.Has(e, t) {
		return nil
	}
	return s.data[t][e]
}

// Each calls fn for every live entity carrying all of mask, in ascending
// handle order. Returning false from fn stops the iteration.
//
// Entities created during iteration are not visited; entities destroyed
// during iteration are skipped once reached.
func (s *Store) Each(mask ComponentType, fn func(Entity) bool) {
	n := len(s.types)
	for i := 0; i < n; i++ {
		if !s.alive[i] || !s.types[i].All(mask) {
			continue
		}
		if !fn(Entity(i + 1)) {
			return
		}
	}
}

// Query collects the handles Each would visit.
func (s *Store) Query(mask ComponentType) []Entity {
	var out []Entity
	s.Each(mask, func(e Entity) bool {
		out = append(out, e)
		return true
	})
	return out
}

// Count counts entities carrying all of mask.
func (s *Store) Count(mask ComponentType) int {
	n := 0
	s.Each(mask, func(Entity) bool {
		n++
		return true
	})
	return n
}

// Get returns the component of type t on e as *T, or nil when e does not
// carry it.
func Get[T any](s *Store, e Entity, t ComponentType) *T {
	v, _ := s.Component(e, t).(*T)
	return v
}
