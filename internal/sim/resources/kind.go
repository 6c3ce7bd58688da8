package resources

import (
	"fmt"
	"math"
)

// Kind is an immutable resource template. Kinds are compared by name, so two
// catalogs loaded from the same files interoperate.
type Kind struct {
	Name      string
	Weight    float64 // per unit
	StackSize int
	Groups    []string
	Nutrition float64 // food value per unit, 0 for non-food
}

func (k *Kind) InGroup(group string) bool {
	if k == nil {
		return false
	}
	for _, g := range k.Groups {
		if g == group {
			return true
		}
	}
	return false
}

func sameKind(a, b *Kind) bool {
	if a == b {
		return true
	}
	return a != nil && b != nil && a.Name == b.Name
}

type Quantity struct {
	Kind   *Kind
	Amount float64
}

func Q(k *Kind, amount float64) Quantity { return Quantity{Kind: k, Amount: amount} }

func (q Quantity) Weight() float64 {
	if q.Kind == nil {
		return 0
	}
	return q.Kind.Weight * q.Amount
}

func (q Quantity) String() string {
	name := "?"
	if q.Kind != nil {
		name = q.Kind.Name
	}
	return fmt.Sprintf("%g %s", q.Amount, name)
}

// Marker tags a slice of a bucket as reserved by one in-flight plan.
type Marker uint64

const (
	// Unmarked resources are owned outright by their bucket.
	Unmarked Marker = 0
	// All matches every marker. It is only valid for reads.
	All Marker = math.MaxUint64
)

func (m Marker) String() string {
	switch m {
	case Unmarked:
		return "unmarked"
	case All:
		return "all"
	}
	return fmt.Sprintf("M%d", uint64(m))
}

// MarkerSource mints process-unique markers. It must live on the simulation
// context, never in a package variable, so independent simulations do not
// share a counter.
type MarkerSource struct {
	last uint64
}

func (s *MarkerSource) Next() Marker {
	s.last++
	if Marker(s.last) == All {
		panic("resources: marker space exhausted")
	}
	return Marker(s.last)
}

// Last returns the most recently minted marker value (0 when none).
func (s *MarkerSource) Last() uint64 { return s.last }

// Restore resumes minting after last; used by snapshot import.
func (s *MarkerSource) Restore(last uint64) {
	if last > s.last {
		s.last = last
	}
}
