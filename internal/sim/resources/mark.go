package resources

import (
	"fmt"
	"math"
)

// Unlimited is the weight budget that never constrains MarkResources.
var Unlimited = math.Inf(1)

// MarkResources reserves resources for one plan.
//
// Sources are visited in the order given (callers sort them nearest first).
// Every source entry in the sourceMarker slice whose kind is still wanted by
// desired is re-tagged in place from sourceMarker to marker, taking
// min(available, still wanted, weight budget left / unit weight). feedback,
// when non-nil, is told the source index and quantity of every allocation.
//
// Reservation stops as soon as desired is satisfied or the sources run out.
// A partial reservation is not rolled back; the returned bucket holds the
// total reserved so callers can decide whether it is good enough.
func MarkResources(marker Marker, sources []*Bucket, sourceMarker Marker, maxWeight float64, desired *Bucket, feedback func(source int, q Quantity)) *Bucket {
	if marker == Unmarked || marker == All || marker == sourceMarker {
		panic(fmt.Sprintf("resources: MarkResources into %s", marker))
	}
	if sourceMarker == All {
		panic("resources: MarkResources cannot take from the All marker")
	}
	reserved := &Bucket{}
	remaining := desired.GetQuantities(All)
	budget := maxWeight
	if budget < 0 {
		budget = 0
	}

	for i, src := range sources {
		if satisfied(remaining) {
			break
		}
		if src == nil {
			continue
		}
		// Entries are re-tagged as we go; iterate over a copy.
		for _, e := range src.Entries() {
			if e.Marker != sourceMarker {
				continue
			}
			k := e.Quantity.Kind
			idx := indexOfKind(remaining, k)
			if idx < 0 || remaining[idx].Amount <= epsilon {
				continue
			}
			take := math.Min(e.Quantity.Amount, remaining[idx].Amount)
			if k.Weight > 0 {
				take = math.Min(take, budget/k.Weight)
			}
			if take <= epsilon {
				continue
			}
			src.move(k, take, sourceMarker, marker)
			remaining[idx].Amount -= take
			if k.Weight > 0 {
				budget -= take * k.Weight
			}
			q := Quantity{Kind: k, Amount: take}
			reserved.Add(q, Unmarked)
			if feedback != nil {
				feedback(i, q)
			}
			if satisfied(remaining) {
				return reserved
			}
		}
	}
	return reserved
}

func indexOfKind(qs []Quantity, k *Kind) int {
	for i := range qs {
		if sameKind(qs[i].Kind, k) {
			return i
		}
	}
	return -1
}

func satisfied(remaining []Quantity) bool {
	for _, q := range remaining {
		if q.Amount > epsilon {
			return false
		}
	}
	return true
}
