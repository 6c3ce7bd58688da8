package resources

import (
	"errors"
	"fmt"
)

const epsilon = 1e-9

// ErrInsufficient is returned when a removal asks for more than a bucket holds.
// It always indicates a caller that skipped a feasibility check.
var ErrInsufficient = errors.New("insufficient resources")

type Entry struct {
	Quantity Quantity
	Marker   Marker
}

// Bucket is an ordered multiset of resource quantities, partitioned by marker.
// Entries with the same kind and marker are always coalesced and amounts are
// never negative.
type Bucket struct {
	entries []Entry
}

// NewBucket returns a bucket holding qs unmarked.
func NewBucket(qs ...Quantity) *Bucket {
	b := &Bucket{}
	for _, q := range qs {
		b.Add(q, Unmarked)
	}
	return b
}

func (b *Bucket) find(k *Kind, m Marker) int {
	for i := range b.entries {
		if b.entries[i].Marker == m && sameKind(b.entries[i].Quantity.Kind, k) {
			return i
		}
	}
	return -1
}

func matches(entry, want Marker) bool { return want == All || entry == want }

// Add puts q into the m slice.
func (b *Bucket) Add(q Quantity, m Marker) {
	if m == All {
		panic("resources: Add with All marker")
	}
	if q.Kind == nil {
		panic("resources: Add with nil kind")
	}
	if q.Amount < 0 {
		panic(fmt.Sprintf("resources: Add negative amount %s", q))
	}
	if q.Amount <= epsilon {
		return
	}
	if i := b.find(q.Kind, m); i >= 0 {
		b.entries[i].Quantity.Amount += q.Amount
		return
	}
	b.entries = append(b.entries, Entry{Quantity: q, Marker: m})
}

// Remove takes q out of the m slice.
func (b *Bucket) Remove(q Quantity, m Marker) error {
	if m == All {
		return fmt.Errorf("remove %s: All marker is read-only", q)
	}
	if q.Amount <= epsilon {
		return nil
	}
	i := b.find(q.Kind, m)
	have := 0.0
	if i >= 0 {
		have = b.entries[i].Quantity.Amount
	}
	if have+epsilon < q.Amount {
		return fmt.Errorf("remove %s from %s slice (have %g): %w", q, m, have, ErrInsufficient)
	}
	b.entries[i].Quantity.Amount -= q.Amount
	b.compact()
	return nil
}

// RemoveMarked removes and returns the whole m slice. With All the bucket is
// emptied.
func (b *Bucket) RemoveMarked(m Marker) []Quantity {
	var out []Quantity
	kept := b.entries[:0]
	for _, e := range b.entries {
		if matches(e.Marker, m) {
			out = appendSum(out, e.Quantity)
			continue
		}
		kept = append(kept, e)
	}
	b.entries = kept
	return out
}

// Amount returns how much of k sits in the m slice.
func (b *Bucket) Amount(k *Kind, m Marker) float64 {
	total := 0.0
	for _, e := range b.entries {
		if matches(e.Marker, m) && sameKind(e.Quantity.Kind, k) {
			total += e.Quantity.Amount
		}
	}
	return total
}

// GetQuantities returns the m slice summed per kind, in first-seen order.
func (b *Bucket) GetQuantities(m Marker) []Quantity {
	var out []Quantity
	for _, e := range b.entries {
		if matches(e.Marker, m) {
			out = appendSum(out, e.Quantity)
		}
	}
	return out
}

// Contains reports whether the m slice of b holds at least everything in the
// otherM slice of other.
func (b *Bucket) Contains(m Marker, other *Bucket, otherM Marker) bool {
	for _, q := range other.GetQuantities(otherM) {
		if b.Amount(q.Kind, m)+epsilon < q.Amount {
			return false
		}
	}
	return true
}

// Missing returns what the m slice of b lacks to contain the otherM slice of other.
func (b *Bucket) Missing(m Marker, other *Bucket, otherM Marker) *Bucket {
	out := &Bucket{}
	for _, q := range other.GetQuantities(otherM) {
		if short := q.Amount - b.Amount(q.Kind, m); short > epsilon {
			out.Add(Quantity{Kind: q.Kind, Amount: short}, Unmarked)
		}
	}
	return out
}

func (b *Bucket) GetWeight(m Marker) float64 {
	w := 0.0
	for _, e := range b.entries {
		if matches(e.Marker, m) {
			w += e.Quantity.Weight()
		}
	}
	return w
}

func (b *Bucket) IsEmpty(m Marker) bool {
	for _, e := range b.entries {
		if matches(e.Marker, m) {
			return false
		}
	}
	return true
}

// MoveTo moves the whole srcM slice of b into the dstM slice of dst. dst may
// be b itself.
func (b *Bucket) MoveTo(srcM Marker, dst *Bucket, dstM Marker) []Quantity {
	if dstM == All {
		panic("resources: MoveTo with All destination marker")
	}
	moved := b.RemoveMarked(srcM)
	for _, q := range moved {
		dst.Add(q, dstM)
	}
	return moved
}

// Unmark hands the m slice back to the bucket's unmarked pool.
func (b *Bucket) Unmark(m Marker) {
	if m == Unmarked || m == All {
		return
	}
	b.MoveTo(m, b, Unmarked)
}

// Markers lists the distinct reservation markers present, in entry order.
func (b *Bucket) Markers() []Marker {
	var out []Marker
	seen := map[Marker]bool{}
	for _, e := range b.entries {
		if e.Marker == Unmarked || seen[e.Marker] {
			continue
		}
		seen[e.Marker] = true
		out = append(out, e.Marker)
	}
	return out
}

func (b *Bucket) Clone() *Bucket {
	return &Bucket{entries: append([]Entry(nil), b.entries...)}
}

// Entries returns a copy of the raw entries, for snapshots and digests.
func (b *Bucket) Entries() []Entry { return append([]Entry(nil), b.entries...) }

// Restore replaces the contents with entries, re-establishing the
// coalescing invariant.
func (b *Bucket) Restore(entries []Entry) {
	b.entries = nil
	for _, e := range entries {
		b.Add(e.Quantity, e.Marker)
	}
}

func (b *Bucket) move(k *Kind, amount float64, from, to Marker) {
	i := b.find(k, from)
	if i < 0 || b.entries[i].Quantity.Amount+epsilon < amount {
		panic(fmt.Sprintf("resources: internal move of %g %s from %s exceeds slice", amount, k.Name, from))
	}
	b.entries[i].Quantity.Amount -= amount
	b.Add(Quantity{Kind: k, Amount: amount}, to)
	b.compact()
}

func (b *Bucket) compact() {
	kept := b.entries[:0]
	for _, e := range b.entries {
		if e.Quantity.Amount > epsilon {
			kept = append(kept, e)
		}
	}
	b.entries = kept
}

func appendSum(qs []Quantity, q Quantity) []Quantity {
	for i := range qs {
		if sameKind(qs[i].Kind, q.Kind) {
			qs[i].Amount += q.Amount
			return qs
		}
	}
	return append(qs, q)
}
