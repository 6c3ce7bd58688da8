package resources

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarkResourcesRoundTrip(t *testing.T) {
	b := NewBucket(Q(wood, 10))
	var markers MarkerSource
	m := markers.Next()

	reserved := MarkResources(m, []*Bucket{b}, Unmarked, Unlimited, NewBucket(Q(wood, 6)), nil)
	require.InDelta(t, 6, reserved.Amount(wood, Unmarked), 1e-9)
	require.InDelta(t, 6, b.Amount(wood, m), 1e-9)
	require.InDelta(t, 4, b.Amount(wood, Unmarked), 1e-9)

	released := b.RemoveMarked(m)
	require.Len(t, released, 1)
	b.Add(Q(wood, 6), Unmarked)
	require.Len(t, b.Entries(), 1)
	require.InDelta(t, 10, b.Amount(wood, Unmarked), 1e-9)
	require.True(t, b.IsEmpty(m))
}

func TestMarkResourcesGreedyInSourceOrder(t *testing.T) {
	near := NewBucket(Q(wood, 2))
	far := NewBucket(Q(wood, 10), Q(stone, 3))
	var calls []int
	reserved := MarkResources(Marker(7), []*Bucket{near, far}, Unmarked, Unlimited,
		NewBucket(Q(wood, 5), Q(stone, 1)),
		func(i int, q Quantity) { calls = append(calls, i) })

	require.Equal(t, []int{0, 1, 1}, calls)
	require.InDelta(t, 5, reserved.Amount(wood, Unmarked), 1e-9)
	require.InDelta(t, 1, reserved.Amount(stone, Unmarked), 1e-9)
	require.InDelta(t, 2, near.Amount(wood, Marker(7)), 1e-9)
	require.InDelta(t, 3, far.Amount(wood, Marker(7)), 1e-9)
	require.InDelta(t, 7, far.Amount(wood, Unmarked), 1e-9)
}

func TestMarkResourcesStopsWhenSatisfied(t *testing.T) {
	a := NewBucket(Q(wood, 5))
	b := NewBucket(Q(wood, 5))
	MarkResources(Marker(2), []*Bucket{a, b}, Unmarked, Unlimited, NewBucket(Q(wood, 5)), nil)
	require.True(t, b.IsEmpty(Marker(2)), "second source must stay untouched")
}

func TestMarkResourcesWeightBudgetLeavesPartial(t *testing.T) {
	src := NewBucket(Q(stone, 10))
	reserved := MarkResources(Marker(3), []*Bucket{src}, Unmarked, 12, NewBucket(Q(stone, 10)), nil)
	// 12 weight / 5 per unit.
	require.InDelta(t, 2.4, reserved.Amount(stone, Unmarked), 1e-9)
	require.InDelta(t, 7.6, src.Amount(stone, Unmarked), 1e-9)
}

func TestMarkResourcesOnlyTakesSourceMarker(t *testing.T) {
	src := NewBucket(Q(wood, 1))
	src.Add(Q(wood, 9), Marker(1))
	reserved := MarkResources(Marker(2), []*Bucket{src}, Unmarked, Unlimited, NewBucket(Q(wood, 5)), nil)
	require.InDelta(t, 1, reserved.Amount(wood, Unmarked), 1e-9)
	require.InDelta(t, 9, src.Amount(wood, Marker(1)), 1e-9, "other plans' slices are untouchable")
}

// Whatever sequence of reservations runs against a pool, no marker ever
// receives more than was unmarked at the time, and nothing is created or lost.
func TestMarkResourcesNeverOverReserves(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pools := []*Bucket{NewBucket(Q(wood, 10), Q(stone, 4)), NewBucket(Q(wood, 3))}
	var markers MarkerSource
	var live []Marker

	for i := 0; i < 200; i++ {
		if rng.Intn(4) == 0 && len(live) > 0 {
			j := rng.Intn(len(live))
			for _, p := range pools {
				p.Unmark(live[j])
			}
			live = append(live[:j], live[j+1:]...)
		}
		beforeWood := pools[0].Amount(wood, Unmarked) + pools[1].Amount(wood, Unmarked)
		beforeStone := pools[0].Amount(stone, Unmarked)

		m := markers.Next()
		want := NewBucket(Q(wood, float64(rng.Intn(6))), Q(stone, float64(rng.Intn(3))))
		reserved := MarkResources(m, pools, Unmarked, float64(rng.Intn(30)), want, nil)
		live = append(live, m)

		require.LessOrEqual(t, reserved.Amount(wood, Unmarked), beforeWood+1e-9)
		require.LessOrEqual(t, reserved.Amount(stone, Unmarked), beforeStone+1e-9)

		totalWood := pools[0].Amount(wood, All) + pools[1].Amount(wood, All)
		require.InDelta(t, 13, totalWood, 1e-6)
		require.InDelta(t, 4, pools[0].Amount(stone, All), 1e-6)
		for _, p := range pools {
			for _, e := range p.Entries() {
				require.GreaterOrEqual(t, e.Quantity.Amount, 0.0)
			}
		}
	}
}
