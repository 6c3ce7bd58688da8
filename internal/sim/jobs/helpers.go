package jobs

import (
	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/geom"
	"villagesim.ai/internal/sim/model"
	"villagesim.ai/internal/sim/resources"
	"villagesim.ai/internal/sim/simctx"
)

type finder struct {
	ctx   *simctx.Context
	agent ecs.Entity
	here  geom.Cell
	pos   geom.Vec2
}

func newFinder(ctx *simctx.Context, agent ecs.Entity) (finder, bool) {
	pos, ok := model.Pos(ctx.Store, agent)
	if !ok {
		return finder{}, false
	}
	return finder{ctx: ctx, agent: agent, here: pos.Cell(), pos: pos}, true
}

func (f finder) reachable(e ecs.Entity) bool {
	c, ok := model.CellOf(f.ctx.Store, e)
	return ok && f.ctx.Reachable(f.here, c)
}

// nearest lists reachable entities matching mask and keep, nearest first.
func (f finder) nearest(mask ecs.ComponentType, keep func(ecs.Entity) bool) []ecs.Entity {
	return model.Nearest(f.ctx.Store, mask, f.pos, func(e ecs.Entity) bool {
		return (keep == nil || keep(e)) && f.reachable(e)
	})
}

// storages lists built storage buildings, nearest to from first.
func storages(ctx *simctx.Context, from geom.Vec2) []ecs.Entity {
	return model.Nearest(ctx.Store, model.AStorage, from, func(e ecs.Entity) bool {
		b := model.BuildingOf(ctx.Store, e)
		return b.Storage && b.Built
	})
}

// supplySources lists the inventories goods may be reserved from: built
// storages and non-waste ground piles, nearest to the agent first.
func (f finder) supplySources() []ecs.Entity {
	s := f.ctx.Store
	return model.Nearest(s, model.CInventory, f.pos, func(e ecs.Entity) bool {
		switch {
		case s.Has(e, model.CBuilding):
			b := model.BuildingOf(s, e)
			if !b.Storage || !b.Built {
				return false
			}
		case s.Has(e, model.CPile):
			if model.PileOf(s, e).Waste {
				return false
			}
		default:
			return false
		}
		return f.reachable(e)
	})
}

// reserve marks desired across sources under a fresh marker and returns the
// marker, what was reserved and the sources that contributed, in order.
// Calling undo puts every source bucket back exactly as it was, entry order
// included.
func reserve(ctx *simctx.Context, sources []ecs.Entity, maxWeight float64, desired *resources.Bucket) (m resources.Marker, got *resources.Bucket, used []ecs.Entity, undo func()) {
	buckets := make([]*resources.Bucket, len(sources))
	saved := make([][]resources.Entry, len(sources))
	for i, e := range sources {
		buckets[i] = model.Inventory(ctx.Store, e)
		if buckets[i] != nil {
			saved[i] = buckets[i].Entries()
		}
	}
	m = ctx.Markers.Next()
	got = resources.MarkResources(m, buckets, resources.Unmarked, maxWeight, desired, func(i int, _ resources.Quantity) {
		if len(used) == 0 || used[len(used)-1] != sources[i] {
			used = append(used, sources[i])
		}
	})
	undo = func() {
		for i, b := range buckets {
			if b != nil {
				b.Restore(saved[i])
			}
		}
	}
	return m, got, used, undo
}

// carryLeft is how much more weight the agent can pick up.
func carryLeft(ctx *simctx.Context, agent ecs.Entity) float64 {
	v := model.VillagerOf(ctx.Store, agent)
	inv := model.Inventory(ctx.Store, agent)
	if v == nil || inv == nil {
		return 0
	}
	return v.Traits.CarryWeight - inv.GetWeight(resources.All)
}

func without(es []ecs.Entity, drop ecs.Entity) []ecs.Entity {
	out := es[:0:0]
	for _, e := range es {
		if e != drop {
			out = append(out, e)
		}
	}
	return out
}
