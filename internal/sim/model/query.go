package model

import (
	"sort"

	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/geom"
	"villagesim.ai/internal/sim/resources"
)

func LocationOf(s *ecs.Store, e ecs.Entity) *Location {
	return ecs.Get[Location](s, e, CLocation)
}

// Pos returns the position of e.
func Pos(s *ecs.Store, e ecs.Entity) (geom.Vec2, bool) {
	l := LocationOf(s, e)
	if l == nil {
		return geom.Vec2{}, false
	}
	return l.Pos, true
}

func CellOf(s *ecs.Store, e ecs.Entity) (geom.Cell, bool) {
	p, ok := Pos(s, e)
	return p.Cell(), ok
}

func Inventory(s *ecs.Store, e ecs.Entity) *resources.Bucket {
	return ecs.Get[resources.Bucket](s, e, CInventory)
}

func VillagerOf(s *ecs.Store, e ecs.Entity) *Villager {
	return ecs.Get[Villager](s, e, CVillager)
}

func BuildingOf(s *ecs.Store, e ecs.Entity) *Building {
	return ecs.Get[Building](s, e, CBuilding)
}

func WorkableOf(s *ecs.Store, e ecs.Entity) *Workable {
	return ecs.Get[Workable](s, e, CWorkable)
}

func PlotOf(s *ecs.Store, e ecs.Entity) *Plot {
	return ecs.Get[Plot](s, e, CPlot)
}

func PlantOf(s *ecs.Store, e ecs.Entity) *Plant {
	return ecs.Get[Plant](s, e, CPlant)
}

func PileOf(s *ecs.Store, e ecs.Entity) *Pile {
	return ecs.Get[Pile](s, e, CPile)
}

// Nearest collects entities matching mask and keep, sorted by squared
// distance from `from`. Equal distances keep ascending handle order.
func Nearest(s *ecs.Store, mask ecs.ComponentType, from geom.Vec2, keep func(ecs.Entity) bool) []ecs.Entity {
	type cand struct {
		e ecs.Entity
		d float64
	}
	var cs []cand
	s.Each(mask|CLocation, func(e ecs.Entity) bool {
		if keep != nil && !keep(e) {
			return true
		}
		p, _ := Pos(s, e)
		cs = append(cs, cand{e: e, d: p.DistSq(from)})
		return true
	})
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].d < cs[j].d })
	out := make([]ecs.Entity, len(cs))
	for i, c := range cs {
		out[i] = c.e
	}
	return out
}

// FreeSlot reports whether e has an unclaimed work slot.
func FreeSlot(s *ecs.Store, e ecs.Entity) bool {
	w := WorkableOf(s, e)
	return w != nil && w.ClaimedBy == ecs.Nil
}
