// Package jobs decides what an idle villager does next. Strategies scan the
// world in a fixed per-villager priority order; the first one that succeeds
// claims what it needs immediately, so villagers evaluated later in the
// same tick see the updated state.
package jobs

import (
	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/geom"
	"villagesim.ai/internal/sim/mathx"
	"villagesim.ai/internal/sim/model"
	"villagesim.ai/internal/sim/plans"
	"villagesim.ai/internal/sim/simctx"
)

const (
	KindEmergency = "emergency"
	KindPlant     = "plant"
	KindBuild     = "build"
	KindHaul      = "haul"
	KindHarvest   = "harvest"
	KindStorage   = "storage"
	KindWander    = "wander"
)

// Strategy either commits to a plan list (claiming slots and reserving
// resources as a side effect) or declines and leaves the world unchanged.
type Strategy interface {
	Kind() string
	TryToRun(ctx *simctx.Context, agent ecs.Entity) ([]plans.HighLevelPlan, bool)
}

type Selector struct {
	emergency Strategy
	byKind    map[string]Strategy
}

// NewSelector builds a selector. emergency always runs first and cannot be
// reordered; the others are looked up by Kind from a villager's priorities.
func NewSelector(emergency Strategy, strategies ...Strategy) *Selector {
	s := &Selector{emergency: emergency, byKind: map[string]Strategy{}}
	for _, st := range strategies {
		s.byKind[st.Kind()] = st
	}
	return s
}

// DefaultSelector wires the built-in strategies.
func DefaultSelector() *Selector {
	return NewSelector(Emergency{}, PlantStrategy{}, BuildStrategy{}, HaulStrategy{}, HarvestStrategy{}, StorageStrategy{})
}

// Select picks plans for an idle agent. It never fails: with no job
// available the agent wanders around its remembered center.
func (s *Selector) Select(ctx *simctx.Context, agent ecs.Entity, priorities []string) ([]plans.HighLevelPlan, string) {
	v := model.VillagerOf(ctx.Store, agent)
	if v == nil {
		return nil, ""
	}
	try := func(st Strategy) ([]plans.HighLevelPlan, bool) {
		if st == nil {
			return nil, false
		}
		return st.TryToRun(ctx, agent)
	}
	if ps, ok := try(s.emergency); ok {
		v.HasCenter = false
		ctx.Logf("[jobs] %s handles an emergency", v.Name)
		return ps, s.emergency.Kind()
	}
	for _, k := range priorities {
		st := s.byKind[k]
		if ps, ok := try(st); ok {
			v.HasCenter = false
			ctx.Logf("[jobs] %s takes %s job", v.Name, k)
			return ps, k
		}
	}
	return []plans.HighLevelPlan{plans.NewWander(agent, wanderTarget(ctx, agent, v))}, KindWander
}

// wanderTarget picks a reachable cell near the villager's wander center.
// The center is fixed the first time the villager goes idle.
func wanderTarget(ctx *simctx.Context, agent ecs.Entity, v *model.Villager) geom.Cell {
	here, _ := model.CellOf(ctx.Store, agent)
	if !v.HasCenter {
		v.HasCenter = true
		v.Center = here
	}
	r := ctx.Actions.WanderRadius
	if r <= 0 {
		return v.Center
	}
	for salt := 0; salt < 8; salt++ {
		h := mathx.Hash3(ctx.Seed, int(agent), int(ctx.Tick), salt)
		c := geom.Cell{
			X: v.Center.X + mathx.IntN(h, 2*r+1) - r,
			Y: v.Center.Y + mathx.IntN(h>>32, 2*r+1) - r,
		}
		if !ctx.Terrain.Passable(c) || c == here {
			continue
		}
		if ctx.Reachable(here, c) {
			return c
		}
	}
	return v.Center
}
