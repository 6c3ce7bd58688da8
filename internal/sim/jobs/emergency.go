package jobs

import (
	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/model"
	"villagesim.ai/internal/sim/plans"
	"villagesim.ai/internal/sim/resources"
	"villagesim.ai/internal/sim/simctx"
)

// Emergency handles urgent needs: hunger, then tiredness, then the bladder.
type Emergency struct{}

func (Emergency) Kind() string { return KindEmergency }

func (Emergency) TryToRun(ctx *simctx.Context, agent ecs.Entity) ([]plans.HighLevelPlan, bool) {
	v := model.VillagerOf(ctx.Store, agent)
	f, ok := newFinder(ctx, agent)
	if v == nil || !ok {
		return nil, false
	}
	if v.Needs.Food < ctx.Needs.FoodThreshold {
		if ps, ok := eat(ctx, f); ok {
			return ps, true
		}
	}
	if v.Needs.Rest < ctx.Needs.RestThreshold {
		bed := f.freeBuilding(func(b *model.Building) bool { return b.Bed })
		return []plans.HighLevelPlan{plans.NewRest(agent, bed)}, true
	}
	if v.Needs.Bladder < ctx.Needs.BladderThreshold {
		toilet := f.freeBuilding(func(b *model.Building) bool { return b.Toilet })
		return []plans.HighLevelPlan{plans.NewPoop(agent, toilet)}, true
	}
	return nil, false
}

// eat reserves one unit of food, preferring food the agent already carries.
func eat(ctx *simctx.Context, f finder) ([]plans.HighLevelPlan, bool) {
	sources := append([]ecs.Entity{f.agent}, f.supplySources()...)
	for _, k := range ctx.Catalog.KindsInGroup("food") {
		m, got, used, _ := reserve(ctx, sources, resources.Unlimited, resources.NewBucket(resources.Q(k, 1)))
		if got.IsEmpty(resources.All) {
			continue
		}
		var ps []plans.HighLevelPlan
		if away := without(used, f.agent); len(away) > 0 {
			ps = append(ps, plans.NewGather(f.agent, away, m))
		}
		return append(ps, plans.NewEat(f.agent, m)), true
	}
	return nil, false
}

// freeBuilding claims the nearest built building with a free slot accepted
// by want, or returns ecs.Nil.
func (f finder) freeBuilding(want func(*model.Building) bool) ecs.Entity {
	s := f.ctx.Store
	for _, e := range f.nearest(model.ABuilding, func(e ecs.Entity) bool {
		b := model.BuildingOf(s, e)
		return b.Built && want(b) && model.FreeSlot(s, e)
	}) {
		if plans.Claim(s, e, f.agent) == nil {
			return e
		}
	}
	return ecs.Nil
}
