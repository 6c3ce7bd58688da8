package jobs

import (
	"villagesim.ai/internal/sim/catalogs"
	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/model"
	"villagesim.ai/internal/sim/plans"
	"villagesim.ai/internal/sim/resources"
	"villagesim.ai/internal/sim/simctx"
)

// PlantStrategy sows the nearest empty plot, fetching seeds first when the
// crop needs them.
type PlantStrategy struct{}

func (PlantStrategy) Kind() string { return KindPlant }

func (PlantStrategy) TryToRun(ctx *simctx.Context, agent ecs.Entity) ([]plans.HighLevelPlan, bool) {
	f, ok := newFinder(ctx, agent)
	if !ok {
		return nil, false
	}
	s := ctx.Store
	plots := f.nearest(model.APlot, func(e ecs.Entity) bool {
		return model.FreeSlot(s, e) && model.PlotOf(s, e).Plant == ecs.Nil
	})
	for _, plot := range plots {
		crop, ok := ctx.Catalog.Crops.ByID[model.PlotOf(s, plot).Crop]
		if !ok {
			continue
		}
		if crop.Seeds == nil {
			if plans.Claim(s, plot, agent) != nil {
				continue
			}
			return []plans.HighLevelPlan{plans.NewPlant(agent, plot, resources.Unmarked)}, true
		}
		want, err := ctx.Catalog.Bucket([]catalogs.Stack{*crop.Seeds})
		if err != nil {
			continue
		}
		sources := f.supplySources()
		m, got, used, undo := reserve(ctx, sources, carryLeft(ctx, agent), want)
		if !got.Contains(resources.All, want, resources.All) {
			undo()
			continue
		}
		if plans.Claim(s, plot, agent) != nil {
			undo()
			continue
		}
		return []plans.HighLevelPlan{
			plans.NewGather(agent, used, m),
			plans.NewPlant(agent, plot, m),
		}, true
	}
	return nil, false
}

// BuildStrategy works on the nearest site that already holds every material.
type BuildStrategy struct{}

func (BuildStrategy) Kind() string { return KindBuild }

func (BuildStrategy) TryToRun(ctx *simctx.Context, agent ecs.Entity) ([]plans.HighLevelPlan, bool) {
	f, ok := newFinder(ctx, agent)
	if !ok {
		return nil, false
	}
	s := ctx.Store
	sites := f.nearest(model.ABuilding, func(e ecs.Entity) bool {
		b := model.BuildingOf(s, e)
		return !b.Built && model.FreeSlot(s, e) &&
			model.Inventory(s, e).Contains(resources.Unmarked, b.Requirements, resources.All)
	})
	for _, site := range sites {
		if plans.Claim(s, site, agent) == nil {
			return []plans.HighLevelPlan{plans.NewWork(agent, site, resources.Unmarked)}, true
		}
	}
	return nil, false
}

// HaulStrategy carries missing materials to the nearest construction site.
// What it reserves is pledged on the site under the same marker, so other
// haulers only fetch what is still missing.
type HaulStrategy struct{}

func (HaulStrategy) Kind() string { return KindHaul }

func (HaulStrategy) TryToRun(ctx *simctx.Context, agent ecs.Entity) ([]plans.HighLevelPlan, bool) {
	f, ok := newFinder(ctx, agent)
	if !ok {
		return nil, false
	}
	budget := carryLeft(ctx, agent)
	if budget <= 0 {
		return nil, false
	}
	s := ctx.Store
	sites := f.nearest(model.ABuilding, func(e ecs.Entity) bool {
		return !model.BuildingOf(s, e).Built
	})
	for _, site := range sites {
		b := model.BuildingOf(s, site)
		inv := model.Inventory(s, site)
		missing := inv.Missing(resources.All, b.Requirements, resources.All)
		if missing.IsEmpty(resources.All) {
			continue
		}
		sources := without(f.supplySources(), site)
		m, got, used, _ := reserve(ctx, sources, budget, missing)
		if got.IsEmpty(resources.All) {
			continue
		}
		for _, q := range got.GetQuantities(resources.All) {
			inv.Add(q, m)
		}
		return []plans.HighLevelPlan{
			plans.NewGather(agent, used, m),
			plans.NewDropOff(agent, site, m, true),
		}, true
	}
	return nil, false
}

// HarvestStrategy picks the nearest ripe plant and brings the yield to storage.
type HarvestStrategy struct{}

func (HarvestStrategy) Kind() string { return KindHarvest }

func (HarvestStrategy) TryToRun(ctx *simctx.Context, agent ecs.Entity) ([]plans.HighLevelPlan, bool) {
	f, ok := newFinder(ctx, agent)
	if !ok {
		return nil, false
	}
	s := ctx.Store
	plants := f.nearest(model.APlant, func(e ecs.Entity) bool {
		return model.PlantOf(s, e).Ripe() && model.FreeSlot(s, e)
	})
	for _, plant := range plants {
		at, _ := model.Pos(s, plant)
		// The drop-off leg starts at the plant.
		var store ecs.Entity
		for _, st := range storages(ctx, at) {
			if c, ok := model.CellOf(s, st); ok && ctx.Reachable(at.Cell(), c) {
				store = st
				break
			}
		}
		if store == ecs.Nil {
			continue
		}
		if plans.Claim(s, plant, agent) != nil {
			continue
		}
		m := ctx.Markers.Next()
		return []plans.HighLevelPlan{
			plans.NewWork(agent, plant, m),
			plans.NewDropOff(agent, store, m, false),
		}, true
	}
	return nil, false
}

// StorageStrategy tidies up: carried unmarked goods go to storage first,
// then the nearest ground pile is brought in.
type StorageStrategy struct{}

func (StorageStrategy) Kind() string { return KindStorage }

func (StorageStrategy) TryToRun(ctx *simctx.Context, agent ecs.Entity) ([]plans.HighLevelPlan, bool) {
	f, ok := newFinder(ctx, agent)
	if !ok {
		return nil, false
	}
	s := ctx.Store
	nearestStorage := func(e ecs.Entity) ecs.Entity {
		at, _ := model.Pos(s, e)
		for _, st := range storages(ctx, at) {
			if f.reachable(st) {
				return st
			}
		}
		return ecs.Nil
	}

	if carried := model.Inventory(s, agent); carried != nil && !carried.IsEmpty(resources.Unmarked) {
		if st := nearestStorage(agent); st != ecs.Nil {
			return []plans.HighLevelPlan{plans.NewDropOff(agent, st, resources.Unmarked, false)}, true
		}
		return nil, false
	}

	budget := carryLeft(ctx, agent)
	if budget <= 0 {
		return nil, false
	}
	piles := f.nearest(model.APile, func(e ecs.Entity) bool {
		return !model.PileOf(s, e).Waste && !model.Inventory(s, e).IsEmpty(resources.Unmarked)
	})
	for _, pile := range piles {
		st := nearestStorage(pile)
		if st == ecs.Nil {
			continue
		}
		inv := model.Inventory(s, pile)
		want := resources.NewBucket(inv.GetQuantities(resources.Unmarked)...)
		m, got, _, _ := reserve(ctx, []ecs.Entity{pile}, budget, want)
		if got.IsEmpty(resources.All) {
			continue
		}
		return []plans.HighLevelPlan{
			plans.NewGather(agent, []ecs.Entity{pile}, m),
			plans.NewDropOff(agent, st, m, false),
		}, true
	}
	return nil, false
}
