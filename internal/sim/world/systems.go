package world

import (
	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/model"
	"villagesim.ai/internal/sim/plans"
	"villagesim.ai/internal/sim/resources"
)

func (w *World) systemNeeds(dt float64) {
	n := w.ctx.Needs
	w.ctx.Store.Each(model.CVillager, func(e ecs.Entity) bool {
		v := model.VillagerOf(w.ctx.Store, e)
		v.Needs.Food = decay(v.Needs.Food, n.FoodDecay*dt, n.Max)
		v.Needs.Rest = decay(v.Needs.Rest, n.RestDecay*dt, n.Max)
		v.Needs.Bladder = decay(v.Needs.Bladder, n.BladderDecay*dt, n.Max)
		return true
	})
}

func decay(v, by, limit float64) float64 {
	v -= by
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}

func (w *World) systemGrowth(dt float64) {
	w.ctx.Store.Each(model.CPlant, func(e ecs.Entity) bool {
		p := model.PlantOf(w.ctx.Store, e)
		crop, ok := w.catalogs.Crops.ByID[p.Crop]
		if !ok || crop.GrowSeconds <= 0 || p.Ripe() {
			return true
		}
		p.Growth += dt / crop.GrowSeconds
		if p.Growth > 1 {
			p.Growth = 1
		}
		return true
	})
}

// systemPiles rots unreserved waste and removes ground piles that are
// completely empty.
func (w *World) systemPiles(dt float64) {
	s := w.ctx.Store
	waste, _ := w.catalogs.Kind(w.ctx.Actions.WasteKind)
	rot := w.ctx.Actions.WastePileDecay * dt
	for _, e := range s.Query(model.APile) {
		inv := model.Inventory(s, e)
		if model.PileOf(s, e).Waste && waste != nil && rot > 0 {
			have := inv.Amount(waste, resources.Unmarked)
			if have > 0 {
				_ = inv.Remove(resources.Q(waste, min(have, rot)), resources.Unmarked)
			}
		}
		if inv.IsEmpty(resources.All) {
			s.Destroy(e)
		}
	}
}

// systemAgents runs every villager once, in ascending handle order. Idle
// villagers pick a job first; a failing runner is aborted, which releases
// everything it reserved or claimed.
func (w *World) systemAgents(nowTick uint64) {
	ctx := w.ctx
	s := ctx.Store
	for _, e := range s.Query(model.AVillager) {
		if !s.Alive(e) {
			continue
		}
		v := model.VillagerOf(s, e)
		r := runnerOf(s, e)
		if r == nil {
			ps, job := w.selector.Select(ctx, e, v.Priorities)
			if len(ps) == 0 {
				continue
			}
			r = plans.NewRunner(e, ps)
			r.Job = job
			s.Add(e, model.CRunner, r)
			w.record(PlanEvent{Tick: nowTick, Agent: uint32(e), Name: v.Name, Event: EventStarted, Job: job})
		}
		more, err := r.Step(ctx)
		switch {
		case err != nil:
			ctx.Logf("[plan] %s: %s (%s) aborted: %v", v.Name, r.Job, describeRunner(w, r), err)
			r.Abort(ctx)
			s.Remove(e, model.CRunner)
			w.record(PlanEvent{Tick: nowTick, Agent: uint32(e), Name: v.Name, Event: EventAborted, Job: r.Job, Error: err.Error()})
		case !more:
			s.Remove(e, model.CRunner)
			w.record(PlanEvent{Tick: nowTick, Agent: uint32(e), Name: v.Name, Event: EventFinished, Job: r.Job})
		}
	}
}

func runnerOf(s *ecs.Store, e ecs.Entity) *plans.Runner {
	return ecs.Get[plans.Runner](s, e, model.CRunner)
}

func (w *World) record(ev PlanEvent) {
	w.events = append(w.events, ev)
	switch ev.Event {
	case EventStarted:
		w.started++
	case EventFinished:
		w.finished++
	case EventAborted:
		w.aborted++
	}
	if w.eventLogger != nil {
		_ = w.eventLogger.WritePlanEvent(ev)
	}
}
