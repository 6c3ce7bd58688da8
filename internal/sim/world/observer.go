package world

import (
	"encoding/json"

	"villagesim.ai/internal/observerproto"
	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/model"
	"villagesim.ai/internal/sim/plans"
	"villagesim.ai/internal/sim/resources"
)

type observerClient struct {
	id      string
	tickOut chan []byte

	everyTicks int
	focusAgent uint32
}

// stepObservers sends the tick frame to every observer that is due. The
// frame is built at most once per tick and only when someone wants it.
func (w *World) stepObservers(nowTick uint64) {
	if len(w.observers) == 0 || nowTick%uint64(w.cfg.ObserverEveryTicks) != 0 {
		return
	}
	var (
		full    *observerproto.TickMsg
		fullRaw []byte
	)
	for _, c := range w.observers {
		if nowTick%uint64(c.everyTicks) != 0 {
			continue
		}
		if full == nil {
			msg := w.buildTickMsg(nowTick)
			full = &msg
			b, err := json.Marshal(msg)
			if err != nil {
				return
			}
			fullRaw = b
		}
		if c.focusAgent == 0 {
			sendLatest(c.tickOut, fullRaw)
			continue
		}
		focused := *full
		focused.Agents = nil
		for _, a := range full.Agents {
			if a.ID == c.focusAgent {
				focused.Agents = append(focused.Agents, a)
			}
		}
		b, err := json.Marshal(focused)
		if err != nil {
			continue
		}
		sendLatest(c.tickOut, b)
	}
}

func (w *World) buildTickMsg(nowTick uint64) observerproto.TickMsg {
	ctx := w.ctx
	s := ctx.Store
	msg := observerproto.TickMsg{
		Type:            "TICK",
		ProtocolVersion: observerproto.Version,
		Tick:            nowTick,
		Elapsed:         ctx.Now(),
		Agents:          []observerproto.AgentState{},
		Buildings:       []observerproto.BuildingState{},
	}
	s.Each(model.AVillager, func(e ecs.Entity) bool {
		v := model.VillagerOf(s, e)
		pos, _ := model.Pos(s, e)
		a := observerproto.AgentState{
			ID:       uint32(e),
			Name:     v.Name,
			Pos:      [2]float64{pos.X, pos.Y},
			Food:     v.Needs.Food,
			Rest:     v.Needs.Rest,
			Bladder:  v.Needs.Bladder,
			Carrying: stacks(model.Inventory(s, e)),
		}
		if r := runnerOf(s, e); r != nil {
			a.Job = r.Job
			if h := r.CurrentHighLevelPlan(); h != nil {
				a.HighPlan = h.Describe(ctx)
				a.Target = uint32(h.TargetEntity())
			}
			if l := r.CurrentLowLevelPlan(); l != nil {
				a.LowPlan = l.Describe()
			}
		}
		msg.Agents = append(msg.Agents, a)
		return true
	})
	s.Each(model.CBuilding, func(e ecs.Entity) bool {
		b := model.BuildingOf(s, e)
		c, _ := model.CellOf(s, e)
		msg.Buildings = append(msg.Buildings, observerproto.BuildingState{
			ID:       uint32(e),
			Template: b.Template,
			Pos:      [2]int{c.X, c.Y},
			Built:    b.Built,
			WorkLeft: b.WorkLeft,
			Contents: stacks(model.Inventory(s, e)),
		})
		return true
	})
	s.Each(model.CPlant, func(e ecs.Entity) bool {
		p := model.PlantOf(s, e)
		c, _ := model.CellOf(s, e)
		msg.Plants = append(msg.Plants, observerproto.PlantState{ID: uint32(e), Crop: p.Crop, Pos: [2]int{c.X, c.Y}, Growth: p.Growth})
		return true
	})
	s.Each(model.APile, func(e ecs.Entity) bool {
		c, _ := model.CellOf(s, e)
		msg.Piles = append(msg.Piles, observerproto.PileState{
			ID:       uint32(e),
			Pos:      [2]int{c.X, c.Y},
			Waste:    model.PileOf(s, e).Waste,
			Contents: stacks(model.Inventory(s, e)),
		})
		return true
	})
	for _, ev := range w.events {
		msg.Events = append(msg.Events, observerproto.PlanEvent{Agent: ev.Agent, Name: ev.Name, Event: ev.Event, Job: ev.Job, Error: ev.Error})
	}
	return msg
}

// stacks folds a bucket into per-kind totals, keeping the reserved part
// separate.
func stacks(b *resources.Bucket) []observerproto.Stack {
	if b == nil {
		return nil
	}
	var out []observerproto.Stack
	idx := map[string]int{}
	for _, en := range b.Entries() {
		name := en.Quantity.Kind.Name
		i, ok := idx[name]
		if !ok {
			i = len(out)
			idx[name] = i
			out = append(out, observerproto.Stack{Kind: name})
		}
		out[i].Amount += en.Quantity.Amount
		if en.Marker != resources.Unmarked {
			out[i].Reserved += en.Quantity.Amount
		}
	}
	return out
}

// describeRunner is used by log lines and tools.
func describeRunner(w *World, r *plans.Runner) string {
	if h := r.CurrentHighLevelPlan(); h != nil {
		return h.Describe(w.ctx)
	}
	return r.Job
}
