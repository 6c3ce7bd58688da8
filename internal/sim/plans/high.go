package plans

import (
	"fmt"

	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/geom"
	"villagesim.ai/internal/sim/model"
	"villagesim.ai/internal/sim/resources"
	"villagesim.ai/internal/sim/simctx"
)

type HighKind uint8

const (
	Gather HighKind = iota + 1
	DropOff
	Work
	Eat
	Poop
	Rest
	Plant
	Wander
)

func (k HighKind) String() string {
	switch k {
	case Gather:
		return "gather"
	case DropOff:
		return "drop_off"
	case Work:
		return "work"
	case Eat:
		return "eat"
	case Poop:
		return "poop"
	case Rest:
		return "rest"
	case Plant:
		return "plant"
	case Wander:
		return "wander"
	}
	return fmt.Sprintf("high(%d)", uint8(k))
}

// HighLevelPlan is a goal-level task. Next produces its low-level plans one
// at a time from the saved Stage/Cursor, so a plan can be stopped between
// any two steps and resumed later, including after a snapshot reload.
type HighLevelPlan struct {
	Kind   HighKind
	Agent  ecs.Entity
	Target ecs.Entity

	// Gather visits Sources in order and picks up their Marker slice.
	Sources []ecs.Entity
	// Wander destination, or where an on-the-spot action happens.
	Point  geom.Cell
	Marker resources.Marker
	// DropOff: Target holds a pledge under Marker that the delivery replaces.
	Pledged bool
	// The plan holds Target's work slot.
	Claimed bool

	Stage  uint8
	Cursor int
}

func NewGather(agent ecs.Entity, sources []ecs.Entity, m resources.Marker) HighLevelPlan {
	return HighLevelPlan{Kind: Gather, Agent: agent, Sources: append([]ecs.Entity(nil), sources...), Marker: m}
}

func NewDropOff(agent, dst ecs.Entity, m resources.Marker, pledged bool) HighLevelPlan {
	return HighLevelPlan{Kind: DropOff, Agent: agent, Target: dst, Marker: m, Pledged: pledged}
}

// NewWork works on a claimed building site or plant. Harvest yield is
// carried under m.
func NewWork(agent, target ecs.Entity, m resources.Marker) HighLevelPlan {
	return HighLevelPlan{Kind: Work, Agent: agent, Target: target, Marker: m, Claimed: true}
}

func NewEat(agent ecs.Entity, m resources.Marker) HighLevelPlan {
	return HighLevelPlan{Kind: Eat, Agent: agent, Marker: m}
}

// NewPoop uses toilet when it is not ecs.Nil, otherwise goes on the spot.
func NewPoop(agent, toilet ecs.Entity) HighLevelPlan {
	return HighLevelPlan{Kind: Poop, Agent: agent, Target: toilet, Claimed: toilet != ecs.Nil}
}

func NewRest(agent, bed ecs.Entity) HighLevelPlan {
	return HighLevelPlan{Kind: Rest, Agent: agent, Target: bed, Claimed: bed != ecs.Nil}
}

// NewPlant sows plot; seeds, if the crop needs any, are carried under m.
func NewPlant(agent, plot ecs.Entity, m resources.Marker) HighLevelPlan {
	return HighLevelPlan{Kind: Plant, Agent: agent, Target: plot, Marker: m, Claimed: true}
}

func NewWander(agent ecs.Entity, dest geom.Cell) HighLevelPlan {
	return HighLevelPlan{Kind: Wander, Agent: agent, Point: dest}
}

// Next returns the next low-level plan. ok is false once the plan is
// exhausted; an exhausted plan stays exhausted.
func (h *HighLevelPlan) Next(ctx *simctx.Context) (LowLevelPlan, bool, error) {
	if !ctx.Store.Alive(h.Agent) {
		return LowLevelPlan{}, false, missing("agent", h.Agent)
	}
	switch h.Kind {
	case Gather:
		return h.nextGather(ctx)
	case DropOff:
		return h.nextDropOff(ctx)
	case Work:
		return h.nextWork(ctx)
	case Eat:
		return h.nextEat(ctx)
	case Poop:
		return h.nextPoop(ctx)
	case Rest:
		return h.nextRest(ctx)
	case Plant:
		return h.nextPlant(ctx)
	case Wander:
		return h.nextWander(ctx)
	}
	return LowLevelPlan{}, false, fmt.Errorf("unknown high-level plan kind %d", h.Kind)
}

// TargetEntity is what observers draw a line to.
func (h *HighLevelPlan) TargetEntity() ecs.Entity {
	if h.Kind == Gather {
		if h.Cursor < len(h.Sources) {
			return h.Sources[h.Cursor]
		}
		return ecs.Nil
	}
	return h.Target
}

// Release drops what the plan holds on other entities: its pledge on the
// drop-off target and its claimed work slot. Marked goods are handled by
// the runner, which knows every marker still in flight.
func (h *HighLevelPlan) Release(ctx *simctx.Context) {
	if h.Pledged {
		if inv := model.Inventory(ctx.Store, h.Target); inv != nil {
			inv.RemoveMarked(h.Marker)
		}
		h.Pledged = false
	}
	if h.Claimed {
		ReleaseClaim(ctx.Store, h.Target, h.Agent)
		h.Claimed = false
	}
}

func (h *HighLevelPlan) Describe(ctx *simctx.Context) string {
	switch h.Kind {
	case Gather:
		if t := h.TargetEntity(); t != ecs.Nil {
			return fmt.Sprintf("gathering from %s (%d/%d)", Name(ctx.Store, t), h.Cursor+1, len(h.Sources))
		}
		return "gathering"
	case DropOff:
		return "dropping off at " + Name(ctx.Store, h.Target)
	case Work:
		return "working on " + Name(ctx.Store, h.Target)
	case Eat:
		return "eating"
	case Poop:
		if h.Target != ecs.Nil {
			return "using " + Name(ctx.Store, h.Target)
		}
		return "relieving themselves"
	case Rest:
		if h.Target != ecs.Nil {
			return "resting at " + Name(ctx.Store, h.Target)
		}
		return "resting"
	case Plant:
		return "planting at " + Name(ctx.Store, h.Target)
	case Wander:
		return fmt.Sprintf("wandering to (%d,%d)", h.Point.X, h.Point.Y)
	}
	return h.Kind.String()
}

// Name is a short human label for an entity.
func Name(s *ecs.Store, e ecs.Entity) string {
	switch {
	case !s.Alive(e):
		return fmt.Sprintf("#%d (gone)", e)
	case s.Has(e, model.CVillager):
		return model.VillagerOf(s, e).Name
	case s.Has(e, model.CBuilding):
		b := model.BuildingOf(s, e)
		if !b.Built {
			return fmt.Sprintf("%s site #%d", b.Template, e)
		}
		return fmt.Sprintf("%s #%d", b.Template, e)
	case s.Has(e, model.CPlant):
		return fmt.Sprintf("%s #%d", model.PlantOf(s, e).Crop, e)
	case s.Has(e, model.CPlot):
		return fmt.Sprintf("plot #%d", e)
	case s.Has(e, model.CPile):
		return fmt.Sprintf("pile #%d", e)
	}
	return fmt.Sprintf("#%d", e)
}

// walkTo returns a walk to dest, or ok=false when the agent already stands
// on it.
func walkTo(ctx *simctx.Context, agent ecs.Entity, dest geom.Cell) (LowLevelPlan, bool, error) {
	pos, ok := model.Pos(ctx.Store, agent)
	if !ok {
		return LowLevelPlan{}, false, missing("agent", agent)
	}
	if pos.DistSq(dest.Vec()) < arriveDistSq {
		return LowLevelPlan{}, false, nil
	}
	path, err := ctx.FindPath(pos.Cell(), dest)
	if err != nil {
		return LowLevelPlan{}, false, err
	}
	return WalkTo(agent, path), true, nil
}

func targetCell(ctx *simctx.Context, e ecs.Entity) (geom.Cell, error) {
	c, ok := model.CellOf(ctx.Store, e)
	if !ok {
		return geom.Cell{}, missing("target", e)
	}
	return c, nil
}

func traits(ctx *simctx.Context, agent ecs.Entity) model.Traits {
	if v := model.VillagerOf(ctx.Store, agent); v != nil {
		return v.Traits
	}
	return model.Traits{Movement: 1, Pickup: 1, Work: 1, Harvest: 1}
}

// scaled divides a base duration by a speed multiplier.
func scaled(base, speed float64) float64 {
	if speed <= 0 {
		return base
	}
	return base / speed
}
