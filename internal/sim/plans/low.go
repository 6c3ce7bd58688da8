package plans

import (
	"fmt"
	"math"

	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/geom"
	"villagesim.ai/internal/sim/model"
	"villagesim.ai/internal/sim/resources"
	"villagesim.ai/internal/sim/simctx"
)

type LowKind uint8

const (
	LowWalkTo LowKind = iota + 1
	LowWait
	LowMoveInventory
	LowRest
)

func (k LowKind) String() string {
	switch k {
	case LowWalkTo:
		return "walk"
	case LowWait:
		return "wait"
	case LowMoveInventory:
		return "move_inventory"
	case LowRest:
		return "rest"
	}
	return fmt.Sprintf("low(%d)", uint8(k))
}

// Waypoints closer than this (squared) count as reached.
const arriveDistSq = 0.15

// LowLevelPlan is a single resumable primitive. Only the fields of its Kind
// are meaningful.
type LowLevelPlan struct {
	Kind  LowKind
	Agent ecs.Entity

	// WalkTo
	Path  []geom.Cell
	Index int

	// Wait
	Until float64

	// MoveInventory
	Src       ecs.Entity
	SrcMarker resources.Marker
	Dst       ecs.Entity
	DstMarker resources.Marker
	ClearDst  bool

	// Rest
	Bed bool

	Ticks int
	Done  bool
}

func WalkTo(agent ecs.Entity, path []geom.Cell) LowLevelPlan {
	return LowLevelPlan{Kind: LowWalkTo, Agent: agent, Path: path}
}

func Wait(agent ecs.Entity, until float64) LowLevelPlan {
	return LowLevelPlan{Kind: LowWait, Agent: agent, Until: until}
}

// MoveInventory moves src's srcM slice into dst's dstM slice. With clear,
// dst's srcM slice (a pledge) is dropped first.
func MoveInventory(src ecs.Entity, srcM resources.Marker, dst ecs.Entity, dstM resources.Marker, clear bool) LowLevelPlan {
	return LowLevelPlan{Kind: LowMoveInventory, Agent: src, Src: src, SrcMarker: srcM, Dst: dst, DstMarker: dstM, ClearDst: clear}
}

func RestPrimitive(agent ecs.Entity, bed bool) LowLevelPlan {
	return LowLevelPlan{Kind: LowRest, Agent: agent, Bed: bed}
}

// Run advances the plan by one tick and reports whether it wants to run
// again. A finished plan keeps returning false.
func (p *LowLevelPlan) Run(ctx *simctx.Context) (bool, error) {
	if p.Done {
		return false, nil
	}
	p.Ticks++
	var more bool
	var err error
	switch p.Kind {
	case LowWalkTo:
		more, err = p.walk(ctx)
	case LowWait:
		more = ctx.Now() < p.Until
	case LowMoveInventory:
		err = p.move(ctx)
	case LowRest:
		more, err = p.rest(ctx)
	default:
		err = fmt.Errorf("unknown low-level plan kind %d", p.Kind)
	}
	if err != nil || !more {
		p.Done = true
	}
	return more, err
}

func (p *LowLevelPlan) walk(ctx *simctx.Context) (bool, error) {
	loc := model.LocationOf(ctx.Store, p.Agent)
	v := model.VillagerOf(ctx.Store, p.Agent)
	if loc == nil || v == nil {
		return false, missing("walker", p.Agent)
	}
	pos := loc.Pos
	skip := func() {
		for p.Index < len(p.Path) && pos.DistSq(p.Path[p.Index].Vec()) < arriveDistSq {
			p.Index++
		}
	}
	skip()
	if p.Index < len(p.Path) {
		mod := math.Max(ctx.Terrain.MoveModifier(pos.Cell()), 0.5)
		step := v.Traits.Movement * ctx.Clock.Delta * mod
		d := p.Path[p.Index].Vec().Sub(pos)
		if dist := d.Len(); dist > 0 {
			pos = pos.Add(d.Scale(math.Min(step, dist) / dist))
		}
		skip()
	}
	loc.Pos = pos
	return p.Index < len(p.Path), nil
}

func (p *LowLevelPlan) move(ctx *simctx.Context) error {
	src := model.Inventory(ctx.Store, p.Src)
	if src == nil {
		return missing("inventory", p.Src)
	}
	dst := model.Inventory(ctx.Store, p.Dst)
	if dst == nil {
		return missing("inventory", p.Dst)
	}
	if p.ClearDst {
		dst.RemoveMarked(p.SrcMarker)
	}
	src.MoveTo(p.SrcMarker, dst, p.DstMarker)
	return nil
}

func (p *LowLevelPlan) rest(ctx *simctx.Context) (bool, error) {
	v := model.VillagerOf(ctx.Store, p.Agent)
	if v == nil {
		return false, missing("villager", p.Agent)
	}
	rate := ctx.Needs.RestRate
	if p.Bed {
		rate *= 2
	}
	v.Needs.Rest = math.Min(ctx.Needs.Max, v.Needs.Rest+rate*ctx.Clock.Delta)
	return v.Needs.Rest < ctx.Needs.Max, nil
}

func (p *LowLevelPlan) Describe() string {
	switch p.Kind {
	case LowWalkTo:
		if len(p.Path) == 0 {
			return "walking"
		}
		dst := p.Path[len(p.Path)-1]
		return fmt.Sprintf("walking to (%d,%d)", dst.X, dst.Y)
	case LowWait:
		return fmt.Sprintf("waiting until %.1fs", p.Until)
	case LowMoveInventory:
		return fmt.Sprintf("moving %s goods #%d -> #%d", p.SrcMarker, p.Src, p.Dst)
	case LowRest:
		if p.Bed {
			return "sleeping in bed"
		}
		return "resting"
	}
	return p.Kind.String()
}
