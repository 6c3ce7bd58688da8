package plans

import (
	"errors"
	"fmt"
	"math"

	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/model"
	"villagesim.ai/internal/sim/pathfind"
	"villagesim.ai/internal/sim/resources"
	"villagesim.ai/internal/sim/simctx"
)

const stageDone uint8 = 255

var none = LowLevelPlan{}

func (h *HighLevelPlan) nextGather(ctx *simctx.Context) (LowLevelPlan, bool, error) {
	for {
		if h.Cursor >= len(h.Sources) {
			h.Stage = stageDone
			return none, false, nil
		}
		src := h.Sources[h.Cursor]
		switch h.Stage {
		case 0:
			cell, err := targetCell(ctx, src)
			if err != nil {
				return none, false, err
			}
			h.Stage = 1
			if low, ok, err := walkTo(ctx, h.Agent, cell); err != nil || ok {
				return low, ok, err
			}
		case 1:
			h.Stage = 2
			d := scaled(ctx.Actions.PickupSeconds, traits(ctx, h.Agent).Pickup)
			return Wait(h.Agent, ctx.Now()+d), true, nil
		case 2:
			h.Stage = 0
			h.Cursor++
			return MoveInventory(src, h.Marker, h.Agent, h.Marker, false), true, nil
		default:
			return none, false, nil
		}
	}
}

func (h *HighLevelPlan) nextDropOff(ctx *simctx.Context) (LowLevelPlan, bool, error) {
	for {
		switch h.Stage {
		case 0:
			cell, err := targetCell(ctx, h.Target)
			if err != nil {
				return none, false, err
			}
			h.Stage = 1
			if low, ok, err := walkTo(ctx, h.Agent, cell); err != nil || ok {
				return low, ok, err
			}
		case 1:
			h.Stage = 2
			d := scaled(ctx.Actions.DropSeconds, traits(ctx, h.Agent).Pickup)
			return Wait(h.Agent, ctx.Now()+d), true, nil
		case 2:
			h.Stage = 3
			return MoveInventory(h.Agent, h.Marker, h.Target, resources.Unmarked, h.Pledged), true, nil
		case 3:
			// The move replaced the pledge with real goods.
			h.Pledged = false
			h.Stage = stageDone
		default:
			return none, false, nil
		}
	}
}

func (h *HighLevelPlan) nextWork(ctx *simctx.Context) (LowLevelPlan, bool, error) {
	s := ctx.Store
	for {
		switch h.Stage {
		case 0:
			switch {
			case s.Has(h.Target, model.CBuilding):
				h.Stage = 10
			case s.Has(h.Target, model.CPlant):
				h.Stage = 20
			case !s.Alive(h.Target):
				return none, false, missing("work target", h.Target)
			default:
				return none, false, fmt.Errorf("#%d: %w", h.Target, ErrUnknownWorkTarget)
			}
			if err := Claim(s, h.Target, h.Agent); err != nil {
				return none, false, err
			}
			h.Claimed = true

		// Construction.
		case 10, 20:
			cell, err := targetCell(ctx, h.Target)
			if err != nil {
				return none, false, err
			}
			h.Stage++
			if low, ok, err := walkTo(ctx, h.Agent, cell); err != nil || ok {
				return low, ok, err
			}
		case 11:
			b := model.BuildingOf(s, h.Target)
			if b == nil {
				return none, false, missing("building", h.Target)
			}
			if b.Built {
				h.finishWork(ctx)
				continue
			}
			if b.WorkLeft <= 0 {
				h.Stage = 13
				continue
			}
			h.Stage = 12
			return Wait(h.Agent, ctx.Now()+ctx.Actions.WorkInterval), true, nil
		case 12:
			b := model.BuildingOf(s, h.Target)
			if b == nil {
				return none, false, missing("building", h.Target)
			}
			b.WorkLeft -= ctx.Actions.WorkInterval * traits(ctx, h.Agent).Work
			h.Stage = 11
		case 13:
			b := model.BuildingOf(s, h.Target)
			inv := model.Inventory(s, h.Target)
			if b == nil || inv == nil {
				return none, false, missing("building", h.Target)
			}
			for _, q := range b.Requirements.GetQuantities(resources.All) {
				if err := inv.Remove(q, resources.Unmarked); err != nil {
					return none, false, fmt.Errorf("finish %s: %w", Name(s, h.Target), err)
				}
			}
			b.Built = true
			b.WorkLeft = 0
			ctx.Logf("[plan] %s finished %s", Name(s, h.Agent), Name(s, h.Target))
			h.finishWork(ctx)

		// Harvest.
		case 21:
			p := model.PlantOf(s, h.Target)
			if p == nil {
				return none, false, missing("plant", h.Target)
			}
			crop, ok := ctx.Catalog.Crops.ByID[p.Crop]
			if !ok {
				return none, false, fmt.Errorf("plant #%d: unknown crop %q", h.Target, p.Crop)
			}
			h.Stage = 22
			d := scaled(crop.HarvestSeconds, traits(ctx, h.Agent).Harvest)
			return Wait(h.Agent, ctx.Now()+d), true, nil
		case 22:
			p := model.PlantOf(s, h.Target)
			inv := model.Inventory(s, h.Agent)
			if p == nil {
				return none, false, missing("plant", h.Target)
			}
			if inv == nil {
				return none, false, missing("inventory", h.Agent)
			}
			yield, err := ctx.Catalog.Bucket(ctx.Catalog.Crops.ByID[p.Crop].Yield)
			if err != nil {
				return none, false, err
			}
			for _, q := range yield.GetQuantities(resources.All) {
				inv.Add(q, h.Marker)
			}
			model.RemovePlant(s, h.Target)
			h.Claimed = false
			h.Stage = stageDone
		default:
			return none, false, nil
		}
	}
}

func (h *HighLevelPlan) finishWork(ctx *simctx.Context) {
	ReleaseClaim(ctx.Store, h.Target, h.Agent)
	h.Claimed = false
	h.Stage = stageDone
}

func (h *HighLevelPlan) nextEat(ctx *simctx.Context) (LowLevelPlan, bool, error) {
	for {
		switch h.Stage {
		case 0:
			h.Stage = 1
			return Wait(h.Agent, ctx.Now()+ctx.Actions.EatSeconds), true, nil
		case 1:
			inv := model.Inventory(ctx.Store, h.Agent)
			v := model.VillagerOf(ctx.Store, h.Agent)
			if inv == nil || v == nil {
				return none, false, missing("villager", h.Agent)
			}
			gained := 0.0
			for _, q := range inv.RemoveMarked(h.Marker) {
				if q.Kind.Nutrition <= 0 {
					inv.Add(q, resources.Unmarked)
					continue
				}
				gained += q.Kind.Nutrition * q.Amount
			}
			v.Needs.Food = math.Min(ctx.Needs.Max, v.Needs.Food+gained)
			h.Stage = stageDone
		default:
			return none, false, nil
		}
	}
}

func (h *HighLevelPlan) nextPoop(ctx *simctx.Context) (LowLevelPlan, bool, error) {
	for {
		switch h.Stage {
		case 0:
			h.Stage = 1
			if h.Target == ecs.Nil {
				continue
			}
			if err := Claim(ctx.Store, h.Target, h.Agent); err != nil {
				return none, false, err
			}
			h.Claimed = true
			cell, err := targetCell(ctx, h.Target)
			if err != nil {
				return none, false, err
			}
			if low, ok, err := walkTo(ctx, h.Agent, cell); err != nil || ok {
				return low, ok, err
			}
		case 1:
			h.Stage = 2
			return Wait(h.Agent, ctx.Now()+ctx.Actions.PoopSeconds), true, nil
		case 2:
			v := model.VillagerOf(ctx.Store, h.Agent)
			if v == nil {
				return none, false, missing("villager", h.Agent)
			}
			v.Needs.Bladder = ctx.Needs.Max
			if h.Target != ecs.Nil {
				ReleaseClaim(ctx.Store, h.Target, h.Agent)
				h.Claimed = false
			} else if k, ok := ctx.Catalog.Kind(ctx.Actions.WasteKind); ok {
				cell, _ := model.CellOf(ctx.Store, h.Agent)
				model.SpawnPile(ctx.Store, cell, resources.NewBucket(resources.Q(k, 1)), true)
			}
			h.Stage = stageDone
		default:
			return none, false, nil
		}
	}
}

func (h *HighLevelPlan) nextRest(ctx *simctx.Context) (LowLevelPlan, bool, error) {
	for {
		switch h.Stage {
		case 0:
			h.Stage = 1
			if h.Target == ecs.Nil {
				continue
			}
			if err := Claim(ctx.Store, h.Target, h.Agent); err != nil {
				return none, false, err
			}
			h.Claimed = true
			cell, err := targetCell(ctx, h.Target)
			if err != nil {
				return none, false, err
			}
			if low, ok, err := walkTo(ctx, h.Agent, cell); err != nil || ok {
				return low, ok, err
			}
		case 1:
			h.Stage = 2
			return RestPrimitive(h.Agent, h.Target != ecs.Nil), true, nil
		case 2:
			if h.Claimed {
				ReleaseClaim(ctx.Store, h.Target, h.Agent)
				h.Claimed = false
			}
			h.Stage = stageDone
		default:
			return none, false, nil
		}
	}
}

func (h *HighLevelPlan) nextPlant(ctx *simctx.Context) (LowLevelPlan, bool, error) {
	s := ctx.Store
	for {
		switch h.Stage {
		case 0:
			if err := Claim(s, h.Target, h.Agent); err != nil {
				return none, false, err
			}
			h.Claimed = true
			cell, err := targetCell(ctx, h.Target)
			if err != nil {
				return none, false, err
			}
			h.Stage = 1
			if low, ok, err := walkTo(ctx, h.Agent, cell); err != nil || ok {
				return low, ok, err
			}
		case 1:
			h.Stage = 2
			d := scaled(ctx.Actions.PlantSeconds, traits(ctx, h.Agent).Work)
			return Wait(h.Agent, ctx.Now()+d), true, nil
		case 2:
			plot := model.PlotOf(s, h.Target)
			if plot == nil {
				return none, false, missing("plot", h.Target)
			}
			if plot.Plant != ecs.Nil {
				return none, false, fmt.Errorf("plot #%d already sown: %w", h.Target, ErrSlotTaken)
			}
			if h.Marker != resources.Unmarked {
				if inv := model.Inventory(s, h.Agent); inv != nil {
					inv.RemoveMarked(h.Marker)
				}
			}
			cell, _ := model.CellOf(s, h.Target)
			model.SpawnPlant(s, cell, plot.Crop, 0, h.Target)
			ReleaseClaim(s, h.Target, h.Agent)
			h.Claimed = false
			h.Stage = stageDone
		default:
			return none, false, nil
		}
	}
}

func (h *HighLevelPlan) nextWander(ctx *simctx.Context) (LowLevelPlan, bool, error) {
	for {
		switch h.Stage {
		case 0:
			h.Stage = 1
			low, ok, err := walkTo(ctx, h.Agent, h.Point)
			if errors.Is(err, pathfind.ErrUnreachable) {
				continue
			}
			if err != nil || ok {
				return low, ok, err
			}
		case 1:
			h.Stage = 2
			return Wait(h.Agent, ctx.Now()+ctx.Actions.IdleSeconds), true, nil
		case 2:
			h.Stage = stageDone
		default:
			return none, false, nil
		}
	}
}
