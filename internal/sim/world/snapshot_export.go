package world

import (
	"villagesim.ai/internal/persistence/snapshot"
	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/geom"
	"villagesim.ai/internal/sim/model"
	"villagesim.ai/internal/sim/plans"
	"villagesim.ai/internal/sim/resources"
)

// ExportSnapshot captures the whole world, including in-flight runners and
// the marker counter, as of the end of nowTick.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	ctx := w.ctx
	s := ctx.Store
	g := ctx.Terrain

	snap := snapshot.SnapshotV1{
		Header:        snapshot.Header{Version: snapshot.Version, RunID: w.cfg.ID, Tick: nowTick},
		Seed:          w.cfg.Seed,
		TickRateHz:    w.cfg.TickRateHz,
		TickSeconds:   w.cfg.TickSeconds,
		Elapsed:       ctx.Now(),
		CatalogDigest: w.catalogs.Digest(),
		MarkerLast:    ctx.Markers.Last(),
		EntityCap:     uint32(s.Cap()),
		Terrain: snapshot.TerrainV1{
			W:      g.W,
			H:      g.H,
			Ground: append([]float64(nil), g.Ground...),
			Above:  append([]float64(nil), g.Above...),
		},
	}

	for i := 1; i <= s.Cap(); i++ {
		e := ecs.Entity(i)
		if !s.Alive(e) {
			continue
		}
		pos, _ := model.Pos(s, e)
		p := [2]float64{pos.X, pos.Y}
		switch {
		case s.Has(e, model.CVillager):
			v := model.VillagerOf(s, e)
			vs := snapshot.VillagerV1{
				ID:          uint32(e),
				Name:        v.Name,
				Pos:         p,
				Food:        v.Needs.Food,
				Rest:        v.Needs.Rest,
				Bladder:     v.Needs.Bladder,
				Movement:    v.Traits.Movement,
				Pickup:      v.Traits.Pickup,
				Work:        v.Traits.Work,
				Harvest:     v.Traits.Harvest,
				CarryWeight: v.Traits.CarryWeight,
				Priorities:  append([]string(nil), v.Priorities...),
				HasCenter:   v.HasCenter,
				Center:      [2]int{v.Center.X, v.Center.Y},
				Inventory:   exportBucket(model.Inventory(s, e)),
			}
			if r := runnerOf(s, e); r != nil {
				vs.Runner = exportRunner(r)
			}
			snap.Villagers = append(snap.Villagers, vs)
		case s.Has(e, model.CBuilding):
			b := model.BuildingOf(s, e)
			snap.Buildings = append(snap.Buildings, snapshot.BuildingV1{
				ID:           uint32(e),
				Template:     b.Template,
				Pos:          p,
				Built:        b.Built,
				WorkLeft:     b.WorkLeft,
				ClaimedBy:    claimedBy(s, e),
				Inventory:    exportBucket(model.Inventory(s, e)),
				Requirements: exportBucket(b.Requirements),
			})
		case s.Has(e, model.CPile):
			snap.Piles = append(snap.Piles, snapshot.PileV1{
				ID:        uint32(e),
				Pos:       p,
				Waste:     model.PileOf(s, e).Waste,
				Inventory: exportBucket(model.Inventory(s, e)),
			})
		case s.Has(e, model.CPlot):
			pl := model.PlotOf(s, e)
			snap.Plots = append(snap.Plots, snapshot.PlotV1{
				ID:        uint32(e),
				Pos:       p,
				Crop:      pl.Crop,
				Plant:     uint32(pl.Plant),
				ClaimedBy: claimedBy(s, e),
			})
		case s.Has(e, model.CPlant):
			pl := model.PlantOf(s, e)
			snap.Plants = append(snap.Plants, snapshot.PlantV1{
				ID:        uint32(e),
				Pos:       p,
				Crop:      pl.Crop,
				Growth:    pl.Growth,
				Plot:      uint32(pl.Plot),
				ClaimedBy: claimedBy(s, e),
			})
		}
	}
	return snap
}

func claimedBy(s *ecs.Store, e ecs.Entity) uint32 {
	if wk := model.WorkableOf(s, e); wk != nil {
		return uint32(wk.ClaimedBy)
	}
	return 0
}

func exportBucket(b *resources.Bucket) []snapshot.EntryV1 {
	if b == nil {
		return nil
	}
	var out []snapshot.EntryV1
	for _, en := range b.Entries() {
		out = append(out, snapshot.EntryV1{Kind: en.Quantity.Kind.Name, Amount: en.Quantity.Amount, Marker: uint64(en.Marker)})
	}
	return out
}

func exportRunner(r *plans.Runner) *snapshot.RunnerV1 {
	out := &snapshot.RunnerV1{Job: r.Job, Outer: r.Outer}
	for _, h := range r.Plans {
		hp := snapshot.HighPlanV1{
			Kind:    uint8(h.Kind),
			Target:  uint32(h.Target),
			Point:   [2]int{h.Point.X, h.Point.Y},
			Marker:  uint64(h.Marker),
			Pledged: h.Pledged,
			Claimed: h.Claimed,
			Stage:   h.Stage,
			Cursor:  h.Cursor,
		}
		for _, src := range h.Sources {
			hp.Sources = append(hp.Sources, uint32(src))
		}
		out.Plans = append(out.Plans, hp)
	}
	if l := r.Low; l != nil {
		lp := &snapshot.LowPlanV1{
			Kind:      uint8(l.Kind),
			Index:     l.Index,
			Until:     l.Until,
			Src:       uint32(l.Src),
			SrcMarker: uint64(l.SrcMarker),
			Dst:       uint32(l.Dst),
			DstMarker: uint64(l.DstMarker),
			ClearDst:  l.ClearDst,
			Bed:       l.Bed,
			Ticks:     l.Ticks,
			Done:      l.Done,
		}
		for _, c := range l.Path {
			lp.Path = append(lp.Path, [2]int{c.X, c.Y})
		}
		out.Low = lp
	}
	return out
}

func cellOf(p [2]int) geom.Cell { return geom.Cell{X: p[0], Y: p[1]} }
