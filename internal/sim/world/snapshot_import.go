package world

import (
	"fmt"
	"log"

	"villagesim.ai/internal/persistence/snapshot"
	"villagesim.ai/internal/sim/catalogs"
	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/geom"
	"villagesim.ai/internal/sim/model"
	"villagesim.ai/internal/sim/plans"
	"villagesim.ai/internal/sim/resources"
	"villagesim.ai/internal/sim/tuning"
)

// NewFromSnapshot resumes a world. Run parameters come from the snapshot;
// rates and durations still come from tune. The world continues at the
// tick after the one the snapshot was taken at.
func NewFromSnapshot(cfg WorldConfig, tune tuning.Tuning, cats *catalogs.Catalogs, logger *log.Logger, snap snapshot.SnapshotV1) (*World, error) {
	if snap.Header.Version != snapshot.Version {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	if cfg.ID == "" {
		cfg.ID = snap.Header.RunID
	}
	cfg.Seed = snap.Seed
	cfg.TickRateHz = snap.TickRateHz
	cfg.TickSeconds = snap.TickSeconds
	tune.Map = tuning.MapSize{Width: snap.Terrain.W, Height: snap.Terrain.H}

	w, err := newEmpty(cfg, tune, cats, logger)
	if err != nil {
		return nil, err
	}
	if err := w.ImportSnapshot(snap); err != nil {
		return nil, err
	}
	w.cacheTerrain()
	return w, nil
}

// ImportSnapshot loads snap into an empty world.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	ctx := w.ctx
	s := ctx.Store
	if s.Cap() != 0 {
		return fmt.Errorf("import snapshot: world is not empty")
	}
	if d := w.catalogs.Digest(); snap.CatalogDigest != "" && snap.CatalogDigest != d {
		w.log.Printf("[snapshot] catalog digest changed since tick %d (%s -> %s)", snap.Header.Tick, short(snap.CatalogDigest), short(d))
	}
	if err := ctx.Terrain.Restore(snap.Terrain.Ground, snap.Terrain.Above); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}

	for _, b := range snap.Buildings {
		def, ok := w.catalogs.Buildings.ByID[b.Template]
		if !ok {
			return fmt.Errorf("import snapshot: building %d: unknown template %q", b.ID, b.Template)
		}
		inv, err := w.importBucket(b.Inventory)
		if err != nil {
			return fmt.Errorf("import snapshot: building %d: %w", b.ID, err)
		}
		reqs, err := w.importBucket(b.Requirements)
		if err != nil {
			return fmt.Errorf("import snapshot: building %d: %w", b.ID, err)
		}
		e := ecs.Entity(b.ID)
		s.Restore(e)
		s.Add(e, model.CLocation, &model.Location{Pos: vec(b.Pos)})
		s.Add(e, model.CInventory, inv)
		s.Add(e, model.CBuilding, &model.Building{
			Template:     def.ID,
			Built:        b.Built,
			WorkLeft:     b.WorkLeft,
			Storage:      def.Storage,
			Bed:          def.Bed,
			Toilet:       def.Toilet,
			Requirements: reqs,
		})
		s.Add(e, model.CWorkable, &model.Workable{ClaimedBy: ecs.Entity(b.ClaimedBy)})
	}
	for _, p := range snap.Piles {
		inv, err := w.importBucket(p.Inventory)
		if err != nil {
			return fmt.Errorf("import snapshot: pile %d: %w", p.ID, err)
		}
		e := ecs.Entity(p.ID)
		s.Restore(e)
		s.Add(e, model.CLocation, &model.Location{Pos: vec(p.Pos)})
		s.Add(e, model.CInventory, inv)
		s.Add(e, model.CPile, &model.Pile{Waste: p.Waste})
	}
	for _, p := range snap.Plots {
		e := ecs.Entity(p.ID)
		s.Restore(e)
		s.Add(e, model.CLocation, &model.Location{Pos: vec(p.Pos)})
		s.Add(e, model.CPlot, &model.Plot{Crop: p.Crop, Plant: ecs.Entity(p.Plant)})
		s.Add(e, model.CWorkable, &model.Workable{ClaimedBy: ecs.Entity(p.ClaimedBy)})
	}
	for _, p := range snap.Plants {
		e := ecs.Entity(p.ID)
		s.Restore(e)
		s.Add(e, model.CLocation, &model.Location{Pos: vec(p.Pos)})
		s.Add(e, model.CPlant, &model.Plant{Crop: p.Crop, Growth: p.Growth, Plot: ecs.Entity(p.Plot)})
		s.Add(e, model.CWorkable, &model.Workable{ClaimedBy: ecs.Entity(p.ClaimedBy)})
	}
	for _, v := range snap.Villagers {
		inv, err := w.importBucket(v.Inventory)
		if err != nil {
			return fmt.Errorf("import snapshot: villager %s: %w", v.Name, err)
		}
		e := ecs.Entity(v.ID)
		s.Restore(e)
		s.Add(e, model.CLocation, &model.Location{Pos: vec(v.Pos)})
		s.Add(e, model.CInventory, inv)
		s.Add(e, model.CVillager, &model.Villager{
			Name:  v.Name,
			Needs: model.Needs{Food: v.Food, Rest: v.Rest, Bladder: v.Bladder},
			Traits: model.Traits{
				Movement:    v.Movement,
				Pickup:      v.Pickup,
				Work:        v.Work,
				Harvest:     v.Harvest,
				CarryWeight: v.CarryWeight,
			},
			Priorities: append([]string(nil), v.Priorities...),
			HasCenter:  v.HasCenter,
			Center:     cellOf(v.Center),
		})
		if v.Runner != nil {
			s.Add(e, model.CRunner, importRunner(e, v.Runner))
		}
	}

	// Keep dead handles dead: new entities continue after the highest
	// handle the snapshotted world ever used.
	if last := ecs.Entity(snap.EntityCap); int(last) > s.Cap() {
		s.Restore(last)
		s.Destroy(last)
	}
	ctx.Markers.Restore(snap.MarkerLast)
	ctx.Clock.Elapsed = snap.Elapsed
	w.tick.Store(snap.Header.Tick + 1)
	return nil
}

func (w *World) importBucket(entries []snapshot.EntryV1) (*resources.Bucket, error) {
	b := resources.NewBucket()
	for _, en := range entries {
		k, ok := w.catalogs.Kind(en.Kind)
		if !ok {
			return nil, fmt.Errorf("unknown resource %q", en.Kind)
		}
		b.Add(resources.Q(k, en.Amount), resources.Marker(en.Marker))
	}
	return b, nil
}

func importRunner(agent ecs.Entity, rv *snapshot.RunnerV1) *plans.Runner {
	r := &plans.Runner{Agent: agent, Job: rv.Job, Outer: rv.Outer}
	for _, hp := range rv.Plans {
		h := plans.HighLevelPlan{
			Kind:    plans.HighKind(hp.Kind),
			Agent:   agent,
			Target:  ecs.Entity(hp.Target),
			Point:   cellOf(hp.Point),
			Marker:  resources.Marker(hp.Marker),
			Pledged: hp.Pledged,
			Claimed: hp.Claimed,
			Stage:   hp.Stage,
			Cursor:  hp.Cursor,
		}
		for _, src := range hp.Sources {
			h.Sources = append(h.Sources, ecs.Entity(src))
		}
		r.Plans = append(r.Plans, h)
	}
	if lp := rv.Low; lp != nil {
		l := &plans.LowLevelPlan{
			Kind:      plans.LowKind(lp.Kind),
			Agent:     agent,
			Index:     lp.Index,
			Until:     lp.Until,
			Src:       ecs.Entity(lp.Src),
			SrcMarker: resources.Marker(lp.SrcMarker),
			Dst:       ecs.Entity(lp.Dst),
			DstMarker: resources.Marker(lp.DstMarker),
			ClearDst:  lp.ClearDst,
			Bed:       lp.Bed,
			Ticks:     lp.Ticks,
			Done:      lp.Done,
		}
		for _, c := range lp.Path {
			l.Path = append(l.Path, cellOf(c))
		}
		r.Low = l
	}
	return r
}

func vec(p [2]float64) geom.Vec2 { return geom.Vec2{X: p[0], Y: p[1]} }

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
