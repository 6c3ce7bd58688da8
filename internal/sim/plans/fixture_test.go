package plans

import (
	"testing"

	"villagesim.ai/internal/sim/catalogs"
	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/geom"
	"villagesim.ai/internal/sim/model"
	"villagesim.ai/internal/sim/resources"
	"villagesim.ai/internal/sim/simctx"
	"villagesim.ai/internal/sim/terrain"
	"villagesim.ai/internal/sim/tuning"
)

const dt = 0.5

type fixture struct {
	t    *testing.T
	ctx  *simctx.Context
	cats *catalogs.Catalogs
}

func newFixture(t *testing.T, w, h int) *fixture {
	t.Helper()
	cats := catalogs.MustDefault()
	tu := tuning.Defaults()
	ctx := simctx.New(ecs.NewStore(), terrain.New(w, h), cats, tu, nil)
	return &fixture{t: t, ctx: ctx, cats: cats}
}

func (f *fixture) kind(id string) *resources.Kind {
	k, ok := f.cats.Kind(id)
	if !ok {
		f.t.Fatalf("unknown kind %s", id)
	}
	return k
}

func (f *fixture) villager(at geom.Cell, movement float64) ecs.Entity {
	return model.SpawnVillager(f.ctx.Store, model.Villager{
		Name:   "Test",
		Needs:  model.Needs{Food: 50, Rest: 50, Bladder: 50},
		Traits: model.Traits{Movement: movement, Pickup: 1, Work: 1, Harvest: 1, CarryWeight: 20},
	}, at)
}

func (f *fixture) building(template string, at geom.Cell, built bool, contents ...resources.Quantity) ecs.Entity {
	def := f.cats.Buildings.ByID[template]
	reqs, err := f.cats.Bucket(def.Requirements)
	if err != nil {
		f.t.Fatal(err)
	}
	return model.SpawnBuilding(f.ctx.Store, def, reqs, at, built, resources.NewBucket(contents...))
}

func (f *fixture) inv(e ecs.Entity) *resources.Bucket {
	inv := model.Inventory(f.ctx.Store, e)
	if inv == nil {
		f.t.Fatalf("#%d has no inventory", e)
	}
	return inv
}

// run steps r until it reports completion and returns the tick count.
func (f *fixture) run(r *Runner) int {
	f.t.Helper()
	for tick := 1; tick < 10000; tick++ {
		f.ctx.Clock.Advance(dt)
		more, err := r.Step(f.ctx)
		if err != nil {
			f.t.Fatalf("tick %d: %v", tick, err)
		}
		if !more {
			return tick
		}
	}
	f.t.Fatalf("runner never finished")
	return 0
}

// requireNoMarkers fails if any inventory still holds a reservation.
func (f *fixture) requireNoMarkers() {
	f.t.Helper()
	f.ctx.Store.Each(model.CInventory, func(e ecs.Entity) bool {
		if ms := model.Inventory(f.ctx.Store, e).Markers(); len(ms) > 0 {
			f.t.Fatalf("#%d still holds markers %v", e, ms)
		}
		return true
	})
}
