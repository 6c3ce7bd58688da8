package jobs

import (
	"testing"

	"villagesim.ai/internal/sim/catalogs"
	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/geom"
	"villagesim.ai/internal/sim/model"
	"villagesim.ai/internal/sim/plans"
	"villagesim.ai/internal/sim/resources"
	"villagesim.ai/internal/sim/simctx"
	"villagesim.ai/internal/sim/terrain"
	"villagesim.ai/internal/sim/tuning"
)

type env struct {
	t    *testing.T
	ctx  *simctx.Context
	cats *catalogs.Catalogs
}

func newEnv(t *testing.T) *env {
	cats := catalogs.MustDefault()
	ctx := simctx.New(ecs.NewStore(), terrain.New(16, 16), cats, tuning.Defaults(), nil)
	return &env{t: t, ctx: ctx, cats: cats}
}

func (e *env) q(id string, n float64) resources.Quantity {
	k, ok := e.cats.Kind(id)
	if !ok {
		e.t.Fatalf("unknown kind %s", id)
	}
	return resources.Q(k, n)
}

func (e *env) villager(name string, at geom.Cell, carry float64) ecs.Entity {
	return model.SpawnVillager(e.ctx.Store, model.Villager{
		Name:   name,
		Needs:  model.Needs{Food: 100, Rest: 100, Bladder: 100},
		Traits: model.Traits{Movement: 1, Pickup: 1, Work: 1, Harvest: 1, CarryWeight: carry},
	}, at)
}

func (e *env) building(template string, at geom.Cell, built bool, contents ...resources.Quantity) ecs.Entity {
	def := e.cats.Buildings.ByID[template]
	reqs, err := e.cats.Bucket(def.Requirements)
	if err != nil {
		e.t.Fatal(err)
	}
	return model.SpawnBuilding(e.ctx.Store, def, reqs, at, built, resources.NewBucket(contents...))
}

func (e *env) inv(x ecs.Entity) *resources.Bucket { return model.Inventory(e.ctx.Store, x) }

func (e *env) markerCount() int {
	n := 0
	e.ctx.Store.Each(model.CInventory, func(x ecs.Entity) bool {
		n += len(e.inv(x).Markers())
		return true
	})
	return n
}

type countingStrategy struct {
	kind    string
	succeed bool
	calls   int
}

func (c *countingStrategy) Kind() string { return c.kind }

func (c *countingStrategy) TryToRun(_ *simctx.Context, agent ecs.Entity) ([]plans.HighLevelPlan, bool) {
	c.calls++
	if !c.succeed {
		return nil, false
	}
	return []plans.HighLevelPlan{plans.NewEat(agent, 0)}, true
}

func TestSelectorShortCircuitsOnFirstSuccess(t *testing.T) {
	e := newEnv(t)
	a := e.villager("Ada", geom.Cell{}, 20)
	em := &countingStrategy{kind: KindEmergency}
	plant := &countingStrategy{kind: KindPlant, succeed: true}
	rest := []*countingStrategy{
		{kind: KindBuild, succeed: true},
		{kind: KindHaul, succeed: true},
		{kind: KindHarvest, succeed: true},
		{kind: KindStorage, succeed: true},
	}
	sel := NewSelector(em, plant, rest[0], rest[1], rest[2], rest[3])

	_, kind := sel.Select(e.ctx, a, []string{KindPlant, KindBuild, KindHaul, KindHarvest, KindStorage})
	if kind != KindPlant {
		t.Fatalf("kind=%s", kind)
	}
	if em.calls != 1 || plant.calls != 1 {
		t.Fatalf("emergency=%d plant=%d", em.calls, plant.calls)
	}
	for _, s := range rest {
		if s.calls != 0 {
			t.Fatalf("%s evaluated %d times after plant succeeded", s.kind, s.calls)
		}
	}
}

func TestSelectorEmergencyIsAlwaysFirst(t *testing.T) {
	e := newEnv(t)
	a := e.villager("Ada", geom.Cell{}, 20)
	em := &countingStrategy{kind: KindEmergency, succeed: true}
	build := &countingStrategy{kind: KindBuild, succeed: true}
	_, kind := NewSelector(em, build).Select(e.ctx, a, []string{KindBuild})
	if kind != KindEmergency || build.calls != 0 {
		t.Fatalf("kind=%s build calls=%d", kind, build.calls)
	}
}

func TestSelectorWandersAroundRememberedCenter(t *testing.T) {
	e := newEnv(t)
	a := e.villager("Ada", geom.Cell{X: 8, Y: 8}, 20)
	sel := NewSelector(&countingStrategy{kind: KindEmergency})
	ps, kind := sel.Select(e.ctx, a, nil)
	if kind != KindWander || len(ps) != 1 || ps[0].Kind != plans.Wander {
		t.Fatalf("kind=%s plans=%v", kind, ps)
	}
	v := model.VillagerOf(e.ctx.Store, a)
	if !v.HasCenter || v.Center != (geom.Cell{X: 8, Y: 8}) {
		t.Fatalf("center=%v has=%v", v.Center, v.HasCenter)
	}
	r := e.ctx.Actions.WanderRadius
	for tick := uint64(0); tick < 20; tick++ {
		e.ctx.Tick = tick
		// Moving the villager must not move the center.
		model.LocationOf(e.ctx.Store, a).Pos = geom.Vec2{X: 9, Y: 9}
		ps, _ := sel.Select(e.ctx, a, nil)
		p := ps[0].Point
		if p.X < 8-r || p.X > 8+r || p.Y < 8-r || p.Y > 8+r {
			t.Fatalf("wander target %v strays from center", p)
		}
	}
	first, _ := sel.Select(e.ctx, a, nil)
	second, _ := sel.Select(e.ctx, a, nil)
	if first[0].Point != second[0].Point {
		t.Fatalf("wander target not deterministic")
	}

	job := NewSelector(&countingStrategy{kind: KindEmergency}, &countingStrategy{kind: KindBuild, succeed: true})
	job.Select(e.ctx, a, []string{KindBuild})
	if v.HasCenter {
		t.Fatalf("center kept after a real job started")
	}
}

func TestHaulPledgesSoSecondHaulerTakesRemainder(t *testing.T) {
	e := newEnv(t)
	a := e.villager("Ada", geom.Cell{}, 10)
	b := e.villager("Bram", geom.Cell{X: 1}, 20)
	store := e.building("stockpile", geom.Cell{X: 4}, true, e.q("wood", 12), e.q("stone", 6))
	site := e.building("house", geom.Cell{X: 8, Y: 8}, false)

	ps, ok := HaulStrategy{}.TryToRun(e.ctx, a)
	if !ok || len(ps) != 2 || ps[0].Kind != plans.Gather || ps[1].Kind != plans.DropOff || !ps[1].Pledged {
		t.Fatalf("first haul: ok=%v plans=%+v", ok, ps)
	}
	m1 := ps[0].Marker
	wood, _ := e.cats.Kind("wood")
	stone, _ := e.cats.Kind("stone")
	if got := e.inv(store).Amount(wood, m1); got != 5 {
		t.Fatalf("reserved %v wood within a 10 weight budget, want 5", got)
	}
	if got := e.inv(site).Amount(wood, m1); got != 5 {
		t.Fatalf("pledged %v wood, want 5", got)
	}

	ps, ok = HaulStrategy{}.TryToRun(e.ctx, b)
	if !ok {
		t.Fatalf("second hauler found nothing")
	}
	m2 := ps[0].Marker
	if m2 == m1 {
		t.Fatalf("marker reused")
	}
	if e.inv(store).Amount(wood, m2) != 1 || e.inv(store).Amount(stone, m2) != 2 {
		t.Fatalf("second reservation=%v", e.inv(store).GetQuantities(m2))
	}
	if _, ok := (HaulStrategy{}).TryToRun(e.ctx, b); ok {
		t.Fatalf("third haul despite fully pledged site")
	}
	if got := e.inv(store).Amount(wood, resources.Unmarked); got != 6 {
		t.Fatalf("unmarked wood=%v want 6", got)
	}
}

func TestBuildNeedsUnmarkedMaterials(t *testing.T) {
	e := newEnv(t)
	a := e.villager("Ada", geom.Cell{}, 20)
	b := e.villager("Bram", geom.Cell{X: 1}, 20)
	site := e.building("hut", geom.Cell{X: 3, Y: 3}, false)
	e.inv(site).Add(e.q("wood", 4), 99)

	if _, ok := (BuildStrategy{}).TryToRun(e.ctx, a); ok {
		t.Fatalf("built from pledged materials")
	}
	e.inv(site).Unmark(99)
	ps, ok := BuildStrategy{}.TryToRun(e.ctx, a)
	if !ok || ps[0].Kind != plans.Work || ps[0].Target != site {
		t.Fatalf("build: ok=%v plans=%+v", ok, ps)
	}
	if model.WorkableOf(e.ctx.Store, site).ClaimedBy != a {
		t.Fatalf("slot not claimed")
	}
	if _, ok := (BuildStrategy{}).TryToRun(e.ctx, b); ok {
		t.Fatalf("two builders on one slot")
	}
}

func TestPlantDeclinesWithoutSeedsAndLeavesNoMarkers(t *testing.T) {
	e := newEnv(t)
	a := e.villager("Ada", geom.Cell{}, 20)
	e.building("stockpile", geom.Cell{X: 2}, true, e.q("wood", 3))
	plot := model.SpawnPlot(e.ctx.Store, geom.Cell{X: 5, Y: 5}, "wheat")

	if _, ok := (PlantStrategy{}).TryToRun(e.ctx, a); ok {
		t.Fatalf("planted without seeds")
	}
	if e.markerCount() != 0 || !model.FreeSlot(e.ctx.Store, plot) {
		t.Fatalf("failed strategy changed state")
	}

	e.building("stockpile", geom.Cell{X: 3}, true, e.q("wheat_seeds", 2))
	ps, ok := PlantStrategy{}.TryToRun(e.ctx, a)
	if !ok || len(ps) != 2 || ps[0].Kind != plans.Gather || ps[1].Kind != plans.Plant {
		t.Fatalf("plant: ok=%v plans=%+v", ok, ps)
	}
}

func TestPlantDeclineKeepsEntryOrder(t *testing.T) {
	e := newEnv(t)
	a := e.villager("Ada", geom.Cell{}, 20)
	st := e.building("stockpile", geom.Cell{X: 2}, true, e.q("wheat_seeds", 0.5), e.q("wood", 10))
	model.SpawnPlot(e.ctx.Store, geom.Cell{X: 5, Y: 5}, "wheat")

	before := e.inv(st).Entries()
	if _, ok := (PlantStrategy{}).TryToRun(e.ctx, a); ok {
		t.Fatalf("planted with half a seed")
	}
	after := e.inv(st).Entries()
	if len(after) != len(before) {
		t.Fatalf("entries: got %+v want %+v", after, before)
	}
	for i := range before {
		if after[i].Marker != before[i].Marker || after[i].Quantity.Kind != before[i].Quantity.Kind ||
			after[i].Quantity.Amount != before[i].Quantity.Amount {
			t.Fatalf("entry %d: got %+v want %+v", i, after[i], before[i])
		}
	}
}

func TestPlantWithoutSeedsNeeded(t *testing.T) {
	e := newEnv(t)
	a := e.villager("Ada", geom.Cell{}, 20)
	model.SpawnPlot(e.ctx.Store, geom.Cell{X: 5, Y: 5}, "berry_bush")
	ps, ok := PlantStrategy{}.TryToRun(e.ctx, a)
	if !ok || len(ps) != 1 || ps[0].Kind != plans.Plant {
		t.Fatalf("plant: ok=%v plans=%+v", ok, ps)
	}
}

func TestHarvestNeedsStorage(t *testing.T) {
	e := newEnv(t)
	a := e.villager("Ada", geom.Cell{}, 20)
	plant := model.SpawnPlant(e.ctx.Store, geom.Cell{X: 4, Y: 4}, "berry_bush", 1, ecs.Nil)
	if _, ok := (HarvestStrategy{}).TryToRun(e.ctx, a); ok {
		t.Fatalf("harvest without storage")
	}
	st := e.building("stockpile", geom.Cell{X: 6, Y: 6}, true)
	ps, ok := HarvestStrategy{}.TryToRun(e.ctx, a)
	if !ok || ps[0].Target != plant || ps[1].Target != st || ps[0].Marker != ps[1].Marker {
		t.Fatalf("harvest: ok=%v plans=%+v", ok, ps)
	}
}

func TestHarvestSkipsPlantWithNoWayToStorage(t *testing.T) {
	e := newEnv(t)
	// Row 0 is a corridor and Ada's own cell is a one-way ford: the plant
	// west of her can be reached but nothing gets carried back across.
	for x := 0; x < 16; x++ {
		e.ctx.Terrain.SetGround(geom.Cell{X: x, Y: 1}, 0)
	}
	e.ctx.Terrain.SetGround(geom.Cell{X: 2}, 0)
	a := e.villager("Ada", geom.Cell{X: 2}, 20)
	model.SpawnPlant(e.ctx.Store, geom.Cell{X: 1}, "berry_bush", 1, ecs.Nil)
	far := model.SpawnPlant(e.ctx.Store, geom.Cell{X: 4}, "berry_bush", 1, ecs.Nil)
	st := e.building("stockpile", geom.Cell{X: 6}, true)

	ps, ok := HarvestStrategy{}.TryToRun(e.ctx, a)
	if !ok || ps[0].Target != far || ps[1].Target != st {
		t.Fatalf("harvest: ok=%v plans=%+v", ok, ps)
	}
}

func TestHarvestSkipsUnripe(t *testing.T) {
	e := newEnv(t)
	a := e.villager("Ada", geom.Cell{}, 20)
	e.building("stockpile", geom.Cell{X: 6, Y: 6}, true)
	model.SpawnPlant(e.ctx.Store, geom.Cell{X: 4, Y: 4}, "berry_bush", 0.5, ecs.Nil)
	if _, ok := (HarvestStrategy{}).TryToRun(e.ctx, a); ok {
		t.Fatalf("harvested an unripe plant")
	}
}

func TestStorageDropsCarriedGoodsFirst(t *testing.T) {
	e := newEnv(t)
	a := e.villager("Ada", geom.Cell{}, 20)
	st := e.building("stockpile", geom.Cell{X: 6, Y: 6}, true)
	model.SpawnPile(e.ctx.Store, geom.Cell{X: 2, Y: 2}, resources.NewBucket(e.q("wood", 3)), false)
	e.inv(a).Add(e.q("stone", 1), resources.Unmarked)

	ps, ok := StorageStrategy{}.TryToRun(e.ctx, a)
	if !ok || len(ps) != 1 || ps[0].Kind != plans.DropOff || ps[0].Target != st {
		t.Fatalf("storage: ok=%v plans=%+v", ok, ps)
	}
}

func TestStorageHaulsPileButNotWaste(t *testing.T) {
	e := newEnv(t)
	a := e.villager("Ada", geom.Cell{}, 4)
	e.building("stockpile", geom.Cell{X: 6, Y: 6}, true)
	model.SpawnPile(e.ctx.Store, geom.Cell{X: 1, Y: 1}, resources.NewBucket(e.q("waste", 1)), true)
	pile := model.SpawnPile(e.ctx.Store, geom.Cell{X: 2, Y: 2}, resources.NewBucket(e.q("wood", 3)), false)

	ps, ok := StorageStrategy{}.TryToRun(e.ctx, a)
	if !ok || len(ps) != 2 || ps[0].Sources[0] != pile {
		t.Fatalf("storage: ok=%v plans=%+v", ok, ps)
	}
	wood, _ := e.cats.Kind("wood")
	if got := e.inv(pile).Amount(wood, ps[0].Marker); got != 2 {
		t.Fatalf("reserved %v wood within a 4 weight budget, want 2", got)
	}
}

func TestEmergencyEatPrefersCarriedFood(t *testing.T) {
	e := newEnv(t)
	a := e.villager("Ada", geom.Cell{}, 20)
	model.VillagerOf(e.ctx.Store, a).Needs.Food = 1
	e.building("stockpile", geom.Cell{X: 2}, true, e.q("berries", 5))
	e.inv(a).Add(e.q("berries", 1), resources.Unmarked)

	ps, ok := Emergency{}.TryToRun(e.ctx, a)
	if !ok || len(ps) != 1 || ps[0].Kind != plans.Eat {
		t.Fatalf("eat: ok=%v plans=%+v", ok, ps)
	}
}

func TestEmergencyEatFetchesFromStorage(t *testing.T) {
	e := newEnv(t)
	a := e.villager("Ada", geom.Cell{}, 20)
	model.VillagerOf(e.ctx.Store, a).Needs.Food = 1
	st := e.building("stockpile", geom.Cell{X: 2}, true, e.q("wheat", 5))

	ps, ok := Emergency{}.TryToRun(e.ctx, a)
	if !ok || len(ps) != 2 || ps[0].Kind != plans.Gather || ps[0].Sources[0] != st || ps[1].Kind != plans.Eat {
		t.Fatalf("eat: ok=%v plans=%+v", ok, ps)
	}
}

func TestEmergencyRestClaimsBedOrRestsOnTheSpot(t *testing.T) {
	e := newEnv(t)
	a := e.villager("Ada", geom.Cell{}, 20)
	b := e.villager("Bram", geom.Cell{X: 1}, 20)
	model.VillagerOf(e.ctx.Store, a).Needs.Rest = 1
	model.VillagerOf(e.ctx.Store, b).Needs.Rest = 1
	bed := e.building("hut", geom.Cell{X: 5, Y: 5}, true)

	ps, ok := Emergency{}.TryToRun(e.ctx, a)
	if !ok || ps[0].Kind != plans.Rest || ps[0].Target != bed {
		t.Fatalf("rest: ok=%v plans=%+v", ok, ps)
	}
	ps, ok = Emergency{}.TryToRun(e.ctx, b)
	if !ok || ps[0].Kind != plans.Rest || ps[0].Target != ecs.Nil {
		t.Fatalf("second rester got %+v", ps)
	}
}

func TestEmergencyIgnoresSatisfiedNeeds(t *testing.T) {
	e := newEnv(t)
	a := e.villager("Ada", geom.Cell{}, 20)
	if _, ok := (Emergency{}).TryToRun(e.ctx, a); ok {
		t.Fatalf("emergency without a need")
	}
}
