package world

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"villagesim.ai/internal/observerproto"
	"villagesim.ai/internal/persistence/snapshot"
	"villagesim.ai/internal/sim/catalogs"
	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/geom"
	"villagesim.ai/internal/sim/jobs"
	"villagesim.ai/internal/sim/model"
	"villagesim.ai/internal/sim/plans"
	"villagesim.ai/internal/sim/resources"
	"villagesim.ai/internal/sim/simctx"
	"villagesim.ai/internal/sim/tuning"
)

func newTestWorld(t *testing.T, edit func(*tuning.Tuning)) *World {
	t.Helper()
	tune := tuning.Defaults()
	if edit != nil {
		edit(&tune)
	}
	w, err := New(WorldConfig{ID: "test", Seed: 42}, tune, catalogs.MustDefault(), nil)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

func emptyLayout(t *tuning.Tuning) { t.Layout = tuning.Layout{} }

func findBuilding(w *World, template string) ecs.Entity {
	s := w.ctx.Store
	for _, e := range s.Query(model.CBuilding) {
		if model.BuildingOf(s, e).Template == template {
			return e
		}
	}
	return ecs.Nil
}

func markerCount(w *World) int {
	n := 0
	w.ctx.Store.Each(model.CInventory, func(e ecs.Entity) bool {
		n += len(model.Inventory(w.ctx.Store, e).Markers())
		return true
	})
	return n
}

func TestNew_SpawnsLayout(t *testing.T) {
	w := newTestWorld(t, nil)
	s := w.ctx.Store
	if got := s.Count(model.AVillager); got != 3 {
		t.Fatalf("villagers=%d want 3", got)
	}
	if got := s.Count(model.CBuilding); got != 4 {
		t.Fatalf("buildings=%d want 4", got)
	}
	house := findBuilding(w, "house")
	if house == ecs.Nil || model.BuildingOf(s, house).Built {
		t.Fatalf("expected an unbuilt house site")
	}
	if w.ctx.Terrain.Passable(geom.Cell{X: 23, Y: 3}) {
		t.Fatalf("pond should be impassable")
	}
	if got := w.ctx.Terrain.MoveModifier(geom.Cell{X: 5, Y: 16}); got != 0.5 {
		t.Fatalf("mud modifier=%v", got)
	}
	bram := s.Query(model.AVillager)[1]
	if p := model.VillagerOf(s, bram).Priorities; len(p) == 0 || p[0] != "haul" {
		t.Fatalf("bram priorities=%v", p)
	}
}

func TestNew_RejectsUnknownTemplate(t *testing.T) {
	tune := tuning.Defaults()
	tune.Layout.Buildings = append(tune.Layout.Buildings, tuning.BuildingSpawn{Template: "castle", X: 1, Y: 1})
	if _, err := New(WorldConfig{}, tune, catalogs.MustDefault(), nil); err == nil {
		t.Fatalf("expected error for unknown template")
	}
}

func TestDeterminism_SameSeedSameDigest(t *testing.T) {
	w1 := newTestWorld(t, nil)
	w2 := newTestWorld(t, nil)
	for i := 0; i < 300; i++ {
		tick1, d1 := w1.StepOnce()
		tick2, d2 := w2.StepOnce()
		if tick1 != tick2 || d1 != d2 {
			t.Fatalf("digest mismatch at tick %d: %s vs %s", tick1, d1, d2)
		}
	}
}

func TestWorld_DefaultVillageBuildsHouse(t *testing.T) {
	w := newTestWorld(t, nil)
	house := findBuilding(w, "house")
	for i := 0; i < 800; i++ {
		w.StepOnce()
		if model.BuildingOf(w.ctx.Store, house).Built {
			if m := w.Metrics(); m.Started == 0 || m.Finished == 0 {
				t.Fatalf("metrics not updated: %+v", m)
			}
			return
		}
	}
	t.Fatalf("house not built after 800 ticks")
}

func TestSystemNeeds_Decay(t *testing.T) {
	w := newTestWorld(t, nil)
	w.RunTicks(10) // 5 simulated seconds
	v := model.VillagerOf(w.ctx.Store, w.ctx.Store.Query(model.AVillager)[0])
	if math.Abs(v.Needs.Food-(100-0.25*5)) > 1e-9 {
		t.Fatalf("food=%v", v.Needs.Food)
	}
	if math.Abs(v.Needs.Bladder-(100-0.4*5)) > 1e-9 {
		t.Fatalf("bladder=%v", v.Needs.Bladder)
	}
}

func TestSystemGrowth_RipensOverGrowSeconds(t *testing.T) {
	w := newTestWorld(t, func(tn *tuning.Tuning) {
		emptyLayout(tn)
		tn.Layout.Plants = []tuning.PlantSpawn{{X: 1, Y: 1, Crop: "wheat"}}
	})
	plant := w.ctx.Store.Query(model.CPlant)[0]
	w.RunTicks(20)
	if g := model.PlantOf(w.ctx.Store, plant).Growth; math.Abs(g-10.0/60) > 1e-9 {
		t.Fatalf("growth=%v want %v", g, 10.0/60)
	}
	w.RunTicks(200)
	if g := model.PlantOf(w.ctx.Store, plant).Growth; g != 1 {
		t.Fatalf("growth=%v want capped at 1", g)
	}
}

func TestSystemPiles_WasteRotsAndEmptyPilesVanish(t *testing.T) {
	w := newTestWorld(t, emptyLayout)
	s := w.ctx.Store
	waste, _ := w.catalogs.Kind("waste")
	wood, _ := w.catalogs.Kind("wood")
	rotting := model.SpawnPile(s, geom.Cell{X: 1, Y: 1}, resources.NewBucket(resources.Q(waste, 0.01)), true)
	empty := model.SpawnPile(s, geom.Cell{X: 2, Y: 1}, nil, false)
	kept := model.SpawnPile(s, geom.Cell{X: 3, Y: 1}, resources.NewBucket(resources.Q(wood, 1)), false)

	w.StepOnce()
	if s.Alive(rotting) || s.Alive(empty) {
		t.Fatalf("expected rotted and empty piles to be removed")
	}
	if !s.Alive(kept) {
		t.Fatalf("wood pile removed")
	}
}

type scriptStrategy struct {
	build func(ctx *simctx.Context, agent ecs.Entity) []plans.HighLevelPlan
}

func (s scriptStrategy) Kind() string { return "script" }

func (s scriptStrategy) TryToRun(ctx *simctx.Context, agent ecs.Entity) ([]plans.HighLevelPlan, bool) {
	ps := s.build(ctx, agent)
	return ps, len(ps) > 0
}

func TestSystemAgents_AbortReleasesReservations(t *testing.T) {
	w := newTestWorld(t, func(tn *tuning.Tuning) {
		emptyLayout(tn)
		tn.Layout.Villagers = []tuning.VillagerSpawn{{Name: "Ada", X: 1, Y: 1}}
		tn.Layout.Buildings = []tuning.BuildingSpawn{{Template: "stockpile", X: 4, Y: 4, Built: true, Contents: []tuning.Stack{{Kind: "wood", Amount: 5}}}}
		tn.Layout.Piles = []tuning.PileSpawn{{X: 6, Y: 6, Contents: []tuning.Stack{{Kind: "stone", Amount: 1}}}}
	})
	s := w.ctx.Store
	store := findBuilding(w, "stockpile")
	pile := s.Query(model.APile)[0]
	wood, _ := w.catalogs.Kind("wood")

	var logged []TickLogEntry
	w.SetTickLogger(tickLoggerFunc(func(e TickLogEntry) error {
		logged = append(logged, e)
		return nil
	}))
	w.SetSelector(jobs.NewSelector(scriptStrategy{build: func(ctx *simctx.Context, agent ecs.Entity) []plans.HighLevelPlan {
		m := ctx.Markers.Next()
		inv := model.Inventory(ctx.Store, store)
		if err := inv.Remove(resources.Q(wood, 2), resources.Unmarked); err != nil {
			t.Fatalf("reserve: %v", err)
		}
		inv.Add(resources.Q(wood, 2), m)
		// A pile is not workable.
		return []plans.HighLevelPlan{plans.NewWork(agent, pile, m)}
	}}))

	w.StepOnce()

	if markerCount(w) != 0 {
		t.Fatalf("markers left after abort")
	}
	if got := model.Inventory(s, store).Amount(wood, resources.Unmarked); got != 5 {
		t.Fatalf("unmarked wood=%v want 5", got)
	}
	if s.Count(model.CRunner) != 0 {
		t.Fatalf("aborted runner not removed")
	}
	if len(logged) != 1 || len(logged[0].Events) != 2 {
		t.Fatalf("events: %+v", logged)
	}
	ev := logged[0].Events[1]
	if ev.Event != EventAborted || !strings.Contains(ev.Error, plans.ErrUnknownWorkTarget.Error()) {
		t.Fatalf("abort event: %+v", ev)
	}
	if w.Metrics().Aborted != 1 {
		t.Fatalf("metrics: %+v", w.Metrics())
	}
}

type tickLoggerFunc func(TickLogEntry) error

func (f tickLoggerFunc) WriteTick(e TickLogEntry) error { return f(e) }

func TestStep_TickLogDigestMatchesStepOnce(t *testing.T) {
	w := newTestWorld(t, nil)
	var last TickLogEntry
	w.SetTickLogger(tickLoggerFunc(func(e TickLogEntry) error {
		last = e
		return nil
	}))
	tick, digest := w.StepOnce()
	if last.Tick != tick || last.Digest != digest {
		t.Fatalf("log %d/%s vs step %d/%s", last.Tick, last.Digest, tick, digest)
	}
	started := 0
	for _, ev := range last.Events {
		if ev.Event == EventStarted {
			started++
		}
	}
	if started != 3 {
		t.Fatalf("started=%d want 3", started)
	}
}

func TestStep_SnapshotSinkEveryN(t *testing.T) {
	w := newTestWorld(t, nil)
	w.cfg.SnapshotEveryTicks = 5
	sink := make(chan snapshot.SnapshotV1, 4)
	w.SetSnapshotSink(sink)
	w.RunTicks(11)
	var ticks []uint64
	for len(sink) > 0 {
		ticks = append(ticks, (<-sink).Header.Tick)
	}
	if len(ticks) != 2 || ticks[0] != 5 || ticks[1] != 10 {
		t.Fatalf("snapshot ticks=%v", ticks)
	}
}

func TestSnapshot_ResumeMatchesUninterrupted(t *testing.T) {
	w1 := newTestWorld(t, nil)
	w1.RunTicks(57)
	snap := w1.ExportSnapshot(w1.CurrentTick() - 1)
	if snap.MarkerLast == 0 {
		t.Fatalf("expected markers to have been minted")
	}

	path := snapshot.Path(t.TempDir(), snap.Header.Tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	w2, err := NewFromSnapshot(WorldConfig{}, tuning.Defaults(), catalogs.MustDefault(), nil, loaded)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if w2.CurrentTick() != w1.CurrentTick() {
		t.Fatalf("tick %d vs %d", w2.CurrentTick(), w1.CurrentTick())
	}
	if w2.ID() != "test" {
		t.Fatalf("run id=%q", w2.ID())
	}
	if w1.stateDigest(snap.Header.Tick) != w2.stateDigest(snap.Header.Tick) {
		t.Fatalf("digest differs right after import")
	}
	for i := 0; i < 200; i++ {
		t1, d1 := w1.StepOnce()
		t2, d2 := w2.StepOnce()
		if t1 != t2 || d1 != d2 {
			t.Fatalf("diverged at tick %d", t1)
		}
	}

	// New entities continue after the old handles.
	e := w2.ctx.Store.Create()
	if int(e) <= int(loaded.EntityCap) {
		t.Fatalf("handle %d reused (cap %d)", e, loaded.EntityCap)
	}
}

func TestImportSnapshot_RejectsNonEmptyWorld(t *testing.T) {
	w := newTestWorld(t, nil)
	if err := w.ImportSnapshot(w.ExportSnapshot(0)); err == nil {
		t.Fatalf("expected error importing into a populated world")
	}
}

func TestNewFromSnapshot_UnknownResource(t *testing.T) {
	w := newTestWorld(t, nil)
	snap := w.ExportSnapshot(0)
	snap.Piles[0].Inventory[0].Kind = "gold"
	_, err := NewFromSnapshot(WorldConfig{}, tuning.Defaults(), catalogs.MustDefault(), nil, snap)
	if err == nil || !strings.Contains(err.Error(), "gold") {
		t.Fatalf("err=%v", err)
	}
}

func TestObservers_ReceiveTickFrames(t *testing.T) {
	w := newTestWorld(t, nil)
	out := make(chan []byte, 4)
	w.handleObserverJoin(ObserverJoinRequest{SessionID: "O1", TickOut: out})
	focus := make(chan []byte, 4)
	ada := w.ctx.Store.Query(model.AVillager)[0]
	w.handleObserverJoin(ObserverJoinRequest{SessionID: "O2", TickOut: focus, FocusAgent: uint32(ada)})

	w.StepOnce()

	var msg observerproto.TickMsg
	if err := json.Unmarshal(<-out, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != "TICK" || msg.Tick != 0 || len(msg.Agents) != 3 || len(msg.Buildings) != 4 {
		t.Fatalf("frame: %+v", msg)
	}
	busy := 0
	for _, a := range msg.Agents {
		if a.Job != "" && a.HighPlan != "" && a.LowPlan != "" {
			busy++
		}
	}
	if busy != 3 {
		t.Fatalf("agents without plans: %+v", msg.Agents)
	}
	if len(msg.Events) != 3 {
		t.Fatalf("events=%d", len(msg.Events))
	}

	var one observerproto.TickMsg
	if err := json.Unmarshal(<-focus, &one); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(one.Agents) != 1 || one.Agents[0].ID != uint32(ada) {
		t.Fatalf("focus frame agents=%+v", one.Agents)
	}

	w.handleObserverLeave("O1")
	if _, ok := <-out; ok {
		t.Fatalf("expected closed channel after leave")
	}
}

func TestSendLatest_DropsOldest(t *testing.T) {
	ch := make(chan []byte, 1)
	sendLatest(ch, []byte("a"))
	sendLatest(ch, []byte("b"))
	if got := string(<-ch); got != "b" {
		t.Fatalf("got %q", got)
	}
}

func TestHandleSnapshotRequest(t *testing.T) {
	w := newTestWorld(t, nil)

	resp := make(chan snapshotResp, 1)
	w.handleSnapshotRequest(snapshotReq{resp: resp})
	if r := <-resp; r.err == nil {
		t.Fatalf("expected error before the first tick")
	}

	w.RunTicks(3)
	w.handleSnapshotRequest(snapshotReq{resp: resp})
	if r := <-resp; !errors.Is(r.err, ErrNoSnapshotSink) {
		t.Fatalf("err=%v", r.err)
	}

	sink := make(chan snapshot.SnapshotV1, 1)
	w.SetSnapshotSink(sink)
	w.handleSnapshotRequest(snapshotReq{resp: resp})
	if r := <-resp; r.err != nil || r.tick != 2 {
		t.Fatalf("resp=%+v", r)
	}
	if snap := <-sink; snap.Header.Tick != 2 {
		t.Fatalf("snapshot tick=%d", snap.Header.Tick)
	}

	sink <- snapshot.SnapshotV1{}
	w.handleSnapshotRequest(snapshotReq{resp: resp})
	if r := <-resp; !errors.Is(r.err, ErrSnapshotBusy) {
		t.Fatalf("err=%v", r.err)
	}
}

func TestRequestSnapshot_FromRunningWorld(t *testing.T) {
	tune := tuning.Defaults()
	w, err := New(WorldConfig{ID: "live", TickRateHz: 50}, tune, catalogs.MustDefault(), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	sink := make(chan snapshot.SnapshotV1, 1)
	w.SetSnapshotSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(2 * time.Second)
	for w.CurrentTick() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer rcancel()
	tick, err := w.RequestSnapshot(rctx)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	snap := <-sink
	if snap.Header.Tick != tick || snap.Header.RunID != "live" {
		t.Fatalf("snapshot header=%+v tick=%d", snap.Header, tick)
	}
}
