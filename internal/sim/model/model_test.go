package model

import (
	"testing"

	"villagesim.ai/internal/sim/catalogs"
	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/geom"
)

func TestNearestSortsByDistanceThenHandle(t *testing.T) {
	s := ecs.NewStore()
	far := SpawnPile(s, geom.Cell{X: 9, Y: 0}, nil, false)
	a := SpawnPile(s, geom.Cell{X: 1, Y: 0}, nil, false)
	b := SpawnPile(s, geom.Cell{X: 0, Y: 1}, nil, false)
	SpawnPlot(s, geom.Cell{}, "wheat")

	got := Nearest(s, APile, geom.Vec2{}, nil)
	want := []ecs.Entity{a, b, far}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}

	got = Nearest(s, APile, geom.Vec2{}, func(e ecs.Entity) bool { return e != a })
	if len(got) != 2 || got[0] != b {
		t.Fatalf("filter ignored: %v", got)
	}
}

func TestPlantPlotLink(t *testing.T) {
	s := ecs.NewStore()
	plot := SpawnPlot(s, geom.Cell{X: 2, Y: 2}, "wheat")
	plant := SpawnPlant(s, geom.Cell{X: 2, Y: 2}, "wheat", 0.5, plot)
	if PlotOf(s, plot).Plant != plant {
		t.Fatalf("plot not linked")
	}
	RemovePlant(s, plant)
	if s.Alive(plant) || PlotOf(s, plot).Plant != ecs.Nil {
		t.Fatalf("plant not removed cleanly")
	}
}

func TestSpawnBuildingSite(t *testing.T) {
	s := ecs.NewStore()
	cats := catalogs.MustDefault()
	def := cats.Buildings.ByID["house"]
	reqs, err := cats.Bucket(def.Requirements)
	if err != nil {
		t.Fatal(err)
	}
	site := SpawnBuilding(s, def, reqs, geom.Cell{X: 3, Y: 3}, false, nil)
	b := BuildingOf(s, site)
	if b.Built || b.WorkLeft != def.WorkSeconds || !b.Bed {
		t.Fatalf("site=%+v", b)
	}
	if !s.Has(site, ABuilding) || !FreeSlot(s, site) {
		t.Fatalf("site missing components or slot")
	}
	if Inventory(s, site) == nil {
		t.Fatalf("site has no inventory")
	}
}
