package model

import (
	"villagesim.ai/internal/sim/catalogs"
	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/geom"
	"villagesim.ai/internal/sim/resources"
)

func SpawnVillager(s *ecs.Store, v Villager, at geom.Cell) ecs.Entity {
	e := s.Create()
	s.Add(e, CLocation, &Location{Pos: at.Vec()})
	s.Add(e, CInventory, resources.NewBucket())
	s.Add(e, CVillager, &v)
	return e
}

// SpawnBuilding places a building from its template. Unbuilt buildings are
// construction sites: their inventory collects materials, and WorkLeft
// counts down as villagers work on them.
func SpawnBuilding(s *ecs.Store, def catalogs.BuildingDef, reqs *resources.Bucket, at geom.Cell, built bool, contents *resources.Bucket) ecs.Entity {
	if reqs == nil {
		reqs = resources.NewBucket()
	}
	if contents == nil {
		contents = resources.NewBucket()
	}
	b := &Building{
		Template:     def.ID,
		Built:        built,
		WorkLeft:     def.WorkSeconds,
		Storage:      def.Storage,
		Bed:          def.Bed,
		Toilet:       def.Toilet,
		Requirements: reqs,
	}
	if built {
		b.WorkLeft = 0
	}
	e := s.Create()
	s.Add(e, CLocation, &Location{Pos: at.Vec()})
	s.Add(e, CInventory, contents)
	s.Add(e, CBuilding, b)
	s.Add(e, CWorkable, &Workable{})
	return e
}

func SpawnPile(s *ecs.Store, at geom.Cell, contents *resources.Bucket, waste bool) ecs.Entity {
	if contents == nil {
		contents = resources.NewBucket()
	}
	e := s.Create()
	s.Add(e, CLocation, &Location{Pos: at.Vec()})
	s.Add(e, CInventory, contents)
	s.Add(e, CPile, &Pile{Waste: waste})
	return e
}

func SpawnPlot(s *ecs.Store, at geom.Cell, crop string) ecs.Entity {
	e := s.Create()
	s.Add(e, CLocation, &Location{Pos: at.Vec()})
	s.Add(e, CPlot, &Plot{Crop: crop})
	s.Add(e, CWorkable, &Workable{})
	return e
}

// SpawnPlant puts a plant on the map, linking it to plot when one is given.
func SpawnPlant(s *ecs.Store, at geom.Cell, crop string, growth float64, plot ecs.Entity) ecs.Entity {
	e := s.Create()
	s.Add(e, CLocation, &Location{Pos: at.Vec()})
	s.Add(e, CPlant, &Plant{Crop: crop, Growth: growth, Plot: plot})
	s.Add(e, CWorkable, &Workable{})
	if p := PlotOf(s, plot); p != nil {
		p.Plant = e
	}
	return e
}

// RemovePlant destroys a plant and frees its plot.
func RemovePlant(s *ecs.Store, plant ecs.Entity) {
	if p := PlantOf(s, plant); p != nil {
		if plot := PlotOf(s, p.Plot); plot != nil && plot.Plant == plant {
			plot.Plant = ecs.Nil
		}
	}
	s.Destroy(plant)
}
