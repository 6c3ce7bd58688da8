// Package model declares the village's component types and the spawn helpers
// that assemble entities from them.
package model

import (
	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/geom"
	"villagesim.ai/internal/sim/resources"
)

const (
	CLocation ecs.ComponentType = 1 << iota
	CInventory
	CVillager
	CBuilding
	CWorkable
	CPlot
	CPlant
	CPile
	CRunner
)

// Archetypes.
const (
	AVillager = CLocation | CInventory | CVillager
	ABuilding = CLocation | CInventory | CBuilding | CWorkable
	APlot     = CLocation | CPlot | CWorkable
	APlant    = CLocation | CPlant | CWorkable
	APile     = CLocation | CInventory | CPile
	AStorage  = CLocation | CInventory | CBuilding
)

type Location struct {
	Pos geom.Vec2
}

// Workable holds a single work slot. ClaimedBy is ecs.Nil when free.
type Workable struct {
	ClaimedBy ecs.Entity
}

type Needs struct {
	Food    float64
	Rest    float64
	Bladder float64
}

// Traits are fixed when the villager is spawned.
type Traits struct {
	Movement    float64
	Pickup      float64
	Work        float64
	Harvest     float64
	CarryWeight float64
}

type Villager struct {
	Name       string
	Needs      Needs
	Traits     Traits
	Priorities []string

	// Wander center, remembered while idle and cleared when a real job starts.
	HasCenter bool
	Center    geom.Cell
}

type Building struct {
	Template string
	Built    bool
	WorkLeft float64
	Storage  bool
	Bed      bool
	Toilet   bool
	// Requirements are the materials consumed when construction finishes.
	Requirements *resources.Bucket
}

type Plot struct {
	Crop  string
	Plant ecs.Entity
}

type Plant struct {
	Crop   string
	Growth float64 // 0..1, ripe at 1
	Plot   ecs.Entity
}

func (p *Plant) Ripe() bool { return p.Growth >= 1 }

type Pile struct {
	Waste bool
}
