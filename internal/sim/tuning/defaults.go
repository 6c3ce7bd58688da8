package tuning

func f(v float64) *float64 { return &v }

// Defaults is a small working village on a 32×24 map.
func Defaults() Tuning {
	return Tuning{
		TickRateHz:         2,
		TickSeconds:        0.5,
		Seed:               1,
		SnapshotEveryTicks: 600,
		Map:                MapSize{Width: 32, Height: 24},
		Needs: Needs{
			Max:              100,
			FoodDecay:        0.25,
			RestDecay:        0.15,
			BladderDecay:     0.4,
			FoodThreshold:    30,
			RestThreshold:    25,
			BladderThreshold: 20,
			RestRate:         5,
		},
		Actions: Actions{
			PickupSeconds:  1,
			DropSeconds:    1,
			EatSeconds:     2,
			PoopSeconds:    3,
			PlantSeconds:   2,
			WorkInterval:   1,
			IdleSeconds:    2,
			WanderRadius:   4,
			WastePileDecay: 0.02,
			WasteKind:      "waste",
		},
		Villager: VillagerDefaults{
			Movement:    1.5,
			Pickup:      1,
			Work:        1,
			Harvest:     1,
			CarryWeight: 20,
			Priorities:  []string{"build", "haul", "harvest", "plant", "storage"},
		},
		Layout: Layout{
			Villagers: []VillagerSpawn{
				{Name: "Ada", X: 4, Y: 4},
				{Name: "Bram", X: 6, Y: 5, Priorities: []string{"haul", "build", "storage", "harvest", "plant"}},
				{Name: "Cora", X: 5, Y: 8, Priorities: []string{"harvest", "plant", "storage", "haul", "build"}},
			},
			Buildings: []BuildingSpawn{
				{Template: "stockpile", X: 8, Y: 8, Built: true, Contents: []Stack{
					{Kind: "wood", Amount: 12},
					{Kind: "stone", Amount: 6},
					{Kind: "berries", Amount: 6},
					{Kind: "wheat_seeds", Amount: 4},
				}},
				{Template: "house", X: 14, Y: 6},
				{Template: "hut", X: 10, Y: 3, Built: true},
				{Template: "outhouse", X: 3, Y: 12, Built: true},
			},
			Piles: []PileSpawn{
				{X: 12, Y: 12, Contents: []Stack{{Kind: "wood", Amount: 5}}},
			},
			Plots: []PlotSpawn{
				{X: 18, Y: 10, Crop: "wheat"},
				{X: 19, Y: 10, Crop: "wheat"},
			},
			Plants: []PlantSpawn{
				{X: 20, Y: 14, Crop: "berry_bush", Growth: 1},
			},
			Terrain: []TerrainPatch{
				{X: 22, Y: 2, W: 4, H: 3, Ground: f(0)},
				{X: 0, Y: 16, W: 32, H: 1, Ground: f(0.5)},
				{X: 26, Y: 10, W: 3, H: 5, Above: f(0.6)},
			},
		},
	}
}
