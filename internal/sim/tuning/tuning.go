// Package tuning loads tuning.yaml: simulation rates, villager defaults and
// the starting village layout.
package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Job kinds accepted in priority lists. The emergency strategy is not
// configurable and never appears here.
var JobKinds = []string{"plant", "build", "haul", "harvest", "storage"}

type Tuning struct {
	TickRateHz         int     `yaml:"tick_rate_hz"`
	TickSeconds        float64 `yaml:"tick_seconds"`
	Seed               int64   `yaml:"seed"`
	SnapshotEveryTicks int     `yaml:"snapshot_every_ticks"`

	Map      MapSize          `yaml:"map"`
	Needs    Needs            `yaml:"needs"`
	Actions  Actions          `yaml:"actions"`
	Villager VillagerDefaults `yaml:"villager"`
	Layout   Layout           `yaml:"layout"`
}

type MapSize struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Needs are in [0, Max]; decay rates are per simulated second.
type Needs struct {
	Max              float64 `yaml:"max"`
	FoodDecay        float64 `yaml:"food_decay"`
	RestDecay        float64 `yaml:"rest_decay"`
	BladderDecay     float64 `yaml:"bladder_decay"`
	FoodThreshold    float64 `yaml:"food_threshold"`
	RestThreshold    float64 `yaml:"rest_threshold"`
	BladderThreshold float64 `yaml:"bladder_threshold"`
	RestRate         float64 `yaml:"rest_rate"`
}

// Actions holds durations in simulated seconds.
type Actions struct {
	PickupSeconds  float64 `yaml:"pickup_seconds"`
	DropSeconds    float64 `yaml:"drop_seconds"`
	EatSeconds     float64 `yaml:"eat_seconds"`
	PoopSeconds    float64 `yaml:"poop_seconds"`
	PlantSeconds   float64 `yaml:"plant_seconds"`
	WorkInterval   float64 `yaml:"work_interval"`
	IdleSeconds    float64 `yaml:"idle_seconds"`
	WanderRadius   int     `yaml:"wander_radius"`
	WastePileDecay float64 `yaml:"waste_pile_decay"`
	WasteKind      string  `yaml:"waste_kind"`
}

type VillagerDefaults struct {
	Movement    float64  `yaml:"movement"`
	Pickup      float64  `yaml:"pickup"`
	Work        float64  `yaml:"work"`
	Harvest     float64  `yaml:"harvest"`
	CarryWeight float64  `yaml:"carry_weight"`
	Priorities  []string `yaml:"priorities"`
}

type Layout struct {
	Villagers []VillagerSpawn `yaml:"villagers"`
	Buildings []BuildingSpawn `yaml:"buildings"`
	Piles     []PileSpawn     `yaml:"piles"`
	Plots     []PlotSpawn     `yaml:"plots"`
	Plants    []PlantSpawn    `yaml:"plants"`
	Terrain   []TerrainPatch  `yaml:"terrain"`
}

type Stack struct {
	Kind   string  `yaml:"kind"`
	Amount float64 `yaml:"amount"`
}

type VillagerSpawn struct {
	Name       string   `yaml:"name"`
	X          int      `yaml:"x"`
	Y          int      `yaml:"y"`
	Priorities []string `yaml:"priorities,omitempty"`
	Movement   float64  `yaml:"movement,omitempty"`
	Carry      []Stack  `yaml:"carry,omitempty"`
}

type BuildingSpawn struct {
	Template string  `yaml:"template"`
	X        int     `yaml:"x"`
	Y        int     `yaml:"y"`
	Built    bool    `yaml:"built"`
	Contents []Stack `yaml:"contents,omitempty"`
}

type PileSpawn struct {
	X        int     `yaml:"x"`
	Y        int     `yaml:"y"`
	Contents []Stack `yaml:"contents"`
}

type PlotSpawn struct {
	X    int    `yaml:"x"`
	Y    int    `yaml:"y"`
	Crop string `yaml:"crop"`
}

type PlantSpawn struct {
	X      int     `yaml:"x"`
	Y      int     `yaml:"y"`
	Crop   string  `yaml:"crop"`
	Growth float64 `yaml:"growth"`
}

// TerrainPatch sets the modifiers of a W×H rectangle. Nil fields keep the
// current value.
type TerrainPatch struct {
	X      int      `yaml:"x"`
	Y      int      `yaml:"y"`
	W      int      `yaml:"w"`
	H      int      `yaml:"h"`
	Ground *float64 `yaml:"ground,omitempty"`
	Above  *float64 `yaml:"above,omitempty"`
}

// Load reads path over Defaults. An empty path returns the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Normalize fills zero values left by a sparse yaml file.
func (t *Tuning) Normalize() {
	d := Defaults()
	if t.TickRateHz <= 0 {
		t.TickRateHz = d.TickRateHz
	}
	if t.TickSeconds <= 0 {
		t.TickSeconds = d.TickSeconds
	}
	if t.SnapshotEveryTicks < 0 {
		t.SnapshotEveryTicks = 0
	}
	if t.Map.Width <= 0 || t.Map.Height <= 0 {
		t.Map = d.Map
	}
	if t.Needs.Max <= 0 {
		t.Needs.Max = d.Needs.Max
	}
	if t.Needs.RestRate <= 0 {
		t.Needs.RestRate = d.Needs.RestRate
	}
	if t.Actions.WorkInterval <= 0 {
		t.Actions.WorkInterval = d.Actions.WorkInterval
	}
	if t.Actions.WanderRadius <= 0 {
		t.Actions.WanderRadius = d.Actions.WanderRadius
	}
	if strings.TrimSpace(t.Actions.WasteKind) == "" {
		t.Actions.WasteKind = d.Actions.WasteKind
	}
	v := &t.Villager
	if v.Movement <= 0 {
		v.Movement = d.Villager.Movement
	}
	if v.Pickup <= 0 {
		v.Pickup = d.Villager.Pickup
	}
	if v.Work <= 0 {
		v.Work = d.Villager.Work
	}
	if v.Harvest <= 0 {
		v.Harvest = d.Villager.Harvest
	}
	if v.CarryWeight <= 0 {
		v.CarryWeight = d.Villager.CarryWeight
	}
	if len(v.Priorities) == 0 {
		v.Priorities = append([]string(nil), d.Villager.Priorities...)
	}
	for i := range v.Priorities {
		v.Priorities[i] = strings.ToLower(strings.TrimSpace(v.Priorities[i]))
	}
	for i := range t.Layout.Villagers {
		ps := t.Layout.Villagers[i].Priorities
		for j := range ps {
			ps[j] = strings.ToLower(strings.TrimSpace(ps[j]))
		}
	}
}

// validate requires resting to outpace rest decay, on the spot as well as
// in a bed, so a rest plan always reaches max and ends.
func (n Needs) validate() error {
	for name, v := range map[string]float64{
		"food_decay": n.FoodDecay, "rest_decay": n.RestDecay, "bladder_decay": n.BladderDecay,
	} {
		if v < 0 {
			return fmt.Errorf("%s %g is negative", name, v)
		}
	}
	if n.RestRate <= n.RestDecay {
		return fmt.Errorf("rest_rate %g does not exceed rest_decay %g", n.RestRate, n.RestDecay)
	}
	if 2*n.RestRate <= n.RestDecay {
		return fmt.Errorf("bed rest rate %g does not exceed rest_decay %g", 2*n.RestRate, n.RestDecay)
	}
	for name, v := range map[string]float64{
		"food_threshold": n.FoodThreshold, "rest_threshold": n.RestThreshold, "bladder_threshold": n.BladderThreshold,
	} {
		if v < 0 || v > n.Max {
			return fmt.Errorf("%s %g outside [0, max %g]", name, v, n.Max)
		}
	}
	return nil
}

func (t Tuning) Validate() error {
	if err := t.Needs.validate(); err != nil {
		return fmt.Errorf("needs: %w", err)
	}
	if err := validatePriorities(t.Villager.Priorities); err != nil {
		return fmt.Errorf("villager.priorities: %w", err)
	}
	inMap := func(x, y int) bool { return x >= 0 && y >= 0 && x < t.Map.Width && y < t.Map.Height }
	seenNames := map[string]bool{}
	for i, v := range t.Layout.Villagers {
		if strings.TrimSpace(v.Name) == "" {
			return fmt.Errorf("layout.villagers[%d]: missing name", i)
		}
		if seenNames[v.Name] {
			return fmt.Errorf("layout.villagers[%d]: duplicate name %q", i, v.Name)
		}
		seenNames[v.Name] = true
		if !inMap(v.X, v.Y) {
			return fmt.Errorf("layout.villagers[%d]: (%d,%d) outside map", i, v.X, v.Y)
		}
		if len(v.Priorities) > 0 {
			if err := validatePriorities(v.Priorities); err != nil {
				return fmt.Errorf("layout.villagers[%d].priorities: %w", i, err)
			}
		}
	}
	for i, b := range t.Layout.Buildings {
		if strings.TrimSpace(b.Template) == "" {
			return fmt.Errorf("layout.buildings[%d]: missing template", i)
		}
		if !inMap(b.X, b.Y) {
			return fmt.Errorf("layout.buildings[%d]: (%d,%d) outside map", i, b.X, b.Y)
		}
		if err := validateStacks(b.Contents); err != nil {
			return fmt.Errorf("layout.buildings[%d]: %w", i, err)
		}
	}
	for i, p := range t.Layout.Piles {
		if !inMap(p.X, p.Y) {
			return fmt.Errorf("layout.piles[%d]: (%d,%d) outside map", i, p.X, p.Y)
		}
		if err := validateStacks(p.Contents); err != nil {
			return fmt.Errorf("layout.piles[%d]: %w", i, err)
		}
	}
	for i, p := range t.Layout.Plots {
		if !inMap(p.X, p.Y) || p.Crop == "" {
			return fmt.Errorf("layout.plots[%d]: bad plot", i)
		}
	}
	for i, p := range t.Layout.Plants {
		if !inMap(p.X, p.Y) || p.Crop == "" {
			return fmt.Errorf("layout.plants[%d]: bad plant", i)
		}
	}
	for i, p := range t.Layout.Terrain {
		if p.W <= 0 || p.H <= 0 {
			return fmt.Errorf("layout.terrain[%d]: empty patch", i)
		}
	}
	return nil
}

func validatePriorities(ps []string) error {
	seen := map[string]bool{}
	for _, p := range ps {
		if !isJobKind(p) {
			return fmt.Errorf("unknown job kind %q", p)
		}
		if seen[p] {
			return fmt.Errorf("duplicate job kind %q", p)
		}
		seen[p] = true
	}
	return nil
}

func validateStacks(ss []Stack) error {
	for _, s := range ss {
		if s.Kind == "" {
			return fmt.Errorf("stack without kind")
		}
		if s.Amount < 0 {
			return fmt.Errorf("negative amount for %s", s.Kind)
		}
	}
	return nil
}

func isJobKind(s string) bool {
	for _, k := range JobKinds {
		if k == s {
			return true
		}
	}
	return false
}
