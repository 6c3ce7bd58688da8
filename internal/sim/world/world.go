package world

import (
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"villagesim.ai/internal/persistence/snapshot"
	"villagesim.ai/internal/sim/catalogs"
	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/geom"
	"villagesim.ai/internal/sim/jobs"
	"villagesim.ai/internal/sim/model"
	"villagesim.ai/internal/sim/resources"
	"villagesim.ai/internal/sim/simctx"
	"villagesim.ai/internal/sim/terrain"
	"villagesim.ai/internal/sim/tuning"
)

// World owns one simulation. Everything except the channel accessors and
// CurrentTick/Metrics must be called from the goroutine running Run (or
// from a test driving StepOnce).
type World struct {
	cfg      WorldConfig
	tune     tuning.Tuning
	catalogs *catalogs.Catalogs
	ctx      *simctx.Context
	selector *jobs.Selector
	log      *log.Logger

	// Immutable after New; read by HTTP handlers.
	terrainW, terrainH int
	ground, above      []float64

	tick atomic.Uint64

	observers     map[string]*observerClient
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	snapshotReq   chan snapshotReq
	stop          chan struct{}
	stopOnce      sync.Once

	tickLogger   TickLogger
	eventLogger  PlanEventLogger
	snapshotSink chan<- snapshot.SnapshotV1

	// Plan events recorded during the current tick.
	events                     []PlanEvent
	started, finished, aborted uint64

	metrics atomic.Value // WorldMetrics
}

// New builds the starting village described by tune.Layout.
func New(cfg WorldConfig, tune tuning.Tuning, cats *catalogs.Catalogs, logger *log.Logger) (*World, error) {
	w, err := newEmpty(cfg, tune, cats, logger)
	if err != nil {
		return nil, err
	}
	if err := w.applyTerrain(tune.Layout.Terrain); err != nil {
		return nil, err
	}
	if err := w.spawnLayout(tune.Layout); err != nil {
		return nil, err
	}
	w.cacheTerrain()
	return w, nil
}

func newEmpty(cfg WorldConfig, tune tuning.Tuning, cats *catalogs.Catalogs, logger *log.Logger) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("world: nil catalogs")
	}
	if tune.Map.Width <= 0 || tune.Map.Height <= 0 {
		return nil, fmt.Errorf("world: bad map size %dx%d", tune.Map.Width, tune.Map.Height)
	}
	if cfg.Seed == 0 {
		cfg.Seed = tune.Seed
	}
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = tune.TickRateHz
	}
	if cfg.TickSeconds <= 0 {
		cfg.TickSeconds = tune.TickSeconds
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	tune.Seed = cfg.Seed
	grid := terrain.New(tune.Map.Width, tune.Map.Height)
	w := &World{
		cfg:           cfg,
		tune:          tune,
		catalogs:      cats,
		ctx:           simctx.New(ecs.NewStore(), grid, cats, tune, logger),
		selector:      jobs.DefaultSelector(),
		log:           logger,
		observers:     map[string]*observerClient{},
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerSub:   make(chan ObserverSubscribeRequest, 16),
		observerLeave: make(chan string, 16),
		snapshotReq:   make(chan snapshotReq, 4),
		stop:          make(chan struct{}),
	}
	w.metrics.Store(WorldMetrics{})
	return w, nil
}

func (w *World) applyTerrain(patches []tuning.TerrainPatch) error {
	g := w.ctx.Terrain
	for i, p := range patches {
		if p.W <= 0 || p.H <= 0 {
			return fmt.Errorf("terrain[%d]: empty patch", i)
		}
		for y := p.Y; y < p.Y+p.H; y++ {
			for x := p.X; x < p.X+p.W; x++ {
				c := geom.Cell{X: x, Y: y}
				if !g.InBounds(c) {
					continue
				}
				if p.Ground != nil {
					g.SetGround(c, *p.Ground)
				}
				if p.Above != nil {
					g.SetAbove(c, *p.Above)
				}
			}
		}
	}
	return nil
}

func (w *World) bucket(stacks []tuning.Stack) (*resources.Bucket, error) {
	cs := make([]catalogs.Stack, 0, len(stacks))
	for _, s := range stacks {
		cs = append(cs, catalogs.Stack{Kind: s.Kind, Amount: s.Amount})
	}
	return w.catalogs.Bucket(cs)
}

// spawnLayout creates entities in a fixed order (terrain, buildings, piles,
// plots, plants, villagers) so handles are stable for a given layout.
func (w *World) spawnLayout(l tuning.Layout) error {
	s := w.ctx.Store
	for i, b := range l.Buildings {
		def, ok := w.catalogs.Buildings.ByID[b.Template]
		if !ok {
			return fmt.Errorf("layout.buildings[%d]: unknown template %q", i, b.Template)
		}
		reqs, err := w.catalogs.Bucket(def.Requirements)
		if err != nil {
			return fmt.Errorf("building %s: %w", def.ID, err)
		}
		contents, err := w.bucket(b.Contents)
		if err != nil {
			return fmt.Errorf("layout.buildings[%d]: %w", i, err)
		}
		model.SpawnBuilding(s, def, reqs, geom.Cell{X: b.X, Y: b.Y}, b.Built, contents)
	}
	for i, p := range l.Piles {
		contents, err := w.bucket(p.Contents)
		if err != nil {
			return fmt.Errorf("layout.piles[%d]: %w", i, err)
		}
		model.SpawnPile(s, geom.Cell{X: p.X, Y: p.Y}, contents, false)
	}
	plots := map[geom.Cell]ecs.Entity{}
	for i, p := range l.Plots {
		if _, ok := w.catalogs.Crops.ByID[p.Crop]; !ok {
			return fmt.Errorf("layout.plots[%d]: unknown crop %q", i, p.Crop)
		}
		at := geom.Cell{X: p.X, Y: p.Y}
		plots[at] = model.SpawnPlot(s, at, p.Crop)
	}
	for i, p := range l.Plants {
		if _, ok := w.catalogs.Crops.ByID[p.Crop]; !ok {
			return fmt.Errorf("layout.plants[%d]: unknown crop %q", i, p.Crop)
		}
		at := geom.Cell{X: p.X, Y: p.Y}
		model.SpawnPlant(s, at, p.Crop, p.Growth, plots[at])
	}
	d := w.tune.Villager
	for i, v := range l.Villagers {
		traits := model.Traits{
			Movement:    d.Movement,
			Pickup:      d.Pickup,
			Work:        d.Work,
			Harvest:     d.Harvest,
			CarryWeight: d.CarryWeight,
		}
		if v.Movement > 0 {
			traits.Movement = v.Movement
		}
		prio := d.Priorities
		if len(v.Priorities) > 0 {
			prio = v.Priorities
		}
		full := w.tune.Needs.Max
		e := model.SpawnVillager(s, model.Villager{
			Name:       v.Name,
			Needs:      model.Needs{Food: full, Rest: full, Bladder: full},
			Traits:     traits,
			Priorities: append([]string(nil), prio...),
		}, geom.Cell{X: v.X, Y: v.Y})
		carry, err := w.bucket(v.Carry)
		if err != nil {
			return fmt.Errorf("layout.villagers[%d]: %w", i, err)
		}
		carry.MoveTo(resources.Unmarked, model.Inventory(s, e), resources.Unmarked)
	}
	return nil
}

func (w *World) cacheTerrain() {
	g := w.ctx.Terrain
	w.terrainW, w.terrainH = g.Size()
	w.ground = append([]float64(nil), g.Ground...)
	w.above = append([]float64(nil), g.Above...)
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetPlanEventLogger(l PlanEventLogger)          { w.eventLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

// SetSelector replaces the job selector; tests use it to script decisions.
func (w *World) SetSelector(s *jobs.Selector) { w.selector = s }

func (w *World) ObserverJoin() chan<- ObserverJoinRequest           { return w.observerJoin }
func (w *World) ObserverSubscribe() chan<- ObserverSubscribeRequest { return w.observerSub }
func (w *World) ObserverLeave() chan<- string                      { return w.observerLeave }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Config() WorldConfig {
	if w == nil {
		return WorldConfig{}
	}
	return w.cfg
}

// Terrain returns copies of the starting terrain modifiers.
func (w *World) Terrain() (width, height int, ground, above []float64) {
	return w.terrainW, w.terrainH, append([]float64(nil), w.ground...), append([]float64(nil), w.above...)
}

// Context exposes the simulation context to tests and tools running on the
// world goroutine.
func (w *World) Context() *simctx.Context { return w.ctx }

func (w *World) Metrics() WorldMetrics {
	m, _ := w.metrics.Load().(WorldMetrics)
	return m
}
