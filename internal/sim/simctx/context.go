// Package simctx carries the per-simulation state every plan and strategy
// needs: component storage, the clock, the marker counter, terrain and the
// cached path cost grid. Nothing here is package-global, so independent
// simulations never share state.
package simctx

import (
	"fmt"
	"io"
	"log"

	"villagesim.ai/internal/sim/catalogs"
	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/geom"
	"villagesim.ai/internal/sim/pathfind"
	"villagesim.ai/internal/sim/resources"
	"villagesim.ai/internal/sim/terrain"
	"villagesim.ai/internal/sim/tuning"
)

// Clock is simulated time, independent of wall-clock time.
type Clock struct {
	Elapsed float64 // seconds since the world started
	Delta   float64 // seconds covered by the current tick
}

func (c *Clock) Advance(dt float64) {
	if dt < 0 {
		dt = 0
	}
	c.Delta = dt
	c.Elapsed += dt
}

type Context struct {
	Store   *ecs.Store
	Clock   Clock
	Tick    uint64
	Seed    int64
	Markers resources.MarkerSource
	Terrain *terrain.Grid
	Catalog *catalogs.Catalogs
	Needs   tuning.Needs
	Actions tuning.Actions
	Log     *log.Logger

	costs    *pathfind.CostGrid
	costsRev uint64
}

func New(store *ecs.Store, grid *terrain.Grid, cats *catalogs.Catalogs, t tuning.Tuning, logger *log.Logger) *Context {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Context{
		Store:   store,
		Seed:    t.Seed,
		Terrain: grid,
		Catalog: cats,
		Needs:   t.Needs,
		Actions: t.Actions,
		Log:     logger,
	}
}

func (c *Context) Now() float64 { return c.Clock.Elapsed }

// Costs returns the path cost grid, rebuilding it when the terrain changed.
func (c *Context) Costs() *pathfind.CostGrid {
	if c.costs == nil || c.costsRev != c.Terrain.Revision() {
		c.costs = pathfind.Costs(c.Terrain)
		c.costsRev = c.Terrain.Revision()
	}
	return c.costs
}

// FindPath returns the waypoints from one cell to another, or an error
// wrapping pathfind.ErrUnreachable.
func (c *Context) FindPath(from, to geom.Cell) ([]geom.Cell, error) {
	res := pathfind.Calculate(c.Costs(), from, to)
	if !res.IsValid {
		return nil, fmt.Errorf("path %v -> %v: %w", from, to, pathfind.ErrUnreachable)
	}
	return res.Waypoints, nil
}

// Reachable reports whether a path exists without keeping it.
func (c *Context) Reachable(from, to geom.Cell) bool {
	return pathfind.Calculate(c.Costs(), from, to).IsValid
}

func (c *Context) Logf(format string, args ...any) {
	c.Log.Printf(format, args...)
}
