// Package terrain holds the walkable map: a ground layer (grass, mud, water)
// and an above-ground layer (trees, rocks, walls). Both store movement
// modifiers in [0,1] where 0 is impassable.
package terrain

import (
	"fmt"

	"villagesim.ai/internal/sim/geom"
)

type Grid struct {
	W, H   int
	Ground []float64
	Above  []float64

	rev uint64
}

// New returns a w×h map of open grass.
func New(w, h int) *Grid {
	if w <= 0 || h <= 0 {
		panic(fmt.Sprintf("terrain: bad size %dx%d", w, h))
	}
	g := &Grid{W: w, H: h, Ground: make([]float64, w*h), Above: make([]float64, w*h)}
	for i := range g.Ground {
		g.Ground[i] = 1
		g.Above[i] = 1
	}
	return g
}

func (g *Grid) Size() (int, int) { return g.W, g.H }

func (g *Grid) InBounds(c geom.Cell) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < g.W && c.Y < g.H
}

func (g *Grid) index(c geom.Cell) int { return c.Y*g.W + c.X }

// MoveModifier is the combined ground × above-ground modifier; 0 outside the map.
func (g *Grid) MoveModifier(c geom.Cell) float64 {
	if !g.InBounds(c) {
		return 0
	}
	i := g.index(c)
	return clamp01(g.Ground[i]) * clamp01(g.Above[i])
}

func (g *Grid) Passable(c geom.Cell) bool { return g.MoveModifier(c) > 0 }

func (g *Grid) SetGround(c geom.Cell, m float64) {
	if !g.InBounds(c) {
		return
	}
	g.Ground[g.index(c)] = clamp01(m)
	g.rev++
}

func (g *Grid) SetAbove(c geom.Cell, m float64) {
	if !g.InBounds(c) {
		return
	}
	g.Above[g.index(c)] = clamp01(m)
	g.rev++
}

// Revision changes whenever a modifier changes; caches key on it.
func (g *Grid) Revision() uint64 { return g.rev }

// Restore replaces both layers (snapshot import).
func (g *Grid) Restore(ground, above []float64) error {
	if len(ground) != g.W*g.H || len(above) != g.W*g.H {
		return fmt.Errorf("terrain: restore size mismatch: %d/%d cells for %dx%d", len(ground), len(above), g.W, g.H)
	}
	copy(g.Ground, ground)
	copy(g.Above, above)
	g.rev++
	return nil
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
