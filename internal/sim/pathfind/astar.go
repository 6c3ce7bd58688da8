// Package pathfind finds walking routes across the terrain grid.
//
// The search is a bounded A*: 4-directional moves, Manhattan heuristic,
// priority = heuristic + accumulated cell cost / 255, and closed cells are
// never reopened. Neighbours are expanded west, north, east, south and ties
// in the open set are broken first-in-first-out, so identical inputs always
// produce identical routes.
package pathfind

import (
	"container/heap"
	"errors"
	"math"

	"villagesim.ai/internal/sim/geom"
)

// Impassable is the cost byte of a cell that cannot be entered.
const Impassable byte = 255

var ErrUnreachable = errors.New("goal unreachable")

// Grid is the terrain view the cost builder needs.
type Grid interface {
	Size() (w, h int)
	MoveModifier(c geom.Cell) float64
}

// CostGrid holds one cost byte per cell in [0,255].
type CostGrid struct {
	W, H int
	Cost []byte
}

// Costs converts movement modifiers into cost bytes: modifier 1 costs 0,
// lower modifiers cost proportionally more, modifier 0 is Impassable.
func Costs(g Grid) *CostGrid {
	w, h := g.Size()
	out := &CostGrid{W: w, H: h, Cost: make([]byte, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Cost[y*w+x] = costByte(g.MoveModifier(geom.Cell{X: x, Y: y}))
		}
	}
	return out
}

func costByte(m float64) byte {
	if m <= 0 {
		return Impassable
	}
	if m >= 1 {
		return 0
	}
	return byte(math.Round((1 - m) * 254))
}

func (c *CostGrid) InBounds(p geom.Cell) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < c.W && p.Y < c.H
}

// At returns the cost of p; cells outside the grid are Impassable.
func (c *CostGrid) At(p geom.Cell) byte {
	if !c.InBounds(p) {
		return Impassable
	}
	return c.Cost[p.Y*c.W+p.X]
}

// Result of a search. Waypoints run from start to goal inclusive.
type Result struct {
	// IsComplete is false only when the inputs were rejected before searching.
	IsComplete bool
	IsValid    bool
	Waypoints  []geom.Cell
}

// Fixed neighbour order: west, north, east, south.
var dirs = [4]geom.Cell{{X: -1}, {Y: -1}, {X: 1}, {Y: 1}}

func Calculate(costs *CostGrid, start, goal geom.Cell) Result {
	if costs == nil || !costs.InBounds(start) || !costs.InBounds(goal) {
		return Result{}
	}
	if start == goal {
		return Result{IsComplete: true, IsValid: true, Waypoints: []geom.Cell{start}}
	}

	n := costs.W * costs.H
	index := func(p geom.Cell) int { return p.Y*costs.W + p.X }
	cellAt := func(i int) geom.Cell { return geom.Cell{X: i % costs.W, Y: i / costs.W} }

	closed := make([]bool, n)
	parent := make([]int32, n)
	g := make([]float64, n)
	for i := range parent {
		parent[i] = -1
		g[i] = math.Inf(1)
	}

	goalIdx := index(goal)
	startIdx := index(start)
	g[startIdx] = 0

	open := &openSet{}
	var seq uint64
	push := func(i int) {
		seq++
		h := float64(geom.Manhattan(cellAt(i), goal))
		heap.Push(open, node{idx: i, key: h + g[i]/255, seq: seq})
	}
	push(startIdx)

	for open.Len() > 0 {
		cur := heap.Pop(open).(node)
		if closed[cur.idx] {
			continue
		}
		closed[cur.idx] = true
		if cur.idx == goalIdx {
			return Result{IsComplete: true, IsValid: true, Waypoints: reconstruct(parent, goalIdx, cellAt)}
		}
		p := cellAt(cur.idx)
		for _, d := range dirs {
			np := p.Add(d)
			if !costs.InBounds(np) {
				continue
			}
			ni := index(np)
			if closed[ni] {
				continue
			}
			c := costs.At(np)
			if ni == goalIdx {
				c = 0
			} else if c == Impassable {
				continue
			}
			ng := g[cur.idx] + float64(c)
			if ng >= g[ni] {
				continue
			}
			g[ni] = ng
			parent[ni] = int32(cur.idx)
			push(ni)
		}
	}
	return Result{IsComplete: true}
}

func reconstruct(parent []int32, goal int, cellAt func(int) geom.Cell) []geom.Cell {
	var rev []geom.Cell
	for i := goal; i >= 0; i = int(parent[i]) {
		rev = append(rev, cellAt(i))
	}
	out := make([]geom.Cell, len(rev))
	for i := range rev {
		out[i] = rev[len(rev)-1-i]
	}
	return out
}

type node struct {
	idx int
	key float64
	seq uint64
}

type openSet []node

func (s openSet) Len() int { return len(s) }
func (s openSet) Less(i, j int) bool {
	if s[i].key != s[j].key {
		return s[i].key < s[j].key
	}
	return s[i].seq < s[j].seq
}
func (s openSet) Swap(i, j int)  { s[i], s[j] = s[j], s[i] }
func (s *openSet) Push(x any)   { *s = append(*s, x.(node)) }
func (s *openSet) Pop() any {
	old := *s
	n := len(old)
	it := old[n-1]
	*s = old[:n-1]
	return it
}
