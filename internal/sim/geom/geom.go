package geom

import "math"

// Cell is an integer grid coordinate. Y grows southwards.
type Cell struct{ X, Y int }

// Vec2 is a continuous world position; cell (x,y) is centred on (x,y).
type Vec2 struct{ X, Y float64 }

func (c Cell) Vec() Vec2 { return Vec2{X: float64(c.X), Y: float64(c.Y)} }

func (c Cell) Add(o Cell) Cell { return Cell{X: c.X + o.X, Y: c.Y + o.Y} }

// Cell returns the grid cell containing v.
func (v Vec2) Cell() Cell {
	return Cell{X: int(math.Floor(v.X + 0.5)), Y: int(math.Floor(v.Y + 0.5))}
}

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }

func (v Vec2) Scale(s float64) Vec2 { return Vec2{X: v.X * s, Y: v.Y * s} }

func (v Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }

func (v Vec2) DistSq(o Vec2) float64 {
	dx := v.X - o.X
	dy := v.Y - o.Y
	return dx*dx + dy*dy
}

func Manhattan(a, b Cell) int {
	return absInt(a.X-b.X) + absInt(a.Y-b.Y)
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
