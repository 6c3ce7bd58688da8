package geom

import "testing"

func TestVec2Cell(t *testing.T) {
	cases := []struct {
		in   Vec2
		want Cell
	}{
		{Vec2{0, 0}, Cell{0, 0}},
		{Vec2{0.49, 1.2}, Cell{0, 1}},
		{Vec2{0.5, -0.5}, Cell{1, 0}},
		{Vec2{-0.6, 2.51}, Cell{-1, 3}},
	}
	for _, c := range cases {
		if got := c.in.Cell(); got != c.want {
			t.Fatalf("Cell(%+v)=%+v want %+v", c.in, got, c.want)
		}
	}
}

func TestManhattan(t *testing.T) {
	if got := Manhattan(Cell{0, 0}, Cell{4, 4}); got != 8 {
		t.Fatalf("Manhattan=%d", got)
	}
	if got := Manhattan(Cell{3, -2}, Cell{-1, 1}); got != 7 {
		t.Fatalf("Manhattan=%d", got)
	}
}
