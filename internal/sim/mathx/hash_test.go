package mathx

import "testing"

func TestHash3Deterministic(t *testing.T) {
	if Hash3(7, 1, 2, 3) != Hash3(7, 1, 2, 3) {
		t.Fatalf("hash not stable")
	}
	if Hash3(7, 1, 2, 3) == Hash3(7, 1, 2, 4) {
		t.Fatalf("adjacent inputs collided")
	}
}

func TestUnitRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		u := Unit(Hash3(1, i, 0, 0))
		if u < 0 || u >= 1 {
			t.Fatalf("unit out of range: %v", u)
		}
		if n := IntN(Hash3(1, i, 0, 0), 5); n < 0 || n >= 5 {
			t.Fatalf("IntN out of range: %d", n)
		}
	}
}
