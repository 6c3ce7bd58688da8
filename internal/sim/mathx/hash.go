// Package mathx has the deterministic hashing and clamping helpers the
// simulation uses instead of a shared random source.
package mathx

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Hash3 mixes a seed with three integers (usually entity, tick, salt).
func Hash3(seed int64, a, b, c int) uint64 {
	ua := uint64(uint32(int32(a)))
	ub := uint64(uint32(int32(b)))
	uc := uint64(uint32(int32(c)))
	return mix64(uint64(seed) ^ (ua * 0x9e3779b97f4a7c15) ^ (ub * 0xc2b2ae3d27d4eb4f) ^ (uc * 0xbf58476d1ce4e5b9))
}

// Unit maps a hash to [0,1).
func Unit(h uint64) float64 {
	return float64(h>>11) / float64(1<<53)
}

// IntN maps a hash to [0,n). n must be positive.
func IntN(h uint64, n int) int {
	return int(h % uint64(n))
}

func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
