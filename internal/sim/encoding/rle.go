package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeRLE encodes a row-major grid of terrain modifiers into
// base64(pairs), each pair being the float64 bits (little endian) followed
// by a uvarint run length. Maps are mostly uniform so runs are long.
func EncodeRLE(vals []float64) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	var bits [8]byte

	i := 0
	for i < len(vals) {
		v := vals[i]
		run := 1
		for j := i + 1; j < len(vals) && sameBits(vals[j], v) && run < 1<<31; j++ {
			run++
		}

		binary.LittleEndian.PutUint64(bits[:], math.Float64bits(v))
		buf.Write(bits[:])
		n := binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE reverses EncodeRLE. want, when positive, is the expected cell
// count.
func DecodeRLE(b64 string, want int) ([]float64, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, max(want, 0))
	for i := 0; i < len(raw); {
		if len(raw)-i < 8 {
			return nil, fmt.Errorf("truncated value at %d", i)
		}
		v := math.Float64frombits(binary.LittleEndian.Uint64(raw[i:]))
		i += 8
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if want > 0 && len(out)+int(run) > want {
			return nil, fmt.Errorf("run overflows %d cells", want)
		}
		for k := 0; k < int(run); k++ {
			out = append(out, v)
		}
	}
	if want > 0 && len(out) != want {
		return nil, fmt.Errorf("decoded %d cells, want %d", len(out), want)
	}
	return out, nil
}

func sameBits(a, b float64) bool { return math.Float64bits(a) == math.Float64bits(b) }
