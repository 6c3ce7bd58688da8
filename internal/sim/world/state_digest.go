package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/model"
	"villagesim.ai/internal/sim/plans"
	"villagesim.ai/internal/sim/resources"
)

// stateDigest hashes everything that influences future ticks. Entities are
// visited in handle order so equal worlds give equal digests.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	ctx := w.ctx
	digestWriteU64(h, &tmp, nowTick)
	digestWriteF64(h, &tmp, ctx.Now())
	digestWriteU64(h, &tmp, ctx.Markers.Last())
	digestWriteU64(h, &tmp, uint64(ctx.Store.Cap()))

	s := ctx.Store
	for i := 1; i <= s.Cap(); i++ {
		e := ecs.Entity(i)
		if !s.Alive(e) {
			continue
		}
		digestWriteU64(h, &tmp, uint64(e))
		digestWriteU64(h, &tmp, uint64(s.Type(e)))
		if p, ok := model.Pos(s, e); ok {
			digestWriteF64(h, &tmp, p.X)
			digestWriteF64(h, &tmp, p.Y)
		}
		if inv := model.Inventory(s, e); inv != nil {
			digestBucket(h, &tmp, inv)
		}
		if wk := model.WorkableOf(s, e); wk != nil {
			digestWriteU64(h, &tmp, uint64(wk.ClaimedBy))
		}
		if v := model.VillagerOf(s, e); v != nil {
			h.Write([]byte(v.Name))
			digestWriteF64(h, &tmp, v.Needs.Food)
			digestWriteF64(h, &tmp, v.Needs.Rest)
			digestWriteF64(h, &tmp, v.Needs.Bladder)
			h.Write([]byte{boolByte(v.HasCenter)})
			digestWriteI64(h, &tmp, int64(v.Center.X))
			digestWriteI64(h, &tmp, int64(v.Center.Y))
		}
		if b := model.BuildingOf(s, e); b != nil {
			h.Write([]byte(b.Template))
			h.Write([]byte{boolByte(b.Built)})
			digestWriteF64(h, &tmp, b.WorkLeft)
		}
		if p := model.PlantOf(s, e); p != nil {
			h.Write([]byte(p.Crop))
			digestWriteF64(h, &tmp, p.Growth)
			digestWriteU64(h, &tmp, uint64(p.Plot))
		}
		if p := model.PlotOf(s, e); p != nil {
			digestWriteU64(h, &tmp, uint64(p.Plant))
		}
		if r := runnerOf(s, e); r != nil {
			digestRunner(h, &tmp, r)
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

func digestBucket(h hashWriter, tmp *[8]byte, b *resources.Bucket) {
	entries := b.Entries()
	digestWriteU64(h, tmp, uint64(len(entries)))
	for _, en := range entries {
		h.Write([]byte(en.Quantity.Kind.Name))
		digestWriteF64(h, tmp, en.Quantity.Amount)
		digestWriteU64(h, tmp, uint64(en.Marker))
	}
}

func digestRunner(h hashWriter, tmp *[8]byte, r *plans.Runner) {
	h.Write([]byte(r.Job))
	digestWriteI64(h, tmp, int64(r.Outer))
	digestWriteU64(h, tmp, uint64(len(r.Plans)))
	for _, p := range r.Plans {
		h.Write([]byte{byte(p.Kind), p.Stage, boolByte(p.Pledged), boolByte(p.Claimed)})
		digestWriteU64(h, tmp, uint64(p.Target))
		digestWriteU64(h, tmp, uint64(p.Marker))
		digestWriteI64(h, tmp, int64(p.Cursor))
	}
	if l := r.Low; l != nil {
		h.Write([]byte{byte(l.Kind), boolByte(l.Done)})
		digestWriteI64(h, tmp, int64(l.Index))
		digestWriteI64(h, tmp, int64(len(l.Path)))
		digestWriteF64(h, tmp, l.Until)
		digestWriteI64(h, tmp, int64(l.Ticks))
	}
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}
