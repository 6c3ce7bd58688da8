package world

import (
	"context"
	"errors"
)

type snapshotReq struct {
	resp chan snapshotResp
}

type snapshotResp struct {
	tick uint64
	err  error
}

var (
	ErrNoSnapshotSink = errors.New("snapshot sink not configured")
	ErrSnapshotBusy   = errors.New("snapshot sink backpressure")
)

// RequestSnapshot asks the running world to export a snapshot of the last
// completed tick to its sink. Safe to call from other goroutines.
func (w *World) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	resp := make(chan snapshotResp, 1)
	select {
	case w.snapshotReq <- snapshotReq{resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.tick, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (w *World) handleSnapshotRequest(req snapshotReq) {
	cur := w.tick.Load()
	var r snapshotResp
	switch {
	case cur == 0:
		r.err = errors.New("no tick completed yet")
	case w.snapshotSink == nil:
		r.err = ErrNoSnapshotSink
	default:
		r.tick = cur - 1
		select {
		case w.snapshotSink <- w.ExportSnapshot(r.tick):
		default:
			r.err = ErrSnapshotBusy
		}
	}
	// Buffered; the caller may have given up.
	select {
	case req.resp <- r:
	default:
	}
}
