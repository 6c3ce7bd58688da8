package world

import (
	"time"

	"villagesim.ai/internal/sim/model"
)

// step runs one tick: needs, growth, piles, agents, then observers, the
// digest, the tick log and the periodic snapshot.
func (w *World) step() string {
	stepStart := time.Now()
	nowTick := w.tick.Load()
	ctx := w.ctx

	ctx.Tick = nowTick
	ctx.Clock.Advance(w.cfg.TickSeconds)
	dt := ctx.Clock.Delta
	w.events = nil

	w.systemNeeds(dt)
	w.systemGrowth(dt)
	w.systemPiles(dt)
	w.systemAgents(nowTick)

	// Observer stream (read-only).
	w.stepObservers(nowTick)

	digest := w.stateDigest(nowTick)
	runners := ctx.Store.Count(model.CRunner)
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Elapsed: ctx.Now(), Runners: runners, Events: w.events, Digest: digest})
	}

	// Snapshot every N ticks, starting after tick 0.
	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 {
		if nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
			snap := w.ExportSnapshot(nowTick)
			select {
			case w.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
				w.log.Printf("[snapshot] dropped tick %d: sink full", nowTick)
			}
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)

	w.metrics.Store(WorldMetrics{
		Tick:      nextTick,
		Villagers: ctx.Store.Count(model.AVillager),
		Runners:   runners,
		Observers: len(w.observers),
		Started:   w.started,
		Finished:  w.finished,
		Aborted:   w.aborted,
		StepMS:    stepMS,
	})
	return digest
}
