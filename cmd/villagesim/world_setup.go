package main

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/google/uuid"

	"villagesim.ai/internal/persistence/snapshot"
	"villagesim.ai/internal/sim/catalogs"
	"villagesim.ai/internal/sim/tuning"
	"villagesim.ai/internal/sim/world"
)

// openWorld resumes runID from its newest snapshot when one exists and
// loadLatest is set, otherwise starts a fresh world. An empty runID mints
// a new one.
func openWorld(runID string, snapPath string, loadLatest bool, cats *catalogs.Catalogs, tune tuning.Tuning, logger *log.Logger) (*world.World, error) {
	if runID == "" && snapPath == "" {
		runID = uuid.NewString()
	}
	if snapPath == "" && loadLatest && runID != "" {
		p, err := snapshot.Latest(filepath.Join(runDir(runID), "snapshots"))
		if err != nil {
			return nil, fmt.Errorf("find snapshot: %w", err)
		}
		snapPath = p
	}

	if snapPath != "" {
		snap, err := snapshot.ReadSnapshot(snapPath)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		if runID != "" && snap.Header.RunID != "" && snap.Header.RunID != runID {
			return nil, fmt.Errorf("snapshot run id mismatch: flag=%s snap=%s", runID, snap.Header.RunID)
		}
		w, err := world.NewFromSnapshot(world.WorldConfig{ID: runID}, tune, cats, logger, snap)
		if err != nil {
			return nil, err
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapPath), w.CurrentTick())
		return w, nil
	}

	return world.New(world.ConfigFromTuning(runID, tune), tune, cats, logger)
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiPlanEventLogger struct {
	a world.PlanEventLogger
	b world.PlanEventLogger
}

func (m multiPlanEventLogger) WritePlanEvent(ev world.PlanEvent) error {
	if m.a != nil {
		_ = m.a.WritePlanEvent(ev)
	}
	if m.b != nil {
		_ = m.b.WritePlanEvent(ev)
	}
	return nil
}
