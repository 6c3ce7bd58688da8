package world

import "villagesim.ai/internal/sim/tuning"

type WorldConfig struct {
	// ID is the run id stamped into snapshots and the index.
	ID          string
	TickRateHz  int
	TickSeconds float64
	Seed        int64

	// Operational parameters. These are included in snapshots for deterministic replay/resume.
	SnapshotEveryTicks int

	// Observer frames are built at most once per this many ticks.
	ObserverEveryTicks int
}

// ConfigFromTuning copies the run parameters out of t.
func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		TickSeconds:        t.TickSeconds,
		Seed:               t.Seed,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
	}
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "local"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 2
	}
	if c.TickSeconds <= 0 {
		c.TickSeconds = 1 / float64(c.TickRateHz)
	}
	if c.SnapshotEveryTicks < 0 {
		c.SnapshotEveryTicks = 0
	}
	if c.ObserverEveryTicks <= 0 {
		c.ObserverEveryTicks = 1
	}
}
