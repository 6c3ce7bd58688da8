package world

// WorldMetrics is published after every tick for readers outside the world
// goroutine.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Villagers int `json:"villagers"`
	Runners   int `json:"runners"`
	Observers int `json:"observers"`

	// Cumulative plan event counts.
	Started  uint64 `json:"started"`
	Finished uint64 `json:"finished"`
	Aborted  uint64 `json:"aborted"`

	StepMS float64 `json:"step_ms"`
}
