package plans

import (
	"errors"
	"fmt"

	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/model"
)

var (
	ErrMissingEntity     = errors.New("missing entity")
	ErrSlotTaken         = errors.New("work slot already claimed")
	ErrUnknownWorkTarget = errors.New("work target is neither a building nor a plant")
)

func missing(what string, e ecs.Entity) error {
	return fmt.Errorf("%s #%d: %w", what, e, ErrMissingEntity)
}

// Claim takes target's work slot for agent. Claiming a slot the agent
// already holds is a no-op.
func Claim(s *ecs.Store, target, agent ecs.Entity) error {
	w := model.WorkableOf(s, target)
	if w == nil {
		return missing("workable", target)
	}
	if w.ClaimedBy != ecs.Nil && w.ClaimedBy != agent {
		return fmt.Errorf("#%d held by #%d: %w", target, w.ClaimedBy, ErrSlotTaken)
	}
	w.ClaimedBy = agent
	return nil
}

// ReleaseClaim frees target's slot if agent holds it.
func ReleaseClaim(s *ecs.Store, target, agent ecs.Entity) {
	if w := model.WorkableOf(s, target); w != nil && w.ClaimedBy == agent {
		w.ClaimedBy = ecs.Nil
	}
}
