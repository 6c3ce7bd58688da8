package plans

import (
	"fmt"

	"villagesim.ai/internal/sim/ecs"
	"villagesim.ai/internal/sim/model"
	"villagesim.ai/internal/sim/resources"
	"villagesim.ai/internal/sim/simctx"
)

// Runner steps one agent through its high-level plans, one low-level plan
// per tick. Outer is -1 until the first Step.
type Runner struct {
	Agent ecs.Entity
	// Job names the strategy that produced Plans.
	Job   string
	Plans []HighLevelPlan
	Outer int
	Low   *LowLevelPlan
}

func NewRunner(agent ecs.Entity, plans []HighLevelPlan) *Runner {
	return &Runner{Agent: agent, Plans: plans, Outer: -1}
}

// Step runs the current low-level plan once. It returns false when every
// plan is exhausted; the caller then disposes the runner. An error leaves
// the runner where it failed so Abort can release what it holds.
func (r *Runner) Step(ctx *simctx.Context) (bool, error) {
	if r.Low == nil {
		ok, err := r.pull(ctx)
		if err != nil || !ok {
			return false, err
		}
	}
	more, err := r.Low.Run(ctx)
	if err != nil {
		return false, fmt.Errorf("%s: %w", r.Low.Kind, err)
	}
	if more {
		return true, nil
	}
	r.Low = nil
	return r.pull(ctx)
}

// pull advances to the next available low-level plan, moving the outer
// cursor past exhausted high-level plans.
func (r *Runner) pull(ctx *simctx.Context) (bool, error) {
	if r.Outer < 0 {
		r.Outer = 0
	}
	for r.Outer < len(r.Plans) {
		h := &r.Plans[r.Outer]
		low, ok, err := h.Next(ctx)
		if err != nil {
			return false, fmt.Errorf("%s: %w", h.Kind, err)
		}
		if ok {
			r.Low = &low
			return true, nil
		}
		r.Outer++
	}
	return false, nil
}

func (r *Runner) CurrentHighLevelPlan() *HighLevelPlan {
	if r.Outer < 0 || r.Outer >= len(r.Plans) {
		return nil
	}
	return &r.Plans[r.Outer]
}

func (r *Runner) CurrentLowLevelPlan() *LowLevelPlan { return r.Low }

// Markers lists the reservation markers held by the current and pending plans.
func (r *Runner) Markers() []resources.Marker {
	var out []resources.Marker
	seen := map[resources.Marker]bool{}
	for i := max(r.Outer, 0); i < len(r.Plans); i++ {
		m := r.Plans[i].Marker
		if m == resources.Unmarked || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// Abort stops the runner and releases everything its unfinished plans hold:
// pledges are removed from their targets, claimed work slots are freed, and
// every marker still in flight is handed back to the unmarked pool of
// whichever inventory carries it.
func (r *Runner) Abort(ctx *simctx.Context) {
	markers := r.Markers()
	for i := max(r.Outer, 0); i < len(r.Plans); i++ {
		r.Plans[i].Release(ctx)
	}
	if len(markers) > 0 {
		ctx.Store.Each(model.CInventory, func(e ecs.Entity) bool {
			inv := model.Inventory(ctx.Store, e)
			for _, m := range markers {
				inv.Unmark(m)
			}
			return true
		})
	}
	r.Low = nil
	r.Outer = len(r.Plans)
}

// Done reports whether the runner has nothing left to do.
func (r *Runner) Done() bool {
	return r.Outer >= len(r.Plans) && r.Low == nil
}
