package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"villagesim.ai/internal/persistence/snapshot"
)

func printSnapshotSummary(out io.Writer, snap snapshot.SnapshotV1) {
	fmt.Fprintf(out, "run=%s tick=%d elapsed=%.1fs seed=%d\n", snap.Header.RunID, snap.Header.Tick, snap.Elapsed, snap.Seed)

	fmt.Fprintf(out, "villagers: %d\n", len(snap.Villagers))
	for _, v := range snap.Villagers {
		job := "idle"
		if v.Runner != nil {
			job = v.Runner.Job
		}
		fmt.Fprintf(out, "  #%d %-8s food=%5.1f rest=%5.1f bladder=%5.1f job=%s", v.ID, v.Name, v.Food, v.Rest, v.Bladder, job)
		if inv := formatEntries(v.Inventory); inv != "" {
			fmt.Fprintf(out, " carrying %s", inv)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "buildings: %d\n", len(snap.Buildings))
	for _, b := range snap.Buildings {
		state := "built"
		if !b.Built {
			state = fmt.Sprintf("site work_left=%.1f", b.WorkLeft)
		}
		fmt.Fprintf(out, "  #%d %-10s %s", b.ID, b.Template, state)
		if inv := formatEntries(b.Inventory); inv != "" {
			fmt.Fprintf(out, " holds %s", inv)
		}
		fmt.Fprintln(out)
	}

	waste := 0
	for _, p := range snap.Piles {
		if p.Waste {
			waste++
		}
	}
	ripe := 0
	for _, p := range snap.Plants {
		if p.Growth >= 1 {
			ripe++
		}
	}
	fmt.Fprintf(out, "piles: %d (waste %d) plots: %d plants: %d (ripe %d)\n", len(snap.Piles), waste, len(snap.Plots), len(snap.Plants), ripe)

	totals := map[string]float64{}
	add := func(es []snapshot.EntryV1) {
		for _, e := range es {
			totals[e.Kind] += e.Amount
		}
	}
	for _, v := range snap.Villagers {
		add(v.Inventory)
	}
	for _, b := range snap.Buildings {
		add(b.Inventory)
	}
	for _, p := range snap.Piles {
		add(p.Inventory)
	}
	fmt.Fprintf(out, "stock: %s\n", formatTotals(totals))
}

// formatEntries merges marker slices of the same kind.
func formatEntries(es []snapshot.EntryV1) string {
	if len(es) == 0 {
		return ""
	}
	totals := map[string]float64{}
	for _, e := range es {
		totals[e.Kind] += e.Amount
	}
	return formatTotals(totals)
}

func formatTotals(totals map[string]float64) string {
	if len(totals) == 0 {
		return "-"
	}
	kinds := make([]string, 0, len(totals))
	for k := range totals {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%g", k, totals[k]))
	}
	return strings.Join(parts, " ")
}
