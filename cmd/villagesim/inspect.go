package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"villagesim.ai/internal/persistence/indexdb"
	"villagesim.ai/internal/persistence/snapshot"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.snap.zst | index.sqlite>",
	Short: "Print a snapshot or an index database",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().Bool("header", false, "print only the snapshot header")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	out := cmd.OutOrStdout()
	headerOnly, _ := cmd.Flags().GetBool("header")

	switch {
	case strings.HasSuffix(path, ".snap.zst"):
		if headerOnly {
			h, err := snapshot.ReadHeader(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "version=%d run=%s tick=%d\n", h.Version, h.RunID, h.Tick)
			return nil
		}
		snap, err := snapshot.ReadSnapshot(path)
		if err != nil {
			return err
		}
		printSnapshotSummary(out, snap)
		fmt.Fprintf(out, "markers: last=%d entities: cap=%d catalogs=%s\n", snap.MarkerLast, snap.EntityCap, shortDigest(snap.CatalogDigest))
		return nil

	case strings.HasSuffix(path, ".sqlite"), strings.HasSuffix(path, ".db"):
		db, err := indexdb.OpenReadOnly(path)
		if err != nil {
			return err
		}
		defer db.Close()
		sum, err := indexdb.Summarize(context.Background(), db)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "run=%s ticks=%d last_tick=%d digest=%s\n", sum.RunID, sum.Ticks, sum.LastTick, shortDigest(sum.LastDigest))
		events := make([]string, 0, len(sum.Events))
		for ev := range sum.Events {
			events = append(events, ev)
		}
		sort.Strings(events)
		for _, ev := range events {
			fmt.Fprintf(out, "  %-8s %d\n", ev, sum.Events[ev])
		}
		fmt.Fprintf(out, "snapshots=%d last_at=%d\n", sum.Snapshots, sum.LastSnapAt)
		for _, a := range sum.TopAborters {
			fmt.Fprintf(out, "  aborts #%d %s: %d\n", a.Agent, a.Name, a.Count)
		}
		return nil

	default:
		return fmt.Errorf("inspect: unrecognised file %q (want .snap.zst or .sqlite)", path)
	}
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
