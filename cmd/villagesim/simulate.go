package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	persistlog "villagesim.ai/internal/persistence/log"
	"villagesim.ai/internal/persistence/snapshot"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Step a world headless for a number of ticks and print a summary",
	Args:  cobra.NoArgs,
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().Int("ticks", 1200, "number of ticks to run")
	simulateCmd.Flags().String("run", "", "run id (default: new uuid)")
	simulateCmd.Flags().String("snapshot", "", "resume from this snapshot instead of a fresh world")
	simulateCmd.Flags().Bool("save", false, "write the final snapshot under <data>/runs/<run>/snapshots")
	simulateCmd.Flags().Bool("logs", false, "write tick and plan event logs under <data>/runs/<run>")
	simulateCmd.Flags().Bool("verbose", false, "log plan aborts and warnings to stderr")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	ticks, _ := cmd.Flags().GetInt("ticks")
	runID, _ := cmd.Flags().GetString("run")
	snapPath, _ := cmd.Flags().GetString("snapshot")
	save, _ := cmd.Flags().GetBool("save")
	logs, _ := cmd.Flags().GetBool("logs")
	verbose, _ := cmd.Flags().GetBool("verbose")
	if ticks < 0 {
		return fmt.Errorf("ticks must be >= 0")
	}

	logOut := io.Discard
	if verbose {
		logOut = cmd.ErrOrStderr()
	}
	logger := newLogger(logOut, "simulate")

	cats, tune, err := loadSetup()
	if err != nil {
		return err
	}
	w, err := openWorld(strings.TrimSpace(runID), strings.TrimSpace(snapPath), false, cats, tune, logger)
	if err != nil {
		return fmt.Errorf("world: %w", err)
	}
	dir := runDir(w.ID())

	if logs {
		tickLog := persistlog.NewTickLogger(dir)
		planLog := persistlog.NewPlanEventLogger(dir)
		defer tickLog.Close()
		defer planLog.Close()
		w.SetTickLogger(tickLog)
		w.SetPlanEventLogger(planLog)
	}

	start := w.CurrentTick()
	digest := w.RunTicks(ticks)
	end := w.CurrentTick()

	out := cmd.OutOrStdout()
	if end == 0 {
		fmt.Fprintf(out, "run=%s no ticks run\n", w.ID())
		return nil
	}
	snap := w.ExportSnapshot(end - 1)
	m := w.Metrics()
	fmt.Fprintf(out, "ran ticks %d..%d digest=%s\n", start, end-1, digest)
	fmt.Fprintf(out, "plans: started=%d finished=%d aborted=%d\n", m.Started, m.Finished, m.Aborted)
	printSnapshotSummary(out, snap)

	if save {
		path := snapshot.Path(filepath.Join(dir, "snapshots"), snap.Header.Tick)
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		fmt.Fprintf(out, "snapshot: %s\n", path)
	}
	return nil
}
