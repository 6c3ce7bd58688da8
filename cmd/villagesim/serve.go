package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"villagesim.ai/internal/persistence/indexdb"
	persistlog "villagesim.ai/internal/persistence/log"
	"villagesim.ai/internal/persistence/snapshot"
	"villagesim.ai/internal/sim/world"
	"villagesim.ai/internal/transport/observer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the simulation in real time and serve the observer stream",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:8080", "http listen address")
	serveCmd.Flags().String("run", "", "run id (default: new uuid, or resume the given run)")
	serveCmd.Flags().String("snapshot", "", "path to snapshot to load (optional)")
	serveCmd.Flags().Bool("load-latest-snapshot", true, "resume the run from its newest snapshot if present")
	serveCmd.Flags().Bool("disable-db", false, "disable the sqlite index (tick digests, plan events, snapshot metadata)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	runID, _ := cmd.Flags().GetString("run")
	snapPath, _ := cmd.Flags().GetString("snapshot")
	loadLatest, _ := cmd.Flags().GetBool("load-latest-snapshot")
	disableDB, _ := cmd.Flags().GetBool("disable-db")

	logger := newLogger(os.Stdout, "villagesim")

	cats, tune, err := loadSetup()
	if err != nil {
		return err
	}
	w, err := openWorld(strings.TrimSpace(runID), strings.TrimSpace(snapPath), loadLatest, cats, tune, logger)
	if err != nil {
		return fmt.Errorf("world: %w", err)
	}
	dir := runDir(w.ID())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	logger.Printf("run=%s dir=%s tick=%d", w.ID(), dir, w.CurrentTick())

	// Optional read-model index; does not affect the simulation.
	var idx *indexdb.SQLiteIndex
	if !disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(dir, "index", "run.sqlite"))
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		if err := idx.UpsertRun(w.ID(), cats, tune); err != nil {
			logger.Printf("index: upsert run: %v", err)
		}
	}

	tickLog := persistlog.NewTickLogger(dir)
	planLog := persistlog.NewPlanEventLogger(dir)
	defer tickLog.Close()
	defer planLog.Close()
	w.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	w.SetPlanEventLogger(multiPlanEventLogger{a: planLog, b: idx})

	ctx, cancel := signalContext()
	defer cancel()

	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		writeSnapshots(ctx, snapCh, worldDone, func(snap snapshot.SnapshotV1) {
			writeSnapshot(dir, snap, idx, logger)
		})
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(w, idx))
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			RunID   string             `json:"run_id"`
			Tick    uint64             `json:"tick"`
			Metrics world.WorldMetrics `json:"metrics"`
			Index   indexdb.Stats      `json:"index"`
		}{
			RunID:   w.ID(),
			Tick:    w.CurrentTick(),
			Metrics: w.Metrics(),
			Index:   idx.Stats(),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel2()
		tick, err := w.RequestSnapshot(ctx2)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
	})
	observer.NewServer(w, logger).Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		cancel()
		<-worldDone
		return fmt.Errorf("listen: %w", err)
	}

	// The world goroutine is done once Run returns; a final snapshot is
	// safe to export after that.
	<-worldDone
	<-snapDone
	if t := w.CurrentTick(); t > 0 {
		writeSnapshot(dir, w.ExportSnapshot(t-1), idx, logger)
	}
	logger.Printf("stopped at tick=%d", w.CurrentTick())
	return nil
}

// writeSnapshots writes snapshots from ch until ctx ends. It then waits for
// the world to stop sending and writes whatever is still buffered.
func writeSnapshots(ctx context.Context, ch <-chan snapshot.SnapshotV1, worldDone <-chan struct{}, write func(snapshot.SnapshotV1)) {
	for {
		select {
		case <-ctx.Done():
			<-worldDone
			for {
				select {
				case snap := <-ch:
					write(snap)
				default:
					return
				}
			}
		case snap := <-ch:
			write(snap)
		}
	}
}

func writeSnapshot(dir string, snap snapshot.SnapshotV1, idx *indexdb.SQLiteIndex, logger *log.Logger) {
	path := snapshot.Path(filepath.Join(dir, "snapshots"), snap.Header.Tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		logger.Printf("[snapshot] write: %v", err)
		return
	}
	idx.RecordSnapshot(path, snap)
}

func metricsHandler(w *world.World, idx *indexdb.SQLiteIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := w.Metrics()
		tick := w.CurrentTick()
		if m.Tick != 0 {
			tick = m.Tick
		}
		run := w.ID()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP villagesim_tick Current simulation tick.\n")
		fmt.Fprintf(rw, "# TYPE villagesim_tick gauge\n")
		fmt.Fprintf(rw, "villagesim_tick{run=%q} %d\n", run, tick)

		fmt.Fprintf(rw, "# HELP villagesim_villagers Current number of villagers.\n")
		fmt.Fprintf(rw, "# TYPE villagesim_villagers gauge\n")
		fmt.Fprintf(rw, "villagesim_villagers{run=%q} %d\n", run, m.Villagers)

		fmt.Fprintf(rw, "# HELP villagesim_runners Villagers currently executing a plan.\n")
		fmt.Fprintf(rw, "# TYPE villagesim_runners gauge\n")
		fmt.Fprintf(rw, "villagesim_runners{run=%q} %d\n", run, m.Runners)

		fmt.Fprintf(rw, "# HELP villagesim_observers Connected observers.\n")
		fmt.Fprintf(rw, "# TYPE villagesim_observers gauge\n")
		fmt.Fprintf(rw, "villagesim_observers{run=%q} %d\n", run, m.Observers)

		fmt.Fprintf(rw, "# HELP villagesim_plan_events_total Plan lifecycle events.\n")
		fmt.Fprintf(rw, "# TYPE villagesim_plan_events_total counter\n")
		fmt.Fprintf(rw, "villagesim_plan_events_total{run=%q,event=%q} %d\n", run, world.EventStarted, m.Started)
		fmt.Fprintf(rw, "villagesim_plan_events_total{run=%q,event=%q} %d\n", run, world.EventFinished, m.Finished)
		fmt.Fprintf(rw, "villagesim_plan_events_total{run=%q,event=%q} %d\n", run, world.EventAborted, m.Aborted)

		fmt.Fprintf(rw, "# HELP villagesim_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE villagesim_step_ms gauge\n")
		fmt.Fprintf(rw, "villagesim_step_ms{run=%q} %.3f\n", run, m.StepMS)

		if idx == nil {
			return
		}
		s := idx.Stats()
		fmt.Fprintf(rw, "# HELP villagesim_index_queue_depth Index writer backlog.\n")
		fmt.Fprintf(rw, "# TYPE villagesim_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "villagesim_index_queue_depth{run=%q} %d\n", run, s.QueueDepth)

		fmt.Fprintf(rw, "# HELP villagesim_index_dropped_total Index writes dropped because the queue was full.\n")
		fmt.Fprintf(rw, "# TYPE villagesim_index_dropped_total counter\n")
		fmt.Fprintf(rw, "villagesim_index_dropped_total{run=%q,kind=%q} %d\n", run, "tick", s.DropTickTotal)
		fmt.Fprintf(rw, "villagesim_index_dropped_total{run=%q,kind=%q} %d\n", run, "event", s.DropEventTotal)
		fmt.Fprintf(rw, "villagesim_index_dropped_total{run=%q,kind=%q} %d\n", run, "snapshot", s.DropSnapshotTotal)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
