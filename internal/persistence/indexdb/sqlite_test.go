package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"villagesim.ai/internal/persistence/snapshot"
	"villagesim.ai/internal/sim/catalogs"
	"villagesim.ai/internal/sim/tuning"
	"villagesim.ai/internal/sim/world"
)

func openTest(t *testing.T) (*SQLiteIndex, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "index.sqlite")
	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return idx, dbPath
}

func openDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteIndex_WritesTicksAndEvents(t *testing.T) {
	idx, dbPath := openTest(t)

	evs := []world.PlanEvent{
		{Tick: 1, Agent: 7, Name: "Ada", Event: world.EventStarted, Job: "haul"},
		{Tick: 1, Agent: 8, Name: "Bo", Event: world.EventStarted, Job: "build"},
	}
	_ = idx.WriteTick(world.TickLogEntry{Tick: 1, Elapsed: 0.5, Runners: 2, Events: evs, Digest: "d1"})
	for _, ev := range evs {
		_ = idx.WritePlanEvent(ev)
	}
	abort := world.PlanEvent{Tick: 2, Agent: 7, Name: "Ada", Event: world.EventAborted, Job: "haul", Error: "no path"}
	_ = idx.WriteTick(world.TickLogEntry{Tick: 2, Elapsed: 1, Runners: 1, Events: []world.PlanEvent{abort}, Digest: "d2"})
	_ = idx.WritePlanEvent(abort)

	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db := openDB(t, dbPath)
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ticks`).Scan(&n); err != nil || n != 2 {
		t.Fatalf("ticks count=%d err=%v", n, err)
	}
	var digest string
	var events int
	if err := db.QueryRow(`SELECT digest, events FROM ticks WHERE tick=1`).Scan(&digest, &events); err != nil {
		t.Fatalf("tick row: %v", err)
	}
	if digest != "d1" || events != 2 {
		t.Fatalf("tick row: digest=%q events=%d", digest, events)
	}

	var seq int
	var name string
	if err := db.QueryRow(`SELECT seq, name FROM plan_events WHERE tick=1 AND agent=8`).Scan(&seq, &name); err != nil {
		t.Fatalf("event row: %v", err)
	}
	if seq != 1 || name != "Bo" {
		t.Fatalf("event row: seq=%d name=%q", seq, name)
	}
	var msg string
	if err := db.QueryRow(`SELECT error FROM plan_events WHERE event='aborted'`).Scan(&msg); err != nil || msg != "no path" {
		t.Fatalf("aborted error=%q err=%v", msg, err)
	}
}

func TestSQLiteIndex_RecordSnapshotAndSummary(t *testing.T) {
	idx, dbPath := openTest(t)

	cats := &catalogs.Catalogs{
		Buildings: catalogs.BuildingCatalog{
			ByID:   map[string]catalogs.BuildingDef{"house": {ID: "house", WorkSeconds: 30}},
			Digest: "b1",
		},
	}
	if err := idx.UpsertRun("run-9", cats, tuning.Tuning{Seed: 5}); err != nil {
		t.Fatalf("upsert run: %v", err)
	}

	snap := snapshot.SnapshotV1{
		Header:     snapshot.Header{Version: snapshot.Version, RunID: "run-9", Tick: 600},
		MarkerLast: 31,
		Villagers: []snapshot.VillagerV1{
			{ID: 1, Name: "Ada", Runner: &snapshot.RunnerV1{Job: "haul"}},
			{ID: 2, Name: "Bo"},
		},
		Buildings: []snapshot.BuildingV1{{ID: 3, Template: "house"}},
	}
	idx.RecordSnapshot("/tmp/snaps/000000000600.snap.zst", snap)
	_ = idx.WriteTick(world.TickLogEntry{Tick: 600, Digest: "abc"})
	for i := 0; i < 3; i++ {
		_ = idx.WritePlanEvent(world.PlanEvent{Tick: 600, Agent: 2, Name: "Bo", Event: world.EventAborted})
	}
	_ = idx.WritePlanEvent(world.PlanEvent{Tick: 601, Agent: 1, Name: "Ada", Event: world.EventAborted})
	_ = idx.WritePlanEvent(world.PlanEvent{Tick: 601, Agent: 1, Name: "Ada", Event: world.EventFinished})

	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db := openDB(t, dbPath)
	var villagers, runners int
	var marker int64
	if err := db.QueryRow(`SELECT villagers, runners, marker_last FROM snapshots WHERE tick=600`).Scan(&villagers, &runners, &marker); err != nil {
		t.Fatalf("snapshot row: %v", err)
	}
	if villagers != 2 || runners != 1 || marker != 31 {
		t.Fatalf("snapshot row: villagers=%d runners=%d marker=%d", villagers, runners, marker)
	}
	var digest string
	if err := db.QueryRow(`SELECT digest FROM catalogs WHERE name='buildings'`).Scan(&digest); err != nil || digest != "b1" {
		t.Fatalf("catalog digest=%q err=%v", digest, err)
	}

	sum, err := Summarize(context.Background(), db)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.RunID != "run-9" || sum.Ticks != 1 || sum.LastTick != 600 || sum.LastDigest != "abc" {
		t.Fatalf("summary: %+v", sum)
	}
	if sum.Events[world.EventAborted] != 4 || sum.Events[world.EventFinished] != 1 {
		t.Fatalf("events: %+v", sum.Events)
	}
	if sum.Snapshots != 1 || sum.LastSnapAt != 600 {
		t.Fatalf("snapshots: %+v", sum)
	}
	if len(sum.TopAborters) != 2 || sum.TopAborters[0].Agent != 2 || sum.TopAborters[0].Count != 3 {
		t.Fatalf("top aborters: %+v", sum.TopAborters)
	}
}

func TestSQLiteIndex_WritesAfterCloseAreIgnored(t *testing.T) {
	idx, _ := openTest(t)
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := idx.WriteTick(world.TickLogEntry{Tick: 1}); err != nil {
		t.Fatalf("write after close: %v", err)
	}
	idx.RecordSnapshot("x", snapshot.SnapshotV1{})
	if err := idx.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	st := idx.Stats()
	if st.QueueCapacity == 0 || st.DropTickTotal != 0 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestSQLiteIndex_StatsCountsDrops(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	_ = s.WriteTick(world.TickLogEntry{Tick: 1})
	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	_ = s.WritePlanEvent(world.PlanEvent{Tick: 2})
	s.RecordSnapshot("p", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue: %+v", st)
	}
	if st.DropTickTotal != 1 || st.DropEventTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("drops: %+v", st)
	}
}
