package log

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"villagesim.ai/internal/sim/world"
)

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "x")
	now := time.Date(2026, 1, 2, 3, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"n": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for _, name := range []string{"x-2026-01-02-03.jsonl.zst", "x-2026-01-02-04.jsonl.zst"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}

	var got []int
	err := ReadJSONL(dir, "x", func(line []byte) error {
		var v struct{ N int }
		if err := json.Unmarshal(line, &v); err != nil {
			return err
		}
		got = append(got, v.N)
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("got %v", got)
	}
}

func TestTickLogger_WritesEntries(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	for i := uint64(0); i < 3; i++ {
		entry := world.TickLogEntry{Tick: i, Digest: "d"}
		if i == 1 {
			entry.Events = []world.PlanEvent{{Tick: 1, Agent: 4, Name: "Ada", Event: world.EventAborted, Error: "boom"}}
		}
		if err := l.WriteTick(entry); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var entries []world.TickLogEntry
	err := ReadJSONL(filepath.Join(dir, "ticks"), "ticks", func(line []byte) error {
		var e world.TickLogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 3 || entries[2].Tick != 2 {
		t.Fatalf("entries=%+v", entries)
	}
	if len(entries[1].Events) != 1 || entries[1].Events[0].Error != "boom" {
		t.Fatalf("events=%+v", entries[1].Events)
	}
}

func TestPlanEventLogger_WritesEvents(t *testing.T) {
	dir := t.TempDir()
	l := NewPlanEventLogger(dir)
	if err := l.WritePlanEvent(world.PlanEvent{Tick: 9, Agent: 1, Name: "Bram", Event: world.EventStarted, Job: "haul"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	n := 0
	err := ReadJSONL(filepath.Join(dir, "plans"), "plans", func(line []byte) error {
		var ev world.PlanEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return err
		}
		if ev.Job != "haul" || ev.Tick != 9 {
			t.Fatalf("event=%+v", ev)
		}
		n++
		return nil
	})
	if err != nil || n != 1 {
		t.Fatalf("read n=%d err=%v", n, err)
	}
}
