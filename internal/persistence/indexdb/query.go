package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
)

// Summary is what `villagesim inspect` prints for an index.
type Summary struct {
	RunID       string
	Ticks       int
	LastTick    uint64
	LastDigest  string
	Events      map[string]int
	Snapshots   int
	LastSnapAt  uint64
	TopAborters []AgentCount
}

type AgentCount struct {
	Agent uint32
	Name  string
	Count int
}

// OpenReadOnly opens an existing index for queries without starting the
// writer goroutine.
func OpenReadOnly(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA query_only=ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func Summarize(ctx context.Context, db *sql.DB) (Summary, error) {
	sum := Summary{Events: map[string]int{}}

	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key='run_id'`).Scan(&sum.RunID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return sum, fmt.Errorf("meta: %w", err)
	}

	var last sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(tick) FROM ticks`).Scan(&sum.Ticks, &last); err != nil {
		return sum, fmt.Errorf("ticks: %w", err)
	}
	if last.Valid {
		sum.LastTick = uint64(last.Int64)
		if err := db.QueryRowContext(ctx, `SELECT digest FROM ticks WHERE tick=?`, last.Int64).Scan(&sum.LastDigest); err != nil {
			return sum, fmt.Errorf("ticks: %w", err)
		}
	}

	rows, err := db.QueryContext(ctx, `SELECT event, COUNT(*) FROM plan_events GROUP BY event ORDER BY event`)
	if err != nil {
		return sum, fmt.Errorf("plan_events: %w", err)
	}
	for rows.Next() {
		var ev string
		var n int
		if err := rows.Scan(&ev, &n); err != nil {
			rows.Close()
			return sum, err
		}
		sum.Events[ev] = n
	}
	rows.Close()

	rows, err = db.QueryContext(ctx, `SELECT agent, name, COUNT(*) AS n FROM plan_events WHERE event='aborted'
		GROUP BY agent, name ORDER BY n DESC, agent ASC LIMIT 5`)
	if err != nil {
		return sum, fmt.Errorf("plan_events: %w", err)
	}
	for rows.Next() {
		var ac AgentCount
		var agent int64
		if err := rows.Scan(&agent, &ac.Name, &ac.Count); err != nil {
			rows.Close()
			return sum, err
		}
		ac.Agent = uint32(agent)
		sum.TopAborters = append(sum.TopAborters, ac)
	}
	rows.Close()

	var lastSnap sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(tick) FROM snapshots`).Scan(&sum.Snapshots, &lastSnap); err != nil {
		return sum, fmt.Errorf("snapshots: %w", err)
	}
	if lastSnap.Valid {
		sum.LastSnapAt = uint64(lastSnap.Int64)
	}
	return sum, nil
}
