// Command vidwrk-reconcile is an operator-triggered one-shot tool: it scans
// the video table for rows that have stayed in "uploaded" longer than
// -stale-after and reports their ids. It does not consult the queue, so a
// reported row may still have a task in flight. It makes no writes; an
// operator decides whether to re-enqueue or mark them failed.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/onnwee/vidwrk/internal/logging"
)

func main() {
	if err := run(); err != nil {
		logging.LogNoTaskID("reconcile failed", "err", err.Error())
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("vidwrk-reconcile", flag.ExitOnError)
	dsn := fs.String("database-dsn", os.Getenv("VIDWRK_DATABASE_DSN"), "PostgreSQL connection string")
	staleAfter := fs.Duration("stale-after", 30*time.Minute, "how long a row may sit in uploaded before being reported as stuck")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *dsn == "" {
		return fmt.Errorf("database-dsn is required")
	}

	db, err := sql.Open("postgres", *dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stuck, err := findStuckRows(ctx, db, *staleAfter)
	if err != nil {
		return fmt.Errorf("query stuck rows: %w", err)
	}

	if len(stuck) == 0 {
		fmt.Println("no stuck rows found")
		return nil
	}

	fmt.Printf("%d row(s) stuck in uploaded for longer than %s:\n", len(stuck), *staleAfter)
	for _, id := range stuck {
		fmt.Println(id)
	}
	return nil
}

// findStuckRows reports video ids whose status is still "uploaded" past the
// given age. It does not know which tasks are still in flight on the queue
// (C5 exposes no listing operation), so a positive result is a candidate
// for operator investigation, not proof of an orphaned task.
func findStuckRows(ctx context.Context, db *sql.DB, staleAfter time.Duration) ([]string, error) {
	const query = `
		SELECT id FROM videos
		WHERE status = 'uploaded' AND uploaded_at < $1
		ORDER BY uploaded_at ASC`

	rows, err := db.QueryContext(ctx, query, time.Now().Add(-staleAfter).UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
