package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// OpenRun records the start of a suite run and returns its ID.
func (s *Store) OpenRun(ctx context.Context, suite, suitePath string) (string, error) {
	id := s.ids.NewID()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, suite, suite_path, started_at)
		VALUES (?, ?, ?, ?)
	`, id, suite, suitePath, formatTime(s.now()))
	if err != nil {
		return "", fmt.Errorf("open run: %w", err)
	}
	return id, nil
}

// RecordTest appends a test result, and its snapshots, to a run. The test
// gets the next sequence number of the run; the snapshots keep their order.
//
// Returns the test row ID.
func (s *Store) RecordTest(ctx context.Context, runID string, t TestRecord) (int64, error) {
	errorsJSON, err := json.Marshal(nonNil(t.Errors))
	if err != nil {
		return 0, fmt.Errorf("record test: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("record test: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM test_results WHERE run_id = ?
	`, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("record test: next seq: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO test_results
		(run_id, seq, name, pass, skipped, code, fatal, errors, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		seq,
		t.Name,
		boolInt(t.Pass),
		boolInt(t.Skipped),
		t.Code,
		t.Fatal,
		string(errorsJSON),
		formatTime(t.Started),
		t.Duration.Milliseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("record test %q: %w", t.Name, err)
	}
	testID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record test: last insert id: %w", err)
	}

	for i, snap := range t.Snapshots {
		snap.Seq = i + 1
		if err := insertSnapshot(ctx, tx, testID, snap); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("record test: commit: %w", err)
	}
	return testID, nil
}

// RecordSnapshot appends a snapshot comparison to a stored test.
func (s *Store) RecordSnapshot(ctx context.Context, testID int64, snap SnapshotRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record snapshot: begin tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM snapshot_results WHERE test_id = ?
	`, testID).Scan(&snap.Seq)
	if err != nil {
		return fmt.Errorf("record snapshot: next seq: %w", err)
	}
	if err := insertSnapshot(ctx, tx, testID, snap); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record snapshot: commit: %w", err)
	}
	return nil
}

func insertSnapshot(ctx context.Context, tx *sql.Tx, testID int64, snap SnapshotRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO snapshot_results
		(test_id, seq, name, kind, match, soft, diff_ratio, diff, created, updated, actual_path, diff_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		testID,
		snap.Seq,
		snap.Name,
		snap.Kind,
		boolInt(snap.Match),
		boolInt(snap.Soft),
		snap.DiffRatio,
		snap.Diff,
		boolInt(snap.Created),
		boolInt(snap.Updated),
		snap.ActualPath,
		snap.DiffPath,
	)
	if err != nil {
		return fmt.Errorf("record snapshot %q: %w", snap.Name, err)
	}
	return nil
}

// FinishRun marks a run as finished with its overall outcome.
// Returns sql.ErrNoRows if the run does not exist.
func (s *Store) FinishRun(ctx context.Context, runID string, pass bool, setupErr, teardownErr string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, pass = ?, setup_error = ?, teardown_error = ?
		WHERE id = ?
	`, formatTime(s.now()), boolInt(pass), setupErr, teardownErr, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, sql.ErrNoRows)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
