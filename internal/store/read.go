package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const runColumns = `
	r.id, r.suite, r.suite_path, r.started_at, COALESCE(r.finished_at, ''), COALESCE(r.pass, 0),
	r.setup_error, r.teardown_error,
	(SELECT COUNT(*) FROM test_results t WHERE t.run_id = r.id AND t.skipped = 0 AND t.pass = 1),
	(SELECT COUNT(*) FROM test_results t WHERE t.run_id = r.id AND t.skipped = 0 AND t.pass = 0),
	(SELECT COUNT(*) FROM test_results t WHERE t.run_id = r.id AND t.skipped = 1)
`

// ListRuns returns the most recent runs first, at most limit of them
// (all runs when limit <= 0). Ties on start time are broken by ID, which
// for UUIDv7 IDs follows creation order.
//
// Returns an empty slice (not nil) if there are no runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs r ORDER BY r.started_at DESC, r.id COLLATE BINARY DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a run and its tests. id may be an unambiguous prefix of
// the run ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetRun(ctx context.Context, id string) (*RunDetail, error) {
	fullID, err := s.resolveRunID(ctx, id)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, fullID)
	r, err := scanRun(row)
	if err != nil {
		return nil, err
	}

	tests, err := s.readTests(ctx, fullID)
	if err != nil {
		return nil, err
	}
	return &RunDetail{Run: r, Tests: tests}, nil
}

func (s *Store) resolveRunID(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("get run: empty id: %w", sql.ErrNoRows)
	}
	pattern := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(id) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM runs WHERE id LIKE ? ESCAPE '\' ORDER BY id COLLATE BINARY LIMIT 2
	`, pattern)
	if err != nil {
		return "", fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var found string
		if err := rows.Scan(&found); err != nil {
			return "", fmt.Errorf("get run: %w", err)
		}
		if found == id {
			return found, nil
		}
		ids = append(ids, found)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("get run: %w", err)
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("get run %s: %w", id, sql.ErrNoRows)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("get run: prefix %q is ambiguous", id)
	}
}

func (s *Store) readTests(ctx context.Context, runID string) ([]TestRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, name, pass, skipped, code, fatal, errors, started_at, duration_ms
		FROM test_results
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query tests: %w", err)
	}
	defer rows.Close()

	tests := []TestRecord{}
	var ids []int64
	for rows.Next() {
		var (
			id         int64
			t          TestRecord
			errorsJSON string
			started    string
			durationMS int64
		)
		if err := rows.Scan(&id, &t.Seq, &t.Name, &t.Pass, &t.Skipped, &t.Code, &t.Fatal,
			&errorsJSON, &started, &durationMS); err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		if err := json.Unmarshal([]byte(errorsJSON), &t.Errors); err != nil {
			return nil, fmt.Errorf("test %q: decode errors: %w", t.Name, err)
		}
		if t.Started, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("test %q: %w", t.Name, err)
		}
		t.Duration = msDuration(durationMS)
		tests = append(tests, t)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tests: %w", err)
	}
	rows.Close()

	for i, id := range ids {
		snaps, err := s.readSnapshots(ctx, id)
		if err != nil {
			return nil, err
		}
		tests[i].Snapshots = snaps
	}
	return tests, nil
}

func (s *Store) readSnapshots(ctx context.Context, testID int64) ([]SnapshotRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, name, kind, match, soft, diff_ratio, diff, created, updated, actual_path, diff_path
		FROM snapshot_results
		WHERE test_id = ?
		ORDER BY seq ASC
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []SnapshotRecord
	for rows.Next() {
		var sr SnapshotRecord
		if err := rows.Scan(&sr.Seq, &sr.Name, &sr.Kind, &sr.Match, &sr.Soft, &sr.DiffRatio,
			&sr.Diff, &sr.Created, &sr.Updated, &sr.ActualPath, &sr.DiffPath); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r                 Run
		started, finished string
	)
	err := row.Scan(&r.ID, &r.Suite, &r.SuitePath, &started, &finished, &r.Pass,
		&r.SetupError, &r.TeardownError, &r.Passed, &r.Failed, &r.Skipped)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("get run: %w", err)
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if r.Started, err = parseTime(started); err != nil {
		return Run{}, fmt.Errorf("run %s: %w", r.ID, err)
	}
	if r.Finished, err = parseTime(finished); err != nil {
		return Run{}, fmt.Errorf("run %s: %w", r.ID, err)
	}
	return r, nil
}
