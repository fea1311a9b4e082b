package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"
)

func TestOpenRun_UsesInjectedIDAndClock(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	id, err := s.OpenRun(ctx, "notebook-run", "suites/notebook-run.yaml")
	if err != nil {
		t.Fatalf("OpenRun() failed: %v", err)
	}
	if id != "run-0001" {
		t.Errorf("id = %q, want run-0001", id)
	}

	d, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC); !d.Started.Equal(want) {
		t.Errorf("started = %v, want %v", d.Started, want)
	}
	if d.Done() {
		t.Error("new run should not be done")
	}
	if d.SuitePath != "suites/notebook-run.yaml" {
		t.Errorf("suite path = %q", d.SuitePath)
	}
}

func TestRecordTest_AssignsSequence(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	id, _ := s.OpenRun(ctx, "suite", "")

	for _, name := range []string{"first", "second", "third"} {
		if _, err := s.RecordTest(ctx, id, TestRecord{Name: name, Pass: true}); err != nil {
			t.Fatalf("RecordTest(%s) failed: %v", name, err)
		}
	}

	d, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if len(d.Tests) != 3 {
		t.Fatalf("got %d tests, want 3", len(d.Tests))
	}
	for i, tr := range d.Tests {
		if tr.Seq != i+1 {
			t.Errorf("tests[%d].Seq = %d, want %d", i, tr.Seq, i+1)
		}
	}
	if d.Tests[2].Name != "third" {
		t.Errorf("tests[2].Name = %q", d.Tests[2].Name)
	}
}

func TestRecordTest_StoresFailureDetailAndSnapshots(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	id, _ := s.OpenRun(ctx, "suite", "")

	started := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
	_, err := s.RecordTest(ctx, id, TestRecord{
		Name:     "Run Notebook",
		Code:     "SNAPSHOT_MISMATCH",
		Fatal:    "SNAPSHOT_MISMATCH: compare notebook-panel-7.png: 12 of 100 pixels differ",
		Errors:   []string{"soft one", "soft two"},
		Started:  started,
		Duration: 1500 * time.Millisecond,
		Snapshots: []SnapshotRecord{
			{Name: "notebook-panel-0.png", Kind: "image", Match: true, Soft: true},
			{Name: "notebook-panel-7.png", Kind: "image", DiffRatio: 0.12, Diff: "12 of 100 pixels differ",
				ActualPath: "_failures/notebook-panel-7-actual.png", DiffPath: "_failures/notebook-panel-7-diff.png"},
		},
	})
	if err != nil {
		t.Fatalf("RecordTest() failed: %v", err)
	}

	d, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	tr := d.Tests[0]
	if tr.Pass || tr.Code != "SNAPSHOT_MISMATCH" {
		t.Errorf("pass=%v code=%q", tr.Pass, tr.Code)
	}
	if len(tr.Errors) != 2 || tr.Errors[1] != "soft two" {
		t.Errorf("errors = %v", tr.Errors)
	}
	if !tr.Started.Equal(started) || tr.Duration != 1500*time.Millisecond {
		t.Errorf("started=%v duration=%v", tr.Started, tr.Duration)
	}
	if len(tr.Snapshots) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(tr.Snapshots))
	}
	second := tr.Snapshots[1]
	if second.Seq != 2 || second.Match || second.DiffRatio != 0.12 || second.DiffPath == "" {
		t.Errorf("second snapshot = %+v", second)
	}
	if !tr.Snapshots[0].Soft || !tr.Snapshots[0].Match {
		t.Errorf("first snapshot = %+v", tr.Snapshots[0])
	}
}

func TestRecordTest_UnknownRunFails(t *testing.T) {
	s, _ := createTestStore(t)

	_, err := s.RecordTest(context.Background(), "no-such-run", TestRecord{Name: "x"})
	if err == nil {
		t.Fatal("expected foreign key error")
	}
}

func TestRecordSnapshot_Appends(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	id, _ := s.OpenRun(ctx, "suite", "")

	testID, err := s.RecordTest(ctx, id, TestRecord{Name: "t", Snapshots: []SnapshotRecord{{Name: "a.png", Kind: "image", Match: true}}})
	if err != nil {
		t.Fatalf("RecordTest() failed: %v", err)
	}
	if err := s.RecordSnapshot(ctx, testID, SnapshotRecord{Name: "b.txt", Kind: "text", Created: true, Match: true}); err != nil {
		t.Fatalf("RecordSnapshot() failed: %v", err)
	}

	d, _ := s.GetRun(ctx, id)
	snaps := d.Tests[0].Snapshots
	if len(snaps) != 2 || snaps[1].Name != "b.txt" || snaps[1].Seq != 2 || !snaps[1].Created {
		t.Errorf("snapshots = %+v", snaps)
	}
}

func TestFinishRun(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	id, _ := s.OpenRun(ctx, "suite", "")

	if err := s.FinishRun(ctx, id, false, "", "teardown: TRANSFER_FAILED: delete tmp"); err != nil {
		t.Fatalf("FinishRun() failed: %v", err)
	}

	d, _ := s.GetRun(ctx, id)
	if !d.Done() || d.Pass {
		t.Errorf("done=%v pass=%v", d.Done(), d.Pass)
	}
	if want := time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC); !d.Finished.Equal(want) {
		t.Errorf("finished = %v, want %v", d.Finished, want)
	}
	if d.TeardownError == "" {
		t.Error("teardown error not stored")
	}
}

func TestFinishRun_UnknownRun(t *testing.T) {
	s, _ := createTestStore(t)

	err := s.FinishRun(context.Background(), "missing", true, "", "")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}
}
