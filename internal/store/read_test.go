package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
)

func TestListRuns_NewestFirstWithCounts(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	first, _ := s.OpenRun(ctx, "a", "")
	second, _ := s.OpenRun(ctx, "b", "")
	s.RecordTest(ctx, second, TestRecord{Name: "ok", Pass: true})
	s.RecordTest(ctx, second, TestRecord{Name: "bad"})
	s.RecordTest(ctx, second, TestRecord{Name: "skipped", Skipped: true})

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != second || runs[1].ID != first {
		t.Errorf("order = %s, %s", runs[0].ID, runs[1].ID)
	}
	if runs[0].Passed != 1 || runs[0].Failed != 1 || runs[0].Skipped != 1 {
		t.Errorf("counts = %d/%d/%d", runs[0].Passed, runs[0].Failed, runs[0].Skipped)
	}
}

func TestListRuns_Limit(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.OpenRun(ctx, "suite", "")
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-0005" {
		t.Errorf("runs = %+v", runs)
	}
}

func TestListRuns_EmptyIsNotNil(t *testing.T) {
	s, _ := createTestStore(t)

	runs, err := s.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if runs == nil || len(runs) != 0 {
		t.Errorf("runs = %#v, want empty slice", runs)
	}
}

func TestGetRun_Prefix(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	id, _ := s.OpenRun(ctx, "suite", "")

	d, err := s.GetRun(ctx, "run-000")
	if err != nil {
		t.Fatalf("GetRun(prefix) failed: %v", err)
	}
	if d.ID != id {
		t.Errorf("id = %q, want %q", d.ID, id)
	}
	if d.Tests == nil {
		t.Error("tests should be an empty slice")
	}
}

func TestGetRun_AmbiguousPrefix(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	s.OpenRun(ctx, "a", "")
	s.OpenRun(ctx, "b", "")

	_, err := s.GetRun(ctx, "run-")
	if err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Errorf("err = %v, want ambiguous prefix", err)
	}

	// A full ID always resolves.
	if _, err := s.GetRun(ctx, "run-0002"); err != nil {
		t.Errorf("exact id: %v", err)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s, _ := createTestStore(t)

	for _, id := range []string{"nope", "", "%"} {
		_, err := s.GetRun(context.Background(), id)
		if !errors.Is(err, sql.ErrNoRows) {
			t.Errorf("GetRun(%q) err = %v, want sql.ErrNoRows", id, err)
		}
	}
}
