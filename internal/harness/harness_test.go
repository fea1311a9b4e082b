package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/labshot/internal/lab"
	"github.com/roach88/labshot/internal/snapshot"
	"github.com/roach88/labshot/internal/testutil"
)

const nbPath = "notebook-run-test/simple_notebook.ipynb"

var simpleNotebook = map[string][]string{
	nbPath: {"", "", "", "", "", "4", "1.7"},
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// jupyterSessions opens every session on a fresh FakeJupyter.
type jupyterSessions struct {
	notebooks map[string][]string
	contents  lab.Contents
	err       error

	mu     sync.Mutex
	opened []*testutil.FakeJupyter
}

func (s *jupyterSessions) NewSession(ctx context.Context) (*Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	j := testutil.NewFakeJupyter(s.notebooks)
	l := &lab.Lab{
		Page:         j.Page,
		Contents:     s.contents,
		BaseURL:      "http://lab.test/",
		PollInterval: time.Millisecond,
		Logger:       discardLogger(),
	}
	if err := l.Goto(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.opened = append(s.opened, j)
	s.mu.Unlock()
	return &Session{Page: j.Page, Lab: l}, nil
}

func (s *jupyterSessions) sessions() []*testutil.FakeJupyter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*testutil.FakeJupyter(nil), s.opened...)
}

// fakeStore records fixture traffic.
type fakeStore struct {
	mu        sync.Mutex
	uploads   []string
	deleted   []string
	uploadErr error
	deleteErr error
}

func (f *fakeStore) Upload(_ context.Context, localPath, dest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	if _, err := os.Stat(localPath); err != nil {
		return err
	}
	f.uploads = append(f.uploads, dest)
	return nil
}

func (f *fakeStore) DeleteDirectory(_ context.Context, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, dir)
	return f.deleteErr
}

type recorder struct {
	mu      sync.Mutex
	results []string
}

func (r *recorder) RecordTest(ctx context.Context, suite string, res TestResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, fmt.Sprintf("%s/%s pass=%v", suite, res.Name, res.Pass))
	return nil
}

func newBaseline(t *testing.T, update bool) *snapshot.Baseline {
	t.Helper()
	return &snapshot.Baseline{
		Dir:       t.TempDir(),
		Tolerance: snapshot.DefaultTolerance,
		Update:    update,
		Logger:    discardLogger(),
	}
}

func newRunner(t *testing.T) (*Runner, *fakeStore, *jupyterSessions) {
	t.Helper()
	store := &fakeStore{}
	sessions := &jupyterSessions{notebooks: simpleNotebook}
	r := &Runner{
		Contents: store,
		Sessions: sessions,
		Baseline: newBaseline(t, true),
		Logger:   discardLogger(),
		Clock:    testutil.NewFixedClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), time.Second),
	}
	return r, store, sessions
}

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}
