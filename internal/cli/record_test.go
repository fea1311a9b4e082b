package cli

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/labshot/internal/harness"
	"github.com/roach88/labshot/internal/store"
	"github.com/roach88/labshot/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type emptySessions struct{}

func (emptySessions) NewSession(context.Context) (*harness.Session, error) {
	return &harness.Session{}, nil
}

func TestRunHistory_InterruptedRunKeepsRunningTest(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	opts := &RunOptions{
		Database: db,
		Clock:    testutil.NewFixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), time.Second),
		IDs:      testutil.NewSequentialIDs("run"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	history, err := openRunHistory(ctx, opts, "interrupt", "suite.yaml")
	require.NoError(t, err)
	defer history.close(discardLogger())

	runner := &harness.Runner{
		Sessions: emptySessions{},
		Recorder: history,
		Logger:   discardLogger(),
	}
	suite := &harness.Suite{Name: "interrupt", Tests: []harness.Test{
		{Name: "first", Fn: func(context.Context, *harness.T) error { return nil }},
		{Name: "interrupted", Fn: func(context.Context, *harness.T) error {
			cancel()
			return nil
		}},
		{Name: "never started", Fn: func(context.Context, *harness.T) error { return nil }},
	}}

	res, runErr := runner.Run(ctx, suite)
	require.Error(t, runErr)
	require.NoError(t, history.finish(ctx, res))

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	detail, err := st.GetRun(context.Background(), "run-0001")
	require.NoError(t, err)
	require.Len(t, detail.Tests, 3)
	assert.Equal(t, "first", detail.Tests[0].Name)
	assert.Equal(t, "interrupted", detail.Tests[1].Name)
	assert.False(t, detail.Tests[1].Skipped)
	assert.Equal(t, "never started", detail.Tests[2].Name)
	assert.True(t, detail.Tests[2].Skipped)
	assert.True(t, detail.Done())
}
