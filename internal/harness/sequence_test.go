package harness

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/labshot/internal/failure"
)

func TestRunSequentially_CallbackRunsBetweenActions(t *testing.T) {
	var log []string
	act := func(name string) Action {
		return func(context.Context) error {
			log = append(log, name)
			return nil
		}
	}

	err := RunSequentially(context.Background(), []Action{act("a"), act("b"), act("c")},
		func(_ context.Context, i int) error {
			log = append(log, "step")
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "step", "b", "step", "c", "step"}, log)
}

func TestRunSequentially_StopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	ran := 0
	actions := []Action{
		func(context.Context) error { ran++; return nil },
		func(context.Context) error { ran++; return boom },
		func(context.Context) error { ran++; return nil },
	}

	err := RunSequentially(context.Background(), actions, nil)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "step 1")
	assert.Equal(t, 2, ran)
}

func TestRunSequentially_CallbackErrorStops(t *testing.T) {
	ran := 0
	actions := []Action{
		func(context.Context) error { ran++; return nil },
		func(context.Context) error { ran++; return nil },
	}

	err := RunSequentially(context.Background(), actions, func(context.Context, int) error {
		return errors.New("capture failed")
	})
	require.Error(t, err)
	assert.Equal(t, "step 0: capture failed", err.Error())
	assert.Equal(t, 1, ran)
}

func TestRunSequentially_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunSequentially(ctx, []Action{func(context.Context) error { return nil }}, nil)
	require.Error(t, err)
	assert.True(t, failure.IsTimeout(err))
}

func TestRunSequentially_Empty(t *testing.T) {
	called := false
	err := RunSequentially(context.Background(), nil, func(context.Context, int) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}
