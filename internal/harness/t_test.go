package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/labshot/internal/failure"
	"github.com/roach88/labshot/internal/snapshot"
	"github.com/roach88/labshot/internal/testutil"
)

func TestT_SoftFailuresAccumulate(t *testing.T) {
	tt := newT("soft", nil, nil, nil)
	assert.False(t, tt.Failed())

	tt.Errorf("first %d", 1)
	tt.Errorf("second")

	assert.True(t, tt.Failed())
	assert.Equal(t, []string{"first 1", "second"}, tt.Errors())
}

func TestT_ExpectInt(t *testing.T) {
	tt := newT("int", nil, nil, nil)

	require.NoError(t, tt.ExpectInt([]string{" 4\n"}, 4, Hard))

	err := tt.ExpectInt([]string{"5"}, 4, Hard)
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "output_int: expected 4, got 5", aerr.Error())

	err = tt.ExpectInt([]string{"four"}, 4, Hard)
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, `"four"`, aerr.Actual)

	err = tt.ExpectInt(nil, 4, Hard)
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "no output", aerr.Actual)
}

func TestT_ExpectFloatAbove(t *testing.T) {
	tt := newT("float", nil, nil, nil)

	require.NoError(t, tt.ExpectFloatAbove([]string{"1.7320508075688772"}, 1.5, Hard))

	err := tt.ExpectFloatAbove([]string{"1.5"}, 1.5, Hard)
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "> 1.5", aerr.Expected)

	for _, out := range []string{"nan", "NaN", "1.0"} {
		require.Error(t, tt.ExpectFloatAbove([]string{out}, 1.5, Hard), out)
	}
}

func TestT_ExpectEquals(t *testing.T) {
	tt := newT("equals", nil, nil, nil)

	require.NoError(t, tt.ExpectEquals([]string{"hello", "world\n"}, "hello\nworld", Hard))
	require.Error(t, tt.ExpectEquals([]string{"hello"}, "bye", Hard))
}

func TestT_SoftExpectationRecordsAndContinues(t *testing.T) {
	tt := newT("soft expect", nil, nil, nil)

	require.NoError(t, tt.ExpectInt([]string{"5"}, 4, Soft))
	require.Len(t, tt.Errors(), 1)
	assert.Contains(t, tt.Errors()[0], "expected 4, got 5")
}

func TestT_CompareToBaseline(t *testing.T) {
	b := newBaseline(t, false)
	tt := newT("compare", nil, b, nil)
	ctx := context.Background()

	// No baseline yet: hard mismatch.
	err := tt.CompareToBaseline(ctx, snapshot.Image("panel.png", testutil.RenderPNG("a")), "", Hard)
	require.Error(t, err)
	assert.True(t, failure.IsMismatch(err))

	b.Update = true
	require.NoError(t, tt.CompareToBaseline(ctx, snapshot.Image("panel.png", testutil.RenderPNG("a")), "", Hard))
	b.Update = false

	require.NoError(t, tt.CompareToBaseline(ctx, snapshot.Image("panel.png", testutil.RenderPNG("a")), "", Hard))

	// Soft mismatch is recorded, not returned.
	require.NoError(t, tt.CompareToBaseline(ctx, snapshot.Image("panel.png", testutil.RenderPNG("b")), "", Soft))
	assert.True(t, tt.Failed())

	snaps := tt.Snapshots()
	require.Len(t, snaps, 4)
	assert.False(t, snaps[0].Match)
	assert.True(t, snaps[1].Created)
	assert.True(t, snaps[2].Match)
	assert.False(t, snaps[3].Match)
	assert.True(t, snaps[3].Soft)
	assert.NotEmpty(t, snaps[3].DiffPath)
}

func TestT_CompareToBaselineNumbersNames(t *testing.T) {
	b := newBaseline(t, true)
	tt := newT("numbered", nil, b, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, tt.CompareToBaseline(ctx, snapshot.Text("", "x"), "cell-{n}.txt", Hard))
	}

	var names []string
	for _, s := range tt.Snapshots() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"cell-0.txt", "cell-1.txt", "cell-2.txt"}, names)
}

func TestT_CompareToBaselineWithoutBaseline(t *testing.T) {
	tt := newT("none", nil, nil, nil)
	err := tt.CompareToBaseline(context.Background(), snapshot.Text("a.txt", "x"), "", Soft)
	require.Error(t, err)
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "hard", Hard.String())
	assert.Equal(t, "soft", Soft.String())
}
