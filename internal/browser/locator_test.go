package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocatorString(t *testing.T) {
	assert.Equal(t, ".jp-Cell", CSS(".jp-Cell").String())
	assert.Equal(t, ".jp-Cell >> nth=2", CSS(".jp-Cell").At(2).String())
	assert.Equal(t, ".lm-Menu-itemLabel >> text=/Run/",
		CSS(".lm-Menu-itemLabel").WithText("Run").String())
}

func TestLocatorWithin(t *testing.T) {
	l := CSS(".jp-NotebookPanel").WithText("x").At(1).Within(".jp-Cell")
	assert.Equal(t, ".jp-NotebookPanel .jp-Cell", l.CSS)
	assert.Empty(t, l.Text)
	assert.Equal(t, -1, l.Nth)
}

func TestLocatorFilter(t *testing.T) {
	texts := []string{"File", "Edit", "Run", "Run All Cells", "Kernel"}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, CSS("x").Filter(texts))
	assert.Equal(t, []int{2, 3}, CSS("x").WithText("^Run").Filter(texts))
	assert.Equal(t, []int{3}, CSS("x").WithText("^Run").At(1).Filter(texts))
	assert.Nil(t, CSS("x").WithText("^Run").At(5).Filter(texts))
	assert.Equal(t, []int{0}, CSS("x").At(0).Filter(texts))
}

func TestLocatorExactTextEscapes(t *testing.T) {
	l := CSS("x").WithExactText("Restart Kernel and Run All Cells…")
	assert.Equal(t, []int{1}, l.Filter([]string{"Restart Kernel", "Restart Kernel and Run All Cells…"}))

	l = CSS("x").WithExactText("a.b")
	assert.Nil(t, l.Filter([]string{"axb"}))
}

func TestLocatorValidate(t *testing.T) {
	assert.NoError(t, CSS(".ok").Validate())
	assert.Error(t, Locator{}.Validate())
	assert.Error(t, CSS(".ok").WithText("(").Validate())
}

func TestLocatorThen(t *testing.T) {
	cell := CSS(".jp-Cell").At(5)
	out := cell.Then(".jp-OutputArea-output")

	assert.Equal(t, ".jp-Cell >> nth=5 >> .jp-OutputArea-output", out.Selector())
	assert.Equal(t, ".jp-Cell >> nth=5 >> .jp-OutputArea-output >> nth=0", out.At(0).String())
	assert.NoError(t, out.Validate())

	bad := CSS(".jp-Cell").WithText("(").Then(".x")
	assert.Error(t, bad.Validate())
}
