package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shippedSuite = "../../suites/notebook-run.yaml"

func executeValidate(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	cmd := NewValidateCommand(&RootOptions{Format: format})
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeSuiteFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestValidateCommand_ShippedSuite(t *testing.T) {
	out, err := executeValidate(t, "text", shippedSuite)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+shippedSuite)
	assert.Contains(t, out, `suite "notebook-run", 5 test(s)`)
}

func TestValidateCommand_InvalidSuite(t *testing.T) {
	bad := writeSuiteFile(t, `
name: bad
tests:
  - name: t
    steps:
      - open: a.ipynb
        save: {}
`)

	out, err := executeValidate(t, "text", shippedSuite, bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ "+shippedSuite)
	assert.Contains(t, out, "✗ "+bad)
	assert.Contains(t, out, ErrCodeInvalidSuite)
}

func TestValidateCommand_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	out, err := executeValidate(t, "text", missing)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestValidateCommand_JSON(t *testing.T) {
	bad := writeSuiteFile(t, "name: bad\n")

	out, err := executeValidate(t, "json", shippedSuite, bad)
	require.Error(t, err)

	var resp struct {
		Status string             `json:"status"`
		Data   []ValidationResult `json:"data"`
		Error  *CLIError          `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, "error", resp.Status)
	require.Len(t, resp.Data, 2)
	assert.True(t, resp.Data[0].Valid)
	assert.Equal(t, 5, resp.Data[0].Tests)
	assert.False(t, resp.Data[1].Valid)
	assert.Equal(t, ErrCodeInvalidSuite, resp.Data[1].Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidSuite, resp.Error.Code)
	assert.Equal(t, "1 of 2 suite file(s) invalid", resp.Error.Message)
}

func TestValidateCommand_RequiresArgs(t *testing.T) {
	_, err := executeValidate(t, "text")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
