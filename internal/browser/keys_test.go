package browser

import (
	"testing"

	"github.com/go-rod/rod/lib/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCombo(t *testing.T) {
	tests := []struct {
		in   string
		mods []input.Key
		key  input.Key
	}{
		{"Enter", nil, input.Enter},
		{"Shift+Enter", []input.Key{input.ShiftLeft}, input.Enter},
		{"Control+s", []input.Key{input.ControlLeft}, input.Key('s')},
		{"ctrl+shift+Z", []input.Key{input.ControlLeft, input.ShiftLeft}, input.Key('Z')},
		{"Meta+ArrowDown", []input.Key{input.MetaLeft}, input.ArrowDown},
		{"Control++", []input.Key{input.ControlLeft}, input.Key('+')},
		{"Escape", nil, input.Escape},
		{"Shift", nil, input.ShiftLeft},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := ParseCombo(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.mods, c.Modifiers)
			assert.Equal(t, tt.key, c.Key)
		})
	}
}

func TestParseComboErrors(t *testing.T) {
	for _, in := range []string{"", "Shift+", "Enter+a", "Control+NotAKey"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseCombo(in)
			assert.Error(t, err)
		})
	}
}
