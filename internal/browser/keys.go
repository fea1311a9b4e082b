package browser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-rod/rod/lib/input"
)

// Combo is a parsed key combination such as "Shift+Enter".
type Combo struct {
	Modifiers []input.Key
	Key       input.Key
}

var modifierKeys = map[string]input.Key{
	"shift":   input.ShiftLeft,
	"control": input.ControlLeft,
	"ctrl":    input.ControlLeft,
	"alt":     input.AltLeft,
	"meta":    input.MetaLeft,
	"cmd":     input.MetaLeft,
}

var namedKeys = map[string]input.Key{
	"enter":      input.Enter,
	"escape":     input.Escape,
	"esc":        input.Escape,
	"tab":        input.Tab,
	"backspace":  input.Backspace,
	"delete":     input.Delete,
	"space":      input.Space,
	"arrowup":    input.ArrowUp,
	"arrowdown":  input.ArrowDown,
	"arrowleft":  input.ArrowLeft,
	"arrowright": input.ArrowRight,
	"home":       input.Home,
	"end":        input.End,
	"pageup":     input.PageUp,
	"pagedown":   input.PageDown,
}

// ParseCombo parses a Playwright-style key combination: modifiers joined
// with "+", followed by one key. Key names are case-insensitive; single
// printable characters stand for themselves ("Control+s").
func ParseCombo(s string) (Combo, error) {
	parts := strings.Split(s, "+")
	// "Control++" means Control and the plus key.
	if strings.HasSuffix(s, "++") {
		parts = append(parts[:len(parts)-2], "+")
	}

	var c Combo
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return Combo{}, fmt.Errorf("key combo %q: empty key", s)
		}
		last := i == len(parts)-1

		if k, ok := modifierKeys[strings.ToLower(p)]; ok && !last {
			c.Modifiers = append(c.Modifiers, k)
			continue
		}
		if !last {
			return Combo{}, fmt.Errorf("key combo %q: %q is not a modifier", s, p)
		}

		k, err := parseKey(p)
		if err != nil {
			return Combo{}, fmt.Errorf("key combo %q: %w", s, err)
		}
		c.Key = k
	}
	return c, nil
}

func parseKey(p string) (input.Key, error) {
	if k, ok := namedKeys[strings.ToLower(p)]; ok {
		return k, nil
	}
	if k, ok := modifierKeys[strings.ToLower(p)]; ok {
		return k, nil
	}
	if utf8.RuneCountInString(p) == 1 {
		r, _ := utf8.DecodeRuneInString(p)
		return input.Key(r), nil
	}
	return 0, fmt.Errorf("unknown key %q", p)
}
