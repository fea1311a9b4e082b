package browser

import (
	"fmt"
	"regexp"
	"strconv"
)

// Locator addresses an element on the page.
//
// CSS selects candidates, Text (a regular expression, optional) filters
// them by inner text, and Nth picks one of the remaining matches. Nth is
// 0-based; a negative Nth keeps every match. Build locators with CSS so
// Nth starts at -1.
//
// When Parent is set, CSS is evaluated inside each element Parent
// resolves to, so a locator can address "the outputs of the sixth cell".
type Locator struct {
	CSS    string
	Text   string
	Nth    int
	Parent *Locator
}

// CSS returns a locator for the elements matching selector. Single-element
// actions use the first match.
func CSS(selector string) Locator {
	return Locator{CSS: selector, Nth: -1}
}

// WithText narrows the locator to elements whose inner text matches pattern.
func (l Locator) WithText(pattern string) Locator {
	l.Text = pattern
	return l
}

// WithExactText narrows the locator to elements whose text contains s literally.
func (l Locator) WithExactText(s string) Locator {
	l.Text = regexp.QuoteMeta(s)
	return l
}

// At picks the n-th (0-based) match.
func (l Locator) At(n int) Locator {
	l.Nth = n
	return l
}

// Within returns a locator for child inside l's CSS scope. Text, Nth and
// Parent of l are dropped; use Then to keep them.
func (l Locator) Within(child string) Locator {
	return CSS(l.CSS + " " + child)
}

// Then returns a locator for child evaluated inside every element l
// resolves to.
func (l Locator) Then(child string) Locator {
	parent := l
	return Locator{CSS: child, Nth: -1, Parent: &parent}
}

// Selector renders the candidate query: the parent chain and CSS, without
// this locator's own Text and Nth filters.
func (l Locator) Selector() string {
	if l.Parent != nil {
		return l.Parent.String() + " >> " + l.CSS
	}
	return l.CSS
}

// String renders the locator for logs and error messages.
func (l Locator) String() string {
	s := l.Selector()
	if l.Text != "" {
		s += " >> text=/" + l.Text + "/"
	}
	if l.Nth >= 0 {
		s += " >> nth=" + strconv.Itoa(l.Nth)
	}
	return s
}

// Validate checks that the locator can be evaluated.
func (l Locator) Validate() error {
	if l.CSS == "" {
		return fmt.Errorf("locator: empty selector")
	}
	if l.Text != "" {
		if _, err := regexp.Compile(l.Text); err != nil {
			return fmt.Errorf("locator %s: bad text pattern: %w", l.CSS, err)
		}
	}
	if l.Parent != nil {
		return l.Parent.Validate()
	}
	return nil
}

// Filter returns the indexes of texts that satisfy l, applying Text and Nth.
// It is the pure half of element resolution and is shared by every Page
// implementation.
func (l Locator) Filter(texts []string) []int {
	var re *regexp.Regexp
	if l.Text != "" {
		re = regexp.MustCompile(l.Text)
	}

	var idx []int
	for i, t := range texts {
		if re == nil || re.MatchString(t) {
			idx = append(idx, i)
		}
	}

	if l.Nth >= 0 {
		if l.Nth >= len(idx) {
			return nil
		}
		return []int{idx[l.Nth]}
	}
	return idx
}
