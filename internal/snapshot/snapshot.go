// Package snapshot stores and compares UI captures against committed baselines.
//
// A Snapshot is either a PNG image or a text value. Baselines live on disk
// under a single directory keyed by snapshot name; failed comparisons leave
// the actual capture and, for images, a diff image under Dir/_failures.
package snapshot

import (
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// Kind distinguishes image captures from text captures.
type Kind string

const (
	KindImage Kind = "image"
	KindText  Kind = "text"
)

// Snapshot is a captured value keyed by a stable name.
type Snapshot struct {
	Name string
	Kind Kind
	Data []byte
}

// Image returns an image snapshot of PNG data.
func Image(name string, png []byte) Snapshot {
	return Snapshot{Name: name, Kind: KindImage, Data: png}
}

// Text returns a text snapshot.
func Text(name, s string) Snapshot {
	return Snapshot{Name: name, Kind: KindText, Data: []byte(s)}
}

// File returns the baseline file name for the snapshot: the name itself
// when it carries an extension, otherwise the name plus .png or .txt.
func (s Snapshot) File() string {
	if path.Ext(s.Name) != "" {
		return s.Name
	}
	if s.Kind == KindText {
		return s.Name + ".txt"
	}
	return s.Name + ".png"
}

// ValidateName rejects names that would escape the baseline directory.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("snapshot: empty name")
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return fmt.Errorf("snapshot %q: name must be relative", name)
	}
	for _, seg := range strings.Split(filepath.ToSlash(name), "/") {
		if seg == ".." {
			return fmt.Errorf("snapshot %q: name must not contain ..", name)
		}
	}
	if strings.HasPrefix(name, failuresDir+"/") {
		return fmt.Errorf("snapshot %q: %s is reserved", name, failuresDir)
	}
	return nil
}

// Namer expands the {n} placeholder in snapshot names. Each distinct
// template keeps its own counter starting at 0, so repeated captures of
// "notebook-panel-{n}.png" yield notebook-panel-0.png, notebook-panel-1.png...
type Namer struct {
	counts map[string]int
}

// Next returns the expanded name for template and advances its counter.
// Templates without {n} are returned unchanged.
func (n *Namer) Next(template string) string {
	if !strings.Contains(template, "{n}") {
		return template
	}
	if n.counts == nil {
		n.counts = make(map[string]int)
	}
	i := n.counts[template]
	n.counts[template] = i + 1
	return strings.ReplaceAll(template, "{n}", strconv.Itoa(i))
}
