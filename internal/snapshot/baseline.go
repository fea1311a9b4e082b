package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/labshot/internal/failure"
)

// failuresDir holds actual captures and diff images of failed comparisons.
const failuresDir = "_failures"

// Baseline is a directory of committed snapshots.
type Baseline struct {
	// Dir is the baseline root. Snapshot names are paths relative to it.
	Dir string

	// Tolerance applies to image comparisons.
	Tolerance Tolerance

	// Update writes captures as the new baselines instead of failing.
	Update bool

	Logger *slog.Logger
}

// Comparison is the outcome of comparing one snapshot to its baseline.
type Comparison struct {
	Name      string
	Kind      Kind
	Match     bool
	Diff      string
	DiffRatio float64

	// Created is set when the baseline did not exist and was written.
	Created bool

	// Updated is set when an existing baseline was overwritten.
	Updated bool

	// ActualPath and DiffPath point at the artifacts written on mismatch.
	ActualPath string
	DiffPath   string
}

// Err returns a SNAPSHOT_MISMATCH error for a failed comparison, or nil.
func (c *Comparison) Err() error {
	if c.Match {
		return nil
	}
	return failure.Mismatch(c.Name, c.Diff)
}

func (b *Baseline) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return b.Logger
}

// Path returns the on-disk location of the baseline for snap.
func (b *Baseline) Path(snap Snapshot) string {
	return filepath.Join(b.Dir, filepath.FromSlash(snap.File()))
}

// Compare compares snap to its baseline.
//
// A missing baseline is a mismatch unless Update is set, in which case
// the capture becomes the baseline. With Update set, mismatching
// baselines are overwritten and reported as matching. The returned error
// is reserved for I/O and decode failures; a mismatch is reported through
// Comparison.Match.
func (b *Baseline) Compare(snap Snapshot) (*Comparison, error) {
	if err := ValidateName(snap.Name); err != nil {
		return nil, err
	}
	if snap.Kind != KindImage && snap.Kind != KindText {
		return nil, fmt.Errorf("snapshot %q: unknown kind %q", snap.Name, snap.Kind)
	}

	cmp := &Comparison{Name: snap.File(), Kind: snap.Kind}
	path := b.Path(snap)

	want, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if b.Update {
			if err := writeFile(path, snap.Data); err != nil {
				return nil, err
			}
			cmp.Match = true
			cmp.Created = true
			b.logger().Info("snapshot: baseline created", "name", cmp.Name)
			return cmp, nil
		}
		cmp.Diff = "no baseline at " + path
		if cmp.ActualPath, err = b.writeFailure(snap, "actual", snap.Data); err != nil {
			return nil, err
		}
		return cmp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot %q: read baseline: %w", cmp.Name, err)
	}

	switch snap.Kind {
	case KindImage:
		err = b.compareImage(cmp, snap, want)
	case KindText:
		cmp.Diff = compareText(cmp.Name, want, snap.Data)
		cmp.Match = cmp.Diff == ""
	}
	if err != nil {
		return nil, err
	}

	if cmp.Match {
		return cmp, nil
	}
	if b.Update {
		if err := writeFile(path, snap.Data); err != nil {
			return nil, err
		}
		b.logger().Info("snapshot: baseline updated", "name", cmp.Name, "diff_ratio", cmp.DiffRatio)
		cmp.Match = true
		cmp.Updated = true
		return cmp, nil
	}

	if cmp.ActualPath, err = b.writeFailure(snap, "actual", snap.Data); err != nil {
		return nil, err
	}
	b.logger().Debug("snapshot: mismatch", "name", cmp.Name, "diff", cmp.Diff)
	return cmp, nil
}

func (b *Baseline) compareImage(cmp *Comparison, snap Snapshot, want []byte) error {
	if bytes.Equal(want, snap.Data) {
		cmp.Match = true
		return nil
	}

	wantImg, err := decodePNG(want)
	if err != nil {
		return fmt.Errorf("baseline %s: %w", cmp.Name, err)
	}
	gotImg, err := decodePNG(snap.Data)
	if err != nil {
		return fmt.Errorf("capture %s: %w", cmp.Name, err)
	}

	d := diffImages(wantImg, gotImg, b.Tolerance.Threshold)
	if d.sizeMismatch {
		cmp.DiffRatio = 1
		cmp.Diff = fmt.Sprintf("size %dx%d, baseline %dx%d",
			gotImg.Bounds().Dx(), gotImg.Bounds().Dy(),
			wantImg.Bounds().Dx(), wantImg.Bounds().Dy())
		return nil
	}

	cmp.DiffRatio = d.ratio()
	if cmp.DiffRatio <= b.Tolerance.MaxDiffRatio {
		cmp.Match = true
		return nil
	}
	cmp.Diff = fmt.Sprintf("%d of %d pixels differ (%.4f > %.4f)",
		d.differing, d.total, cmp.DiffRatio, b.Tolerance.MaxDiffRatio)

	if b.Update {
		return nil
	}
	data, err := encodePNG(d.mask)
	if err != nil {
		return err
	}
	cmp.DiffPath, err = b.writeFailure(snap, "diff", data)
	return err
}

// writeFailure stores an artifact for a failed comparison as
// _failures/<name>-<suffix><ext> and returns its path.
func (b *Baseline) writeFailure(snap Snapshot, suffix string, data []byte) (string, error) {
	file := snap.File()
	ext := filepath.Ext(file)
	name := strings.TrimSuffix(file, ext) + "-" + suffix + ext
	path := filepath.Join(b.Dir, failuresDir, filepath.FromSlash(name))
	if err := writeFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// CleanFailures removes artifacts left by earlier failed comparisons.
func (b *Baseline) CleanFailures() error {
	return os.RemoveAll(filepath.Join(b.Dir, failuresDir))
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}
