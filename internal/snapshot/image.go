package snapshot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// Tolerance controls how strict image comparison is.
type Tolerance struct {
	// Threshold is the largest per-channel difference (0-255) for two
	// pixels to still count as equal.
	Threshold uint8

	// MaxDiffRatio is the largest fraction of differing pixels (0-1) for
	// two images to still match.
	MaxDiffRatio float64
}

// DefaultTolerance absorbs anti-aliasing noise between runs.
var DefaultTolerance = Tolerance{Threshold: 24, MaxDiffRatio: 0.001}

// imageDiff is the outcome of comparing two PNGs.
type imageDiff struct {
	sizeMismatch bool
	differing    int
	total        int
	// mask marks differing pixels in red over a faded copy of the baseline.
	mask *image.RGBA
}

func (d imageDiff) ratio() float64 {
	if d.total == 0 {
		return 0
	}
	return float64(d.differing) / float64(d.total)
}

func decodePNG(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("snapshot: decode png: %w", err)
	}
	return img, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("snapshot: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// diffImages compares want and got pixel by pixel.
func diffImages(want, got image.Image, threshold uint8) imageDiff {
	wb, gb := want.Bounds(), got.Bounds()
	if wb.Dx() != gb.Dx() || wb.Dy() != gb.Dy() {
		return imageDiff{sizeMismatch: true}
	}

	mask := image.NewRGBA(image.Rect(0, 0, wb.Dx(), wb.Dy()))
	d := imageDiff{total: wb.Dx() * wb.Dy(), mask: mask}

	for y := 0; y < wb.Dy(); y++ {
		for x := 0; x < wb.Dx(); x++ {
			w := color.RGBAModel.Convert(want.At(wb.Min.X+x, wb.Min.Y+y)).(color.RGBA)
			g := color.RGBAModel.Convert(got.At(gb.Min.X+x, gb.Min.Y+y)).(color.RGBA)

			if maxDelta(w, g) > threshold {
				d.differing++
				mask.SetRGBA(x, y, color.RGBA{R: 255, A: 255})
				continue
			}
			gray := uint8((uint16(w.R) + uint16(w.G) + uint16(w.B)) / 3)
			faded := 255 - (255-gray)/4
			mask.SetRGBA(x, y, color.RGBA{R: faded, G: faded, B: faded, A: 255})
		}
	}
	return d
}

func maxDelta(a, b color.RGBA) uint8 {
	m := absDiff(a.R, b.R)
	for _, v := range []uint8{absDiff(a.G, b.G), absDiff(a.B, b.B), absDiff(a.A, b.A)} {
		if v > m {
			m = v
		}
	}
	return m
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
