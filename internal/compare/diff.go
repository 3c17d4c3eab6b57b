// Package compare implements the two-phase perceptual image comparator:
// a byte-identical fast path, then a YIQ-weighted perceptual diff with
// anti-aliasing suppression, ported from the original CDP client's
// diff module (itself built on the dify/pixelmatch algorithm family).
package compare

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/corona10/goimagehash"
	"github.com/nfnt/resize"

	"github.com/snapwatch/snapwatch/internal/snaperr"
)

// maxDiffWidth caps the width of the diff-overlay image written to
// disk; wide storybook canvases otherwise produce multi-megabyte diff
// PNGs that are unreadable as a thumbnail anyway.
const maxDiffWidth = 1600

// threshold matches the original's `35215.0 * 0.1 * 0.1`: the maximum
// possible per-pixel YIQ delta (35215) scaled by the 0.1 sensitivity
// squared, because yiqDelta is a squared distance.
const threshold = 35215.0 * 0.1 * 0.1

var magenta = color.RGBA{R: 255, G: 0, B: 255, A: 255}

// Result is the outcome of comparing two PNGs.
type Result struct {
	IsMatch           bool
	Score             float64 // DiffPixels / TotalPixels, in [0,1]
	DiffPixels        int
	TotalPixels       int
	DimensionMismatch bool
	DiffImage         image.Image // nil when IsMatch
	PHashDistance     int         // secondary signal, not authoritative
}

// Compare runs the full two-phase comparison between a reference and a
// current PNG.
func Compare(reference, current []byte) (Result, error) {
	if bytes.Equal(reference, current) {
		return Result{IsMatch: true}, nil
	}

	refImg, err := png.Decode(bytes.NewReader(reference))
	if err != nil {
		return Result{}, snaperr.CompareError("decode reference", err)
	}
	curImg, err := png.Decode(bytes.NewReader(current))
	if err != nil {
		return Result{}, snaperr.CompareError("decode current", err)
	}

	dimensionMismatch := refImg.Bounds().Dx() != curImg.Bounds().Dx() ||
		refImg.Bounds().Dy() != curImg.Bounds().Dy()

	if dimensionMismatch {
		w := maxInt(refImg.Bounds().Dx(), curImg.Bounds().Dx())
		h := maxInt(refImg.Bounds().Dy(), curImg.Bounds().Dy())
		refImg = padTo(refImg, w, h)
		curImg = padTo(curImg, w, h)
	}

	diffPixels, diffImg := yiqDiff(refImg, curImg)
	bounds := refImg.Bounds()
	total := bounds.Dx() * bounds.Dy()

	result := Result{
		DiffPixels:        diffPixels,
		TotalPixels:       total,
		DimensionMismatch: dimensionMismatch,
		IsMatch:           diffPixels == 0,
	}
	if total > 0 {
		result.Score = float64(diffPixels) / float64(total)
	}
	if diffPixels > 0 {
		result.DiffImage = shrinkForDisplay(diffImg)
	}

	if dist, err := pHashDistance(refImg, curImg); err == nil {
		result.PHashDistance = dist
	}

	return result, nil
}

// padTo overlays img onto a w x h opaque-magenta canvas anchored at
// (0,0), used to make dimension-mismatched images comparable pixel by
// pixel instead of failing outright.
func padTo(img image.Image, w, h int) image.Image {
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: magenta}, image.Point{}, draw.Src)
	draw.Draw(canvas, img.Bounds(), img, image.Point{}, draw.Over)
	return canvas
}

// shrinkForDisplay downscales a diff-overlay image wider than
// maxDiffWidth so the stored artifact stays a reasonably sized
// thumbnail instead of a multi-megabyte full-resolution overlay.
func shrinkForDisplay(img image.Image) image.Image {
	if img.Bounds().Dx() <= maxDiffWidth {
		return img
	}
	return resize.Resize(maxDiffWidth, 0, img, resize.Lanczos3)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// yiqDiff computes a per-pixel YIQ-weighted delta between two
// same-sized images, suppressing differences that look like anti-
// aliased edges in both images, and returns the count of pixels judged
// genuinely different plus a diff-overlay image highlighting them.
func yiqDiff(a, b image.Image) (int, image.Image) {
	bounds := a.Bounds()
	out := image.NewRGBA(bounds)
	diffCount := 0

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			ca := colorAt(a, x, y)
			cb := colorAt(b, x, y)
			delta := yiqDelta(ca, cb)

			if delta > threshold {
				aa := isAntiAliased(a, x, y, bounds) && isAntiAliased(b, x, y, bounds)
				if aa {
					out.Set(x, y, color.RGBA{R: 255, G: 255, B: 0, A: 255})
					continue
				}
				diffCount++
				out.Set(x, y, color.RGBA{R: 255, G: 0, B: 0, A: 255})
				continue
			}
			out.Set(x, y, color.RGBA{R: ca.R, G: ca.G, B: ca.B, A: 64})
		}
	}
	return diffCount, out
}

func colorAt(img image.Image, x, y int) color.RGBA {
	r, g, b, a := img.At(x, y).RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
}

// yiqDelta is the squared YIQ-space distance between two colors,
// weighted to match human luminance/chroma sensitivity, as used by the
// pixelmatch/dify family of perceptual diff algorithms.
func yiqDelta(a, b color.RGBA) float64 {
	y1, i1, q1 := rgbToYIQ(a)
	y2, i2, q2 := rgbToYIQ(b)
	dy := y1 - y2
	di := i1 - i2
	dq := q1 - q2
	return 0.5053*dy*dy + 0.299*di*di + 0.1957*dq*dq
}

func rgbToYIQ(c color.RGBA) (y, i, q float64) {
	r, g, b := float64(c.R), float64(c.G), float64(c.B)
	y = 0.29889531*r + 0.58662247*g + 0.11448223*b
	i = 0.59597799*r - 0.27417610*g - 0.32180189*b
	q = 0.21147017*r - 0.52261711*g + 0.31114694*b
	return
}

// isAntiAliased approximates the dify/pixelmatch heuristic: a pixel
// looks anti-aliased if it differs noticeably from most of its 8
// neighbors but is flanked by at least one pair of neighbors that are
// themselves near-identical (i.e. it sits on a smooth gradient edge,
// not a hard content change).
func isAntiAliased(img image.Image, x, y int, bounds image.Rectangle) bool {
	center := colorAt(img, x, y)
	similar, different := 0, 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < bounds.Min.X || nx >= bounds.Max.X || ny < bounds.Min.Y || ny >= bounds.Max.Y {
				continue
			}
			n := colorAt(img, nx, ny)
			if yiqDelta(center, n) < threshold/4 {
				similar++
			} else {
				different++
			}
		}
	}
	return similar >= 2 && different >= 2
}

// pHashDistance is a secondary, non-authoritative signal surfaced in
// reports: a perceptual-hash Hamming distance between the two images.
func pHashDistance(a, b image.Image) (int, error) {
	ha, err := goimagehash.PerceptionHash(a)
	if err != nil {
		return 0, fmt.Errorf("phash reference: %w", err)
	}
	hb, err := goimagehash.PerceptionHash(b)
	if err != nil {
		return 0, fmt.Errorf("phash current: %w", err)
	}
	dist, err := ha.Distance(hb)
	if err != nil {
		return 0, fmt.Errorf("phash distance: %w", err)
	}
	return dist, nil
}
