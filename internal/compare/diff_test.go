package compare

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidPNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// withPixelDiffs decodes png, flips n scattered pixels to red, re-encodes.
func withPixelDiffs(t *testing.T, data []byte, n int) []byte {
	t.Helper()
	src, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	b := src.Bounds()
	img := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.Set(x, y, src.At(x, y))
		}
	}
	w, h := b.Dx(), b.Dy()
	for i := 0; i < n; i++ {
		x := (i * 7919) % w
		y := (i * 6271) % h
		img.Set(x, y, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCompareIdenticalBytesSkipsPerceptualDiff(t *testing.T) {
	p := solidPNG(t, 100, 100, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	r, err := Compare(p, p)
	require.NoError(t, err)
	assert.True(t, r.IsMatch)
	assert.Zero(t, r.DiffPixels)
	assert.Nil(t, r.DiffImage)
	assert.False(t, r.DimensionMismatch)
}

func TestComparePixelDiffsDetected(t *testing.T) {
	reference := solidPNG(t, 100, 100, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	current := withPixelDiffs(t, reference, 50)
	r, err := Compare(reference, current)
	require.NoError(t, err)
	assert.False(t, r.IsMatch)
	assert.Greater(t, r.DiffPixels, 0)
	assert.Greater(t, r.Score, 0.0)
	assert.NotNil(t, r.DiffImage)
	assert.False(t, r.DimensionMismatch)
}

func TestComparePerceptuallyIdenticalIsMatch(t *testing.T) {
	a := solidPNG(t, 50, 50, color.RGBA{R: 128, G: 128, B: 128, A: 255})
	src, err := png.Decode(bytes.NewReader(a))
	require.NoError(t, err)
	img := image.NewRGBA(src.Bounds())
	for y := src.Bounds().Min.Y; y < src.Bounds().Max.Y; y++ {
		for x := src.Bounds().Min.X; x < src.Bounds().Max.X; x++ {
			img.Set(x, y, src.At(x, y))
		}
	}
	// Nudge one pixel by 1 — below the YIQ threshold.
	img.Set(0, 0, color.RGBA{R: 129, G: 128, B: 128, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	r, err := Compare(a, buf.Bytes())
	require.NoError(t, err)
	assert.Zero(t, r.DiffPixels)
}

func TestCompareScoreIsRatioOfDiffToTotal(t *testing.T) {
	reference := solidPNG(t, 100, 100, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	current := withPixelDiffs(t, reference, 20)
	r, err := Compare(reference, current)
	require.NoError(t, err)
	expected := float64(r.DiffPixels) / float64(r.TotalPixels)
	assert.InDelta(t, expected, r.Score, 1e-9)
}

func TestCompareZeroDiffScoreIsZero(t *testing.T) {
	a := solidPNG(t, 50, 50, color.RGBA{R: 128, G: 128, B: 128, A: 255})
	b := solidPNG(t, 50, 50, color.RGBA{R: 128, G: 128, B: 128, A: 255})
	r, err := Compare(a, b)
	require.NoError(t, err)
	assert.Zero(t, r.Score)
}

func TestCompareDimensionMismatchDetected(t *testing.T) {
	a := solidPNG(t, 100, 100, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	b := solidPNG(t, 100, 120, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	r, err := Compare(a, b)
	require.NoError(t, err)
	assert.True(t, r.DimensionMismatch)
}

func TestCompareDimensionMismatchPadsWithMagenta(t *testing.T) {
	a := solidPNG(t, 10, 10, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	b := solidPNG(t, 10, 12, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	r, err := Compare(a, b)
	require.NoError(t, err)
	assert.Greater(t, r.DiffPixels, 0, "padding should cause diff pixels")
	assert.Equal(t, 120, r.TotalPixels)
}

func TestCompareWidthMismatchReported(t *testing.T) {
	a := solidPNG(t, 100, 50, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	b := solidPNG(t, 110, 50, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	r, err := Compare(a, b)
	require.NoError(t, err)
	assert.True(t, r.DimensionMismatch)
	assert.Greater(t, r.DiffPixels, 0)
}
