package capture

import (
	"bytes"
	"context"
	"time"

	"github.com/snapwatch/snapwatch/internal/transport"
)

// ScreenshotKind selects the retry strategy used to take the final
// screenshot of a capture.
type ScreenshotKind int

const (
	// ScreenshotStable retries until two consecutive captures come back
	// byte-identical, or MaxAttempts is exhausted.
	ScreenshotStable ScreenshotKind = iota
	// ScreenshotSingle captures exactly once, no retry.
	ScreenshotSingle
)

// ScreenshotStrategy configures how the final frame is captured.
type ScreenshotStrategy struct {
	Kind        ScreenshotKind
	MaxAttempts int
	Delay       time.Duration
}

// DefaultScreenshotStrategy matches the original's defaults: stable
// capture, 3 attempts, 100ms between attempts.
func DefaultScreenshotStrategy() ScreenshotStrategy {
	return ScreenshotStrategy{Kind: ScreenshotStable, MaxAttempts: 3, Delay: 100 * time.Millisecond}
}

// Take captures a screenshot per the configured strategy.
func (s ScreenshotStrategy) Take(ctx context.Context, tr *transport.Transport, clip *transport.ClipRect) ([]byte, error) {
	opts := transport.ScreenshotOptions{Clip: clip}
	if s.Kind == ScreenshotSingle {
		return tr.CaptureScreenshot(ctx, opts)
	}

	attempts := s.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var prev []byte
	for i := 0; i < attempts; i++ {
		cur, err := tr.CaptureScreenshot(ctx, opts)
		if err != nil {
			return nil, err
		}
		if prev != nil && bytes.Equal(prev, cur) {
			return cur, nil
		}
		prev = cur
		if i < attempts-1 && s.Delay > 0 {
			select {
			case <-time.After(s.Delay):
			case <-ctx.Done():
				return prev, nil
			}
		}
	}
	return prev, nil
}

// boundsResult mirrors the JSON shape getStoryRootBoundsJS returns.
type boundsResult struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// clipFromBounds turns a measured bounds result into a clip rect,
// clamped to the viewport and falling back to a full-viewport clip when
// the measured region is degenerate (zero width/height).
func clipFromBounds(b boundsResult, viewportW, viewportH int) *transport.ClipRect {
	if b.Width <= 0 || b.Height <= 0 {
		return nil // caller falls back to full-viewport capture
	}
	width := b.Width
	height := b.Height
	if width > float64(viewportW) {
		width = float64(viewportW)
	}
	return &transport.ClipRect{X: b.X, Y: b.Y, Width: width, Height: height}
}
