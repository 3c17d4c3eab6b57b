package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/snapwatch/snapwatch/internal/browser"
	"github.com/snapwatch/snapwatch/internal/snaperr"
	"github.com/snapwatch/snapwatch/internal/transport"
)

// stageTimeout bounds each individual pipeline stage.
const stageTimeout = 10 * time.Second

// networkIdleQuiet/Timeout bound the WaitNetworkIdle stage.
const (
	networkIdleQuiet   = 100 * time.Millisecond
	networkIdleTimeout = 10 * time.Second
)

// pageLoadTimeout bounds the WaitPageLoad stage. A deadline here is
// non-fatal: the readiness check later in the pipeline is authoritative.
const pageLoadTimeout = 10 * time.Second

// viewportResizeSettle is the delay after a tall-content viewport
// resize, to let the page reflow before the screenshot is taken.
const viewportResizeSettle = 500 * time.Millisecond

// CaptureTimings breaks a single capture down by pipeline stage, in
// addition to the total wall-clock time, so `--timings` reporting has
// something to show.
type CaptureTimings struct {
	Navigate          time.Duration
	WaitPageLoad      time.Duration
	WaitNetworkIdle   time.Duration
	DisableAnimations time.Duration
	InjectCustomCSS   time.Duration
	WaitReady         time.Duration
	WaitStoryRoot     time.Duration
	MeasureBounds     time.Duration
	Screenshot        time.Duration
	Compare           time.Duration // filled in by the caller after compare
	Total             time.Duration
}

// Outcome is the result of one capture: either the PNG bytes plus
// timings, or an error tagged with the stage that failed.
type Outcome struct {
	PNG     []byte
	Timings CaptureTimings
	Err     error
}

// Options configures a single capture pipeline run.
type Options struct {
	CustomCSS string
	Strategy  ScreenshotStrategy
}

// Run executes the 9-stage capture pipeline against an already-open tab:
// set viewport, navigate, wait page load, wait network idle, disable
// animations, wait ready, wait story root, get clip (resizing the
// viewport if the content is taller than it), screenshot.
func Run(ctx context.Context, tab *browser.Tab, job Job, opts Options) Outcome {
	start := time.Now()
	tr := tab.Transport
	var t CaptureTimings

	stage := func(name string, fn func(ctx context.Context) error) error {
		sctx, cancel := context.WithTimeout(ctx, stageTimeout)
		defer cancel()
		s := time.Now()
		err := fn(sctx)
		d := time.Since(s)
		switch name {
		case "navigate":
			t.Navigate = d
		case "wait_page_load":
			t.WaitPageLoad = d
		case "wait_network_idle":
			t.WaitNetworkIdle = d
		case "disable_animations":
			t.DisableAnimations = d
		case "inject_css":
			t.InjectCustomCSS = d
		case "wait_ready":
			t.WaitReady = d
		case "wait_story_root":
			t.WaitStoryRoot = d
		case "measure_bounds":
			t.MeasureBounds = d
		case "screenshot":
			t.Screenshot = d
		}
		if err != nil {
			if sctx.Err() == context.DeadlineExceeded {
				return snaperr.StageTimeoutError(name, err)
			}
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}

	// 1. Set viewport + 2. Navigate
	if err := stage("navigate", func(ctx context.Context) error {
		if err := tr.SetViewport(ctx, job.Width, job.Height); err != nil {
			return err
		}
		return tr.Navigate(ctx, job.URL)
	}); err != nil {
		return Outcome{Err: err, Timings: t}
	}

	// 3. Wait page load (soft: timeout is logged and swallowed by the
	// transport, the readiness stage below is authoritative).
	if err := stage("wait_page_load", func(ctx context.Context) error {
		return tr.WaitPageLoad(ctx, pageLoadTimeout)
	}); err != nil {
		return Outcome{Err: err, Timings: t}
	}

	// 4. Wait network idle (soft: reaching the ceiling proceeds anyway)
	if err := stage("wait_network_idle", func(ctx context.Context) error {
		err := tr.WaitNetworkIdle(ctx, networkIdleQuiet, networkIdleTimeout)
		if ctx.Err() == context.DeadlineExceeded {
			return nil
		}
		return err
	}); err != nil {
		return Outcome{Err: err, Timings: t}
	}

	// 5. Disable animations
	if err := stage("disable_animations", func(ctx context.Context) error {
		_, err := tr.Eval(ctx, injectCSSScript(disableAnimationsCSS))
		if err != nil {
			return err
		}
		_, err = tr.Eval(ctx, finishAnimationsJS)
		return err
	}); err != nil {
		return Outcome{Err: err, Timings: t}
	}

	if opts.CustomCSS != "" {
		if err := stage("inject_css", func(ctx context.Context) error {
			_, err := tr.Eval(ctx, injectCSSScript(opts.CustomCSS))
			return err
		}); err != nil {
			return Outcome{Err: err, Timings: t}
		}
	}

	// 6. Wait ready (fonts + DOM quiescence)
	if err := stage("wait_ready", func(ctx context.Context) error {
		_, err := tr.EvalAsync(ctx, waitForReadyJS)
		return err
	}); err != nil {
		return Outcome{Err: err, Timings: t}
	}

	// 7. Wait story root
	if err := stage("wait_story_root", func(ctx context.Context) error {
		_, err := tr.EvalAsync(ctx, waitForStoryRootJS)
		return err
	}); err != nil {
		return Outcome{Err: err, Timings: t}
	}

	// 8. Get clip: measure bounds, clamp, and resize the viewport if the
	// content is taller than the configured viewport height.
	var clip *transport.ClipRect
	resized := false
	if err := stage("measure_bounds", func(ctx context.Context) error {
		raw, err := tr.Eval(ctx, getStoryRootBoundsJS)
		if err != nil {
			return err
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		var b boundsResult
		if err := json.Unmarshal([]byte(s), &b); err != nil {
			return err
		}
		clip = clipFromBounds(b, job.Width, job.Height)
		if clip != nil && clip.Height > float64(job.Height) {
			resized = true
			newHeight := int(clip.Height + 0.5)
			if err := tr.SetViewport(ctx, job.Width, newHeight); err != nil {
				return err
			}
			select {
			case <-time.After(viewportResizeSettle):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}); err != nil {
		return Outcome{Err: err, Timings: t}
	}

	// 9. Screenshot
	var png []byte
	if err := stage("screenshot", func(ctx context.Context) error {
		data, err := opts.Strategy.Take(ctx, tr, clip)
		if err != nil {
			return err
		}
		png = data
		return nil
	}); err != nil {
		return Outcome{Err: err, Timings: t}
	}

	if resized {
		_ = tr.SetViewport(ctx, job.Width, job.Height)
	}

	t.Total = time.Since(start)
	return Outcome{PNG: png, Timings: t}
}
