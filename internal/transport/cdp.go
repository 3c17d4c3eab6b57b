package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/snapwatch/snapwatch/internal/snaperr"
)

// CDP method names used by snapwatch. Hand-rolled rather than pulled
// from a generated SDK: the transport is deliberately raw, matching the
// original client's own hand-built JSON payloads.
const (
	methodNavigate          = "Page.navigate"
	methodEnable            = ".enable"
	methodEvaluate          = "Runtime.evaluate"
	methodAwaitPromise      = "Runtime.awaitPromise"
	methodCaptureScreenshot = "Page.captureScreenshot"
	methodSetDeviceMetrics  = "Emulation.setDeviceMetricsOverride"
	methodAddStyleSheet     = "Page.addStyleSheetToInject"
	eventLoadFired          = "Page.loadEventFired"
)

type navigateParams struct {
	URL string `json:"url"`
}

type navigateResult struct {
	FrameID string `json:"frameId"`
}

// Navigate clears buffered events (those from earlier navigations are
// stale), then requests page navigation to url.
func (t *Transport) Navigate(ctx context.Context, url string) error {
	t.eventMu.Lock()
	t.eventBuf = nil
	t.eventMu.Unlock()
	for drained := false; !drained; {
		select {
		case <-t.eventCh:
		default:
			drained = true
		}
	}
	_, err := t.Call(ctx, methodNavigate, navigateParams{URL: url})
	if err != nil {
		return snaperr.ProtocolError("navigate", err)
	}
	return nil
}

type deviceMetricsParams struct {
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	DeviceScaleFactor float64 `json:"deviceScaleFactor"`
	Mobile            bool    `json:"mobile"`
}

// SetViewport sets the emulated viewport size.
func (t *Transport) SetViewport(ctx context.Context, width, height int) error {
	_, err := t.Call(ctx, methodSetDeviceMetrics, deviceMetricsParams{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	})
	if err != nil {
		return snaperr.ProtocolError("set_viewport", err)
	}
	return nil
}

// EnableDomains enables one or more CDP domains (e.g. "Page", "Network",
// "Runtime") so their events start flowing.
func (t *Transport) EnableDomains(ctx context.Context, domains ...string) error {
	for _, d := range domains {
		if _, err := t.Call(ctx, d+methodEnable, nil); err != nil {
			return snaperr.ProtocolError("enable "+d, err)
		}
	}
	return nil
}

type evaluateParams struct {
	Expression    string `json:"expression"`
	AwaitPromise  bool   `json:"awaitPromise"`
	ReturnByValue bool   `json:"returnByValue"`
}

type remoteObject struct {
	Value json.RawMessage `json:"value"`
}

type evaluateResult struct {
	Result           remoteObject     `json:"result"`
	ExceptionDetails *exceptionDetail `json:"exceptionDetails"`
}

type exceptionDetail struct {
	Text      string        `json:"text"`
	Exception *remoteObject `json:"exception"`
}

// Eval evaluates a JS expression and returns its JSON-encoded value.
func (t *Transport) Eval(ctx context.Context, expr string) (json.RawMessage, error) {
	return t.evaluate(ctx, expr, false)
}

// EvalAsync evaluates a JS expression expected to return a Promise and
// awaits it before returning the resolved value.
func (t *Transport) EvalAsync(ctx context.Context, expr string) (json.RawMessage, error) {
	return t.evaluate(ctx, expr, true)
}

func (t *Transport) evaluate(ctx context.Context, expr string, await bool) (json.RawMessage, error) {
	raw, err := t.Call(ctx, methodEvaluate, evaluateParams{
		Expression:    expr,
		AwaitPromise:  await,
		ReturnByValue: true,
	})
	if err != nil {
		return nil, snaperr.ProtocolError("evaluate", err)
	}
	var res evaluateResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, snaperr.ProtocolError("evaluate decode", err)
	}
	if res.ExceptionDetails != nil {
		return nil, snaperr.ProtocolError("evaluate", fmt.Errorf("js exception: %s", res.ExceptionDetails.Text))
	}
	return res.Result.Value, nil
}

// CheckJSException runs a no-op evaluate and surfaces any pending JS
// exception state via its ExceptionDetails.
func (t *Transport) CheckJSException(ctx context.Context) error {
	_, err := t.Eval(ctx, "void 0")
	return err
}

type screenshotParams struct {
	Format  string    `json:"format"`
	Clip    *clipRect `json:"clip,omitempty"`
	Quality int       `json:"quality,omitempty"`
}

type clipRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Scale  float64 `json:"scale"`
}

type screenshotResult struct {
	Data string `json:"data"`
}

// ScreenshotOptions controls CaptureScreenshot.
type ScreenshotOptions struct {
	Clip *ClipRect
}

// ClipRect is a capture region in CSS pixels.
type ClipRect struct {
	X, Y, Width, Height float64
}

// CaptureScreenshot captures the current page as PNG bytes.
func (t *Transport) CaptureScreenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	params := screenshotParams{Format: "png"}
	if opts.Clip != nil {
		params.Clip = &clipRect{
			X: opts.Clip.X, Y: opts.Clip.Y,
			Width: opts.Clip.Width, Height: opts.Clip.Height,
			Scale: 1,
		}
	}
	raw, err := t.Call(ctx, methodCaptureScreenshot, params)
	if err != nil {
		return nil, snaperr.ProtocolError("capture_screenshot", err)
	}
	var res screenshotResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, snaperr.ProtocolError("capture_screenshot decode", err)
	}
	data, err := base64.StdEncoding.DecodeString(res.Data)
	if err != nil {
		return nil, snaperr.ProtocolError("capture_screenshot base64", err)
	}
	return data, nil
}

// WaitPageLoad waits for Page.loadEventFired, bounded by timeout. A
// timeout is non-fatal: it is logged here at debug level and swallowed,
// matching the original CDP client, because a slow or never-firing load
// event must not abort an otherwise-successful capture.
func (t *Transport) WaitPageLoad(ctx context.Context, timeout time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := t.WaitEvent(wctx, func(ev Event) bool { return ev.Method == eventLoadFired })
	if err != nil && t.log != nil {
		t.log.Debug("page load event did not fire in time, continuing", zap.Error(err))
	}
	return nil
}
