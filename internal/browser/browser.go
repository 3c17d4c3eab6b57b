// Package browser owns a Chrome process (or a remote attachment) and
// exposes tab lifecycle on top of internal/transport.
package browser

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/snapwatch/snapwatch/internal/snaperr"
	"github.com/snapwatch/snapwatch/internal/transport"
)

// launchFlags mirrors the teacher's chromedp.ExecAllocator option list
// so the process-tuning survives even though chromedp itself is gone.
var launchFlags = []string{
	"--headless=new",
	"--remote-debugging-port=0",
	"--disable-dev-shm-usage",
	"--no-first-run",
	"--no-default-browser-check",
	"--disable-background-networking",
	"--disable-background-timer-throttling",
	"--disable-renderer-backgrounding",
	"--disable-ipc-flooding-protection",
	"--disable-features=Translate,BackForwardCache",
	"--force-color-profile=srgb",
	"--hide-scrollbars",
	"--mute-audio",
}

var devtoolsURLPattern = regexp.MustCompile(`DevTools listening on (ws://\S+)`)

// DefaultStartTimeout bounds how long Launch waits for Chrome to report
// its DevTools endpoint on stderr.
const DefaultStartTimeout = 10 * time.Second

// Controller owns either a locally-spawned Chrome process or a remote
// attachment, and the HTTP control-plane URL used to open/close tabs.
type Controller struct {
	log         *zap.Logger
	httpBase    string // e.g. http://127.0.0.1:9222
	cmd         *exec.Cmd
	userDataDir string

	mu     sync.Mutex
	killed bool
}

// Tab is one open DevTools target with its own wire transport.
type Tab struct {
	ID        string
	Transport *transport.Transport
}

// Launch starts a local headless Chrome and waits for its DevTools
// endpoint to be reported on stderr.
func Launch(ctx context.Context, log *zap.Logger, binary string, startTimeout time.Duration) (*Controller, error) {
	bin := binary
	if bin == "" {
		var err error
		bin, err = findChrome()
		if err != nil {
			return nil, snaperr.ConnectError("find_chrome", err)
		}
	}

	userDataDir, err := os.MkdirTemp("", "snapwatch-chrome-")
	if err != nil {
		return nil, snaperr.ConnectError("user_data_dir", err)
	}

	args := append([]string{}, launchFlags...)
	args = append(args, "--user-data-dir="+userDataDir, "about:blank")

	cmd := exec.CommandContext(context.Background(), bin, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		os.RemoveAll(userDataDir)
		return nil, snaperr.ConnectError("stderr_pipe", err)
	}
	if err := cmd.Start(); err != nil {
		os.RemoveAll(userDataDir)
		return nil, snaperr.ConnectError("start_chrome", err)
	}

	urlCh := make(chan string, 1)
	go scanForDevtoolsURL(stderr, urlCh)

	var wsURL string
	select {
	case wsURL = <-urlCh:
	case <-time.After(startTimeout):
		_ = cmd.Process.Kill()
		os.RemoveAll(userDataDir)
		return nil, snaperr.ConnectError("launch", fmt.Errorf("chrome did not report a devtools url within %s", startTimeout))
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		os.RemoveAll(userDataDir)
		return nil, snaperr.ConnectError("launch", ctx.Err())
	}

	host, port, err := parseHostPort(wsURL)
	if err != nil {
		_ = cmd.Process.Kill()
		os.RemoveAll(userDataDir)
		return nil, snaperr.ConnectError("parse_devtools_url", err)
	}

	go func() { _ = cmd.Wait() }() // reap; avoids a zombie once Kill() signals it

	return &Controller{
		log:         log,
		httpBase:    fmt.Sprintf("http://%s:%s", host, port),
		cmd:         cmd,
		userDataDir: userDataDir,
	}, nil
}

// Attach connects to an already-running Chrome at chromeURL
// (e.g. "http://localhost:9222") instead of spawning a new process.
func Attach(ctx context.Context, log *zap.Logger, chromeURL string) (*Controller, error) {
	resp, err := http.Get(strings.TrimRight(chromeURL, "/") + "/json/version")
	if err != nil {
		return nil, snaperr.ConnectError("attach", err)
	}
	defer resp.Body.Close()
	var v struct {
		WebSocketDebuggerUrl string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, snaperr.ConnectError("attach decode", err)
	}
	return &Controller{log: log, httpBase: strings.TrimRight(chromeURL, "/")}, nil
}

type newTargetResult struct {
	ID                   string `json:"id"`
	WebSocketDebuggerUrl string `json:"webSocketDebuggerUrl"`
}

// CreateTab opens a new blank target and connects its wire transport.
func (c *Controller) CreateTab(ctx context.Context) (*Tab, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.httpBase+"/json/new?about:blank", nil)
	if err != nil {
		return nil, snaperr.ConnectError("create_tab", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, snaperr.ConnectError("create_tab", err)
	}
	defer resp.Body.Close()
	var target newTargetResult
	if err := json.NewDecoder(resp.Body).Decode(&target); err != nil {
		return nil, snaperr.ConnectError("create_tab decode", err)
	}

	tr, err := transport.Connect(ctx, target.WebSocketDebuggerUrl, c.log)
	if err != nil {
		return nil, err
	}
	return &Tab{ID: target.ID, Transport: tr}, nil
}

// CloseTab closes a target and releases its transport.
func (c *Controller) CloseTab(ctx context.Context, tab *Tab) error {
	_ = tab.Transport.Close()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.httpBase+"/json/close/"+tab.ID, nil)
	if err != nil {
		return snaperr.ConnectError("close_tab", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return snaperr.ConnectError("close_tab", err)
	}
	defer resp.Body.Close()
	return nil
}

// Kill terminates an owned local Chrome process. Safe to call more than
// once and a no-op in remote (Attach) mode.
func (c *Controller) Kill() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.killed || c.cmd == nil || c.cmd.Process == nil {
		return
	}
	c.killed = true
	_ = c.cmd.Process.Signal(os.Interrupt)
	done := make(chan struct{})
	go func() {
		_ = c.cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		_ = c.cmd.Process.Kill()
	}
	if c.userDataDir != "" {
		_ = os.RemoveAll(c.userDataDir)
	}
}

// parseHostPort extracts the host and port from a devtools ws:// URL,
// e.g. "ws://127.0.0.1:54231/devtools/browser/<id>" -> ("127.0.0.1", "54231").
func parseHostPort(wsURL string) (host, port string, err error) {
	trimmed := strings.TrimPrefix(wsURL, "ws://")
	authority := trimmed
	if idx := strings.Index(trimmed, "/"); idx != -1 {
		authority = trimmed[:idx]
	}
	host, port, err = net.SplitHostPort(authority)
	if err != nil {
		return "", "", fmt.Errorf("cannot parse host:port from %q: %w", wsURL, err)
	}
	return host, port, nil
}

// findChrome searches a platform-specific candidate list, falling back
// to PATH lookup, for a Chrome/Chromium/Edge binary.
func findChrome() (string, error) {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		if _, err := os.Stat(bin); err == nil {
			return bin, nil
		}
	}

	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
		}
	case "linux":
		candidates = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "microsoft-edge"}
	case "windows":
		local := os.Getenv("LOCALAPPDATA")
		prog := os.Getenv("ProgramFiles")
		prog86 := os.Getenv("ProgramFiles(x86)")
		candidates = []string{
			filepath.Join(local, `Google\Chrome\Application\chrome.exe`),
			filepath.Join(prog, `Google\Chrome\Application\chrome.exe`),
			filepath.Join(prog86, `Google\Chrome\Application\chrome.exe`),
			filepath.Join(prog, `Microsoft\Edge\Application\msedge.exe`),
			filepath.Join(prog86, `Microsoft\Edge\Application\msedge.exe`),
		}
	}

	for _, c := range candidates {
		if p, err := exec.LookPath(c); err == nil {
			return p, nil
		}
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("no chrome/chromium/edge binary found; set CHROME_BIN")
}

// scanForDevtoolsURL reads Chrome's stderr line by line looking for the
// "DevTools listening on ws://..." announcement, then keeps draining
// stderr (without blocking the caller) so the pipe never backs up.
func scanForDevtoolsURL(r io.Reader, ch chan<- string) {
	scanner := bufio.NewScanner(r)
	found := false
	for scanner.Scan() {
		line := scanner.Text()
		if !found {
			if m := devtoolsURLPattern.FindStringSubmatch(line); m != nil {
				found = true
				ch <- m[1]
			}
		}
	}
}
