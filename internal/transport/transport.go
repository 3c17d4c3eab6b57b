// Package transport implements the raw Chrome DevTools Protocol wire
// client: one WebSocket per target, request/response correlation by id,
// and a buffer of unsolicited event frames for callers that need to wait
// on them.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/snapwatch/snapwatch/internal/snaperr"
)

// eventBufSize bounds how many unsolicited events are retained for
// WaitEvent/WaitNetworkIdle to scan before blocking on new frames.
const eventBufSize = 512

// wireMessage is the envelope for both outgoing calls and incoming
// frames (responses and events share a wire shape; the id field
// distinguishes them).
type wireMessage struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Event is an unsolicited CDP frame (has Method, no matching pending id).
type Event struct {
	Method string
	Params json.RawMessage
}

type pendingCall struct {
	result json.RawMessage
	err    error
}

// Transport owns one CDP WebSocket connection. All writes go through a
// single goroutine-safe path; reads are delivered by one background
// read loop. Safe for concurrent use by multiple callers.
type Transport struct {
	conn   *websocket.Conn
	log    *zap.Logger
	nextID atomic.Int64

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[int64]chan pendingCall

	eventMu  sync.Mutex
	eventBuf []Event
	eventCh  chan Event

	closeOnce sync.Once
	closed    chan struct{}
}

// Connect opens a CDP WebSocket at wsURL and starts its read loop.
func Connect(ctx context.Context, wsURL string, log *zap.Logger) (*Transport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, snaperr.ConnectError("dial "+wsURL, err)
	}
	t := &Transport{
		conn:    conn,
		log:     log,
		pending: make(map[int64]chan pendingCall),
		eventCh: make(chan Event, eventBufSize),
		closed:  make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

func (t *Transport) readLoop() {
	defer close(t.closed)
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.failAllPending(snaperr.ConnectError("read", err))
			return
		}
		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.log.Warn("dropping malformed CDP frame", zap.Error(err))
			continue
		}
		if msg.ID != 0 {
			t.deliver(msg)
			continue
		}
		if msg.Method == "" {
			continue
		}
		t.pushEvent(Event{Method: msg.Method, Params: msg.Params})
	}
}

func (t *Transport) deliver(msg wireMessage) {
	t.pendingMu.Lock()
	ch, ok := t.pending[msg.ID]
	if ok {
		delete(t.pending, msg.ID)
	}
	t.pendingMu.Unlock()
	if !ok {
		return
	}
	if msg.Error != nil {
		ch <- pendingCall{err: snaperr.ProtocolError("response", fmt.Errorf("%d: %s", msg.Error.Code, msg.Error.Message))}
		return
	}
	ch <- pendingCall{result: msg.Result}
}

func (t *Transport) failAllPending(err error) {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	for id, ch := range t.pending {
		ch <- pendingCall{err: err}
		delete(t.pending, id)
	}
}

func (t *Transport) pushEvent(ev Event) {
	t.eventMu.Lock()
	t.eventBuf = append(t.eventBuf, ev)
	if len(t.eventBuf) > eventBufSize {
		t.eventBuf = t.eventBuf[len(t.eventBuf)-eventBufSize:]
	}
	t.eventMu.Unlock()
	select {
	case t.eventCh <- ev:
	default:
		// live channel saturated; buffer above still has it for scans.
	}
}

// Call sends a CDP command and blocks for its response.
func (t *Transport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := t.nextID.Add(1)
	var raw json.RawMessage
	var err error
	if params != nil {
		raw, err = json.Marshal(params)
		if err != nil {
			return nil, snaperr.ProtocolError("marshal "+method, err)
		}
	}
	req := wireMessage{ID: id, Method: method, Params: raw}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, snaperr.ProtocolError("marshal "+method, err)
	}

	ch := make(chan pendingCall, 1)
	t.pendingMu.Lock()
	t.pending[id] = ch
	t.pendingMu.Unlock()

	t.writeMu.Lock()
	werr := t.conn.WriteMessage(websocket.TextMessage, payload)
	t.writeMu.Unlock()
	if werr != nil {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
		return nil, snaperr.ConnectError("write "+method, werr)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return res.result, nil
	case <-ctx.Done():
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
		return nil, snaperr.ProtocolError(method, ctx.Err())
	case <-t.closed:
		return nil, snaperr.ConnectError(method, fmt.Errorf("transport closed"))
	}
}

// WaitEvent blocks until an event satisfying predicate arrives,
// scanning already-buffered events first.
func (t *Transport) WaitEvent(ctx context.Context, predicate func(Event) bool) (Event, error) {
	t.eventMu.Lock()
	for _, ev := range t.eventBuf {
		if predicate(ev) {
			t.eventMu.Unlock()
			return ev, nil
		}
	}
	t.eventMu.Unlock()

	for {
		select {
		case ev := <-t.eventCh:
			if predicate(ev) {
				return ev, nil
			}
		case <-ctx.Done():
			return Event{}, snaperr.ProtocolError("wait_event", ctx.Err())
		case <-t.closed:
			return Event{}, snaperr.ConnectError("wait_event", fmt.Errorf("transport closed"))
		}
	}
}

const (
	eventRequestWillBeSent = "Network.requestWillBeSent"
	eventLoadingFinished   = "Network.loadingFinished"
	eventLoadingFailed     = "Network.loadingFailed"
)

type networkEventParams struct {
	RequestID string `json:"requestId"`
}

// WaitNetworkIdle maintains a pending-request set by observing
// Network.requestWillBeSent (insert) and Network.loadingFinished /
// Network.loadingFailed (remove) events. Idle is declared once that set
// has been empty continuously for quiet; a request that starts and then
// goes quiet without ever finishing does not count as idle. Bounded by
// a hard ceiling of timeout, after which it returns regardless of any
// still-pending requests. Every frame read during the wait — matching
// or not — is retained in the shared event buffer: the original CDP
// client grows its event buffer during this wait rather than discarding
// unrelated frames, and this port follows that for fidelity.
func (t *Transport) WaitNetworkIdle(ctx context.Context, quiet, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	pending := make(map[string]struct{})

	// Drain already-buffered events first so requests that started
	// before this stage began are accounted for.
	t.eventMu.Lock()
	buffered := append([]Event(nil), t.eventBuf...)
	t.eventMu.Unlock()
	for _, ev := range buffered {
		applyNetworkEvent(pending, ev)
	}

	var timerC <-chan time.Time
	var timer *time.Timer
	resetTimer := func() {
		if len(pending) != 0 {
			if timer != nil {
				timer.Stop()
				timerC = nil
			}
			return
		}
		if timer == nil {
			timer = time.NewTimer(quiet)
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(quiet)
		}
		timerC = timer.C
	}
	resetTimer()
	if timer != nil {
		defer timer.Stop()
	}

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		select {
		case ev := <-t.eventCh:
			if applyNetworkEvent(pending, ev) {
				resetTimer()
			}
		case <-timerC:
			return nil
		case <-time.After(remaining):
			return nil
		case <-ctx.Done():
			return snaperr.ProtocolError("wait_network_idle", ctx.Err())
		case <-t.closed:
			return snaperr.ConnectError("wait_network_idle", fmt.Errorf("transport closed"))
		}
	}
}

// applyNetworkEvent updates the pending-request set for one event and
// reports whether the set's membership changed.
func applyNetworkEvent(pending map[string]struct{}, ev Event) bool {
	switch ev.Method {
	case eventRequestWillBeSent:
		var p networkEventParams
		if err := json.Unmarshal(ev.Params, &p); err != nil || p.RequestID == "" {
			return false
		}
		pending[p.RequestID] = struct{}{}
		return true
	case eventLoadingFinished, eventLoadingFailed:
		var p networkEventParams
		if err := json.Unmarshal(ev.Params, &p); err != nil || p.RequestID == "" {
			return false
		}
		if _, ok := pending[p.RequestID]; ok {
			delete(pending, p.RequestID)
			return true
		}
		return false
	default:
		return false
	}
}

// Close tears down the connection and unblocks any in-flight calls.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close()
	})
	return err
}
