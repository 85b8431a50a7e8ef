package session

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/retroview/retroview/internal/browser"
	"github.com/retroview/retroview/internal/logging"
	"github.com/retroview/retroview/internal/monitoring"
	"github.com/retroview/retroview/internal/runloop"
	"github.com/retroview/retroview/internal/vision"
)

// fakeControlBar records what the session pushed at the navigation chrome.
type fakeControlBar struct {
	address       string
	loading       bool
	status        browser.SecurityStatus
	findResults   []bool
	pendingCount  int
	progress      []int
	statusUpdates int
}

func (b *fakeControlBar) SetAddress(url string)         { b.address = url }
func (b *fakeControlBar) SetLoading(loading bool)       { b.loading = loading }
func (b *fakeControlBar) SetFindResult(found bool)      { b.findResults = append(b.findResults, found) }
func (b *fakeControlBar) SetPendingDownloadCount(n int) { b.pendingCount = n }
func (b *fakeControlBar) SetDownloadProgress(p []int)   { b.progress = p }
func (b *fakeControlBar) SetSecurityStatus(s browser.SecurityStatus) {
	b.status = s
	b.statusUpdates++
}

// fakeWidget is a widget tree that records every interaction. All calls
// arrive on the control loop, so plain fields suffice; tests read them
// through onLoop.
type fakeWidget struct {
	host     browser.WidgetHost
	viewport vision.ImageSlice
	cursor   browser.Cursor

	dispatched  []string
	loseFocus   int
	mouseLeave  int
	refreshes   int
	renders     int
	errorsShown []string
	errorsClear int

	bar fakeControlBar
}

func (w *fakeWidget) SetViewport(view vision.ImageSlice) { w.viewport = view }
func (w *fakeWidget) Render()                            { w.renders++ }
func (w *fakeWidget) Cursor() browser.Cursor             { return w.cursor }

func (w *fakeWidget) DispatchEvent(token []byte) bool {
	w.dispatched = append(w.dispatched, string(token))
	return !strings.HasPrefix(string(token), "BAD")
}

func (w *fakeWidget) SendLoseFocusEvent()          { w.loseFocus++ }
func (w *fakeWidget) SendMouseLeaveEvent(x, y int) { w.mouseLeave++ }
func (w *fakeWidget) RefreshStatusEvents()         { w.refreshes++ }
func (w *fakeWidget) ShowError(message string)     { w.errorsShown = append(w.errorsShown, message) }
func (w *fakeWidget) ClearError()                  { w.errorsClear++ }
func (w *fakeWidget) ControlBar() browser.ControlSurface {
	return &w.bar
}

// fakeEngine records navigation calls. Close is confirmed through the
// handlers only when autoConfirmClose is set, which lets tests hold a
// session in Closing state.
type fakeEngine struct {
	handlers         browser.Handlers
	autoConfirmClose bool

	goBacks    int
	goForwards int
	reloads    int
	loadedURLs []string
	finds      []string
	stopFinds  int
	closes     int
	status     browser.SecurityStatus
}

func (e *fakeEngine) GoBack()            { e.goBacks++ }
func (e *fakeEngine) GoForward()         { e.goForwards++ }
func (e *fakeEngine) Reload()            { e.reloads++ }
func (e *fakeEngine) LoadURL(url string) { e.loadedURLs = append(e.loadedURLs, url) }
func (e *fakeEngine) Find(text string, forward, findNext bool) {
	e.finds = append(e.finds, text)
}
func (e *fakeEngine) StopFind(clearSelection bool)           { e.stopFinds++ }
func (e *fakeEngine) SecurityStatus() browser.SecurityStatus { return e.status }

func (e *fakeEngine) Close() {
	e.closes++
	if e.autoConfirmClose {
		e.handlers.OnEngineClosed()
	}
}

const (
	openSync = iota
	openFail
	openManual
)

// fakeFactory opens fake engines and keeps what it handed out.
type fakeFactory struct {
	mode             int
	autoConfirmClose bool

	handlers []browser.Handlers
	engines  []*fakeEngine
}

func (f *fakeFactory) OpenEngine(h browser.Handlers, startPage string) {
	e := &fakeEngine{handlers: h, autoConfirmClose: f.autoConfirmClose}
	f.handlers = append(f.handlers, h)
	f.engines = append(f.engines, e)
	switch f.mode {
	case openSync:
		h.OnEngineOpened(e)
	case openFail:
		h.OnEngineOpenFailed()
	}
}

type harness struct {
	m       *Manager
	factory *fakeFactory
	widgets []*fakeWidget
}

func defaultTestConfig() Config {
	return Config{
		StartPage:         "about:blank",
		InactivityTimeout: time.Hour,
		CloseGracePeriod:  time.Hour,
		DownloadTTL:       time.Hour,
		SendTimeout:       2 * time.Second,
		Quality:           80,
		AllowPNG:          false,
	}
}

func newHarness(t *testing.T, cfg Config, maxSessions int) *harness {
	t.Helper()
	h := &harness{factory: &fakeFactory{mode: openSync, autoConfirmClose: true}}
	h.m = NewManager(
		logging.NewNop(),
		monitoring.NewMetrics(prometheus.NewRegistry()),
		cfg,
		maxSessions,
		h.factory,
		func(host browser.WidgetHost) browser.WidgetTree {
			w := &fakeWidget{host: host, cursor: browser.CursorNormal}
			h.widgets = append(h.widgets, w)
			return w
		},
	)
	h.m.Start()
	t.Cleanup(h.m.Stop)
	return h
}

func onLoop(t *testing.T, loop *runloop.Loop, task func()) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, loop.Post(func() {
		task()
		close(done)
	}))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("control loop task did not run")
	}
}

func (h *harness) session(t *testing.T, id uint64) *Session {
	t.Helper()
	var s *Session
	onLoop(t, h.m.Loop(), func() { s = h.m.sessions[id] })
	require.NotNil(t, s)
	return s
}

func (h *harness) widget(t *testing.T, i int) *fakeWidget {
	t.Helper()
	var w *fakeWidget
	onLoop(t, h.m.Loop(), func() {
		require.Less(t, i, len(h.widgets))
		w = h.widgets[i]
	})
	return w
}

func (h *harness) engine(t *testing.T, i int) *fakeEngine {
	t.Helper()
	var e *fakeEngine
	onLoop(t, h.m.Loop(), func() {
		require.Less(t, i, len(h.factory.engines))
		e = h.factory.engines[i]
	})
	return e
}

func (h *harness) handlers(t *testing.T, i int) browser.Handlers {
	t.Helper()
	var hs browser.Handlers
	onLoop(t, h.m.Loop(), func() {
		require.Less(t, i, len(h.factory.handlers))
		hs = h.factory.handlers[i]
	})
	return hs
}

// get dispatches one GET and waits for the response.
func (h *harness) get(t *testing.T, id uint64, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec, req := h.getAsync(id, path)
	select {
	case <-req.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("request %s did not complete", path)
	}
	return rec
}

// getAsync dispatches one GET without waiting; callers wait on req.Done.
func (h *harness) getAsync(id uint64, path string) (*httptest.ResponseRecorder, *Request) {
	rec := httptest.NewRecorder()
	req := NewRequest("GET", path, rec)
	h.m.Dispatch(id, req)
	return rec, req
}

func httptestPost(t *testing.T, h *harness, id uint64, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := NewRequest("POST", path, rec)
	h.m.Dispatch(id, req)
	select {
	case <-req.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("request %s did not complete", path)
	}
	return rec
}

func imagePath(id, mainIdx, imgIdx uint64, immediate, width, height int, startEventIdx uint64, events string) string {
	return fmt.Sprintf("/%d/image/%d/%d/%d/%d/%d/%d/%s",
		id, mainIdx, imgIdx, immediate, width, height, startEventIdx, events)
}
