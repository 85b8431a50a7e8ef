// Package session implements the per-viewer protocol engine: request
// routing, monotonic-index invalidation, idempotent event replay,
// image-dimension signalling, the iframe job queue and the bounded
// bookkeeping for downloads and inactivity.
package session

import (
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/retroview/retroview/internal/browser"
	"github.com/retroview/retroview/internal/hypertext"
	"github.com/retroview/retroview/internal/logging"
	"github.com/retroview/retroview/internal/monitoring"
	"github.com/retroview/retroview/internal/runloop"
	"github.com/retroview/retroview/internal/token"
	"github.com/retroview/retroview/internal/vision"
)

// State is the session lifecycle state. A browsing-context handle
// exists iff the state is Open or Closing.
type State int

const (
	StatePending State = iota
	StateOpen
	StateClosing
	StateClosed
)

const (
	minViewportDim = 64
	maxViewportDim = 4096

	defaultViewportWidth  = 800
	defaultViewportHeight = 600

	securityRefreshInterval = time.Second
	navigateDebounce        = 200 * time.Millisecond
)

// Config carries the per-session tunables.
type Config struct {
	StartPage         string
	InactivityTimeout time.Duration
	CloseGracePeriod  time.Duration
	DownloadTTL       time.Duration
	SendTimeout       time.Duration
	Quality           int
	AllowPNG          bool
}

// owner is the manager-side contract a session calls back into. All
// methods run on the control loop.
type owner interface {
	sessionClosed(id uint64)
	serverFull() bool
	createPopup() *Session
}

// Session is one viewer's protocol state. Every field is owned by the
// control loop; nothing here is safe to touch from another goroutine.
type Session struct {
	id      uint64
	isPopup bool

	loop    *runloop.Loop
	log     *logging.Logger
	metrics *monitoring.Metrics
	cfg     Config
	owner   owner

	state       State
	closeOnOpen bool

	engine     browser.Engine
	widget     browser.WidgetTree
	compressor *vision.Compressor
	signer     *token.Signer

	preMainVisited  bool
	prePrevVisited  bool
	prevNextClicked bool

	mainIdx     uint64
	imgIdx      uint64
	eventIdx    uint64
	downloadIdx uint64

	widthSignal  int
	heightSignal int

	paddedViewport vision.ImageSlice
	viewport       vision.ImageSlice

	iframeQueue []IframeJob
	downloads   map[uint64]downloadEntry

	inactivityLong  *runloop.Timer
	inactivityShort *runloop.Timer

	securityRefresh *rate.Limiter
	navigateLimit   *rate.Limiter

	lastCertErrorURL string
	hasCertErrorURL  bool
	lastFindID       int
}

// newSession constructs a session in Pending state and registers its
// initial viewport. Called from the control loop by the manager, which
// is also responsible for opening the browsing context afterwards.
func newSession(
	id uint64,
	isPopup bool,
	loop *runloop.Loop,
	log *logging.Logger,
	metrics *monitoring.Metrics,
	cfg Config,
	own owner,
	newWidget browser.WidgetFactory,
	signer *token.Signer,
) *Session {
	s := &Session{
		id:              id,
		isPopup:         isPopup,
		loop:            loop,
		log:             log.Session(id),
		metrics:         metrics,
		cfg:             cfg,
		owner:           own,
		state:           StatePending,
		signer:          signer,
		widthSignal:     widthSignalNoNewIframe,
		heightSignal:    int(browser.CursorNormal),
		downloads:       make(map[uint64]downloadEntry),
		inactivityLong:  runloop.NewTimer(loop, cfg.InactivityTimeout),
		inactivityShort: runloop.NewTimer(loop, cfg.CloseGracePeriod),
		securityRefresh: rate.NewLimiter(rate.Every(securityRefreshInterval), 1),
		navigateLimit:   rate.NewLimiter(rate.Every(navigateDebounce), 1),
	}

	s.paddedViewport = vision.NewImage(
		defaultViewportWidth+widthSignalModulus-1,
		defaultViewportHeight+heightSignalModulus-1,
	)
	s.viewport = s.paddedViewport.SubRect(0, 0, defaultViewportWidth, defaultViewportHeight)

	s.widget = newWidget(&widgetHost{s: s})
	s.widget.SetViewport(s.viewport)

	s.compressor = vision.NewCompressor(loop, s.log, cfg.SendTimeout, cfg.AllowPNG, cfg.Quality)

	s.log.Info("opening session")
	s.updateInactivityTimeout(false)
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() uint64 { return s.id }

// Handlers returns the notification capability set this session exposes
// to its browsing context.
func (s *Session) Handlers() browser.Handlers {
	return &engineAdapter{s: s}
}

// DownloadObserver returns the sink for download-manager notifications.
func (s *Session) DownloadObserver() browser.DownloadObserver {
	return &downloadObserver{s: s}
}

// HandleRequest routes one inbound request. Must run on the control
// loop; the response may be completed later by a registered job.
func (s *Session) HandleRequest(req *Request) {
	if s.state == StateClosing || s.state == StateClosed {
		req.SendText(503, "ERROR: Browser session has been closed")
		return
	}

	// Cheap periodic reconciliation instead of an explicit
	// subscription: refresh the derived security status at most once a
	// second, piggybacked on whatever request happens to arrive.
	if s.securityRefresh.Allow() {
		s.refreshSecurityStatus()
	}

	if req.Method != "GET" {
		req.SendText(400, "ERROR: Invalid request URI or method")
		return
	}
	path := req.Path

	if poll, ok := parseImagePath(path); ok {
		s.handleImagePoll(req, poll)
		return
	}

	if mainIdx, ok := parseIndexPath(iframePathRE, path); ok {
		s.handleIframePoll(req, mainIdx)
		return
	}

	if downloadIdx, ok := parseIndexPath(downloadPathRE, path); ok {
		s.handleDownload(req, downloadIdx)
		return
	}

	if mainIdx, ok := parseIndexPath(closePathRE, path); ok {
		s.handleClose(req, mainIdx)
		return
	}

	if mainPathRE.MatchString(path) {
		s.handleMain(req)
		return
	}

	if prevPathRE.MatchString(path) {
		s.handlePrev(req)
		return
	}

	if nextPathRE.MatchString(path) {
		s.handleNext(req)
		return
	}

	req.SendText(400, "ERROR: Invalid request URI or method")
}

func (s *Session) handleImagePoll(req *Request, poll imagePoll) {
	if poll.mainIdx != s.mainIdx || poll.imgIdx <= s.imgIdx {
		s.metrics.StaleRequests.Inc()
		req.SendText(400, "ERROR: Outdated request")
		return
	}

	s.updateInactivityTimeout(false)

	s.replayEvents(poll.startEventIdx, poll.events)
	s.imgIdx = poll.imgIdx
	s.updateViewportSize(poll.width, poll.height)

	send := func(contentType string, data []byte) {
		s.metrics.FramesServed.Inc()
		req.SendData(200, contentType, data)
	}
	if poll.immediate {
		s.compressor.ServeNow(send)
	} else {
		s.compressor.ServeOnChange(send)
	}
}

func (s *Session) handleClose(req *Request, mainIdx uint64) {
	if mainIdx != s.mainIdx {
		s.metrics.StaleRequests.Inc()
		req.SendText(400, "ERROR: Outdated request")
		return
	}

	// Close requested: advance the generation so requests addressed to
	// the current main page turn stale, and shorten the inactivity
	// grace since this may just be a reload.
	s.mainIdx++
	s.imgIdx = 0
	s.eventIdx = 0
	s.updateInactivityTimeout(true)

	req.SendText(200, "OK")
}

func (s *Session) handleMain(req *Request) {
	s.updateInactivityTimeout(false)

	if !s.preMainVisited {
		req.SendHTML(200, func(w io.Writer) error {
			return hypertext.WritePreMain(w, hypertext.PreMainData{SessionID: s.id})
		})
		s.preMainVisited = true
		return
	}

	s.mainIdx++

	if s.mainIdx > 1 && !s.prevNextClicked {
		// Not the first main page load and no prev/next click caused
		// it, so the viewer refreshed.
		s.navigate(0)
	}
	s.prevNextClicked = false

	// Avoid keys or mouse buttons staying pressed down across reloads.
	s.widget.SendLoseFocusEvent()
	s.widget.SendMouseLeaveEvent(0, 0)

	s.imgIdx = 0
	s.eventIdx = 0

	req.SendHTML(200, func(w io.Writer) error {
		return hypertext.WriteMain(w, hypertext.MainData{
			SessionID: s.id,
			MainIdx:   s.mainIdx,
			Width:     s.viewport.Width(),
			Height:    s.viewport.Height(),
		})
	})
}

func (s *Session) handlePrev(req *Request) {
	s.updateInactivityTimeout(false)

	if s.mainIdx > 0 && !s.prevNextClicked {
		s.prevNextClicked = true
		s.navigate(-1)
	}

	if s.prePrevVisited {
		req.SendHTML(200, func(w io.Writer) error {
			return hypertext.WritePrev(w, hypertext.FrameData{SessionID: s.id})
		})
	} else {
		req.SendHTML(200, func(w io.Writer) error {
			return hypertext.WritePrePrev(w, hypertext.FrameData{SessionID: s.id})
		})
		s.prePrevVisited = true
	}
}

func (s *Session) handleNext(req *Request) {
	s.updateInactivityTimeout(false)

	if s.mainIdx > 0 && !s.prevNextClicked {
		s.prevNextClicked = true
		s.navigate(1)
	}

	req.SendHTML(200, func(w io.Writer) error {
		return hypertext.WriteNext(w, hypertext.FrameData{SessionID: s.id})
	})
}

// Close requests session teardown. If the browsing context is still
// opening, teardown is deferred until it finishes.
func (s *Session) Close() {
	switch s.state {
	case StateOpen:
		s.log.Info("closing session requested")
		s.state = StateClosing
		s.engine.Close()
		s.compressor.Flush()
	case StatePending:
		s.log.Info("closing session requested while still opening, deferring")
		s.closeOnOpen = true
	}
}

// destroy releases everything the session still holds. Called by the
// manager after the session has been removed from the registry.
func (s *Session) destroy() {
	s.inactivityLong.Stop()
	s.inactivityShort.Stop()
	for idx, entry := range s.downloads {
		entry.timer.Stop()
		delete(s.downloads, idx)
	}
	s.compressor.Close()
}

// updateInactivityTimeout re-arms exactly one of the two one-shot
// timers while the session can still receive requests. The short timer
// follows an explicit client close signal, when the viewer is probably
// reloading and a long grace period would keep dead sessions around.
func (s *Session) updateInactivityTimeout(shortened bool) {
	s.inactivityLong.Stop()
	s.inactivityShort.Stop()

	if s.state != StatePending && s.state != StateOpen {
		return
	}

	timer := s.inactivityLong
	if shortened {
		timer = s.inactivityShort
	}
	timer.Arm(func() {
		if s.state == StatePending || s.state == StateOpen {
			if shortened {
				s.log.Info("inactivity timeout reached (shortened due to client close signal)")
			} else {
				s.log.Info("inactivity timeout reached")
			}
			s.Close()
		}
	})
}

// refreshSecurityStatus recomputes the derived security status and
// pushes it to the control surface.
func (s *Session) refreshSecurityStatus() {
	status := browser.Insecure
	if s.engine != nil {
		status = s.engine.SecurityStatus()
	}
	s.widget.ControlBar().SetSecurityStatus(status)
}

func (s *Session) updateSecurityStatus() {
	// Consume the refresh budget so the piggybacked refresh does not
	// fire again immediately after a direct update.
	_ = s.securityRefresh.Allow()
	s.refreshSecurityStatus()
}

// updateViewportSize clamps and applies a requested viewport size,
// reallocating the padded backing buffer only on actual change.
func (s *Session) updateViewportSize(width, height int) {
	width = clampDim(width)
	height = clampDim(height)

	if s.viewport.Width() == width && s.viewport.Height() == height {
		return
	}

	s.paddedViewport = vision.NewImage(
		width+widthSignalModulus-1,
		height+heightSignalModulus-1,
	)
	s.viewport = s.paddedViewport.SubRect(0, 0, width, height)
	s.widget.SetViewport(s.viewport)
}

func clampDim(dim int) int {
	if dim < minViewportDim {
		return minViewportDim
	}
	if dim > maxViewportDim {
		return maxViewportDim
	}
	return dim
}

// navigate moves through history (-1 back, 0 reload, 1 forward).
// Operations arriving within the debounce window of the previous one
// are double-reports of the same causal action and are dropped.
func (s *Session) navigate(direction int) {
	if !s.navigateLimit.Allow() {
		return
	}
	if s.engine == nil {
		return
	}
	switch direction {
	case -1:
		s.engine.GoBack()
	case 0:
		s.engine.Reload()
	case 1:
		s.engine.GoForward()
	}
}

// SubmitAddress loads a new URL, as typed into the address control.
// Safe to call from any goroutine.
func (s *Session) SubmitAddress(url string) {
	s.loop.Post(func() {
		if s.engine == nil || url == "" {
			return
		}
		s.engine.LoadURL(url)
	})
}

// SetQuality adjusts the compression quality. Safe to call from any
// goroutine.
func (s *Session) SetQuality(quality int) {
	s.loop.Post(func() {
		s.compressor.SetQuality(quality)
	})
}

// Find starts or continues an in-page text search. Safe to call from
// any goroutine.
func (s *Session) Find(text string, forward, findNext bool) {
	s.loop.Post(func() {
		if s.engine != nil {
			s.engine.Find(text, forward, findNext)
		}
	})
}

// StopFind ends an in-page text search. Safe to call from any
// goroutine.
func (s *Session) StopFind(clearSelection bool) {
	s.loop.Post(func() {
		if s.engine != nil {
			s.engine.StopFind(clearSelection)
		}
	})
}

// OpenClipboardHelper queues the paste-helper document for the next
// iframe poll. Safe to call from any goroutine.
func (s *Session) OpenClipboardHelper() {
	s.loop.Post(func() {
		s.enqueueIframeJob(func(req *Request) {
			req.SendHTML(200, func(w io.Writer) error {
				return hypertext.WriteClipboardIframe(w, hypertext.ClipboardIframeData{SessionID: s.id})
			})
		})
	})
}

// widgetHost marshals widget-tree notifications onto the control loop.
type widgetHost struct {
	s *Session
}

func (h *widgetHost) OnViewDirty() {
	s := h.s
	s.loop.Post(func() {
		if s.state == StateClosed {
			return
		}
		s.widget.Render()
		s.pushViewportToCompressor()
	})
}

func (h *widgetHost) OnCursorChanged() {
	s := h.s
	s.loop.Post(func() {
		if s.state == StateClosed {
			return
		}
		cursor := s.widget.Cursor()
		if cursor < 0 || cursor >= browser.CursorCount {
			s.log.Warn("widget reported unknown cursor", zap.Int("cursor", int(cursor)))
			return
		}
		s.setHeightSignal(int(cursor))
	})
}
