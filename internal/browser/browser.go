// Package browser declares the boundary between the session protocol
// engine and the page-rendering engine that actually owns navigation,
// pixels and input. The engine side is expected to call the notification
// interfaces from arbitrary goroutines; the session adapter marshals
// every call onto the control loop.
package browser

import (
	"github.com/retroview/retroview/internal/vision"
)

// SecurityStatus is the derived security state shown for the current page.
type SecurityStatus int

const (
	Insecure SecurityStatus = iota
	Warning
	Secure
)

// Cursor identifies the pointer shape over the page. The numeric values
// are part of the wire convention (they are encoded into served image
// heights), so they must not be reordered.
type Cursor int

const (
	CursorNormal Cursor = iota
	CursorHand
	CursorText
	CursorCount
)

// KeyEvent is a raw key report seen before the page handles it.
type KeyEvent struct {
	Code       int
	Shift      bool
	OnEditable bool
}

// KeyBackspace is the only key code the engine-level fallback cares about.
const KeyBackspace = 8

// Engine drives one live browsing context.
type Engine interface {
	GoBack()
	GoForward()
	Reload()
	LoadURL(url string)
	Find(text string, forward, findNext bool)
	StopFind(clearSelection bool)
	SecurityStatus() SecurityStatus
	// Close requests asynchronous teardown; the engine confirms through
	// LifeCycleHandler.OnEngineClosed.
	Close()
}

// LifeCycleHandler receives browsing-context lifecycle notifications.
type LifeCycleHandler interface {
	OnEngineOpened(engine Engine)
	OnEngineOpenFailed()
	OnEngineClosed()
}

// LoadHandler receives main-frame load notifications.
type LoadHandler interface {
	OnLoadStart(url string)
	OnLoadingStateChange(isLoading, canGoBack, canGoForward bool)
	// OnLoadError reports a failed main-frame load; aborted loads are
	// only interesting when correlated with a certificate error.
	OnLoadError(url, message string, aborted bool)
}

// DisplayHandler receives address and cursor notifications.
type DisplayHandler interface {
	OnAddressChange(url string)
	OnCursorChange(cursor Cursor)
}

// PopupHandler decides whether a page-initiated popup may open.
type PopupHandler interface {
	// OnPopupRequested returns the handler set for the popup's browsing
	// context, or false to refuse the popup outright.
	OnPopupRequested() (Handlers, bool)
}

// KeyboardHandler sees key events before the page. Returning true
// consumes the event.
type KeyboardHandler interface {
	OnPreKey(ev KeyEvent) bool
}

// CertificateHandler is told about certificate validation failures.
type CertificateHandler interface {
	OnCertificateError(url string)
}

// FindHandler receives in-page find results. The identifier is
// monotonically increasing per find operation.
type FindHandler interface {
	OnFindResult(identifier int, found bool)
}

// Handlers is the full capability set one session exposes to its
// browsing context.
type Handlers interface {
	LifeCycleHandler
	LoadHandler
	DisplayHandler
	PopupHandler
	KeyboardHandler
	CertificateHandler
	FindHandler
}

// Factory opens browsing contexts. Opening is asynchronous: success or
// failure arrives through the LifeCycleHandler side of h.
type Factory interface {
	OpenEngine(h Handlers, startPage string)
}

// ControlSurface is the navigation chrome rendered above the page.
type ControlSurface interface {
	SetAddress(url string)
	SetLoading(loading bool)
	SetSecurityStatus(status SecurityStatus)
	SetFindResult(found bool)
	SetPendingDownloadCount(count int)
	SetDownloadProgress(progress []int)
}

// WidgetTree owns the composited pixels and consumes replayed input.
type WidgetTree interface {
	SetViewport(view vision.ImageSlice)
	Render()
	Cursor() Cursor
	// DispatchEvent applies one serialized input event; false means the
	// token was malformed and has been dropped.
	DispatchEvent(token []byte) bool
	SendLoseFocusEvent()
	SendMouseLeaveEvent(x, y int)
	// RefreshStatusEvents re-sends focus and hover state so a freshly
	// loaded page does not inherit stale input state.
	RefreshStatusEvents()
	ShowError(message string)
	ClearError()
	ControlBar() ControlSurface
}

// WidgetHost receives change notifications from the widget tree.
type WidgetHost interface {
	OnViewDirty()
	OnCursorChanged()
}

// WidgetFactory builds the widget tree for one session.
type WidgetFactory func(host WidgetHost) WidgetTree

// Responder delivers an HTTP response for a download.
type Responder interface {
	SendText(status int, body string)
	SendData(status int, contentType string, data []byte)
}

// CompletedDownload is a finished download ready to be streamed.
type CompletedDownload interface {
	Name() string
	Serve(r Responder)
}

// DownloadObserver receives download lifecycle notifications.
type DownloadObserver interface {
	OnPendingDownloadCountChanged(count int)
	OnDownloadProgressChanged(progress []int)
	OnDownloadCompleted(file CompletedDownload)
}
