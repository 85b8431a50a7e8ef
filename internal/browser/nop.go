package browser

import (
	"github.com/retroview/retroview/internal/vision"
)

// NopFactory opens NopEngines. It lets the service run end to end
// without a real rendering engine attached, serving blank viewports.
type NopFactory struct{}

func (NopFactory) OpenEngine(h Handlers, startPage string) {
	e := &NopEngine{handlers: h}
	h.OnEngineOpened(e)
	h.OnLoadingStateChange(false, false, false)
	h.OnAddressChange(startPage)
}

// NopEngine is an Engine with no page behind it.
type NopEngine struct {
	handlers Handlers
	closed   bool
}

func (e *NopEngine) GoBack()                          {}
func (e *NopEngine) GoForward()                       {}
func (e *NopEngine) Reload()                          {}
func (e *NopEngine) LoadURL(url string)               {}
func (e *NopEngine) Find(text string, fwd, next bool) {}
func (e *NopEngine) StopFind(clearSelection bool)     {}
func (e *NopEngine) SecurityStatus() SecurityStatus   { return Insecure }

func (e *NopEngine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	if e.handlers != nil {
		e.handlers.OnEngineClosed()
	}
}

// NopWidgetTree composites nothing; the viewport stays white.
type NopWidgetTree struct {
	view   vision.ImageSlice
	cursor Cursor
	bar    nopControlSurface
}

func NewNopWidgetTree(WidgetHost) WidgetTree { return &NopWidgetTree{} }

func (w *NopWidgetTree) SetViewport(view vision.ImageSlice) { w.view = view }
func (w *NopWidgetTree) Render()                            {}
func (w *NopWidgetTree) Cursor() Cursor                     { return w.cursor }
func (w *NopWidgetTree) DispatchEvent(token []byte) bool    { return len(token) > 0 }
func (w *NopWidgetTree) SendLoseFocusEvent()                {}
func (w *NopWidgetTree) SendMouseLeaveEvent(x, y int)       {}
func (w *NopWidgetTree) RefreshStatusEvents()               {}
func (w *NopWidgetTree) ShowError(message string)           {}
func (w *NopWidgetTree) ClearError()                        {}
func (w *NopWidgetTree) ControlBar() ControlSurface         { return &w.bar }

type nopControlSurface struct{}

func (nopControlSurface) SetAddress(string)                {}
func (nopControlSurface) SetLoading(bool)                  {}
func (nopControlSurface) SetSecurityStatus(SecurityStatus) {}
func (nopControlSurface) SetFindResult(bool)               {}
func (nopControlSurface) SetPendingDownloadCount(int)      {}
func (nopControlSurface) SetDownloadProgress([]int)        {}
