package session

import (
	"io"

	"go.uber.org/zap"

	"github.com/retroview/retroview/internal/browser"
	"github.com/retroview/retroview/internal/hypertext"
)

// engineAdapter is the single dispatch object the browsing context
// notifies. Every method marshals onto the control loop and no-ops if
// the session has already been torn down; the engine may call from any
// of its own threads.
type engineAdapter struct {
	s *Session
}

var _ browser.Handlers = (*engineAdapter)(nil)

// LifeCycleHandler

func (a *engineAdapter) OnEngineOpened(engine browser.Engine) {
	s := a.s
	s.loop.Post(func() {
		if s.state != StatePending {
			return
		}
		s.log.Info("browsing context for session created")
		s.engine = engine
		s.state = StateOpen

		if s.closeOnOpen {
			s.Close()
		}
	})
}

func (a *engineAdapter) OnEngineOpenFailed() {
	s := a.s
	s.loop.Post(func() {
		if s.state != StatePending {
			return
		}
		s.log.Error("opening browsing context failed, closing session")
		s.state = StateClosed
		s.owner.sessionClosed(s.id)
		s.updateInactivityTimeout(false)
	})
}

func (a *engineAdapter) OnEngineClosed() {
	s := a.s
	s.loop.Post(func() {
		if s.state != StateOpen && s.state != StateClosing {
			return
		}
		s.state = StateClosed
		s.engine = nil
		s.compressor.Flush()

		s.log.Info("session closed")

		s.owner.sessionClosed(s.id)
		s.updateInactivityTimeout(false)
	})
}

// LoadHandler

func (a *engineAdapter) OnLoadStart(url string) {
	s := a.s
	s.loop.Post(func() {
		if s.state == StateClosed {
			return
		}
		if _, ok := s.signer.Verify(url); ok {
			s.widget.ShowError("Loading URL failed due to a certificate error")
		} else {
			s.widget.ClearError()
		}

		// Make sure the loaded page gets the correct idea about the
		// focus and mouse-over status.
		s.widget.RefreshStatusEvents()
	})
}

func (a *engineAdapter) OnLoadingStateChange(isLoading, canGoBack, canGoForward bool) {
	s := a.s
	s.loop.Post(func() {
		if s.state == StateClosed {
			return
		}
		s.widget.ControlBar().SetLoading(isLoading)
		s.updateSecurityStatus()
	})
}

func (a *engineAdapter) OnLoadError(url, message string, aborted bool) {
	s := a.s
	s.loop.Post(func() {
		if s.state == StateClosed {
			return
		}
		if aborted && s.hasCertErrorURL && s.lastCertErrorURL == url {
			// The abort is correlated with a just-seen certificate
			// error for the same URL: render the error page behind a
			// signed token so page content cannot forge this state.
			signed, err := s.signer.Sign(url)
			if err != nil {
				s.log.Error("could not sign certificate error URL", zap.Error(err))
				return
			}
			if s.engine != nil {
				s.engine.LoadURL(signed)
			}
		} else if !aborted {
			s.widget.ShowError("Loading URL failed due to error: " + message)
			s.widget.ControlBar().SetAddress(url)
		}
	})
}

// DisplayHandler

func (a *engineAdapter) OnAddressChange(url string) {
	s := a.s
	s.loop.Post(func() {
		if s.state == StateClosed {
			return
		}
		// The signed error page keeps showing the original URL in the
		// address control.
		if original, ok := s.signer.Verify(url); ok {
			s.widget.ControlBar().SetAddress(original)
		} else {
			s.widget.ControlBar().SetAddress(url)
		}
		s.updateSecurityStatus()
	})
}

func (a *engineAdapter) OnCursorChange(cursor browser.Cursor) {
	s := a.s
	s.loop.Post(func() {
		if s.state == StateClosed {
			return
		}
		if cursor < 0 || cursor >= browser.CursorCount {
			cursor = browser.CursorNormal
		}
		s.setHeightSignal(int(cursor))
	})
}

// PopupHandler

func (a *engineAdapter) OnPopupRequested() (browser.Handlers, bool) {
	s := a.s

	type answer struct {
		handlers browser.Handlers
		ok       bool
	}
	result := make(chan answer, 1)

	posted := s.loop.Post(func() {
		if s.state == StateClosed {
			result <- answer{}
			return
		}

		s.log.Info("session opening popup")

		if s.owner.serverFull() {
			s.log.Info("aborting popup creation due to session limit")
			s.metrics.PopupsRefused.Inc()
			result <- answer{}
			return
		}

		popup := s.owner.createPopup()
		if popup == nil {
			result <- answer{}
			return
		}
		popupID := popup.ID()
		s.enqueueIframeJob(func(req *Request) {
			req.SendHTML(200, func(w io.Writer) error {
				return hypertext.WritePopupIframe(w, hypertext.PopupIframeData{
					PopupSessionID: popupID,
				})
			})
		})

		result <- answer{handlers: popup.Handlers(), ok: true}
	})
	if !posted {
		return nil, false
	}

	ans := <-result
	return ans.handlers, ans.ok
}

// KeyboardHandler

func (a *engineAdapter) OnPreKey(ev browser.KeyEvent) bool {
	if ev.Code != browser.KeyBackspace || ev.OnEditable {
		return false
	}
	s := a.s
	s.loop.Post(func() {
		if s.state == StateClosed {
			return
		}
		if ev.Shift {
			s.navigate(1)
		} else {
			s.navigate(-1)
		}
	})
	return true
}

// CertificateHandler

func (a *engineAdapter) OnCertificateError(url string) {
	s := a.s
	s.loop.Post(func() {
		if s.state == StateClosed {
			return
		}
		s.lastCertErrorURL = url
		s.hasCertErrorURL = true
	})
}

// FindHandler

func (a *engineAdapter) OnFindResult(identifier int, found bool) {
	s := a.s
	s.loop.Post(func() {
		if s.state == StateClosed {
			return
		}
		// Results from superseded find operations arrive late; the
		// identifier is monotonic, so only the newest one counts.
		if identifier >= s.lastFindID {
			s.widget.ControlBar().SetFindResult(found)
			s.lastFindID = identifier
		}
	})
}
