package session

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/retroview/retroview/internal/browser"
	"github.com/retroview/retroview/internal/logging"
	"github.com/retroview/retroview/internal/monitoring"
	"github.com/retroview/retroview/internal/runloop"
	"github.com/retroview/retroview/internal/token"
)

// ErrServerFull is returned when the session cap has been reached.
var ErrServerFull = errors.New("session limit reached")

// ErrStopped is returned when the manager no longer accepts work.
var ErrStopped = errors.New("session manager stopped")

// Manager owns the control loop, the session registry and the ID
// allocator. It is the only component that creates and destroys
// sessions; everything per-session happens inside Session itself.
type Manager struct {
	loop    *runloop.Loop
	log     *logging.Logger
	metrics *monitoring.Metrics

	cfg         Config
	maxSessions int

	factory   browser.Factory
	newWidget browser.WidgetFactory

	// Loop-owned state.
	sessions map[uint64]*Session
	ids      *idAllocator
}

// NewManager creates a stopped manager. Call Start before use.
func NewManager(
	log *logging.Logger,
	metrics *monitoring.Metrics,
	cfg Config,
	maxSessions int,
	factory browser.Factory,
	newWidget browser.WidgetFactory,
) *Manager {
	return &Manager{
		loop:        runloop.New(),
		log:         log,
		metrics:     metrics,
		cfg:         cfg,
		maxSessions: maxSessions,
		factory:     factory,
		newWidget:   newWidget,
		sessions:    make(map[uint64]*Session),
		ids:         newIDAllocator(time.Now().UnixNano()),
	}
}

// Start launches the control loop.
func (m *Manager) Start() {
	m.loop.Start()
}

// Stop closes every live session and shuts the control loop down.
func (m *Manager) Stop() {
	m.loop.Post(func() {
		for _, s := range m.sessions {
			s.Close()
		}
	})
	m.loop.Stop()
}

// Loop exposes the control loop for components that must marshal onto
// it (timers, engine adapters in tests).
func (m *Manager) Loop() *runloop.Loop {
	return m.loop
}

// CreateSession allocates a new top-level viewer session and starts
// opening its browsing context. Blocks until the session is registered.
func (m *Manager) CreateSession() (uint64, error) {
	type answer struct {
		id  uint64
		err error
	}
	result := make(chan answer, 1)

	posted := m.loop.Post(func() {
		if len(m.sessions) >= m.maxSessions {
			result <- answer{err: ErrServerFull}
			return
		}
		s, err := m.newRegisteredSession(false)
		if err != nil {
			result <- answer{err: err}
			return
		}
		m.factory.OpenEngine(s.Handlers(), m.cfg.StartPage)
		result <- answer{id: s.ID()}
	})
	if !posted {
		return 0, ErrStopped
	}

	ans := <-result
	return ans.id, ans.err
}

// Dispatch routes a request to the session it addresses. The response
// is completed asynchronously; callers wait on req.Done.
func (m *Manager) Dispatch(id uint64, req *Request) {
	posted := m.loop.Post(func() {
		s, ok := m.sessions[id]
		if !ok {
			req.SendText(400, "ERROR: Invalid session ID")
			return
		}
		s.HandleRequest(req)
	})
	if !posted {
		req.SendText(503, "ERROR: Service is shutting down")
	}
}

// SessionCount reports the number of live sessions.
func (m *Manager) SessionCount() int {
	result := make(chan int, 1)
	if !m.loop.Post(func() { result <- len(m.sessions) }) {
		return 0
	}
	return <-result
}

// newRegisteredSession builds a session and adds it to the registry.
// Loop only.
func (m *Manager) newRegisteredSession(isPopup bool) (*Session, error) {
	signer, err := token.NewSigner()
	if err != nil {
		return nil, err
	}

	id := m.ids.acquire()
	s := newSession(id, isPopup, m.loop, m.log, m.metrics, m.cfg, m, m.newWidget, signer)
	m.sessions[id] = s

	m.metrics.SessionsActive.Inc()
	m.metrics.SessionsTotal.Inc()
	return s, nil
}

// owner interface (loop only)

func (m *Manager) sessionClosed(id uint64) {
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	delete(m.sessions, id)
	m.metrics.SessionsActive.Dec()
	s.destroy()

	// The ID returns to the pool only after the session has been torn
	// down, and from the control loop.
	m.loop.Post(func() {
		m.ids.release(id)
	})
}

func (m *Manager) serverFull() bool {
	return len(m.sessions) >= m.maxSessions
}

func (m *Manager) createPopup() *Session {
	s, err := m.newRegisteredSession(true)
	if err != nil {
		m.log.Error("could not create popup session", zap.Error(err))
		return nil
	}
	// Popups bring their own browsing context: the engine intercepted
	// the window-open and attaches it through the returned handlers.
	return s
}
