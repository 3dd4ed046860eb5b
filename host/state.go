package host

import (
	"sync"
)

// HostSessionState is everything the host keeps between events: the init guard, the
// single active window and the pending deep link.
type HostSessionState struct {
	mu          sync.Mutex
	initialized bool
	window      Window
	pending     string
}

var defaultState = NewHostSessionState()

// NewHostSessionState returns an uninitialised state with no window and nothing pending.
func NewHostSessionState() *HostSessionState {
	return &HostSessionState{}
}

// DefaultHostState is the process wide state used when a Host is built without one.
func DefaultHostState() *HostSessionState {
	return defaultState
}

// Initialize moves the state from uninitialised to initialised. It reports false when
// that already happened.
func (s *HostSessionState) Initialize() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return false
	}
	s.initialized = true
	return true
}

// Initialized reports whether Initialize succeeded before.
func (s *HostSessionState) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// SetWindow adopts w as the active window. A nil or destroyed window clears the handle;
// the window already held is left alone. When an adopted window closes the handle is
// cleared, unless another window replaced it in the meantime.
func (s *HostSessionState) SetWindow(w Window) {
	if w == nil || w.IsDestroyed() {
		s.mu.Lock()
		s.window = nil
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	if s.window == w {
		s.mu.Unlock()
		return
	}
	s.window = w
	s.mu.Unlock()

	// observers may run synchronously, so they are registered without holding the lock
	w.OnceClosed(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.window == w {
			s.window = nil
		}
	})
}

// Window returns the active window, dropping it first if it has been destroyed.
func (s *HostSessionState) Window() Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.window != nil && s.window.IsDestroyed() {
		s.window = nil
	}
	return s.window
}

// SetPending buffers url, replacing anything buffered before.
func (s *HostSessionState) SetPending(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = url
}

// Pending returns the buffered deep link.
func (s *HostSessionState) Pending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// TakePending returns and clears the buffered deep link.
func (s *HostSessionState) TakePending() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	url := s.pending
	s.pending = ""
	return url, url != ""
}

// ClearPending drops the buffered deep link.
func (s *HostSessionState) ClearPending() {
	s.SetPending("")
}
