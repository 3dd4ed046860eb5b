package renderer

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-desktop-handoff/users"
	"github.com/rs/zerolog/log"
)

// SessionTimes are the session fields the exchange returns.
type SessionTimes struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UserSession is a completed sign-in.
type UserSession struct {
	User    users.User   `json:"user"`
	Session SessionTimes `json:"session"`
}

// SuccessFunc receives a completed sign-in.
type SuccessFunc func(UserSession)

// FailureFunc receives the reason a handoff failed.
type FailureFunc func(error)

// mailbox holds at most one undelivered value. A value delivered while no receiver is
// registered waits for the next registration and is handed over exactly once.
type mailbox[T any] struct {
	mu       sync.Mutex
	receiver func(T)
	value    T
	full     bool
}

// post hands v to the receiver, or stores it replacing any stored value.
func (m *mailbox[T]) post(v T) (func(T), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.receiver != nil {
		return m.receiver, true
	}
	m.value, m.full = v, true
	return nil, false
}

// register installs fn and returns any stored value, clearing the slot.
func (m *mailbox[T]) register(fn func(T)) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receiver = fn
	var zero T
	if !m.full || fn == nil {
		return zero, false
	}
	v := m.value
	m.value, m.full = zero, false
	return v, true
}

func (m *mailbox[T]) registered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.receiver != nil
}

func (m *mailbox[T]) pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.full
}

// RendererHandoffState is the UI process side of the handoff: the attach guard, the
// ready signal flag, one mailbox per outcome, the latest session and the focus watcher.
type RendererHandoffState struct {
	mu          sync.Mutex
	attached    bool
	mounted     bool
	session     *UserSession
	focusCancel context.CancelFunc

	success mailbox[UserSession]
	newUser mailbox[UserSession]
	failure mailbox[error]

	wg sync.WaitGroup
}

var defaultState = NewRendererHandoffState()

// NewRendererHandoffState returns a detached state with empty mailboxes.
func NewRendererHandoffState() *RendererHandoffState {
	return &RendererHandoffState{}
}

// DefaultState is the process wide state used when a Negotiator is built without one.
func DefaultState() *RendererHandoffState {
	return defaultState
}

// markAttached reports false when a listener was attached before.
func (s *RendererHandoffState) markAttached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached {
		return false
	}
	s.attached = true
	return true
}

// Attached reports whether a deep-link listener is attached.
func (s *RendererHandoffState) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

// markMounted reports false when the ready signal was already sent.
func (s *RendererHandoffState) markMounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mounted {
		return false
	}
	s.mounted = true
	return true
}

// Mounted reports whether the ready signal has been sent.
func (s *RendererHandoffState) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted
}

// Session is the latest known sign-in, if any.
func (s *RendererHandoffState) Session() (UserSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return UserSession{}, false
	}
	return *s.session, true
}

// SetSession records the latest sign-in. A nil session clears it.
func (s *RendererHandoffState) SetSession(us *UserSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = us
}

// hasCallbacks reports whether any outcome has a receiver.
func (s *RendererHandoffState) hasCallbacks() bool {
	return s.success.registered() || s.newUser.registered() || s.failure.registered()
}

// freshFocusContext cancels the previous focus watcher and returns the context for a
// new one.
func (s *RendererHandoffState) freshFocusContext(parent context.Context) context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.focusCancel != nil {
		s.focusCancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.focusCancel = cancel
	return ctx
}

// StopFocusWatch cancels the current focus watcher.
func (s *RendererHandoffState) StopFocusWatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.focusCancel != nil {
		s.focusCancel()
		s.focusCancel = nil
	}
}

// Wait blocks until every spawned callback and negotiation has returned.
func (s *RendererHandoffState) Wait() {
	s.wg.Wait()
}

// spawn runs fn detached from the caller. Panics are logged and swallowed.
func (s *RendererHandoffState) spawn(name string, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("task", name).Msg("handoff task panicked")
			}
		}()
		fn()
	}()
}

func deliver[T any](s *RendererHandoffState, name string, m *mailbox[T], v T) {
	if fn, ok := m.post(v); ok {
		s.spawn(name, func() { fn(v) })
	}
}

func register[T any](s *RendererHandoffState, name string, m *mailbox[T], fn func(T)) {
	if v, ok := m.register(fn); ok {
		s.spawn(name, func() { fn(v) })
	}
}

// OnSuccess registers the receiver for completed sign-ins of existing users.
func (s *RendererHandoffState) OnSuccess(fn SuccessFunc) {
	register(s, "success", &s.success, fn)
}

// OnNewUser registers the receiver for completed sign-ins that created an account.
func (s *RendererHandoffState) OnNewUser(fn SuccessFunc) {
	register(s, "newUser", &s.newUser, fn)
}

// OnFailure registers the receiver for failed handoffs.
func (s *RendererHandoffState) OnFailure(fn FailureFunc) {
	register(s, "failure", &s.failure, fn)
}

// PendingOutcomes reports which mailboxes hold an undelivered result.
func (s *RendererHandoffState) PendingOutcomes() (success, newUser, failure bool) {
	return s.success.pending(), s.newUser.pending(), s.failure.pending()
}
