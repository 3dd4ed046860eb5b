package host

import (
	"sync"

	"github.com/jrsteele09/go-desktop-handoff/host/ipc"
)

// HeadlessWindow is a Window without a screen. Events go to the UI process through an
// ipc port. cmd/desktop and the tests drive it.
type HeadlessWindow struct {
	port *ipc.Port

	mu          sync.Mutex
	destroyed   bool
	closed      bool
	loading     bool
	minimized   bool
	visible     bool
	focused     bool
	loadedURL   string
	openHandler OpenHandler
	onClosed    []func()
}

var _ Window = (*HeadlessWindow)(nil)

// NewHeadlessWindow creates a visible, loaded window sending through port.
func NewHeadlessWindow(port *ipc.Port) *HeadlessWindow {
	return &HeadlessWindow{port: port, visible: true}
}

func (w *HeadlessWindow) IsDestroyed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyed
}

func (w *HeadlessWindow) IsLoading() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loading
}

func (w *HeadlessWindow) IsMinimized() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.minimized
}

func (w *HeadlessWindow) Restore() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.minimized = false
}

func (w *HeadlessWindow) IsVisible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

func (w *HeadlessWindow) Show() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.visible = true
}

func (w *HeadlessWindow) Focus() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.focused = true
}

// IsFocused reports whether Focus was called since the last Minimize or Hide.
func (w *HeadlessWindow) IsFocused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.focused
}

// Minimize minimizes the window.
func (w *HeadlessWindow) Minimize() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.minimized = true
	w.focused = false
}

// Hide hides the window.
func (w *HeadlessWindow) Hide() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.visible = false
	w.focused = false
}

func (w *HeadlessWindow) Send(event string, payload any) error {
	return w.port.Send(event, payload)
}

// OnceClosed registers fn for the closed event. On a window that already closed, fn runs
// right away.
func (w *HeadlessWindow) OnceClosed(fn func()) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		fn()
		return
	}
	w.onClosed = append(w.onClosed, fn)
	w.mu.Unlock()
}

func (w *HeadlessWindow) SetWindowOpenHandler(h OpenHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.openHandler = h
}

// LoadURL records url and marks the window as loading until FinishLoad.
func (w *HeadlessWindow) LoadURL(url string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loadedURL = url
	w.loading = true
	return nil
}

// LoadedURL is the last URL passed to LoadURL.
func (w *HeadlessWindow) LoadedURL() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loadedURL
}

// FinishLoad ends the current load.
func (w *HeadlessWindow) FinishLoad() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loading = false
}

// RequestOpen asks the installed open handler about url. Without a handler the request
// is allowed.
func (w *HeadlessWindow) RequestOpen(url string) OpenAction {
	w.mu.Lock()
	h := w.openHandler
	w.mu.Unlock()
	if h == nil {
		return OpenAllow
	}
	return h(url)
}

// Destroy marks the window destroyed without notifying the closed observers, as happens
// between a native window going away and its closed event.
func (w *HeadlessWindow) Destroy() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.destroyed = true
}

// Close destroys the window and runs the closed observers once, whether or not Destroy
// came first.
func (w *HeadlessWindow) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.destroyed = true
	observers := w.onClosed
	w.onClosed = nil
	w.mu.Unlock()

	for _, fn := range observers {
		fn()
	}
}
