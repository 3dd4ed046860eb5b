package host

// Sender delivers an IPC event to the UI process.
type Sender interface {
	Send(event string, payload any) error
}

// OpenAction is the decision for a window-open request.
type OpenAction string

const (
	OpenAllow OpenAction = "allow"
	OpenDeny  OpenAction = "deny"
)

// OpenHandler decides what happens when the UI asks to open a URL in a new window.
type OpenHandler func(url string) OpenAction

// Window is the main application window as seen by the host.
type Window interface {
	Sender

	IsDestroyed() bool
	IsLoading() bool
	IsMinimized() bool
	Restore()
	IsVisible() bool
	Show()
	Focus()

	// OnceClosed registers fn to run the first time the window closes.
	OnceClosed(fn func())
	SetWindowOpenHandler(h OpenHandler)
	LoadURL(url string) error
}

// popUp brings w to the front.
func popUp(w Window) {
	if w.IsMinimized() {
		w.Restore()
	}
	if !w.IsVisible() {
		w.Show()
	}
	w.Focus()
}
