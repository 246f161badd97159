package payment

import (
	"errors"
	"sync"
)

// ErrPopupBlocked is returned by Window.Open when the approval window could
// not be shown.
var ErrPopupBlocked = errors.New("approval window blocked")

// Approval window size requested from the host.
const (
	WindowWidth  = 600
	WindowHeight = 700
)

// Window is the provider approval window as the tracker sees it.
type Window interface {
	Open(url string, width, height int) error
	Closed() bool
	Close()
}

// RemoteWindow is a Window owned by a front-end client. The client opens
// the approval URL itself and reports back when the window closes or could
// not be opened.
type RemoteWindow struct {
	mu      sync.Mutex
	url     string
	opened  bool
	closed  bool
	blocked bool
}

// NewRemoteWindow returns a window that has not been opened yet.
func NewRemoteWindow() *RemoteWindow {
	return &RemoteWindow{}
}

func (w *RemoteWindow) Open(url string, width, height int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.blocked {
		return ErrPopupBlocked
	}
	w.url = url
	w.opened = true
	return nil
}

func (w *RemoteWindow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Close marks the window closed. The client closes its popup when it sees
// the terminal state.
func (w *RemoteWindow) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

// MarkBlocked records that the client's popup was blocked.
func (w *RemoteWindow) MarkBlocked() {
	w.mu.Lock()
	w.blocked = true
	w.mu.Unlock()
}

// URL returns the approval URL the window was opened with.
func (w *RemoteWindow) URL() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.url
}
