// Package tray provides an optional desktop tray for the door camera with an
// arm/disarm toggle and the last detection.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"
	"github.com/pkg/browser"

	"github.com/ayusman/doorcam/internal/event"
)

// openURL is replaced in tests.
var openURL = browser.OpenURL

// Switch is the armed flag the tray toggles.
type Switch interface {
	Armed() bool
	SetArmed(bool) error
}

// Tray represents the system tray application.
type Tray struct {
	sw        Switch
	statusURL string
	onQuit    func()
	onError   func(error)
	last      *event.Detection
	mu        sync.RWMutex

	// Menu items stored for later updates
	menuToggle    *systray.MenuItem
	menuLastEvent *systray.MenuItem
}

// New creates a tray bound to sw.
func New(sw Switch) *Tray {
	return &Tray{sw: sw}
}

// SetStatusURL sets the page the "Open Status..." item opens in a browser.
// Without one the item is disabled.
func (t *Tray) SetStatusURL(url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statusURL = url
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// OnError sets the callback for a failed arm/disarm or status page launch.
func (t *Tray) OnError(fn func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onError = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray from outside its menu.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("doorcam")
	systray.SetTooltip("doorcam person detection")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(armedTitle(t.sw.Armed()), "Arm or disarm alerts")
	systray.AddSeparator()

	t.menuLastEvent = systray.AddMenuItem(lastEventTitle(t.last), "Last detection")
	t.menuLastEvent.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuStatus := systray.AddMenuItem("Open Status...", "Open the status page in a browser")
	t.mu.RLock()
	if t.statusURL == "" {
		menuStatus.Disable()
	}
	t.mu.RUnlock()
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Stop doorcam")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.Toggle()
			case <-menuStatus.ClickedCh:
				t.handleStatus()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// Toggle flips the armed flag and refreshes the menu. It returns the new state.
func (t *Tray) Toggle() bool {
	want := !t.sw.Armed()
	err := t.sw.SetArmed(want)

	t.mu.RLock()
	onError := t.onError
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(armedTitle(t.sw.Armed()))
	}
	t.mu.RUnlock()

	if err != nil && onError != nil {
		onError(err)
	}
	return t.sw.Armed()
}

// handleStatus opens the status page.
func (t *Tray) handleStatus() {
	t.mu.RLock()
	url, onError := t.statusURL, t.onError
	t.mu.RUnlock()

	if url == "" {
		return
	}
	if err := openURL(url); err != nil && onError != nil {
		onError(fmt.Errorf("open %s: %w", url, err))
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetLastEvent updates the last detection shown in the menu.
func (t *Tray) SetLastEvent(ev event.Detection) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.last = &ev
	if t.menuLastEvent != nil {
		t.menuLastEvent.SetTitle(lastEventTitle(&ev))
	}
}

func armedTitle(armed bool) string {
	if armed {
		return "● Armed"
	}
	return "○ Disarmed"
}

func lastEventTitle(ev *event.Detection) string {
	if ev == nil {
		return "Last: none"
	}
	return fmt.Sprintf("Last: %s %s at %s", ev.Classification, ev.DisplayName(), ev.Timestamp.Format("15:04:05"))
}
