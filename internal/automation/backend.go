// Package automation drives the target trading GUI with synthetic keyboard
// and mouse input. It contains the input primitives, the window controller,
// the page navigator, the export orchestrator, the balance scraper and the
// trade executor. Everything that touches the operating system goes through
// the Backend interface so the whole package is testable against a scripted
// fake GUI.
package automation

import (
	"context"
	"time"
)

// Handle is an opaque OS window handle.
type Handle uintptr

// Rect is a window rectangle in screen coordinates.
type Rect struct {
	X int
	Y int
	W int
	H int
}

// Key names understood by the backend. The set mirrors what the target GUI
// accepts; letters are lowercase and are interpreted as uppercase by the GUI
// because the navigator forces Caps Lock on before sending them.
const (
	KeyHoldings  = "w"
	KeyTrades    = "e"
	KeyOrders    = "r"
	KeyBuyForm   = "f1"
	KeySellForm  = "f2"
	KeyFunds     = "f4"
	KeyEnter     = "enter"
	KeyTab       = "tab"
	KeyEscape    = "esc"
	KeyDelete    = "delete"
	KeyDismiss   = "n" // negative answer to the "open file?" prompt
	KeyCtrl      = "ctrl"
	KeyShift     = "shift"
	KeySelectAll = "a"
	KeyCopy      = "c"
	KeySave      = "s"
)

// Backend is the OS boundary. The Windows implementation sits behind a build
// tag; tests use the scripted mock from internal/testing.
type Backend interface {
	// Keyboard and mouse primitives.
	KeyDown(key string) error
	KeyUp(key string) error
	MoveMouse(x, y int) error
	Click() error

	// Caps Lock LED state. The GUI's single-letter hotkeys only register
	// reliably with Caps Lock asserted.
	CapsLockOn() (bool, error)
	ToggleCapsLock() error

	// Clipboard access for typed-text verification.
	ReadClipboard() (string, error)
	WriteClipboard(s string) error

	// Window queries and control.
	TargetProcessRunning(names []string) bool
	FindWindow(titleSubstrings []string) (Handle, string, error)
	IsWindow(h Handle) bool
	IsMinimized(h Handle) bool
	Restore(h Handle) error
	SetForeground(h Handle) error
	Foreground() (Handle, string)
	WindowRect(h Handle) (Rect, error)
	ChildTexts(h Handle) ([]string, error)

	// Sleep waits for the named delay or until the context is cancelled.
	// All waiting in the automation core goes through here so a task past
	// its deadline unwinds promptly.
	Sleep(ctx context.Context, name string, d time.Duration) error
}

// SleepWall implements the Sleep contract against the wall clock. Backends
// delegate to it.
func SleepWall(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
