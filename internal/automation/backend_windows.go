//go:build windows

package automation

import (
	"context"
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/go-vgo/robotgo"
	"github.com/lxn/win"
	"github.com/shirou/gopsutil/v3/process"
)

// windowsBackend implements Backend against the live desktop with robotgo
// for synthetic input and user32 for window queries.
type windowsBackend struct{}

// NewWindowsBackend returns the production backend.
func NewWindowsBackend() Backend {
	return &windowsBackend{}
}

func (w *windowsBackend) KeyDown(key string) error {
	return robotgo.KeyDown(key)
}

func (w *windowsBackend) KeyUp(key string) error {
	return robotgo.KeyUp(key)
}

func (w *windowsBackend) MoveMouse(x, y int) error {
	robotgo.MoveMouse(x, y)
	return nil
}

func (w *windowsBackend) Click() error {
	robotgo.MouseClick("left", false)
	return nil
}

// CapsLockOn reads the keyboard LED through the low-order toggle bit of
// GetKeyState.
func (w *windowsBackend) CapsLockOn() (bool, error) {
	state := win.GetKeyState(win.VK_CAPITAL)
	return state&1 == 1, nil
}

func (w *windowsBackend) ToggleCapsLock() error {
	return robotgo.KeyTap("capslock")
}

func (w *windowsBackend) ReadClipboard() (string, error) {
	return robotgo.ReadAll()
}

func (w *windowsBackend) WriteClipboard(s string) error {
	return robotgo.WriteAll(s)
}

// TargetProcessRunning scans the process table for any of the given image
// names, case-insensitively.
func (w *windowsBackend) TargetProcessRunning(names []string) bool {
	procs, err := process.Processes()
	if err != nil {
		return false
	}
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		for _, want := range names {
			if strings.EqualFold(name, want) {
				return true
			}
		}
	}
	return false
}

// FindWindow walks the visible top-level windows and returns the first whose title
// contains any of the given substrings. EnumChildWindows with a null parent
// enumerates top-level windows.
func (w *windowsBackend) FindWindow(titleSubstrings []string) (Handle, string, error) {
	var found Handle
	var foundTitle string
	cb := syscall.NewCallback(func(hwnd win.HWND, lParam uintptr) uintptr {
		// Hidden windows can carry stale titles from a previous session.
		if !win.IsWindowVisible(hwnd) {
			return 1
		}
		title := windowText(hwnd)
		if title == "" {
			return 1
		}
		for _, sub := range titleSubstrings {
			if strings.Contains(title, sub) {
				found = Handle(hwnd)
				foundTitle = title
				return 0 // stop enumeration
			}
		}
		return 1
	})
	win.EnumChildWindows(0, cb, 0)
	if found == 0 {
		return 0, "", fmt.Errorf("no top-level window matches %v", titleSubstrings)
	}
	return found, foundTitle, nil
}

func (w *windowsBackend) IsWindow(h Handle) bool {
	return win.IsWindow(win.HWND(h))
}

func (w *windowsBackend) IsMinimized(h Handle) bool {
	return win.IsIconic(win.HWND(h))
}

func (w *windowsBackend) Restore(h Handle) error {
	win.ShowWindow(win.HWND(h), win.SW_RESTORE)
	return nil
}

func (w *windowsBackend) SetForeground(h Handle) error {
	if !win.SetForegroundWindow(win.HWND(h)) {
		return fmt.Errorf("SetForegroundWindow rejected for hwnd %#x", uintptr(h))
	}
	return nil
}

func (w *windowsBackend) Foreground() (Handle, string) {
	hwnd := win.GetForegroundWindow()
	return Handle(hwnd), windowText(hwnd)
}

func (w *windowsBackend) WindowRect(h Handle) (Rect, error) {
	var r win.RECT
	if !win.GetWindowRect(win.HWND(h), &r) {
		return Rect{}, fmt.Errorf("GetWindowRect failed for hwnd %#x", uintptr(h))
	}
	return Rect{
		X: int(r.Left),
		Y: int(r.Top),
		W: int(r.Right - r.Left),
		H: int(r.Bottom - r.Top),
	}, nil
}

// ChildTexts collects the window text of every child control, in
// enumeration order. Static labels and edit controls both surface here.
func (w *windowsBackend) ChildTexts(h Handle) ([]string, error) {
	var texts []string
	cb := syscall.NewCallback(func(hwnd win.HWND, lParam uintptr) uintptr {
		if t := windowText(hwnd); t != "" {
			texts = append(texts, t)
		}
		return 1
	})
	win.EnumChildWindows(win.HWND(h), cb, 0)
	return texts, nil
}

func (w *windowsBackend) Sleep(ctx context.Context, name string, d time.Duration) error {
	return SleepWall(ctx, d)
}

func windowText(hwnd win.HWND) string {
	var buf [512]uint16
	n := win.GetWindowText(hwnd, &buf[0], int32(len(buf)))
	if n <= 0 {
		return ""
	}
	return syscall.UTF16ToString(buf[:n])
}
