//go:build !windows

package automation

import (
	"context"
	"errors"
	"time"
)

// errNotWindows is returned by every primitive of the stub backend. The
// target GUI only exists on Windows; on other platforms the bridge starts,
// serves /health and reports the target as not running.
var errNotWindows = errors.New("gui automation requires windows")

type stubBackend struct{}

// NewWindowsBackend on non-Windows platforms returns a backend whose
// primitives all fail. Keeping the constructor name identical lets the
// wiring in cmd/bridge stay build-tag free.
func NewWindowsBackend() Backend {
	return &stubBackend{}
}

func (s *stubBackend) KeyDown(string) error {
	return errNotWindows
}

func (s *stubBackend) KeyUp(string) error {
	return errNotWindows
}

func (s *stubBackend) MoveMouse(int, int) error {
	return errNotWindows
}

func (s *stubBackend) Click() error {
	return errNotWindows
}

func (s *stubBackend) CapsLockOn() (bool, error) {
	return false, errNotWindows
}

func (s *stubBackend) ToggleCapsLock() error {
	return errNotWindows
}

func (s *stubBackend) ReadClipboard() (string, error) {
	return "", errNotWindows
}

func (s *stubBackend) WriteClipboard(string) error {
	return errNotWindows
}

func (s *stubBackend) TargetProcessRunning([]string) bool {
	return false
}

func (s *stubBackend) FindWindow([]string) (Handle, string, error) {
	return 0, "", errNotWindows
}

func (s *stubBackend) IsWindow(Handle) bool {
	return false
}

func (s *stubBackend) IsMinimized(Handle) bool {
	return false
}

func (s *stubBackend) Restore(Handle) error {
	return errNotWindows
}

func (s *stubBackend) SetForeground(Handle) error {
	return errNotWindows
}

func (s *stubBackend) Foreground() (Handle, string) {
	return 0, ""
}

func (s *stubBackend) WindowRect(Handle) (Rect, error) {
	return Rect{}, errNotWindows
}

func (s *stubBackend) ChildTexts(Handle) ([]string, error) {
	return nil, errNotWindows
}

func (s *stubBackend) Sleep(ctx context.Context, name string, d time.Duration) error {
	return SleepWall(ctx, d)
}
