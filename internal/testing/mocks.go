// Package testing provides shared test doubles, most importantly a scripted
// fake of the trading GUI that implements automation.Backend. The fake
// records every primitive in order, emulates a focused edit control with a
// clipboard, and drives a scriptable Save dialog, so the full hotkey ritual
// and export flow run against it unmodified.
package testing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dongwu-tools/tradebridge/internal/automation"
)

// MockBackend is a scripted stand-in for the Windows desktop.
type MockBackend struct {
	mu     sync.Mutex
	events []string

	capsOn      bool
	capsStuck   bool
	clipboard   string
	keyFailures map[string]error

	processRunning     bool
	windowHandle       automation.Handle
	windowTitle        string
	windowGone         bool
	minimized          bool
	foregroundAccepted bool
	childTexts         []string

	ctrlDown        bool
	shiftDown       bool
	field           []rune
	selected        bool
	committedFields []string

	savePending     bool
	saveDialogOpen  bool
	saveDialogPolls int
	pollCount       int
	exportDir       string
	exportContent   []byte
	savedFiles      []string

	hangSleeps map[string]bool
}

// NewMockBackend creates a fake GUI in its healthy default state: process
// running, window present and titled like the real client, foreground
// requests accepted, Caps Lock off.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		keyFailures:        make(map[string]error),
		hangSleeps:         make(map[string]bool),
		processRunning:     true,
		windowHandle:       automation.Handle(0x1001),
		windowTitle:        "网上股票交易系统5.0 - 东吴",
		foregroundAccepted: true,
	}
}

func (m *MockBackend) record(ev string) {
	m.events = append(m.events, ev)
}

// Events returns a copy of every primitive recorded so far, in call order.
func (m *MockBackend) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	copy(out, m.events)
	return out
}

// ResetEvents clears the recorded event log.
func (m *MockBackend) ResetEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// Field returns the current content of the emulated edit control.
func (m *MockBackend) Field() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.field)
}

// CommittedFields returns the values tabbed out of the edit control, in
// order.
func (m *MockBackend) CommittedFields() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.committedFields))
	copy(out, m.committedFields)
	return out
}

// SavedFiles returns the filenames committed through the Save dialog.
func (m *MockBackend) SavedFiles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.savedFiles))
	copy(out, m.savedFiles)
	return out
}

// SetProcessRunning scripts whether the target process exists.
func (m *MockBackend) SetProcessRunning(running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processRunning = running
}

// SetWindowGone scripts the window disappearing mid-task.
func (m *MockBackend) SetWindowGone(gone bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windowGone = gone
}

// SetMinimized scripts the window's minimized state.
func (m *MockBackend) SetMinimized(minimized bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.minimized = minimized
}

// SetForegroundAccepted scripts whether the OS honors foreground requests.
// When false the fake reports some other window as foreground, which the
// window controller surfaces as degraded focus.
func (m *MockBackend) SetForegroundAccepted(accepted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.foregroundAccepted = accepted
}

// SetChildTexts scripts the child-window labels the funds page exposes.
func (m *MockBackend) SetChildTexts(texts []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.childTexts = texts
}

// SetClipboard seeds the clipboard content.
func (m *MockBackend) SetClipboard(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clipboard = s
}

// SetCapsLockOn scripts the Caps Lock LED state.
func (m *MockBackend) SetCapsLockOn(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capsOn = on
}

// SetCapsLockStuck makes ToggleCapsLock a no-op, simulating a keyboard
// whose LED cannot be asserted.
func (m *MockBackend) SetCapsLockStuck(stuck bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capsStuck = stuck
}

// SetKeyFailure makes KeyDown of the given key fail with err.
func (m *MockBackend) SetKeyFailure(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keyFailures[key] = err
}

// SetExportDir points the Save dialog at a directory; committing the
// dialog writes the scripted content there under the typed filename.
func (m *MockBackend) SetExportDir(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exportDir = dir
}

// SetExportContent scripts the bytes the Save dialog writes.
func (m *MockBackend) SetExportContent(content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exportContent = content
}

// SetSaveDialogPolls delays the Save dialog: it appears only after the
// given number of foreground polls following Ctrl+S.
func (m *MockBackend) SetSaveDialogPolls(polls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveDialogPolls = polls
}

// SetHangOnSleep makes the named sleep block until its context expires,
// simulating a stalled GUI for deadline tests.
func (m *MockBackend) SetHangOnSleep(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hangSleeps[name] = true
}

// --- automation.Backend ---

func (m *MockBackend) KeyDown(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("key_down:" + key)
	if err := m.keyFailures[key]; err != nil {
		return err
	}
	switch key {
	case automation.KeyCtrl:
		m.ctrlDown = true
		return nil
	case automation.KeyShift:
		m.shiftDown = true
		return nil
	}
	if m.ctrlDown {
		switch key {
		case automation.KeySelectAll:
			m.selected = true
		case automation.KeyCopy:
			m.clipboard = string(m.field)
		case automation.KeySave:
			m.savePending = true
			m.pollCount = 0
		}
		return nil
	}
	switch key {
	case automation.KeyDelete:
		m.field = nil
		m.selected = false
	case automation.KeyEnter:
		m.commitSaveLocked()
	case automation.KeyEscape:
		m.saveDialogOpen = false
		m.savePending = false
	case automation.KeyTab:
		m.committedFields = append(m.committedFields, string(m.field))
		m.field = nil
		m.selected = false
	default:
		if len(key) == 1 {
			m.typeRuneLocked(rune(key[0]))
		}
	}
	return nil
}

func (m *MockBackend) typeRuneLocked(r rune) {
	if m.shiftDown && r == '-' {
		r = '_'
	} else if m.capsOn && r >= 'a' && r <= 'z' {
		r = r - 'a' + 'A'
	}
	if m.selected {
		m.field = nil
		m.selected = false
	}
	m.field = append(m.field, r)
}

// commitSaveLocked writes the scripted export when the Save dialog is open
// and Enter commits the typed filename. The name arrives uppercase while
// Caps Lock is latched; NTFS resolves names case-insensitively, which the
// fake emulates by storing lowercase. Caller holds m.mu.
func (m *MockBackend) commitSaveLocked() {
	if !m.saveDialogOpen || m.exportDir == "" {
		return
	}
	name := strings.ToLower(string(m.field))
	if err := os.WriteFile(filepath.Join(m.exportDir, name), m.exportContent, 0o644); err == nil {
		m.savedFiles = append(m.savedFiles, name)
	}
	m.saveDialogOpen = false
	m.savePending = false
	m.field = nil
	m.selected = false
}

func (m *MockBackend) KeyUp(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("key_up:" + key)
	switch key {
	case automation.KeyCtrl:
		m.ctrlDown = false
	case automation.KeyShift:
		m.shiftDown = false
	}
	return nil
}

func (m *MockBackend) MoveMouse(x, y int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(fmt.Sprintf("move_mouse:%d,%d", x, y))
	return nil
}

func (m *MockBackend) Click() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("click")
	return nil
}

func (m *MockBackend) CapsLockOn() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("capslock_query")
	return m.capsOn, nil
}

func (m *MockBackend) ToggleCapsLock() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("capslock_toggle")
	if !m.capsStuck {
		m.capsOn = !m.capsOn
	}
	return nil
}

func (m *MockBackend) ReadClipboard() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clipboard, nil
}

func (m *MockBackend) WriteClipboard(s string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clipboard = s
	return nil
}

func (m *MockBackend) TargetProcessRunning(names []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processRunning
}

func (m *MockBackend) FindWindow(titleSubstrings []string) (automation.Handle, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("find_window")
	if m.windowGone {
		return 0, "", errors.New("no window matches")
	}
	for _, sub := range titleSubstrings {
		if strings.Contains(m.windowTitle, sub) {
			return m.windowHandle, m.windowTitle, nil
		}
	}
	return 0, "", errors.New("no window matches")
}

func (m *MockBackend) IsWindow(h automation.Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.windowGone && h == m.windowHandle
}

func (m *MockBackend) IsMinimized(h automation.Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.minimized
}

func (m *MockBackend) Restore(h automation.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("restore")
	m.minimized = false
	return nil
}

func (m *MockBackend) SetForeground(h automation.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("set_foreground")
	if !m.foregroundAccepted {
		return errors.New("foreground request rejected")
	}
	return nil
}

// Foreground also advances the scripted Save dialog: after Ctrl+S the
// dialog appears once the configured number of polls has elapsed.
func (m *MockBackend) Foreground() (automation.Handle, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.savePending && !m.saveDialogOpen {
		m.pollCount++
		if m.pollCount > m.saveDialogPolls {
			m.saveDialogOpen = true
		}
	}
	if m.saveDialogOpen {
		return automation.Handle(0x2002), "另存为"
	}
	if !m.foregroundAccepted {
		return automation.Handle(0x9999), "some other window"
	}
	return m.windowHandle, m.windowTitle
}

func (m *MockBackend) WindowRect(h automation.Handle) (automation.Rect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.windowGone {
		return automation.Rect{}, errors.New("window gone")
	}
	return automation.Rect{X: 0, Y: 0, W: 1024, H: 768}, nil
}

func (m *MockBackend) ChildTexts(h automation.Handle) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.childTexts))
	copy(out, m.childTexts)
	return out, nil
}

// Sleep records the named delay without actually waiting, keeping tests
// fast. Sleeps scripted through SetHangOnSleep block until the context
// expires instead.
func (m *MockBackend) Sleep(ctx context.Context, name string, d time.Duration) error {
	m.mu.Lock()
	m.record("sleep:" + name)
	hang := m.hangSleeps[name]
	m.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return ctx.Err()
}
