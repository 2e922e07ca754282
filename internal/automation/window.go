package automation

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dongwu-tools/tradebridge/internal/domain"
)

// WindowController locates the target GUI window, brings it to the
// foreground and reads its child-window text. It never caches a handle
// across tasks: the target can be restarted at any time, so every public
// call validates the handle and the caller re-resolves on WindowLost.
type WindowController struct {
	backend      Backend
	delays       Delays
	titleMatches []string
	processNames []string
	log          zerolog.Logger
}

// NewWindowController creates the window controller.
func NewWindowController(backend Backend, delays Delays, titleMatches, processNames []string, log zerolog.Logger) *WindowController {
	return &WindowController{
		backend:      backend,
		delays:       delays,
		titleMatches: titleMatches,
		processNames: processNames,
		log:          log.With().Str("component", "window").Logger(),
	}
}

// TargetRunning reports whether the target GUI process exists. Used by the
// health endpoint without going through the automation queue.
func (w *WindowController) TargetRunning() bool {
	return w.backend.TargetProcessRunning(w.processNames)
}

// FindTarget enumerates visible top-level windows and returns the first one
// whose title contains a configured substring. Distinguishes "process not
// running" from "process running but window not found".
func (w *WindowController) FindTarget(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(w.processNames) > 0 && !w.backend.TargetProcessRunning(w.processNames) {
		return 0, domain.Errorf(domain.CodeTargetGuiNotRunning, "no process named %v", w.processNames)
	}
	h, title, err := w.backend.FindWindow(w.titleMatches)
	if err != nil {
		return 0, domain.WrapError(domain.CodeWindowLost, "window enumeration failed", err)
	}
	if h == 0 {
		return 0, domain.Errorf(domain.CodeWindowLost, "no window title matches %v", w.titleMatches)
	}
	w.log.Debug().Uint64("hwnd", uint64(h)).Str("title", title).Msg("Target window located")
	return h, nil
}

// Activate restores the window if minimized and asks the OS to bring it to
// the foreground. The OS may silently refuse the foreground request
// (foreground-lock rules), so success is confirmed by a follow-up query.
// Returns foreground=false as a degraded status instead of an error; the
// caller decides whether to click-to-focus or abort.
func (w *WindowController) Activate(ctx context.Context, h Handle) (bool, error) {
	if !w.backend.IsWindow(h) {
		return false, domain.NewError(domain.CodeWindowLost, "window handle is no longer valid")
	}
	if w.backend.IsMinimized(h) {
		if err := w.backend.Restore(h); err != nil {
			return false, domain.WrapError(domain.CodeWindowLost, "restore failed", err)
		}
	}
	if err := w.backend.SetForeground(h); err != nil {
		w.log.Debug().Err(err).Uint64("hwnd", uint64(h)).Msg("SetForeground rejected")
	}
	if err := w.backend.Sleep(ctx, SleepClick, w.delays.Click); err != nil {
		return false, err
	}
	fg, _ := w.backend.Foreground()
	return fg == h, nil
}

// ClickNeutral moves the cursor to a neutral region of the window and
// left-clicks, forcing the GUI's own input focus onto a safe area before
// hotkeys are sent. The click lands at the horizontal center, one third
// down, away from the form buttons along the bottom.
func (w *WindowController) ClickNeutral(ctx context.Context, h Handle) error {
	if !w.backend.IsWindow(h) {
		return domain.NewError(domain.CodeWindowLost, "window handle is no longer valid")
	}
	r, err := w.backend.WindowRect(h)
	if err != nil {
		return domain.WrapError(domain.CodeWindowLost, "window rect query failed", err)
	}
	x := r.X + r.W/2
	y := r.Y + r.H/3
	if err := w.backend.MoveMouse(x, y); err != nil {
		return domain.WrapError(domain.CodeNavigationFailed, "mouse move failed", err)
	}
	if err := w.backend.Sleep(ctx, SleepClick, w.delays.Click); err != nil {
		return err
	}
	if err := w.backend.Click(); err != nil {
		return domain.WrapError(domain.CodeNavigationFailed, "mouse click failed", err)
	}
	return nil
}

// ChildTexts walks the window's descendants and returns their non-empty
// text labels in enumeration order. Consumers rely on the order, never on
// identities.
func (w *WindowController) ChildTexts(ctx context.Context, h Handle) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !w.backend.IsWindow(h) {
		return nil, domain.NewError(domain.CodeWindowLost, "window handle is no longer valid")
	}
	texts, err := w.backend.ChildTexts(h)
	if err != nil {
		return nil, domain.WrapError(domain.CodeWindowLost, "child enumeration failed", err)
	}
	return texts, nil
}
