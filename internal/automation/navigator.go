package automation

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dongwu-tools/tradebridge/internal/domain"
)

// pageHotkeys maps each reachable page to its single-key accelerator.
var pageHotkeys = map[domain.Page]string{
	domain.PageHoldings: KeyHoldings,
	domain.PageTrades:   KeyTrades,
	domain.PageOrders:   KeyOrders,
	domain.PageBuyForm:  KeyBuyForm,
	domain.PageSellForm: KeySellForm,
	domain.PageFunds:    KeyFunds,
}

// Navigator switches the GUI between its top-level pages. There is no
// trusted current-page state: every transition runs the full refocus ritual
// and ends with the target page's hotkey. Partial rituals fail
// intermittently against the live GUI, so any step failure aborts the whole
// transition.
type Navigator struct {
	input   *Input
	windows *WindowController
	delays  Delays
	log     zerolog.Logger
}

// NewNavigator creates the page navigator.
func NewNavigator(input *Input, windows *WindowController, delays Delays, log zerolog.Logger) *Navigator {
	return &Navigator{
		input:   input,
		windows: windows,
		delays:  delays,
		log:     log.With().Str("component", "navigator").Logger(),
	}
}

// Goto performs the full hotkey ritual ending in the page's accelerator:
// find target, activate, click a neutral region, force Caps Lock on, settle,
// send the key, wait for the redraw. It does not verify the resulting page -
// no reliable oracle exists - so downstream components tolerate
// mis-navigation by failing their own checks.
//
// The window handle is returned so the caller can keep operating on the
// same window within the task.
func (n *Navigator) Goto(ctx context.Context, page domain.Page) (Handle, error) {
	key, ok := pageHotkeys[page]
	if !ok {
		return 0, domain.Errorf(domain.CodeNavigationFailed, "page %q has no hotkey", page)
	}

	// Sub-step failures are already typed (TargetGuiNotRunning,
	// WindowLost, CapsLockUnavailable); they pass through so the service
	// surface reports the specific cause, not a generic navigation error.
	h, err := n.windows.FindTarget(ctx)
	if err != nil {
		return 0, err
	}

	foreground, err := n.windows.Activate(ctx, h)
	if err != nil {
		return 0, err
	}
	if !foreground {
		n.log.Debug().Uint64("hwnd", uint64(h)).Msg("Foreground request rejected, relying on click-to-focus")
	}

	// The click both recovers from a rejected foreground request and moves
	// the GUI's input focus off any edit control that would swallow the
	// hotkey.
	if err := n.windows.ClickNeutral(ctx, h); err != nil {
		return 0, err
	}

	if err := n.input.EnsureCapsLockOn(ctx); err != nil {
		return 0, err
	}

	if err := n.input.backend.Sleep(ctx, SleepSettle, n.delays.Settle); err != nil {
		return 0, err
	}
	if err := n.input.SendKey(ctx, key); err != nil {
		return 0, domain.WrapError(domain.CodeNavigationFailed, "page hotkey failed", err)
	}
	if err := n.input.backend.Sleep(ctx, SleepPostHotkey, n.delays.PostHotkey); err != nil {
		return 0, err
	}
	if err := n.input.backend.Sleep(ctx, SleepRedraw, n.delays.redrawFor(page == domain.PageFunds)); err != nil {
		return 0, err
	}

	n.log.Debug().Str("page", string(page)).Uint64("hwnd", uint64(h)).Msg("Page transition sent")
	return h, nil
}
