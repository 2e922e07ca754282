package automation

import "time"

// Named delays. The GUI's keystroke handling is timing-sensitive; every wait
// in the core has a name here and nowhere else, so tuning a timing is a
// one-line change.
const (
	SleepKeyPress   = "key_press"   // between key down and key up
	SleepInterKey   = "inter_key"   // between characters of typed text
	SleepClick      = "click"       // after moving the cursor, before clicking
	SleepCapsLock   = "caps_lock"   // after toggling Caps Lock
	SleepSettle     = "settle"      // after the refocus ritual, before the hotkey
	SleepPostHotkey = "post_hotkey" // after the page hotkey, before the redraw wait
	SleepRedraw     = "redraw"      // page redraw after navigation
	SleepDialogPoll = "dialog_poll" // between Save-dialog foreground probes
	SleepPostEnter  = "post_enter"  // after committing the Save dialog
	SleepCopyWait   = "copy_wait"   // after Ctrl+C, before reading the clipboard
)

// Delays is the single delay policy table for the automation core.
type Delays struct {
	KeyPress       time.Duration // SleepKeyPress
	InterKey       time.Duration // SleepInterKey
	Click          time.Duration // SleepClick
	CapsLock       time.Duration // SleepCapsLock
	Settle         time.Duration // SleepSettle
	PostHotkey     time.Duration // SleepPostHotkey
	PageRedraw     time.Duration // SleepRedraw, most pages
	FundsRedraw    time.Duration // SleepRedraw, funds page (slower repaint)
	CopyWait       time.Duration // SleepCopyWait
	SaveDialogPoll time.Duration // SleepDialogPoll
	SaveDialogWait time.Duration // upper bound waiting for the Save dialog
	PostEnter      time.Duration // SleepPostEnter
	ExportFileWait time.Duration // upper bound waiting for the exported file
}

// DefaultDelays returns the timings observed to work against the live GUI.
func DefaultDelays() Delays {
	return Delays{
		KeyPress:       30 * time.Millisecond,
		InterKey:       40 * time.Millisecond,
		Click:          80 * time.Millisecond,
		CapsLock:       120 * time.Millisecond,
		Settle:         300 * time.Millisecond,
		PostHotkey:     200 * time.Millisecond,
		PageRedraw:     800 * time.Millisecond,
		FundsRedraw:    1500 * time.Millisecond,
		CopyWait:       100 * time.Millisecond,
		SaveDialogPoll: 100 * time.Millisecond,
		SaveDialogWait: 1500 * time.Millisecond,
		PostEnter:      1 * time.Second,
		ExportFileWait: 3 * time.Second,
	}
}

// redrawFor returns the redraw wait for a page.
func (d Delays) redrawFor(funds bool) time.Duration {
	if funds {
		return d.FundsRedraw
	}
	return d.PageRedraw
}
