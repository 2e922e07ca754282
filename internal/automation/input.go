package automation

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dongwu-tools/tradebridge/internal/domain"
)

// typeTextAttempts bounds the clear-type-verify cycle. The first attempt
// plus two retries.
const typeTextAttempts = 3

// Input provides the synthetic input primitives. Every primitive either
// succeeds or returns a typed failure; nothing retries silently except the
// bounded TypeText verification loop.
type Input struct {
	backend Backend
	delays  Delays
	log     zerolog.Logger
}

// NewInput creates the input primitives layer.
func NewInput(backend Backend, delays Delays, log zerolog.Logger) *Input {
	return &Input{
		backend: backend,
		delays:  delays,
		log:     log.With().Str("component", "input").Logger(),
	}
}

// SendKey emits a single virtual-key press: down, a short hold, up. It never
// chains keys and never assumes modifier state.
func (in *Input) SendKey(ctx context.Context, key string) error {
	if err := in.backend.KeyDown(key); err != nil {
		return domain.WrapError(domain.CodeInputVerificationFailed, "key down failed", err)
	}
	if err := in.backend.Sleep(ctx, SleepKeyPress, in.delays.KeyPress); err != nil {
		return err
	}
	if err := in.backend.KeyUp(key); err != nil {
		return domain.WrapError(domain.CodeInputVerificationFailed, "key up failed", err)
	}
	return nil
}

// SendChord presses the modifiers in order, taps the key, then releases the
// modifiers in reverse order. Used for Ctrl+A, Ctrl+S, Ctrl+C.
func (in *Input) SendChord(ctx context.Context, modifiers []string, key string) error {
	for _, m := range modifiers {
		if err := in.backend.KeyDown(m); err != nil {
			return domain.WrapError(domain.CodeInputVerificationFailed, "modifier down failed", err)
		}
	}
	if err := in.SendKey(ctx, key); err != nil {
		return err
	}
	for i := len(modifiers) - 1; i >= 0; i-- {
		if err := in.backend.KeyUp(modifiers[i]); err != nil {
			return domain.WrapError(domain.CodeInputVerificationFailed, "modifier up failed", err)
		}
	}
	return nil
}

// typeable reports whether TypeText can emit the character. The alphabet
// covers order fields (digits, dot) and export filenames (ASCII letters,
// underscore, dash).
func typeable(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r == '.' || r == '_' || r == '-':
		return true
	}
	return false
}

// typeChar emits one character. Underscore needs a Shift chord; everything
// else maps to a plain key.
func (in *Input) typeChar(ctx context.Context, r rune) error {
	if r == '_' {
		return in.SendChord(ctx, []string{KeyShift}, "-")
	}
	if r >= 'A' && r <= 'Z' {
		r = r - 'A' + 'a'
	}
	return in.SendKey(ctx, string(r))
}

// TypeText clears the focused edit control, emits one keystroke per
// character and verifies the result through a clipboard round-trip. The
// pre-existing clipboard content is saved and restored; mismatches are
// retried up to two times before the call fails with
// InputVerificationFailed.
func (in *Input) TypeText(ctx context.Context, s string) error {
	if s == "" {
		return domain.NewError(domain.CodeInputVerificationFailed, "refusing to type empty text")
	}
	for _, r := range s {
		if !typeable(r) {
			return domain.Errorf(domain.CodeInputVerificationFailed, "character %q is not typeable", r)
		}
	}

	// Save the clipboard so verification doesn't clobber whatever the
	// operator had there. Restore is best-effort.
	saved, savedOK := "", false
	if prev, err := in.backend.ReadClipboard(); err == nil {
		saved, savedOK = prev, true
	}
	defer func() {
		if savedOK {
			if err := in.backend.WriteClipboard(saved); err != nil {
				in.log.Warn().Err(err).Msg("Failed to restore clipboard")
			}
		}
	}()

	var lastRead string
	for attempt := 1; attempt <= typeTextAttempts; attempt++ {
		if err := in.clearField(ctx); err != nil {
			return err
		}
		for _, r := range s {
			if err := in.typeChar(ctx, r); err != nil {
				return err
			}
			if err := in.backend.Sleep(ctx, SleepInterKey, in.delays.InterKey); err != nil {
				return err
			}
		}

		read, err := in.verifyField(ctx)
		if err != nil {
			return err
		}
		// Caps Lock stays latched through the ritual, so letters read
		// back uppercase regardless of what was sent.
		if strings.EqualFold(read, s) {
			return nil
		}
		lastRead = read
		in.log.Warn().
			Int("attempt", attempt).
			Str("want", s).
			Str("got", read).
			Msg("Typed text verification mismatch")
	}

	return domain.Errorf(domain.CodeInputVerificationFailed,
		"typed %q but field contains %q after %d attempts", s, lastRead, typeTextAttempts)
}

// clearField selects everything in the focused edit control and deletes it.
func (in *Input) clearField(ctx context.Context) error {
	if err := in.SendChord(ctx, []string{KeyCtrl}, KeySelectAll); err != nil {
		return err
	}
	return in.SendKey(ctx, KeyDelete)
}

// verifyField reads back the focused edit control via select-all + copy.
func (in *Input) verifyField(ctx context.Context) (string, error) {
	if err := in.SendChord(ctx, []string{KeyCtrl}, KeySelectAll); err != nil {
		return "", err
	}
	if err := in.SendChord(ctx, []string{KeyCtrl}, KeyCopy); err != nil {
		return "", err
	}
	if err := in.backend.Sleep(ctx, SleepCopyWait, in.delays.CopyWait); err != nil {
		return "", err
	}
	read, err := in.backend.ReadClipboard()
	if err != nil {
		return "", domain.WrapError(domain.CodeInputVerificationFailed, "clipboard read failed", err)
	}
	return read, nil
}

// EnsureCapsLockOn asserts the Caps Lock LED. The GUI's hotkeys are
// interpreted as uppercase letters; synthetic Shift chords were never
// reliable against it, Caps Lock is.
func (in *Input) EnsureCapsLockOn(ctx context.Context) error {
	on, err := in.backend.CapsLockOn()
	if err != nil {
		return domain.WrapError(domain.CodeCapsLockUnavailable, "cannot query Caps Lock state", err)
	}
	if on {
		return nil
	}
	if err := in.backend.ToggleCapsLock(); err != nil {
		return domain.WrapError(domain.CodeCapsLockUnavailable, "cannot toggle Caps Lock", err)
	}
	if err := in.backend.Sleep(ctx, SleepCapsLock, in.delays.CapsLock); err != nil {
		return err
	}
	on, err = in.backend.CapsLockOn()
	if err != nil {
		return domain.WrapError(domain.CodeCapsLockUnavailable, "cannot re-query Caps Lock state", err)
	}
	if !on {
		return domain.NewError(domain.CodeCapsLockUnavailable, "Caps Lock did not latch on")
	}
	return nil
}
