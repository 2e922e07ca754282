package automation

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dongwu-tools/tradebridge/internal/domain"
	"github.com/dongwu-tools/tradebridge/internal/exportstore"
)

// saveDialogMarkers are title substrings identifying the OS Save dialog in
// the foreground.
var saveDialogMarkers = []string{"另存为", "Save As"}

// ExportOrchestrator drives the GUI's Save-As flow for one data grid:
// navigate, Ctrl+S, type a unique filename, commit, dismiss the follow-up
// prompt, and wait for the file to land on disk. Steps are not retried
// internally; the caller decides whether to reschedule the whole export.
type ExportOrchestrator struct {
	nav     *Navigator
	input   *Input
	windows *WindowController
	store   *exportstore.Store
	delays  Delays
	log     zerolog.Logger
}

// NewExportOrchestrator creates the export orchestrator.
func NewExportOrchestrator(nav *Navigator, input *Input, windows *WindowController, store *exportstore.Store, delays Delays, log zerolog.Logger) *ExportOrchestrator {
	return &ExportOrchestrator{
		nav:     nav,
		input:   input,
		windows: windows,
		store:   store,
		delays:  delays,
		log:     log.With().Str("component", "export").Logger(),
	}
}

// Export produces a fresh CSV export for the kind's page and returns the
// on-disk artifact. A retention sweep runs first so stale files never
// shadow a fresh read.
func (e *ExportOrchestrator) Export(ctx context.Context, kind domain.ExportKind) (domain.ExportFile, error) {
	started := time.Now()

	if _, err := e.store.Sweep(started); err != nil {
		e.log.Warn().Err(err).Msg("Retention sweep failed, continuing with export")
	}

	h, err := e.nav.Goto(ctx, kind.Page())
	if err != nil {
		return domain.ExportFile{}, err
	}

	// Focus must sit on the data grid or Ctrl+S lands in the wrong control.
	if err := e.windows.ClickNeutral(ctx, h); err != nil {
		return domain.ExportFile{}, err
	}
	if err := e.input.SendChord(ctx, []string{KeyCtrl}, KeySave); err != nil {
		return domain.ExportFile{}, err
	}

	if err := e.awaitSaveDialog(ctx); err != nil {
		return domain.ExportFile{}, err
	}

	name := e.store.NextFilename(kind, time.Now())
	if err := e.input.TypeText(ctx, name); err != nil {
		e.store.Release(name)
		return domain.ExportFile{}, err
	}
	if err := e.input.SendKey(ctx, KeyEnter); err != nil {
		e.store.Release(name)
		return domain.ExportFile{}, err
	}
	if err := e.input.backend.Sleep(ctx, SleepPostEnter, e.delays.PostEnter); err != nil {
		e.store.Release(name)
		return domain.ExportFile{}, err
	}

	// The GUI asks whether to open the file it just wrote; answer no.
	if err := e.input.SendKey(ctx, KeyDismiss); err != nil {
		e.store.Release(name)
		return domain.ExportFile{}, err
	}

	path, err := e.store.AwaitFile(ctx, name, e.delays.ExportFileWait)
	if err != nil {
		return domain.ExportFile{}, err
	}

	file := domain.ExportFile{
		Path:      path,
		Kind:      kind,
		CreatedAt: time.Now(),
	}
	e.log.Info().
		Str("kind", string(kind)).
		Str("path", path).
		Dur("elapsed", time.Since(started)).
		Msg("Export produced")
	return file, nil
}

// awaitSaveDialog polls the foreground window title until the Save dialog
// owns it, bounded by the delay table's SaveDialogWait.
func (e *ExportOrchestrator) awaitSaveDialog(ctx context.Context) error {
	deadline := time.Now().Add(e.delays.SaveDialogWait)
	for {
		_, title := e.input.backend.Foreground()
		for _, marker := range saveDialogMarkers {
			if strings.Contains(title, marker) {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return domain.Errorf(domain.CodeExportNotProduced,
				"Save dialog did not appear within %s", e.delays.SaveDialogWait)
		}
		if err := e.input.backend.Sleep(ctx, SleepDialogPoll, e.delays.SaveDialogPoll); err != nil {
			return err
		}
	}
}
