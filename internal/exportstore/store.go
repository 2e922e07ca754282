// Package exportstore owns the CSV artifacts the trading GUI writes through
// its Save dialog: the filename scheme, the daily retention cutoff, the
// directory scan and the schema-checked parsing.
package exportstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/dongwu-tools/tradebridge/internal/domain"
)

// Store manages the export directory.
type Store struct {
	dir        string
	cutoffHour int
	log        zerolog.Logger

	mu       sync.Mutex
	reserved map[string]struct{} // filenames handed out but not yet on disk
}

// New creates a store over the directory the GUI's Save dialog writes to.
func New(dir string, cutoffHour int, log zerolog.Logger) *Store {
	return &Store{
		dir:        dir,
		cutoffHour: cutoffHour,
		log:        log.With().Str("component", "exportstore").Logger(),
		reserved:   make(map[string]struct{}),
	}
}

// Dir returns the export directory.
func (s *Store) Dir() string {
	return s.dir
}

// kindLabel is the ASCII filename prefix for an export kind. Labels are
// typed keystroke-by-keystroke into the Save dialog, so they must stay
// within the typeable alphabet.
func kindLabel(kind domain.ExportKind) string {
	return string(kind)
}

// kindFromFilename reverses kindLabel for directory scans. Filenames are
// typed with Caps Lock latched and NTFS resolves names case-insensitively,
// so the committed file may be all uppercase; matching must not care.
func kindFromFilename(name string) (domain.ExportKind, bool) {
	name = strings.ToLower(name)
	for _, k := range []domain.ExportKind{domain.ExportHoldings, domain.ExportTrades, domain.ExportOrders} {
		if strings.HasPrefix(name, kindLabel(k)+"_") {
			return k, true
		}
	}
	return "", false
}

// NextFilename computes a unique filename for a new export:
// {kind}_{MMdd_HHMMSS}.csv, with a monotonically increasing suffix when the
// base name is already taken on disk or reserved by an in-flight export.
// The name stays reserved until Release is called.
func (s *Store) NextFilename(kind domain.ExportKind, now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := fmt.Sprintf("%s_%s", kindLabel(kind), now.Format("0102_150405"))
	name := base + ".csv"
	for i := 2; s.taken(name); i++ {
		name = fmt.Sprintf("%s_%d.csv", base, i)
	}
	s.reserved[name] = struct{}{}
	return name
}

// taken reports whether a filename is reserved or already on disk. Caller
// holds s.mu.
func (s *Store) taken(name string) bool {
	if _, ok := s.reserved[name]; ok {
		return true
	}
	_, err := os.Stat(filepath.Join(s.dir, name))
	return err == nil
}

// Release frees a reservation taken by NextFilename.
func (s *Store) Release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, name)
}

// LastCutoff returns the most recent cutoff before now: today's cutoff hour
// if now has passed it, otherwise yesterday's. The A-share market closes at
// 15:00 local; anything older than the last close is stale.
func LastCutoff(now time.Time, hour int) time.Time {
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if now.Before(cutoff) {
		cutoff = cutoff.AddDate(0, 0, -1)
	}
	return cutoff
}

// Sweep removes expired export files: files of a known kind whose mtime is
// before the last cutoff. Files at or after the cutoff are never touched,
// which also keeps the sweep from racing an in-flight export.
func (s *Store) Sweep(now time.Time) (int, error) {
	cutoff := LastCutoff(now, s.cutoffHour)
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to scan export directory: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		if _, ok := kindFromFilename(e.Name()); !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		if err := os.Remove(path); err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("Failed to remove expired export")
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("Retention sweep pruned expired exports")
	}
	return removed, nil
}

// List returns all non-expired files of a kind, newest first.
func (s *Store) List(kind domain.ExportKind, now time.Time) ([]domain.ExportFile, error) {
	cutoff := LastCutoff(now, s.cutoffHour)
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan export directory: %w", err)
	}

	var files []domain.ExportFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		k, ok := kindFromFilename(e.Name())
		if !ok || k != kind {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().Before(cutoff) {
			continue
		}
		files = append(files, domain.ExportFile{
			Path:      filepath.Join(s.dir, e.Name()),
			Kind:      kind,
			CreatedAt: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return files, nil
}

// AwaitFile blocks until the named file appears in the export directory or
// the timeout passes. It watches the directory with fsnotify and backs the
// watcher up with a periodic stat, since the GUI writes through a Save
// dialog and the rename/flush sequence varies between Windows builds.
func (s *Store) AwaitFile(ctx context.Context, name string, timeout time.Duration) (string, error) {
	defer s.Release(name)

	path := filepath.Join(s.dir, name)
	deadline := time.Now().Add(timeout)

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if err := watcher.Add(s.dir); err != nil {
			s.log.Debug().Err(err).Msg("fsnotify watch failed, falling back to polling")
			watcher = nil
		}
	} else {
		s.log.Debug().Err(err).Msg("fsnotify unavailable, falling back to polling")
		watcher = nil
	}

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		if time.Now().After(deadline) {
			return "", domain.Errorf(domain.CodeExportNotProduced, "file %s did not appear within %s", name, timeout)
		}

		if watcher != nil {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case ev := <-watcher.Events:
				if ev.Name == path && ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
					continue // loop re-stats
				}
			case err := <-watcher.Errors:
				s.log.Debug().Err(err).Msg("fsnotify error, continuing on polling")
			case <-tick.C:
			}
		} else {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-tick.C:
			}
		}
	}
}
