// Package watcher reports batches of changed source files under a directory.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dgallion1/vertexrag/internal/loader"
)

// DefaultDebounce is how long the watcher waits for activity to settle.
const DefaultDebounce = 2 * time.Second

// Batch is one settled group of changes. Paths are absolute and sorted.
type Batch struct {
	Changed []string
	Removed []string
}

// Watcher monitors a directory tree with fsnotify.
type Watcher struct {
	fs         *fsnotify.Watcher
	root       string
	extensions []string
	recursive  bool
	debounce   time.Duration
	log        *slog.Logger
}

// New starts watching root, and every directory below it when recursive.
func New(root string, extensions []string, recursive bool, debounce time.Duration, log *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if len(extensions) == 0 {
		extensions = loader.DefaultExtensions
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{
		fs:         fw,
		root:       root,
		extensions: extensions,
		recursive:  recursive,
		debounce:   debounce,
		log:        log,
	}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Run delivers batches to fn until ctx is done. fn runs on the watcher's
// goroutine, so events arriving meanwhile are coalesced into the next batch.
func (w *Watcher) Run(ctx context.Context, fn func(context.Context, Batch)) error {
	defer w.fs.Close()

	changed := map[string]bool{}
	removed := map[string]bool{}
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && w.recursive {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.log.Warn("watch new directory failed", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if !loader.Allowed(event.Name, w.extensions) {
				continue
			}
			switch {
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				delete(changed, event.Name)
				removed[event.Name] = true
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				delete(removed, event.Name)
				changed[event.Name] = true
			default:
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)

		case <-timer.C:
			b := Batch{Changed: sortedKeys(changed), Removed: sortedKeys(removed)}
			clear(changed)
			clear(removed)
			w.log.Info("changes detected", "changed", len(b.Changed), "removed", len(b.Removed))
			fn(ctx, b)
		}
	}
}

func (w *Watcher) addTree(dir string) error {
	if !w.recursive {
		return w.fs.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fs.Add(path)
		}
		return nil
	})
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
