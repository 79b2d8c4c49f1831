package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// inputWatcher reports changes to a fixed set of input files. It watches
// their directories, so files replaced by rename are still seen.
type inputWatcher struct {
	watcher *fsnotify.Watcher
	files   map[string]bool
}

func newInputWatcher(files []string) (*inputWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	iw := &inputWatcher{watcher: w, files: make(map[string]bool)}
	dirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			w.Close()
			return nil, err
		}
		iw.files[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return iw, nil
}

// Run calls changed after every write, create or rename of a watched file
// until ctx is done.
func (w *inputWatcher) Run(ctx context.Context, changed func()) error {
	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&relevant == 0 || !w.files[filepath.Clean(event.Name)] {
				continue
			}
			changed()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		case <-ctx.Done():
			return nil
		}
	}
}

// Close stops watching.
func (w *inputWatcher) Close() error {
	return w.watcher.Close()
}
