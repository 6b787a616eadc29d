// Package pathwatch reports when the listening socket's filesystem path
// disappears while the server is still running. A removed path leaves the
// listener open but unreachable for new peers.
package pathwatch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher observes the parent directory of one socket path.
type Watcher struct {
	path    string
	log     zerolog.Logger
	watcher *fsnotify.Watcher
	onGone  func()
}

// New starts watching the directory that contains path. onGone is called
// from the watcher goroutine each time path is removed or renamed away.
func New(path string, log zerolog.Logger, onGone func()) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("pathwatch: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("pathwatch: create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("pathwatch: watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{path: abs, log: log, watcher: fw, onGone: onGone}, nil
}

// Run delivers events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// Shutdown unlinks the path itself.
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Str("path", w.path).Str("op", ev.Op.String()).
				Msg("socket path removed while serving; new peers cannot connect")
			if w.onGone != nil {
				w.onGone()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("pathwatch error")
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
