package matcher

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Matcher whenever its rule file changes. The parent
// directory is watched so that editors replacing the file by rename are
// picked up too.
type Watcher struct {
	m    *Matcher
	path string
	fsw  *fsnotify.Watcher
}

// NewWatcher registers the watch before returning, so changes made after
// it returns are observed by Run.
func NewWatcher(m *Matcher, path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve rules path: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create rules watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{m: m, path: abs, fsw: fsw}, nil
}

// Run processes events until ctx is done or the watcher is closed.
// Failed reloads are logged and counted; the previous rules stay active.
func (w *Watcher) Run(ctx context.Context) error {
	logger := w.m.logger.WithField("path", w.path)
	logger.Info("watching pattern rules")
	for {
		select {
		case <-ctx.Done():
			return w.Close()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			logger.WithField("op", ev.Op.String()).Debug("rules file changed")
			_ = w.m.ReloadFile(w.path)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("rules watcher error")
		}
	}
}

func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Watch is NewWatcher followed by Run.
func (m *Matcher) Watch(ctx context.Context, path string) error {
	w, err := NewWatcher(m, path)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}
