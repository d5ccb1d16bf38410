package router

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a router's rules whenever the rules file changes.
type Watcher struct {
	router  *Router
	path    string
	watcher *fsnotify.Watcher
	onError func(error)
	onLoad  func(n int)

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// OnReloadError sets a callback for reload failures. The previous rules stay
// in place when a reload fails.
func OnReloadError(fn func(error)) WatchOption {
	return func(w *Watcher) { w.onError = fn }
}

// OnReload sets a callback invoked with the rule count after each reload.
func OnReload(fn func(n int)) WatchOption {
	return func(w *Watcher) { w.onLoad = fn }
}

// Watch loads path into r and keeps it in sync until ctx is done or Close is
// called. The parent directory is watched so editors that replace the file
// atomically are handled.
func Watch(ctx context.Context, r *Router, path string, opts ...WatchOption) (*Watcher, error) {
	w := &Watcher{
		router: r,
		path:   filepath.Clean(path),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.reload(true); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.watcher = fw

	go w.loop(ctx)
	return w, nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			w.Close()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.reload(false); err != nil && w.onError != nil {
				w.onError(err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

// reload swaps in the file's rules. After the initial load an empty file is
// skipped: writers truncate before writing and the follow-up event carries
// the real content.
func (w *Watcher) reload(initial bool) error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("read rules file: %w", err)
	}
	if !initial && len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	specs, err := ParseRules(data)
	if err != nil {
		return err
	}
	rules, err := CompileAll(specs)
	if err != nil {
		return err
	}
	w.router.SetRules(rules)
	if w.onLoad != nil {
		w.onLoad(len(rules))
	}
	return nil
}

// Done is closed when the watch loop exits.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.watcher.Close()
}
