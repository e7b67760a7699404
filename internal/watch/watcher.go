// Package watch re-runs analysis when Python sources change.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"cachescope/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors app directories for .py changes and invokes a callback
// after a debounce window, batching rapid saves into one invocation.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	root     string
	dirs     []string
	debounce time.Duration
	onChange func(paths []string)
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// New creates a Watcher over the given directories (absolute paths).
// onChange receives the sorted set of changed files per debounce window.
func New(root string, dirs []string, debounce time.Duration, onChange func([]string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		watcher:  fsw,
		root:     root,
		dirs:     dirs,
		debounce: debounce,
		onChange: onChange,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine
// until Stop is called or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, dir := range w.dirs {
		if err := w.addRecursive(dir); err != nil {
			logging.Get(logging.CategoryWatch).Warn("could not watch %s: %v", dir, err)
		}
	}

	go w.loop(ctx)
	logging.Watch("watching %d directories under %s", len(w.dirs), w.root)
	return nil
}

// Stop shuts the watcher down and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

// addRecursive registers dir and every non-ignored subdirectory.
// fsnotify watches are not recursive on their own.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		name := info.Name()
		if path != dir && (strings.HasPrefix(name, ".") || name == "__pycache__" || name == "migrations") {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	pending := make(map[string]bool)
	var timer *time.Timer
	var timerCh <-chan time.Time

	flush := func() {
		if len(pending) == 0 {
			return
		}
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		pending = make(map[string]bool)
		logging.WatchDebug("flushing %d changed files", len(paths))
		w.onChange(paths)
	}

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event, pending)
			if len(pending) > 0 {
				if timer == nil {
					timer = time.NewTimer(w.debounce)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(w.debounce)
				}
				timerCh = timer.C
			}

		case <-timerCh:
			timerCh = nil
			flush()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatch).Error("watch error: %v", err)

		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event, pending map[string]bool) {
	// New directories need their own watch.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			base := filepath.Base(event.Name)
			if !strings.HasPrefix(base, ".") && base != "__pycache__" && base != "migrations" {
				if err := w.watcher.Add(event.Name); err != nil {
					logging.Get(logging.CategoryWatch).Warn("could not watch new dir %s: %v", event.Name, err)
				}
			}
			return
		}
	}

	if filepath.Ext(event.Name) != ".py" {
		return
	}
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) && !event.Op.Has(fsnotify.Remove) {
		return
	}
	logging.WatchDebug("event: %s %s", event.Op, event.Name)
	pending[event.Name] = true
}
