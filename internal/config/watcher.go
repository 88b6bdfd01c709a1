package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// debounceWindow coalesces the write/rename bursts editors and atomic saves
// produce into one reload.
const debounceWindow = 200 * time.Millisecond

// Watcher reloads the settings file when it changes on disk.
type Watcher struct {
	log       zerolog.Logger
	path      string
	fsWatcher *fsnotify.Watcher
	onChange  func(*Settings)
	done      chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher watches path and invokes onChange with the freshly loaded
// settings after each change. The watch covers the parent directory because
// atomic saves replace the file rather than writing it in place.
func NewWatcher(path string, log zerolog.Logger, onChange func(*Settings)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		log:       log,
		path:      path,
		fsWatcher: fsw,
		onChange:  onChange,
		done:      make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops the watcher. Pending debounced reloads are dropped.
func (w *Watcher) Close() error {
	close(w.done)
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.fsWatcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("settings watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceWindow, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	settings, err := Load(w.path)
	if err != nil {
		w.log.Warn().Err(err).Msg("settings changed on disk but could not be reloaded")
		return
	}
	w.log.Info().Str("path", w.path).Msg("settings reloaded")
	w.onChange(settings)
}
