// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce is how long Watcher waits for a burst of filesystem events on
// the config file to settle before reloading, matching the teacher's
// FileProvider.Watch debounce window.
const debounce = 100 * time.Millisecond

// rewatchAttempts/rewatchInterval bound how long Watcher retries adding a
// fsnotify watch after the config file is removed (editors that save via
// remove-then-rename leave a brief window with nothing to watch),
// mirroring FileProvider.tryRewatch.
const (
	rewatchAttempts = 10
	rewatchInterval = 500 * time.Millisecond
)

// Watcher hot-reloads the mutable subset of a Config from its source file
// (§6.4 "config.watch bool") using fsnotify, grounded on
// _examples/kadirpekel-hector/pkg/config/provider/file.go's FileProvider.Watch:
// it watches the containing directory (so edits that replace the file via
// rename-over still fire), debounces bursts, and retries the watch if the
// file is briefly removed.
type Watcher struct {
	path string
	log  *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

// NewWatcher opens a fsnotify watcher on the directory containing path.
func NewWatcher(path string, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &Watcher{path: path, log: log, watcher: w}, nil
}

// Reloaded fires whenever a (debounced) change to the config file is
// reloaded and validated successfully. A topology change (store.backend or
// lock.backend differing from the previous load) is logged and ignored:
// Config.Store.Backend and Config.Lock.Backend are set back to their
// previous values before the Reloaded value is sent.
type Reloaded struct {
	Config   *Config
	Previous *Config
}

// Watch runs until ctx is cancelled or Close is called, sending a Reloaded
// value on the returned channel each time path changes and reloads
// cleanly. Reload errors are logged and otherwise ignored: the previous
// Config keeps serving rather than leaving the caller with nothing.
func (w *Watcher) Watch(ctx context.Context, initial *Config) <-chan Reloaded {
	ch := make(chan Reloaded, 1)
	go w.loop(ctx, initial, ch)
	return ch
}

func (w *Watcher) loop(ctx context.Context, previous *Config, ch chan<- Reloaded) {
	defer close(ch)

	var debounceTimer *time.Timer
	configFile := filepath.Clean(w.path)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != configFile {
				continue
			}

			if event.Op&fsnotify.Remove == fsnotify.Remove || event.Op&fsnotify.Rename == fsnotify.Rename {
				w.log.Warn("config: watched file removed or renamed, attempting to re-watch", "path", w.path)
				go w.tryRewatch(ctx)
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounce, func() {
				next, err := Load(w.path)
				if err != nil {
					w.log.Error("config: reload failed, keeping previous config", "path", w.path, "error", err)
					return
				}
				if next.Store.Backend != previous.Store.Backend {
					w.log.Warn("config: store.backend changed on reload but topology is fixed at construction; ignoring", "old", previous.Store.Backend, "new", next.Store.Backend)
					next.Store.Backend = previous.Store.Backend
				}
				if next.Lock.Backend != previous.Lock.Backend {
					w.log.Warn("config: lock.backend changed on reload but topology is fixed at construction; ignoring", "old", previous.Lock.Backend, "new", next.Lock.Backend)
					next.Lock.Backend = previous.Lock.Backend
				}
				w.log.Info("config: reloaded", "path", w.path)
				ch <- Reloaded{Config: next, Previous: previous}
				previous = next
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("config: watcher error", "error", err)
		}
	}
}

// tryRewatch re-adds the watch on the config file's directory, retrying a
// bounded number of times to ride out editors that remove-then-recreate
// the file on save.
func (w *Watcher) tryRewatch(ctx context.Context) {
	dir := filepath.Dir(w.path)
	for i := 0; i < rewatchAttempts; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(rewatchInterval):
		}

		w.mu.Lock()
		closed := w.closed
		watcher := w.watcher
		w.mu.Unlock()
		if closed {
			return
		}

		if err := watcher.Add(dir); err == nil {
			w.log.Info("config: re-established watch", "path", w.path)
			return
		}
	}
	w.log.Error("config: giving up re-establishing watch", "path", w.path)
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.watcher.Close()
}
