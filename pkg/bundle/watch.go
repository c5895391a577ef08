// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package bundle

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher flushes bundle caches when their on-disk contents change.
// This is opt-in; the core has no background tasks of its own.
type Watcher struct {
	fs     *fsnotify.Watcher
	logger *slog.Logger
	done   chan struct{}
}

// NewWatcher starts a cache-invalidation watcher. Close it to stop.
func NewWatcher(logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fs: fsw, logger: logger, done: make(chan struct{})}
	go w.run()
	return w, nil
}

// Watch registers a bundle's resources tree for invalidation. fsnotify
// is not recursive; the resources directory and its immediate .lproj
// children are enough to catch localized asset changes.
func (w *Watcher) Watch(b *Bundle) error {
	resources := b.ResourcesPath()
	if err := w.fs.Add(resources); err != nil {
		return err
	}
	for _, loc := range localizationsForDirectory(resources) {
		_ = w.fs.Add(filepath.Join(resources, loc+lprojSuffix))
	}
	return nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			// Walk up from the changed file to the registered bundle.
			dir := filepath.Dir(event.Name)
			for i := 0; i < 8 && dir != "/" && dir != "."; i++ {
				reg.mu.Lock()
				b := reg.byPath[dir]
				reg.mu.Unlock()
				if b != nil {
					w.logger.Debug("flushing bundle caches", "bundle", b.path, "event", event.Op.String())
					b.FlushCaches()
					break
				}
				dir = filepath.Dir(dir)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("bundle watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fs.Close()
}
