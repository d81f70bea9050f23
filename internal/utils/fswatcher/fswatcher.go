// Package fswatcher narrows the filesystem notification dependency to a
// single import site. The config hot-reload watcher is the only consumer.
package fswatcher

import "github.com/fsnotify/fsnotify"

// Event is a filesystem change notification.
type Event = fsnotify.Event

// Watcher delivers Events for watched paths until closed.
type Watcher = fsnotify.Watcher

// New returns a started watcher. The caller owns closing it.
func New() (*fsnotify.Watcher, error) {
	return fsnotify.NewWatcher()
}
