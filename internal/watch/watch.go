// Package watch adapts a filesystem-change notifier to the narrower
// job of watching a single config or certificate file for rewrites,
// built on fsnotify.
package watch

import (
	"github.com/fsnotify/fsnotify"
)

// Op describes what kind of change fired for a path.
type Op uint8

const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
	OpChmod
)

// Event is one filesystem notification.
type Event struct {
	Path string
	Op   Op
}

// FileWatcher wraps fsnotify.Watcher, translating its native Op bits into
// the package's own Op bitmask, for single-file use (config and
// certificate hot-reload) rather than a general filesystem tree.
type FileWatcher struct {
	w   *fsnotify.Watcher
	evC chan Event
	erC chan error
}

// New constructs a FileWatcher and starts its translation goroutine.
func New() (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	fw := &FileWatcher{w: w, evC: make(chan Event, 16), erC: make(chan error, 1)}
	go fw.loop()
	return fw, nil
}

func (fw *FileWatcher) loop() {
	for {
		select {
		case ev, ok := <-fw.w.Events:
			if !ok {
				return
			}
			var op Op
			if ev.Op&fsnotify.Create != 0 {
				op |= OpCreate
			}
			if ev.Op&fsnotify.Write != 0 {
				op |= OpWrite
			}
			if ev.Op&fsnotify.Remove != 0 {
				op |= OpRemove
			}
			if ev.Op&fsnotify.Rename != 0 {
				op |= OpRename
			}
			if ev.Op&fsnotify.Chmod != 0 {
				op |= OpChmod
			}
			fw.evC <- Event{Path: ev.Name, Op: op}
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			fw.erC <- err
		}
	}
}

func (fw *FileWatcher) Events() <-chan Event { return fw.evC }
func (fw *FileWatcher) Errors() <-chan error { return fw.erC }
func (fw *FileWatcher) Add(name string) error {
	return fw.w.Add(name)
}
func (fw *FileWatcher) Close() error { return fw.w.Close() }
