package watcher

import (
	"log"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// fsnotifyBackend watches directories through the OS change-notification
// facility (inotify, kqueue, ReadDirectoryChangesW).
type fsnotifyBackend struct {
	log *log.Logger
	w   *fsnotify.Watcher
	out chan event
	wg  sync.WaitGroup
}

func (b *fsnotifyBackend) name() string { return "fsnotify" }

func (b *fsnotifyBackend) start(dirs []string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	b.w = w
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			b.log.Printf("[watcher] cannot watch %s: %v", dir, err)
		}
	}
	b.out = make(chan event, 64)
	b.wg.Add(1)
	go b.loop()
	return nil
}

func (b *fsnotifyBackend) events() <-chan event { return b.out }

func (b *fsnotifyBackend) loop() {
	defer b.wg.Done()
	defer close(b.out)
	for {
		select {
		case ev, ok := <-b.w.Events:
			if !ok {
				return
			}
			removed := ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename)
			if !removed && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
				// chmod-only noise
				continue
			}
			b.out <- event{path: ev.Name, removed: removed}
		case err, ok := <-b.w.Errors:
			if !ok {
				return
			}
			b.log.Printf("[watcher] fsnotify error: %v", err)
		}
	}
}

func (b *fsnotifyBackend) stop() error {
	err := b.w.Close()
	b.wg.Wait()
	return err
}
