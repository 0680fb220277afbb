package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// pollBackend approximates change notification by periodically listing each
// watched directory and diffing against the previous listing. A changed size
// or mtime counts as the file appearing again, so append-heavy files (status
// logs, growing downloads) still trigger.
type pollBackend struct {
	interval time.Duration
	out      chan event
	quit     chan struct{}
	wg       sync.WaitGroup
	known    map[string]map[string]fileStamp
}

type fileStamp struct {
	size  int64
	mtime time.Time
}

func (b *pollBackend) name() string { return "poll" }

func (b *pollBackend) start(dirs []string) error {
	b.out = make(chan event, 64)
	b.quit = make(chan struct{})
	b.known = make(map[string]map[string]fileStamp, len(dirs))
	for _, dir := range dirs {
		b.known[dir] = stampDir(dir)
	}
	b.wg.Add(1)
	go b.loop()
	return nil
}

func (b *pollBackend) events() <-chan event { return b.out }

func (b *pollBackend) loop() {
	defer b.wg.Done()
	defer close(b.out)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.quit:
			return
		case <-ticker.C:
			b.scan()
		}
	}
}

func (b *pollBackend) scan() {
	for dir, prev := range b.known {
		cur := stampDir(dir)
		for name, stamp := range cur {
			old, existed := prev[name]
			if !existed || old != stamp {
				b.send(event{path: filepath.Join(dir, name)})
			}
		}
		for name := range prev {
			if _, ok := cur[name]; !ok {
				b.send(event{path: filepath.Join(dir, name), removed: true})
			}
		}
		b.known[dir] = cur
	}
}

func (b *pollBackend) send(ev event) {
	select {
	case b.out <- ev:
	case <-b.quit:
	}
}

func (b *pollBackend) stop() error {
	close(b.quit)
	b.wg.Wait()
	return nil
}

func stampDir(dir string) map[string]fileStamp {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return map[string]fileStamp{}
	}
	stamps := make(map[string]fileStamp, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		stamps[e.Name()] = fileStamp{size: info.Size(), mtime: info.ModTime()}
	}
	return stamps
}
