package document

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultFollowDebounce = 100 * time.Millisecond

// Follower reloads files when they change on disk and reports the ids of
// reloaded documents on Changes. It never triggers a rescan itself.
type Follower struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu     sync.Mutex
	files  map[string]*File // by absolute path
	dirs   map[string]int   // watched directory -> followed files in it
	timers map[string]*time.Timer

	changes chan string
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewFollower(debounce time.Duration) (*Follower, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	fw := &Follower{
		watcher:  watcher,
		debounce: debounce,
		files:    make(map[string]*File),
		dirs:     make(map[string]int),
		timers:   make(map[string]*time.Timer),
		changes:  make(chan string, 16),
		ctx:      ctx,
		cancel:   cancel,
	}
	go fw.processEvents()
	return fw, nil
}

// Add starts following f. The parent directory is watched so that editors
// which replace files by renaming are still noticed.
func (fw *Follower) Add(f *File) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, ok := fw.files[f.Path()]; ok {
		return nil
	}
	dir := filepath.Dir(f.Path())
	if fw.dirs[dir] == 0 {
		if err := fw.watcher.Add(dir); err != nil {
			return err
		}
	}
	fw.dirs[dir]++
	fw.files[f.Path()] = f
	return nil
}

func (fw *Follower) Remove(f *File) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, ok := fw.files[f.Path()]; !ok {
		return
	}
	delete(fw.files, f.Path())
	if t, ok := fw.timers[f.Path()]; ok {
		t.Stop()
		delete(fw.timers, f.Path())
	}
	dir := filepath.Dir(f.Path())
	if fw.dirs[dir]--; fw.dirs[dir] <= 0 {
		delete(fw.dirs, dir)
		fw.watcher.Remove(dir)
	}
}

// Changes delivers the id of each document after it was reloaded.
func (fw *Follower) Changes() <-chan string {
	return fw.changes
}

func (fw *Follower) Close() error {
	fw.cancel()
	fw.mu.Lock()
	for path, t := range fw.timers {
		t.Stop()
		delete(fw.timers, path)
	}
	fw.mu.Unlock()
	return fw.watcher.Close()
}

func (fw *Follower) processEvents() {
	for {
		select {
		case <-fw.ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				fw.schedule(filepath.Clean(event.Name))
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("follow: %v", err)
		}
	}
}

func (fw *Follower) schedule(path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, ok := fw.files[path]; !ok {
		return
	}
	if t, ok := fw.timers[path]; ok {
		t.Stop()
	}
	fw.timers[path] = time.AfterFunc(fw.debounce, func() { fw.reload(path) })
}

func (fw *Follower) reload(path string) {
	fw.mu.Lock()
	f, ok := fw.files[path]
	delete(fw.timers, path)
	fw.mu.Unlock()
	if !ok {
		return
	}
	if err := f.Reload(); err != nil {
		log.Printf("follow: %v", err)
		return
	}
	log.Printf("follow: %s reloaded, %d lines", f.Title(), f.LineCount())
	select {
	case fw.changes <- f.ID():
	case <-fw.ctx.Done():
	}
}
