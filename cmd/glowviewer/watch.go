package main

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// assetWatcher reports writes to the shown asset file. The parent directory
// is watched so editors that replace the file are seen too.
type assetWatcher struct {
	log     *zap.Logger
	watcher *fsnotify.Watcher
	changed chan string

	mu     sync.Mutex
	target string
	dir    string

	done chan struct{}
	wg   sync.WaitGroup
}

func newAssetWatcher(log *zap.Logger) (*assetWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	aw := &assetWatcher{
		log:     log.Named("watch"),
		watcher: w,
		changed: make(chan string, 1),
		done:    make(chan struct{}),
	}
	aw.wg.Add(1)
	go aw.run()
	return aw, nil
}

// Watch switches the watched file to path.
func (aw *assetWatcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	aw.mu.Lock()
	defer aw.mu.Unlock()
	if dir != aw.dir {
		if aw.dir != "" {
			_ = aw.watcher.Remove(aw.dir)
		}
		if err := aw.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		aw.dir = dir
	}
	aw.target = abs
	return nil
}

// Changed delivers the file path after each write or replace. Bursts of
// events collapse into one pending notification.
func (aw *assetWatcher) Changed() <-chan string {
	return aw.changed
}

func (aw *assetWatcher) run() {
	defer aw.wg.Done()
	for {
		select {
		case <-aw.done:
			return
		case event, ok := <-aw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			aw.mu.Lock()
			target := aw.target
			aw.mu.Unlock()
			if filepath.Clean(event.Name) != target {
				continue
			}
			select {
			case aw.changed <- target:
			default:
			}
		case err, ok := <-aw.watcher.Errors:
			if !ok {
				return
			}
			aw.log.Warn("watch error", zap.Error(err))
		}
	}
}

func (aw *assetWatcher) Close() error {
	close(aw.done)
	err := aw.watcher.Close()
	aw.wg.Wait()
	return err
}
