package botconfig

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"botkit/internal/logger"
	"botkit/internal/types"

	"github.com/fsnotify/fsnotify"
)

// ChangeListener receives each successfully reloaded definition.
type ChangeListener func(types.BotConfig)

// Watcher reloads a bot definition whenever the file changes. A reload
// that fails validation is logged and discarded; the last good snapshot
// stays in effect.
type Watcher struct {
	path string
	fw   *fsnotify.Watcher

	mu        sync.RWMutex
	snapshot  types.BotConfig
	version   int64
	loadedAt  time.Time
	listeners []ChangeListener

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewWatcher loads the definition once and starts watching its directory.
// Watching the directory, not the file, survives editors that replace the
// file on save.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch bot definition: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch bot definition dir: %w", err)
	}
	w := &Watcher{
		path:     path,
		fw:       fw,
		snapshot: cfg,
		version:  1,
		loadedAt: time.Now(),
		stopCh:   make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Snapshot returns the last good definition and its reload version.
func (w *Watcher) Snapshot() (types.BotConfig, int64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot, w.version
}

// OnChange registers a listener for future reloads.
func (w *Watcher) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// Close stops the watch goroutine.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.fw.Close()
	})
	return err
}

func (w *Watcher) loop() {
	// Editors emit bursts of events per save; debounce before reloading.
	var pending <-chan time.Time
	for {
		select {
		case <-w.stopCh:
			return
		case evt, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(w.path) {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(200 * time.Millisecond)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			logger.Warnf("botconfig: watch error: %v", err)
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logger.Errorf("botconfig: reload rejected: %v", err)
		return
	}
	w.mu.Lock()
	w.snapshot = cfg
	w.version++
	w.loadedAt = time.Now()
	version := w.version
	listeners := append([]ChangeListener(nil), w.listeners...)
	w.mu.Unlock()
	logger.Infof("botconfig: reloaded %s (version %d)", filepath.Base(w.path), version)
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("botconfig: listener panic: %v", r)
				}
			}()
			cb(cfg)
		}(fn)
	}
}
