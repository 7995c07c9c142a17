package prp

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileWatcher reloads the authoritative policy store when files under
// the policy directory change. Events are debounced so a burst of writes
// (e.g. a deploy replacing many files) triggers a single reload.
type FileWatcher struct {
	watcher         *fsnotify.Watcher
	store           *AuthoritativeStore
	logger          *zap.Logger
	debounceTimeout time.Duration
	debounceTimer   *time.Timer
	stopChan        chan struct{}
	mu              sync.Mutex
	isWatching      bool
}

// NewFileWatcher creates a watcher over the store's policy directory.
func NewFileWatcher(store *AuthoritativeStore, logger *zap.Logger) (*FileWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher:         watcher,
		store:           store,
		logger:          logger,
		debounceTimeout: 500 * time.Millisecond,
		stopChan:        make(chan struct{}),
	}, nil
}

// Watch registers the policy directory tree and starts the event loop.
func (fw *FileWatcher) Watch(ctx context.Context) error {
	fw.mu.Lock()
	if fw.isWatching {
		fw.mu.Unlock()
		return fmt.Errorf("watcher is already running")
	}
	fw.isWatching = true
	fw.mu.Unlock()

	// fsnotify watches are not recursive; register every directory.
	err := filepath.WalkDir(fw.store.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		fw.mu.Lock()
		fw.isWatching = false
		fw.mu.Unlock()
		return fmt.Errorf("register policy directory: %w", err)
	}

	fw.logger.Info("Starting policy file watcher",
		zap.String("path", fw.store.dir),
		zap.Duration("debounce", fw.debounceTimeout),
	)

	go fw.watchLoop(ctx)
	return nil
}

// Stop terminates the watch loop.
func (fw *FileWatcher) Stop() error {
	close(fw.stopChan)
	return fw.watcher.Close()
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	defer func() {
		fw.mu.Lock()
		fw.isWatching = false
		fw.mu.Unlock()
		fw.logger.Info("Policy file watcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.stopChan:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if fw.shouldProcessEvent(event) {
				fw.handleEvent(event)
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("Watcher error", zap.Error(err))
		}
	}
}

func (fw *FileWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	return strings.EqualFold(filepath.Ext(event.Name), ".xml")
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.logger.Debug("Policy file change detected",
		zap.String("file", event.Name),
		zap.String("op", event.Op.String()),
	)

	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
	}
	fw.debounceTimer = time.AfterFunc(fw.debounceTimeout, func() {
		if err := fw.store.Load(); err != nil {
			fw.logger.Error("Failed to reload authoritative policies", zap.Error(err))
		}
	})
}
