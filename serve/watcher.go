package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	codelet "github.com/Paranoid-AF/codelet"
)

const defaultDebounce = 500 * time.Millisecond

// ConfigWatcher reloads the config when the config file or the prompt
// template (codelet.PromptPath) changes. Their directories are watched rather
// than the files so that editors which replace the file on save are seen.
type ConfigWatcher struct {
	configPath string
	paths      map[string]bool
	onReload   func(*codelet.Config)
	watcher    *fsnotify.Watcher
	debounce   time.Duration

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewConfigWatcher watches the directories holding configPath and the
// prompt template.
func NewConfigWatcher(configPath string, onReload func(*codelet.Config)) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	configPath = filepath.Clean(configPath)
	promptPath := filepath.Clean(codelet.PromptPath())

	dir := filepath.Dir(configPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	// The prompt lives in the config dir, which need not hold the --config file.
	if promptDir := filepath.Dir(promptPath); promptDir != dir {
		if err := watcher.Add(promptDir); err != nil {
			slog.Warn("prompt template changes will not be picked up", "dir", promptDir, "error", err)
		}
	}
	return &ConfigWatcher{
		configPath: configPath,
		paths:      map[string]bool{configPath: true, promptPath: true},
		onReload:   onReload,
		watcher:    watcher,
		debounce:   defaultDebounce,
		done:       make(chan struct{}),
	}, nil
}

// Start begins watching for changes.
func (cw *ConfigWatcher) Start() {
	cw.wg.Add(1)
	go cw.watchLoop()
}

func (cw *ConfigWatcher) watchLoop() {
	defer cw.wg.Done()
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !cw.paths[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			slog.Debug("config change detected", "file", event.Name, "op", event.Op.String())
			cw.scheduleReload()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)

		case <-cw.done:
			return
		}
	}
}

// scheduleReload debounces bursts of writes into one reload.
func (cw *ConfigWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.timer = time.AfterFunc(cw.debounce, cw.reload)
}

func (cw *ConfigWatcher) reload() {
	select {
	case <-cw.done:
		return
	default:
	}
	cfg, err := codelet.LoadConfigFrom(cw.configPath)
	if err != nil {
		slog.Error("config reload failed, keeping previous config", "error", err)
		return
	}
	for _, w := range codelet.ValidateConfig(cfg) {
		slog.Warn("config", "warning", w)
	}
	cw.onReload(cfg)
}

// Stop stops watching. Pending reloads are dropped.
func (cw *ConfigWatcher) Stop() error {
	cw.mu.Lock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.mu.Unlock()
	close(cw.done)
	err := cw.watcher.Close()
	cw.wg.Wait()
	return err
}
