package config

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/spf13/viper"

	"github.com/platformbuilds/vigia/internal/utils/fswatcher"
)

// Logger is the narrow logging surface the watcher needs.
type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
}

// Runtime hands the engine tunables to long-lived components. Readers always
// get a consistent snapshot; the watcher swaps the whole value on reload.
type Runtime struct {
	engine atomic.Value // EngineConfig
}

func NewRuntime(engine EngineConfig) *Runtime {
	r := &Runtime{}
	r.engine.Store(engine)
	return r
}

// Engine returns the current tunables snapshot.
func (r *Runtime) Engine() EngineConfig {
	return r.engine.Load().(EngineConfig)
}

func (r *Runtime) update(engine EngineConfig) {
	r.engine.Store(engine)
}

// Watcher hot-reloads the engine tunables when the config file changes on
// disk. Only the engine block is applied at runtime; other settings keep
// their startup values.
type Watcher struct {
	path    string
	logger  Logger
	runtime *Runtime

	watcher *fswatcher.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher starts watching path. When path is empty no watcher is started
// and Close is a no-op.
func NewWatcher(path string, runtime *Runtime, log Logger) (*Watcher, error) {
	w := &Watcher{logger: log, runtime: runtime}
	if path == "" {
		return w, nil
	}
	w.path = filepath.Clean(path)

	watcher, err := fswatcher.New()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w.watcher = watcher
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	// Watch the directory, not the file: editors and config mounts replace
	// the file by rename, which drops a watch placed on the file itself.
	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			log.Warn("failed to close config watcher after add failure", "error", closeErr)
		}
		return nil, fmt.Errorf("watch directory %s: %w", dir, err)
	}

	go w.watchLoop()
	log.Info("config watcher started", "path", w.path)
	return w, nil
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	close(w.stopCh)
	err := w.watcher.Close()
	<-w.doneCh
	return err
}

func (w *Watcher) watchLoop() {
	defer close(w.doneCh)

	for {
		select {
		case event := <-w.watcher.Events:
			if !w.isRelevant(event) {
				continue
			}
			engine, err := w.reloadWithRetries()
			if err != nil {
				w.logger.Warn("engine tunables reload failed, keeping current values",
					"path", w.path, "error", err)
				continue
			}
			w.runtime.update(engine)
			w.logger.Info("engine tunables reloaded", "path", w.path)
		case err := <-w.watcher.Errors:
			w.logger.Warn("config watcher error", "error", err)
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) reloadWithRetries() (EngineConfig, error) {
	const (
		attempts = 5
		delay    = 200 * time.Millisecond
	)

	var lastErr error
	for i := 0; i < attempts; i++ {
		engine, err := loadEngineFromFile(w.path)
		if err != nil {
			lastErr = err
			time.Sleep(delay)
			continue
		}
		return engine, nil
	}
	return EngineConfig{}, lastErr
}

func (w *Watcher) isRelevant(event fswatcher.Event) bool {
	if event.Name == "" {
		return true
	}
	return filepath.Clean(event.Name) == w.path
}

// loadEngineFromFile reads and validates the engine block of one config
// file. Defaults fill any keys the file does not set.
func loadEngineFromFile(path string) (EngineConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return EngineConfig{}, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validateEngine(&cfg.Engine); err != nil {
		return EngineConfig{}, err
	}
	return cfg.Engine, nil
}
