package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watcher keeps the latest valid Config for a JSON file and swaps it when the
// file changes on disk. Readers call Current at the top of every tick.
type Watcher struct {
	v       *viper.Viper
	path    string
	logger  *slog.Logger
	current atomic.Pointer[Config]

	mu        sync.Mutex
	listeners []func(*Config)
	overrides []func(*Config)
}

// NewWatcher reads path through viper. A missing file yields defaults.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	w := &Watcher{v: v, path: path, logger: logger}
	w.current.Store(DefaultConfig())
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return w, nil
		}
		return w, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := w.decode()
	if err != nil {
		return w, err
	}
	w.current.Store(cfg)
	return w, nil
}

// Static wraps a fixed config, for callers that do not watch a file.
func Static(cfg *Config) *Watcher {
	w := &Watcher{}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	w.current.Store(cfg)
	return w
}

func (w *Watcher) decode() (*Config, error) {
	cfg := DefaultConfig()
	// Slices decode element-wise over existing values; start empty so a
	// short user list does not keep the default tail.
	cfg.Scales = nil
	cfg.TriggerCommand = nil
	if err := w.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", w.path, err)
	}
	w.mu.Lock()
	ovs := slices.Clone(w.overrides)
	w.mu.Unlock()
	for _, o := range ovs {
		o(cfg)
	}
	_ = cfg.Validate()
	return cfg, nil
}

// Current returns the active config. Callers must not mutate it.
func (w *Watcher) Current() *Config { return w.current.Load() }

// OnChange registers fn to run after every successful reload or Update.
func (w *Watcher) OnChange(fn func(*Config)) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// Update applies fn to a copy of the current config and publishes it.
func (w *Watcher) Update(fn func(*Config)) *Config {
	next := w.Current().Clone()
	fn(next)
	_ = next.Validate()
	w.publish(next)
	return next
}

// Override applies fn now and again after every reload. Overrides never
// reach the file through Persist.
func (w *Watcher) Override(fn func(*Config)) *Config {
	w.mu.Lock()
	w.overrides = append(w.overrides, fn)
	w.mu.Unlock()
	return w.Update(fn)
}

// Persist publishes fn like Update and writes the same change into the
// watched file. Static watchers only publish.
func (w *Watcher) Persist(fn func(*Config)) (*Config, error) {
	next := w.Update(fn)
	if w.path == "" {
		return next, nil
	}
	onDisk, err := Load(w.path)
	if err != nil {
		return next, fmt.Errorf("config: read %s: %w", w.path, err)
	}
	fn(onDisk)
	if err := onDisk.Save(w.path); err != nil {
		return next, fmt.Errorf("config: write %s: %w", w.path, err)
	}
	return next, nil
}

// Path returns the watched file, empty for static watchers.
func (w *Watcher) Path() string { return w.path }

// Watch starts file watching. It is a no-op for static watchers.
func (w *Watcher) Watch() {
	if w.v == nil {
		return
	}
	w.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		w.reload()
	})
	w.v.WatchConfig()
}

func (w *Watcher) reload() {
	if err := w.v.ReadInConfig(); err != nil {
		if w.logger != nil {
			w.logger.Warn("config reload failed, keeping previous", "path", w.path, "error", err)
		}
		return
	}
	cfg, err := w.decode()
	if err != nil {
		if w.logger != nil {
			w.logger.Warn("config reload failed, keeping previous", "path", w.path, "error", err)
		}
		return
	}
	w.publish(cfg)
	if w.logger != nil {
		w.logger.Info("config reloaded", "path", w.path, "poll_interval_ms", cfg.PollIntervalMs, "scales", len(cfg.Scales))
	}
}

func (w *Watcher) publish(cfg *Config) {
	w.current.Store(cfg)
	w.mu.Lock()
	ls := slices.Clone(w.listeners)
	w.mu.Unlock()
	for _, l := range ls {
		l(cfg)
	}
}
