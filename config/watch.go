package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/knadh/koanf/providers/file"

	"github.com/gaborage/go-sqlmapper/logger"
)

// Watcher pushes configuration changes of a YAML file to a listener.
type Watcher struct {
	path     string
	provider *file.File
	log      logger.Logger
	onChange func(*Config)

	mu     sync.Mutex
	closed bool
}

// Watch loads path, hands the result to onChange and keeps calling onChange
// with the reloaded configuration every time the file changes. Invalid
// revisions are logged and skipped so the listener only ever sees valid
// configurations.
func Watch(path string, log logger.Logger, onChange func(*Config)) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("config: nil change listener")
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	onChange(cfg)

	w := &Watcher{
		path:     path,
		provider: file.Provider(path),
		log:      log,
		onChange: onChange,
	}
	if err := w.provider.Watch(w.reload); err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}
	return w, nil
}

func (w *Watcher) reload(_ any, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if err != nil {
		w.log.Error().Err(err).Str("path", w.path).Msg("Configuration watch failed")
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", w.path).Msg("Ignoring invalid configuration change")
		return
	}

	w.log.Info().Str("path", w.path).Str("datasource", cfg.DataSource.Name).Msg("Configuration reloaded")
	w.onChange(cfg)
}

// Close stops watching. Pending notifications are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return w.provider.Unwatch()
}
