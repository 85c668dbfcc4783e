package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/siftwatch/sift-be/internal/models"
)

// Store persists the rule configuration document and keeps an in-memory copy
// for the worker loop. The cached copy is replaced wholesale on every update
// so concurrent readers never observe a torn document.
type Store struct {
	path     string
	fallback models.RuleConfig

	mu      sync.RWMutex
	current models.RuleConfig

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewStore creates a store backed by the JSON document at path. The fallback
// threshold seeds the document when it does not exist yet.
func NewStore(path string, defaultThreshold float64) *Store {
	return &Store{
		path:     path,
		fallback: models.DefaultRuleConfig(defaultThreshold),
		done:     make(chan struct{}),
	}
}

// Load reads the document from disk, creating and persisting the default one
// when the file is absent. A missing file is never an error.
func (s *Store) Load() (models.RuleConfig, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		if err := s.Save(s.fallback); err != nil {
			return models.RuleConfig{}, fmt.Errorf("persist default rules: %w", err)
		}
		return s.Current(), nil
	}
	if err != nil {
		return models.RuleConfig{}, err
	}

	var cfg models.RuleConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return models.RuleConfig{}, fmt.Errorf("decode rules document: %w", err)
	}
	if cfg.Version == 0 {
		// Pre-versioned documents carry only score_threshold; adopt them.
		cfg.Version = models.RuleConfigVersion
	}
	if cfg.Version != models.RuleConfigVersion {
		return models.RuleConfig{}, fmt.Errorf("unsupported rules document version %d", cfg.Version)
	}

	s.swap(cfg)
	return cfg, nil
}

// Save atomically replaces the persisted document and then the cached copy.
func (s *Store) Save(cfg models.RuleConfig) error {
	if cfg.Version == 0 {
		cfg.Version = models.RuleConfigVersion
	}
	if cfg.ScoreThreshold < 0 || cfg.ScoreThreshold > 1 {
		return fmt.Errorf("score_threshold %v out of range [0,1]", cfg.ScoreThreshold)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	// Write-then-rename so a crash mid-write never leaves a torn document.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}

	s.swap(cfg)
	return nil
}

// Current returns the cached configuration.
func (s *Store) Current() models.RuleConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Store) swap(cfg models.RuleConfig) {
	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()
}

// Watch reloads the cache when the document changes on disk out-of-band
// (an operator editing the file directly). Errors are logged, never fatal.
func (s *Store) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return err
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case <-s.done:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != s.path || !ev.Op.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				if _, err := s.Load(); err != nil {
					log.Warn().Err(err).Str("path", s.path).Msg("Failed to reload rules document")
					continue
				}
				log.Info().Str("path", s.path).Msg("Rules document reloaded from disk")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("Rules watcher error")
			}
		}
	}()
	return nil
}

// Close stops the watcher if one is running.
func (s *Store) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
