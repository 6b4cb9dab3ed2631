package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/nexus/internal/logger"
)

const (
	minMigrationRetries = 1
	maxMigrationRetries = 50
	minMigrationDelay   = time.Second
)

// MigrationConfig drives host migration. Values are read at every
// decision point, so a change applies from the next step on.
type MigrationConfig struct {
	Enabled    bool
	MaxRetries int // client search attempts before giving up

	ClientSearchInterval time.Duration // delay before the first search
	ClientRetryDelay     time.Duration // delay after an empty search
	JoinFailureDelay     time.Duration // delay after a failed join

	// HostRecoveryRetries is how many times the heir retries a failed
	// create. 0 means a single attempt.
	HostRecoveryRetries int
	HostRetryDelay      time.Duration
}

func DefaultMigration() MigrationConfig {
	return MigrationConfig{
		Enabled:              true,
		MaxRetries:           15,
		ClientSearchInterval: 5 * time.Second,
		ClientRetryDelay:     3 * time.Second,
		JoinFailureDelay:     2 * time.Second,
		HostRecoveryRetries:  0,
		HostRetryDelay:       2 * time.Second,
	}
}

// Normalize clamps every value into its accepted range.
func (c MigrationConfig) Normalize() MigrationConfig {
	c.MaxRetries = clampInt(c.MaxRetries, minMigrationRetries, maxMigrationRetries)
	if c.HostRecoveryRetries < 0 {
		c.HostRecoveryRetries = 0
	}
	c.ClientSearchInterval = atLeast(c.ClientSearchInterval, minMigrationDelay)
	c.ClientRetryDelay = atLeast(c.ClientRetryDelay, minMigrationDelay)
	c.JoinFailureDelay = atLeast(c.JoinFailureDelay, minMigrationDelay)
	c.HostRetryDelay = atLeast(c.HostRetryDelay, minMigrationDelay)
	return c
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func atLeast(d, floor time.Duration) time.Duration {
	if d < floor {
		return floor
	}
	return d
}

// MigrationSource hands out the current migration settings.
type MigrationSource interface {
	Migration() MigrationConfig
}

// StaticMigration is a migration source whose value only changes
// through Set.
type StaticMigration struct {
	mu  sync.RWMutex
	cfg MigrationConfig
}

func NewStaticMigration(cfg MigrationConfig) *StaticMigration {
	return &StaticMigration{cfg: cfg.Normalize()}
}

func (s *StaticMigration) Migration() MigrationConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *StaticMigration) Set(cfg MigrationConfig) {
	s.mu.Lock()
	s.cfg = cfg.Normalize()
	s.mu.Unlock()
}

// ─────────────────────────────
// YAML file
// ─────────────────────────────

// migrationYAML mirrors the file layout. Delays are in seconds; missing
// keys keep their defaults.
type migrationYAML struct {
	Enabled              *bool    `yaml:"enabled"`
	MaxRetries           *int     `yaml:"max_retries"`
	ClientSearchInterval *float64 `yaml:"client_search_interval"`
	ClientRetryDelay     *float64 `yaml:"client_retry_delay"`
	JoinFailureDelay     *float64 `yaml:"join_failure_delay"`
	HostRecoveryRetries  *int     `yaml:"host_recovery_retries"`
	HostRetryDelay       *float64 `yaml:"host_retry_delay"`
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// ParseMigration decodes a YAML migration document over the defaults.
func ParseMigration(data []byte) (MigrationConfig, error) {
	var raw migrationYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return MigrationConfig{}, fmt.Errorf("parse migration config: %w", err)
	}

	cfg := DefaultMigration()
	if raw.Enabled != nil {
		cfg.Enabled = *raw.Enabled
	}
	if raw.MaxRetries != nil {
		cfg.MaxRetries = *raw.MaxRetries
	}
	if raw.ClientSearchInterval != nil {
		cfg.ClientSearchInterval = seconds(*raw.ClientSearchInterval)
	}
	if raw.ClientRetryDelay != nil {
		cfg.ClientRetryDelay = seconds(*raw.ClientRetryDelay)
	}
	if raw.JoinFailureDelay != nil {
		cfg.JoinFailureDelay = seconds(*raw.JoinFailureDelay)
	}
	if raw.HostRecoveryRetries != nil {
		cfg.HostRecoveryRetries = *raw.HostRecoveryRetries
	}
	if raw.HostRetryDelay != nil {
		cfg.HostRetryDelay = seconds(*raw.HostRetryDelay)
	}
	return cfg.Normalize(), nil
}

// MigrationFile is a migration source backed by a YAML file. Watch keeps
// it in sync with the file; a file that fails to parse leaves the last
// good settings in place.
type MigrationFile struct {
	path   string
	logger logger.Logger

	mu  sync.RWMutex
	cfg MigrationConfig
}

// NewMigrationFile loads path. A missing file yields the defaults so the
// file can be created later.
func NewMigrationFile(path string, log logger.Logger) (*MigrationFile, error) {
	m := &MigrationFile{
		path:   filepath.Clean(path),
		logger: logger.Component(log, "migration_config"),
		cfg:    DefaultMigration(),
	}
	if err := m.Reload(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return m, nil
}

func (m *MigrationFile) Migration() MigrationConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *MigrationFile) Path() string { return m.path }

// Reload reads the file again.
func (m *MigrationFile) Reload() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	cfg, err := ParseMigration(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()

	m.logger.Info("migration config loaded",
		logger.String("path", m.path),
		logger.Bool("enabled", cfg.Enabled),
		logger.Int("max_retries", cfg.MaxRetries),
		logger.Duration("client_search_interval", cfg.ClientSearchInterval),
		logger.Int("host_recovery_retries", cfg.HostRecoveryRetries))
	return nil
}

// Watch reloads the file whenever it changes, until ctx is done. The
// parent directory is watched so that editors replacing the file are
// seen too.
func (m *MigrationFile) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()

	if err := w.Add(filepath.Dir(m.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(m.path), err)
	}
	m.logger.Info("watching migration config", logger.String("path", m.path))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != m.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := m.Reload(); err != nil {
				m.logger.Warn("migration config reload failed, keeping previous settings",
					logger.String("path", m.path),
					logger.Error(err))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("migration config watcher error", logger.Error(err))
		}
	}
}
