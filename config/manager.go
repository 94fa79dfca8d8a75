package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const configFileName = "config.json"

// Manager owns the config file. Every accepted change, from Update, Patch
// or an edit on disk, is validated and then handed to the Watch callback.
type Manager struct {
	path     string
	debounce time.Duration
	log      logrus.FieldLogger

	// writeMu serializes file writes with reloads so a change is applied
	// and announced once.
	writeMu sync.Mutex

	mu       sync.RWMutex
	cfg      Config
	onChange func(Config)
	watching bool
}

type managerOptions struct {
	configPath    string
	initialConfig *Config
	debounce      time.Duration
	logger        logrus.FieldLogger
}

type ManagerOption func(*managerOptions)

func NewManager(opts ...ManagerOption) (*Manager, error) {
	options := managerOptions{
		debounce: 300 * time.Millisecond,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	path := options.configPath
	if path == "" {
		var err error
		if path, err = defaultConfigPath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	cfg, err := loadOrCreate(path, options.initialConfig)
	if err != nil {
		return nil, err
	}
	return &Manager{
		path:     path,
		debounce: options.debounce,
		log:      options.logger.WithField("component", "config"),
		cfg:      cfg,
	}, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Path() string {
	return m.path
}

// Update replaces the whole configuration.
func (m *Manager) Update(next Config) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.commit(next)
}

// Patch merges a JSON object onto the current configuration. Keys the body
// leaves out keep their value, and so do secrets sent back empty or
// redacted, so a redacted config read from the server can be edited and
// sent back as is.
func (m *Manager) Patch(data []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	cur := m.Get()
	next := cur
	next.SelectedAnalysts = append([]string(nil), cur.SelectedAnalysts...)
	if err := json.Unmarshal(data, &next); err != nil {
		return fmt.Errorf("%w: parse config json: %v", ErrInvalid, err)
	}
	next.keepSecrets(cur)
	return m.commit(next)
}

// commit validates, persists and applies next. writeMu must be held.
func (m *Manager) commit(next Config) error {
	if err := next.Validate(); err != nil {
		return err
	}
	if reflect.DeepEqual(m.Get(), next) {
		return nil
	}
	if err := writeConfigFile(m.path, next); err != nil {
		return err
	}
	m.apply(next)
	return nil
}

func (m *Manager) apply(cfg Config) {
	m.mu.Lock()
	m.cfg = cfg
	cb := m.onChange
	m.mu.Unlock()

	if cb != nil {
		cb(cfg)
	}
}

// Watch calls onChange after every accepted change until ctx is done.
// Edits made to the file are picked up after the debounce interval.
func (m *Manager) Watch(ctx context.Context, onChange func(Config)) error {
	m.mu.Lock()
	m.onChange = onChange
	if m.watching {
		m.mu.Unlock()
		return nil
	}
	m.watching = true
	m.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// The directory is watched because atomic writes replace the file.
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	go m.watchLoop(ctx, watcher)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	timer := time.NewTimer(m.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(m.path) {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(m.debounce)
		case <-timer.C:
			m.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.log.WithError(err).Warn("config watcher error")
		case <-ctx.Done():
			return
		}
	}
}

// reload applies the file on disk. Our own writes reload as no-ops because
// the applied config already matches the file.
func (m *Manager) reload() {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	cfg, err := readConfigFile(m.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		m.log.Warn("config file removed, keeping current config")
		return
	case err != nil:
		m.log.WithError(err).Error("config reload failed")
		return
	}
	if err := cfg.Validate(); err != nil {
		m.log.WithError(err).Warn("config validation failed, keeping previous")
		return
	}
	if reflect.DeepEqual(m.Get(), cfg) {
		return
	}
	m.log.WithField("path", m.path).Info("config reloaded from disk")
	m.apply(cfg)
}

func loadOrCreate(path string, initial *Config) (Config, error) {
	cfg, err := readConfigFile(path)
	switch {
	case err == nil:
		if err := cfg.Validate(); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
		return cfg, nil
	case !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if initial != nil {
		cfg = *initial
	} else {
		cfg = *DefaultConfigWithRoot(filepath.Dir(path))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	if err := writeConfigFile(path, cfg); err != nil {
		return Config{}, fmt.Errorf("write initial config: %w", err)
	}
	return cfg, nil
}

// readConfigFile decodes path over the defaults, so keys missing from an
// older file keep their default value.
func readConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Config{}, fmt.Errorf("%w: %s is empty", ErrInvalid, path)
	}
	cfg := *DefaultConfigWithRoot(filepath.Dir(path))
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, err)
	}
	return cfg, nil
}

func defaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		if dir, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, "TradeFlow", configFileName), nil
}

// writeConfigFile replaces path atomically.
func writeConfigFile(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "cfg-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func WithConfigDir(dir string) ManagerOption {
	return func(o *managerOptions) {
		if dir != "" {
			o.configPath = filepath.Join(dir, configFileName)
		}
	}
}

func WithConfigPath(path string) ManagerOption {
	return func(o *managerOptions) {
		if path != "" {
			o.configPath = path
		}
	}
}

func WithDebounce(d time.Duration) ManagerOption {
	return func(o *managerOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

func WithLogger(l logrus.FieldLogger) ManagerOption {
	return func(o *managerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithInitialConfig seeds a config file that does not exist yet.
func WithInitialConfig(cfg *Config) ManagerOption {
	return func(o *managerOptions) {
		o.initialConfig = cfg
	}
}
