package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Manager struct {
	mu   sync.RWMutex
	cfg  *Config
	path string

	subsMu sync.Mutex
	subs   []func(cfg Config)
}

// New loads path, filling anything the file omits from defaults. A missing
// file is created with the defaults.
func New(path string) (*Manager, error) {
	m := &Manager{path: path}

	var err error
	m.cfg, err = m.readParseValidate(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if errors.Is(err, os.ErrNotExist) {
		m.cfg = m.GetDefault()
		data, err := json.MarshalIndent(m.cfg, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal config: %w", err)
		}

		if err := m.writeAtomic(path, data, 0600); err != nil {
			return nil, fmt.Errorf("write config: %w", err)
		}
	}

	return m, nil
}

// Get returns a copy; callers may keep it without holding any lock.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.cfg.clone()
}

// Update applies modify to a copy, validates it and persists it. Subscribers
// see the new config only when all of that succeeded.
func (m *Manager) Update(modify func(cfg *Config)) error {
	m.mu.Lock()

	if m.cfg == nil {
		m.mu.Unlock()
		return errors.New("no config loaded")
	}

	next := m.cfg.clone()
	modify(&next)

	if err := m.validate(&next); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("invalid config update: %w", err)
	}

	prev := m.cfg
	m.cfg = &next
	if err := m.saveLocked(); err != nil {
		m.cfg = prev
		m.mu.Unlock()
		return err
	}
	snapshot := next.clone()
	m.mu.Unlock()

	m.subsMu.Lock()
	subs := append([]func(Config){}, m.subs...)
	m.subsMu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
	return nil
}

// OnChange registers fn to run after every successful Update.
func (m *Manager) OnChange(fn func(cfg Config)) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	m.subs = append(m.subs, fn)
}

func (m *Manager) readParseValidate(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("no config path provided")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open/read config: %w", err)
	}

	cfg := m.GetDefault()
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	if err := m.validate(cfg); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	return cfg, nil
}

func (m *Manager) saveLocked() error {
	if m.path == "" {
		return errors.New("no config file loaded")
	}
	if m.cfg == nil {
		return errors.New("no config to save")
	}

	data, err := json.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return m.writeAtomic(m.path, data, 0600)
}

func (m *Manager) writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d", base, time.Now().UnixNano()))

	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (c *Config) clone() Config {
	out := *c
	if c.Proxy != nil {
		p := *c.Proxy
		out.Proxy = &p
	}
	out.Channels = append([]string(nil), c.Channels...)
	return out
}
