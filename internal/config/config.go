// Package config loads and holds the daemon's TOML configuration.
//
// The original screenruster kept one Rust module per config section,
// each wrapped in Arc<RwLock<...>> so peers could read a cheap clone
// while Reload swapped in fresh values. This port keeps one file per
// section (timer.go, locker.go, interface.go, auth.go, saver.go) but
// guards the whole document with a single sync.RWMutex: readers call
// one of Config's section accessors, which return a value copy, and
// Reload takes the write lock just long enough to replace all five
// sections together.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// Config is the daemon's full configuration document.
type Config struct {
	mu   sync.RWMutex
	path string

	timer     Timer
	locker    Locker
	iface     Interface
	auth      Auth
	saver     Saver
}

// Load reads and parses the configuration at path. If path is empty,
// it falls back to $XDG_CONFIG_HOME/screenruster/config.toml (or
// ~/.config/screenruster/config.toml), and treats a missing file as an
// empty document rather than an error, matching the original's
// behavior of running with built-in defaults when unconfigured.
func Load(path string) (*Config, error) {
	c := &Config{}
	if err := c.Reload(path); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the configuration file and atomically replaces all
// sections. If path is empty, the previously loaded path is reused (or
// the default path, on first load).
func (c *Config) Reload(path string) error {
	resolved := path
	if resolved == "" {
		c.mu.RLock()
		resolved = c.path
		c.mu.RUnlock()
	}
	if resolved == "" {
		resolved = defaultPath()
	}

	doc, err := readDocument(resolved)
	if err != nil {
		return err
	}

	timer := defaultTimer()
	timer.load(doc)

	locker := defaultLocker()
	locker.load(doc)

	iface := Interface{}
	iface.load(doc)

	auth := Auth{}
	auth.load(doc)

	saver := defaultSaver()
	saver.load(doc)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = resolved
	c.timer = timer
	c.locker = locker
	c.iface = iface
	c.auth = auth
	c.saver = saver
	return nil
}

func defaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "screenruster", "config.toml")
	}
	return "screenruster.toml"
}

// document is the generic shape a TOML file decodes to before each
// section picks out what it understands from it, mirroring the
// original's toml::Table walking (table.get(...).and_then(|v|
// v.as_table())) instead of struct-tag decoding, since several
// sections (auth methods, saver names) have keys that are only known
// at runtime.
type document map[string]interface{}

func readDocument(path string) (document, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}

	var doc document
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, configParseErr(path, err)
	}
	return doc, nil
}

func table(doc document, key string) (document, bool) {
	v, ok := doc[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]interface{})
	return document(m), ok
}

func str(doc document, key string) (string, bool) {
	v, ok := doc[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func boolean(doc document, key string) (bool, bool) {
	v, ok := doc[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func strSlice(doc document, key string) []string {
	v, ok := doc[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Timer returns a snapshot of the [timer] section.
func (c *Config) Timer() Timer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timer
}

// Locker returns a snapshot of the [locker] section.
func (c *Config) Locker() Locker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.locker
}

// Interface returns a snapshot of the [interface] section.
func (c *Config) Interface() Interface {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.iface
}

// Auth returns a snapshot of the [auth.*] sections.
func (c *Config) Auth() Auth {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auth
}

// Saver returns a snapshot of the [saver] and [saver.*] sections.
func (c *Config) Saver() Saver {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saver
}

// Path returns the path the configuration was last loaded from.
func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}
