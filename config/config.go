// Package config handles javelin.toml runtime configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "javelin.toml"

// Defaults applied to any field left unset.
const (
	DefaultStack     = "4MiB"
	DefaultHeapChunk = "1MiB"
	DefaultHeapMax   = "16MiB"
)

// DefaultClasspath is searched when no classpath is configured.
var DefaultClasspath = []string{"./", "std/class/"}

var ErrBadSize = errors.New("invalid byte size")

// Config represents a javelin.toml configuration.
type Config struct {
	Classpath []string `toml:"classpath"`
	Memory    Memory   `toml:"memory"`
	Log       Log      `toml:"log"`

	// Dir is the directory containing the javelin.toml file (set at load
	// time). Relative classpath entries are resolved against it.
	Dir string `toml:"-"`
}

// Memory sizes, written as human-readable strings ("4MiB", "512KB").
type Memory struct {
	Stack     string `toml:"stack"`
	HeapChunk string `toml:"heap-chunk"`
	HeapMax   string `toml:"heap-max"`
}

// Log configures commonlog output.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Sizes holds the parsed memory settings in bytes.
type Sizes struct {
	Stack     uint64
	HeapChunk uint64
	HeapMax   uint64
}

// Default returns the built-in configuration rooted at the current
// directory.
func Default() *Config {
	c := &Config{Dir: "."}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if len(c.Classpath) == 0 {
		c.Classpath = append([]string(nil), DefaultClasspath...)
	}
	if c.Memory.Stack == "" {
		c.Memory.Stack = DefaultStack
	}
	if c.Memory.HeapChunk == "" {
		c.Memory.HeapChunk = DefaultHeapChunk
	}
	if c.Memory.HeapMax == "" {
		c.Memory.HeapMax = DefaultHeapMax
	}
}

// Load parses the javelin.toml file in dir.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses the configuration file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	c.applyDefaults()

	if _, err := c.Sizes(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

// FindAndLoad walks up from startDir to find a javelin.toml file, then loads
// and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Sizes parses the memory settings.
func (c *Config) Sizes() (Sizes, error) {
	var s Sizes
	fields := []struct {
		key string
		src string
		dst *uint64
	}{
		{"memory.stack", c.Memory.Stack, &s.Stack},
		{"memory.heap-chunk", c.Memory.HeapChunk, &s.HeapChunk},
		{"memory.heap-max", c.Memory.HeapMax, &s.HeapMax},
	}
	for _, f := range fields {
		n, err := humanize.ParseBytes(f.src)
		if err != nil {
			return Sizes{}, fmt.Errorf("%w: %s = %q: %v", ErrBadSize, f.key, f.src, err)
		}
		if n == 0 {
			return Sizes{}, fmt.Errorf("%w: %s must be positive", ErrBadSize, f.key)
		}
		*f.dst = n
	}
	if s.HeapChunk > s.HeapMax {
		return Sizes{}, fmt.Errorf("%w: memory.heap-chunk %s exceeds memory.heap-max %s",
			ErrBadSize, humanize.IBytes(s.HeapChunk), humanize.IBytes(s.HeapMax))
	}
	return s, nil
}

// ClasspathPaths returns the classpath with relative entries resolved
// against the configuration directory.
func (c *Config) ClasspathPaths() []string {
	var paths []string
	for _, p := range c.Classpath {
		if !filepath.IsAbs(p) {
			p = filepath.Join(c.Dir, p)
		}
		paths = append(paths, p)
	}
	return paths
}
