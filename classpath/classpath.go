// Package classpath locates class-file bytes by internal class name
// ("java/lang/Object") across directories and SQLite class archives.
package classpath

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("javelin.classpath")

var ErrNotFound = errors.New("class not found on classpath")

// Source is one classpath entry.
type Source interface {
	// Find returns the bytes of the named class, or an error wrapping
	// ErrNotFound when this source does not hold it.
	Find(name string) ([]byte, error)
	String() string
}

// ---------------------------------------------------------------------------
// Directory sources
// ---------------------------------------------------------------------------

// Dir is a directory laid out by package, "java/lang/Object" living at
// <dir>/java/lang/Object.class.
type Dir string

func (d Dir) Find(name string) ([]byte, error) {
	path := filepath.Join(string(d), filepath.FromSlash(name)+".class")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, string(d))
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func (d Dir) String() string { return string(d) }

// ---------------------------------------------------------------------------
// Search path
// ---------------------------------------------------------------------------

// Path is an ordered list of sources; the first source holding a class wins.
type Path []Source

// Open builds a Path from entries. Files are opened as class archives and
// anything else is treated as a directory; missing directories are kept and
// simply never match.
func Open(entries []string) (Path, error) {
	var p Path
	for _, e := range entries {
		info, err := os.Stat(e)
		if err == nil && info.Mode().IsRegular() {
			a, err := OpenArchive(e)
			if err != nil {
				p.Close()
				return nil, err
			}
			p = append(p, a)
			continue
		}
		p = append(p, Dir(e))
	}
	return p, nil
}

// Split parses a colon-separated classpath string.
func Split(s string) []string {
	var out []string
	for _, e := range strings.Split(s, string(os.PathListSeparator)) {
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

// Find searches every source in order.
func (p Path) Find(name string) ([]byte, Source, error) {
	for _, s := range p {
		data, err := s.Find(name)
		if err == nil {
			log.Debugf("found %s in %s", name, s)
			return data, s, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, nil, err
		}
	}
	return nil, nil, fmt.Errorf("%w: %s (searched %s)", ErrNotFound, name, p)
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, string(os.PathListSeparator))
}

// Close releases any archives in the path.
func (p Path) Close() error {
	var errs []error
	for _, s := range p {
		if a, ok := s.(*Archive); ok {
			errs = append(errs, a.Close())
		}
	}
	return errors.Join(errs...)
}
