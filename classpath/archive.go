package classpath

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite"

	"github.com/chazu/javelin/classfile"
)

// Archive is a SQLite database of class files keyed by internal name.
type Archive struct {
	db   *sql.DB
	path string
}

// OpenArchive opens or creates the class archive at path.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS classes (
		name TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table in %s: %w", path, err)
	}

	return &Archive{db: db, path: path}, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *Archive) String() string { return a.path }

// Put stores or replaces a class.
func (a *Archive) Put(name string, data []byte) error {
	_, err := a.db.Exec("INSERT OR REPLACE INTO classes (name, data) VALUES (?, ?)", name, data)
	if err != nil {
		return fmt.Errorf("storing %s: %w", name, err)
	}
	return nil
}

// Find retrieves a class.
func (a *Archive) Find(name string) ([]byte, error) {
	var data []byte
	err := a.db.QueryRow("SELECT data FROM classes WHERE name = ?", name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, a.path)
		}
		return nil, fmt.Errorf("querying %s: %w", name, err)
	}
	return data, nil
}

// Names lists the stored classes in name order.
func (a *Archive) Names() ([]string, error) {
	rows, err := a.db.Query("SELECT name FROM classes ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing classes: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning class name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// PackDir stores every .class file under dir in the archive, keyed by the
// class name recorded in the file itself. It returns the number of classes
// stored.
func (a *Archive) PackDir(dir string) (int, error) {
	count := 0
	var total uint64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".class") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		cf, err := classfile.Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := a.Put(cf.Name, data); err != nil {
			return err
		}
		log.Debugf("packed %s from %s", cf.Name, path)
		count++
		total += uint64(len(data))
		return nil
	})
	if err != nil {
		return count, err
	}
	log.Infof("packed %d classes (%s) into %s", count, humanize.IBytes(total), a.path)
	return count, nil
}
