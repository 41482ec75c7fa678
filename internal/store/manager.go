package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Manager tracks a directory of SQLite study databases and one "active"
// handle. Switching databases is rejected while the active handle's run
// lock is held by an in-flight optimization (spec §4.6: "Switching is
// rejected while any optimization is running").
type Manager struct {
	dir    string
	active *DB
}

// NewManager opens (or creates) dir as the storage directory and opens its
// most recently modified *.db file as active, creating a default one if
// none exists.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create storage dir: %w", err)
	}
	m := &Manager{dir: dir}

	entries, err := m.ListDatabases()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		if _, err := m.CreateDatabase("studies"); err != nil {
			return nil, err
		}
		return m, nil
	}
	db, err := Open(entries[len(entries)-1].Path)
	if err != nil {
		return nil, err
	}
	m.active = db
	return m, nil
}

// DatabaseInfo describes one *.db file in the storage directory.
type DatabaseInfo struct {
	Name      string
	Path      string
	CreatedAt time.Time
}

// ListDatabases enumerates every *.db file in the storage directory,
// sorted ascending by file modification time; CreatedAt holds that
// modification time, not the file's creation time.
func (m *Manager) ListDatabases() ([]DatabaseInfo, error) {
	matches, err := filepath.Glob(filepath.Join(m.dir, "*.db"))
	if err != nil {
		return nil, err
	}
	out := make([]DatabaseInfo, 0, len(matches))
	for _, p := range matches {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		out = append(out, DatabaseInfo{
			Name:      filepath.Base(p),
			Path:      p,
			CreatedAt: creationTime(info),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_\-]+`)

// CreateDatabase creates a new, empty, schema-initialized database file
// named "<unix-timestamp>_<sanitized-name>.db" under the storage
// directory.
func (m *Manager) CreateDatabase(name string) (*DB, error) {
	sanitized := unsafeNameChars.ReplaceAllString(strings.TrimSpace(name), "_")
	if sanitized == "" {
		sanitized = "studies"
	}
	filename := fmt.Sprintf("%d_%s.db", time.Now().Unix(), sanitized)
	path := filepath.Join(m.dir, filename)

	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if m.active == nil {
		m.active = db
	}
	return db, nil
}

// Active returns the currently active database handle.
func (m *Manager) Active() *DB { return m.active }

// Switch changes the active database to the handle at path. It refuses
// while the current active handle has its run lock held.
func (m *Manager) Switch(path string) (*DB, error) {
	if m.active != nil {
		if !m.active.TryLock() {
			return nil, fmt.Errorf("store: cannot switch database while an optimization is running")
		}
		m.active.Unlock()
		if m.active.Path() != path {
			m.active.Close()
		} else {
			return m.active, nil
		}
	}
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	m.active = db
	return db, nil
}

// Close closes the active handle, if any.
func (m *Manager) Close() error {
	if m.active == nil {
		return nil
	}
	return m.active.Close()
}

func creationTime(info os.FileInfo) time.Time {
	return info.ModTime()
}
