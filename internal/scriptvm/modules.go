package scriptvm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Modules holds the script modules discovered at startup: files from a
// scripts directory plus an optional embedded in-binary table. Each module
// is installed into every script step's namespace as a callable named
// after its source file stem. File-backed modules are re-read when their
// modification time changes; embedded modules never change.
type Modules struct {
	dir      string
	embedded map[string]string

	mu    sync.Mutex
	files map[string]moduleFile
}

type moduleFile struct {
	stem    string
	modTime time.Time
	source  string
}

// NewModules builds a module registry over dir (may be empty or missing)
// and embedded (stem -> source, may be nil). Call Load before Sources.
func NewModules(dir string, embedded map[string]string) *Modules {
	return &Modules{
		dir:      dir,
		embedded: embedded,
		files:    map[string]moduleFile{},
	}
}

// Load scans the scripts directory, reading new files and re-reading any
// whose modification time changed since the last scan. A missing
// directory is not an error: the registry then serves embedded modules
// only. Files that disappear between scans are dropped.
func (m *Modules) Load() error {
	if m.dir == "" {
		return nil
	}
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("scriptvm: scanning %s: %w", m.dir, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := map[string]bool{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lua") {
			continue
		}
		path := filepath.Join(m.dir, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}
		seen[path] = true

		if prev, ok := m.files[path]; ok && prev.modTime.Equal(info.ModTime()) {
			continue
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("scriptvm: reading module %s: %w", path, err)
		}
		m.files[path] = moduleFile{
			stem:    stemOf(e.Name()),
			modTime: info.ModTime(),
			source:  string(src),
		}
	}
	for path := range m.files {
		if !seen[path] {
			delete(m.files, path)
		}
	}
	return nil
}

// Sources returns the current stem -> source table. Directory files
// shadow embedded modules with the same stem.
func (m *Modules) Sources() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(m.embedded)+len(m.files))
	for stem, src := range m.embedded {
		out[sanitizeStem(stem)] = src
	}
	for _, f := range m.files {
		out[sanitizeStem(f.stem)] = f.source
	}
	return out
}

// Stems returns the installed module names in sorted order.
func (m *Modules) Stems() []string {
	srcs := m.Sources()
	stems := make([]string, 0, len(srcs))
	for s := range srcs {
		stems = append(stems, s)
	}
	sort.Strings(stems)
	return stems
}

func stemOf(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// sanitizeStem maps a file stem onto a legal identifier so it can be
// installed as a callable in the script namespace.
func sanitizeStem(stem string) string {
	var b strings.Builder
	for i, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
