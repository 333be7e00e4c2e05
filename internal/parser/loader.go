package parser

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/williamcotton/webdsl/internal/ast"
)

// maxIncludeDepth bounds include recursion; exceeding it is treated the
// same as a cycle.
const maxIncludeDepth = 100

// FileLoader reads the contents of path. DefaultFileLoader reads from disk;
// tests may substitute an in-memory implementation.
type FileLoader func(path string) (string, error)

// DefaultFileLoader reads source files from the local filesystem.
func DefaultFileLoader(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// LoadSite parses entryPath and recursively resolves every `include`
// directive it contains, merging each included file's top-level
// declarations into the returned Site. Include paths are resolved relative
// to the directory of the file that references them. An include that fails
// (unreadable, unparsable, a cycle that revisits an ancestor file, or a
// chain deeper than maxIncludeDepth) is skipped and the remaining includes
// are still merged; the first such error is returned with the Site.
func LoadSite(entryPath string, loader FileLoader) (*ast.Site, error) {
	ancestors := map[string]bool{}
	return loadSite(entryPath, loader, ancestors, 0)
}

func loadSite(path string, loader FileLoader, ancestors map[string]bool, depth int) (*ast.Site, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("parser: resolving %s: %w", path, err)
	}
	if ancestors[abs] {
		return nil, fmt.Errorf("parser: include cycle at %s", path)
	}
	if depth > maxIncludeDepth {
		return nil, fmt.Errorf("parser: max include depth exceeded at %s", path)
	}

	src, err := loader(path)
	if err != nil {
		return nil, fmt.Errorf("parser: reading %s: %w", path, err)
	}

	site, includes, err := Parse(src, path)
	if err != nil {
		return nil, err
	}

	ancestors[abs] = true
	defer delete(ancestors, abs)

	baseDir := filepath.Dir(path)
	var includeErr error
	for _, inc := range includes {
		incPath := inc.Path
		if !filepath.IsAbs(incPath) {
			incPath = filepath.Join(baseDir, incPath)
		}
		child, err := loadSite(incPath, loader, ancestors, depth+1)
		if err != nil {
			// Sticky per-include failure: record the first error and skip
			// this include; the remaining includes are still resolved.
			if includeErr == nil {
				includeErr = err
			}
			continue
		}
		mergeSite(site, child)
	}

	return site, includeErr
}

// mergeSite appends child's top-level declarations onto parent in order.
func mergeSite(parent, child *ast.Site) {
	parent.Pages = append(parent.Pages, child.Pages...)
	parent.Styles = append(parent.Styles, child.Styles...)
	parent.Layouts = append(parent.Layouts, child.Layouts...)
	parent.APIs = append(parent.APIs, child.APIs...)
	parent.Queries = append(parent.Queries, child.Queries...)
	parent.Transforms = append(parent.Transforms, child.Transforms...)
	parent.Scripts = append(parent.Scripts, child.Scripts...)
	parent.Partials = append(parent.Partials, child.Partials...)
}
