// Package curriculum loads module bundles from YAML files and imports them
// into the content store.
package curriculum

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed bundle.schema.json
var bundleSchema string

var schema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(bundleSchema))
})

// Loader loads and caches module bundles from the filesystem.
type Loader struct {
	rootDir string
	bundles map[string]Bundle
	mu      sync.RWMutex
}

// NewLoader creates a loader and loads every bundle under rootDir.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		bundles: make(map[string]Bundle),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	slog.Info("curriculum loaded", "modules", len(l.bundles), "dir", rootDir)
	return l, nil
}

// GetBundle returns a bundle by module code.
func (l *Loader) GetBundle(code string) (Bundle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.bundles[code]
	return b, ok
}

// AllBundles returns all loaded bundles ordered by module code.
func (l *Loader) AllBundles() []Bundle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	bundles := make([]Bundle, 0, len(l.bundles))
	for _, b := range l.bundles {
		bundles = append(bundles, b)
	}
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].Code < bundles[j].Code })
	return bundles
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadBundle(path)
		}
		return nil
	})
}

func (l *Loader) loadBundle(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("skipping invalid bundle YAML", "path", path, "error", err)
		return nil
	}
	if _, ok := doc["code"]; !ok {
		return nil // Not a bundle file
	}

	if err := validateDoc(doc); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := b.check(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.bundles[b.Code]; dup {
		return fmt.Errorf("%s: module %s is defined twice", path, b.Code)
	}
	l.bundles[b.Code] = b
	return nil
}

func validateDoc(doc map[string]any) error {
	s, err := schema()
	if err != nil {
		return fmt.Errorf("compile bundle schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate bundle: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid bundle: %s", strings.Join(msgs, "; "))
}

// check covers the rules the schema cannot express.
func (b *Bundle) check() error {
	seen := make(map[int]bool, len(b.Lessons))
	for i := range b.Lessons {
		l := &b.Lessons[i]
		if l.Number == 0 {
			l.Number = i + 1
		}
		if seen[l.Number] {
			return fmt.Errorf("lesson number %d is used twice", l.Number)
		}
		seen[l.Number] = true
		for j, q := range l.Questions {
			if q.Correct > len(q.Options) {
				return fmt.Errorf("lesson %d question %d: correct option %d of %d", l.Number, j+1, q.Correct, len(q.Options))
			}
		}
	}
	return nil
}
