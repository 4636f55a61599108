// Package configloader reads the YAML policy files (sanitizer patterns,
// knowledge base articles, escalation rules) that tune the support pipeline.
package configloader

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader resolves policy files relative to a base directory.
type Loader struct {
	baseDir string
	cache   sync.Map
}

// NewLoader creates a loader rooted at baseDir.
func NewLoader(baseDir string) *Loader {
	return &Loader{baseDir: baseDir}
}

// Load reads subPath and unmarshals it into target.
func (l *Loader) Load(subPath string, target any) error {
	data, err := os.ReadFile(l.resolve(subPath))
	if err != nil {
		return fmt.Errorf("read policy file %s: %w", subPath, err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unmarshal policy file %s: %w", subPath, err)
	}
	return nil
}

// LoadOptional behaves like Load but leaves target untouched when subPath is
// empty or the file does not exist. It reports whether the file was read.
func (l *Loader) LoadOptional(subPath string, target any) (bool, error) {
	if subPath == "" {
		return false, nil
	}
	if _, err := os.Stat(l.resolve(subPath)); os.IsNotExist(err) {
		return false, nil
	}
	if err := l.Load(subPath, target); err != nil {
		return false, err
	}
	return true, nil
}

// LoadCached loads subPath once and returns the memoized value afterwards.
func (l *Loader) LoadCached(subPath string, factory func() any) (any, error) {
	if cached, ok := l.cache.Load(subPath); ok {
		return cached, nil
	}
	target := factory()
	if err := l.Load(subPath, target); err != nil {
		return nil, err
	}
	actual, _ := l.cache.LoadOrStore(subPath, target)
	return actual, nil
}

func (l *Loader) resolve(subPath string) string {
	if filepath.IsAbs(subPath) || l.baseDir == "" {
		return subPath
	}
	return filepath.Join(l.baseDir, subPath)
}
