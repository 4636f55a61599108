package configloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string   `yaml:"name"`
	Words []string `yaml:"words"`
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "name: billing\nwords: [refund, dispute]\n")

	l := NewLoader(dir)
	var s sample
	require.NoError(t, l.Load("a.yaml", &s))
	assert.Equal(t, "billing", s.Name)
	assert.Equal(t, []string{"refund", "dispute"}, s.Words)

	err := l.Load("missing.yaml", &s)
	assert.Error(t, err)
}

func TestLoader_LoadOptional(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader(dir)

	s := sample{Name: "default"}
	ok, err := l.LoadOptional("", &s)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.LoadOptional("absent.yaml", &s)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "default", s.Name)

	writeFile(t, dir, "bad.yaml", "name: [unterminated\n")
	_, err = l.LoadOptional("bad.yaml", &s)
	assert.Error(t, err)
}

func TestLoader_LoadCached(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "c.yaml", "name: first\n")
	l := NewLoader(dir)

	v1, err := l.LoadCached("c.yaml", func() any { return &sample{} })
	require.NoError(t, err)
	writeFile(t, dir, "c.yaml", "name: second\n")
	v2, err := l.LoadCached("c.yaml", func() any { return &sample{} })
	require.NoError(t, err)

	assert.Same(t, v1, v2)
	assert.Equal(t, "first", v2.(*sample).Name)
}
