package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		p := filepath.Join(root, filepath.FromSlash(n))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("content"), 0o644))
	}
}

func TestCollectFiles(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root,
		"a.md",
		"b.txt",
		"image.png",
		"nested/c.html",
		"nested/deeper/d.md",
		"nested/deeper/e.pdf",
	)

	t.Run("directory", func(t *testing.T) {
		files, err := collectFiles([]string{root})
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join(root, "a.md"),
			filepath.Join(root, "b.txt"),
			filepath.Join(root, "nested", "c.html"),
			filepath.Join(root, "nested", "deeper", "d.md"),
		}, files)
	})

	t.Run("glob", func(t *testing.T) {
		files, err := collectFiles([]string{filepath.Join(root, "**", "*.md")})
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join(root, "a.md"),
			filepath.Join(root, "nested", "deeper", "d.md"),
		}, files)
	})

	t.Run("explicit file and duplicates", func(t *testing.T) {
		file := filepath.Join(root, "b.txt")
		files, err := collectFiles([]string{file, file, filepath.Join(root, "*.txt")})
		require.NoError(t, err)
		assert.Equal(t, []string{file}, files)
	})

	t.Run("no match", func(t *testing.T) {
		_, err := collectFiles([]string{filepath.Join(root, "*.rst")})
		assert.ErrorContains(t, err, "no files match")
	})
}
